package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/minledger/internal/domain"
	"github.com/shopspring/decimal"
)

// AccountStore persists accounts. Lookups of missing ids return domain.ErrNotFound.
type AccountStore interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Account, error)
	// GetForUpdate reads the account and holds a row lock until the
	// surrounding transaction ends. Outside InTx it behaves like Get.
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Account, error)
	GetByNumber(ctx context.Context, number string) (domain.Account, error)
	// Save inserts or replaces the account. A taken account number yields
	// domain.ErrDuplicateAccountNumber.
	Save(ctx context.Context, a domain.Account) (domain.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FindAll(ctx context.Context) ([]domain.Account, error)
	FindByStatus(ctx context.Context, status domain.AccountStatus) ([]domain.Account, error)
	// FindByKeyword matches keyword as a substring of the name or account
	// number. An empty status matches every status.
	FindByKeyword(ctx context.Context, keyword string, status domain.AccountStatus, page domain.PageRequest) (domain.Page[domain.Account], error)
}

// DateRangeFilter narrows FindByDateRange. Start and End are inclusive UTC days.
type DateRangeFilter struct {
	Start     time.Time
	End       time.Time
	AccountID *uuid.UUID
	Status    domain.TransactionStatus
	Page      domain.PageRequest
}

// TransactionStore persists transaction records.
type TransactionStore interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Transaction, error)
	Save(ctx context.Context, t domain.Transaction) (domain.Transaction, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	FindBySenderOrReceiver(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error)
	FindByDateRange(ctx context.Context, f DateRangeFilter) (domain.Page[domain.Transaction], error)
	SumAmountByAccount(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	CountBySenderOrReceiver(ctx context.Context, accountID uuid.UUID) (int64, error)
	// DailySummaryGroupedBySender groups the transactions created on date by
	// sender. Receivers are not counted.
	DailySummaryGroupedBySender(ctx context.Context, date time.Time) ([]domain.DailySummary, error)
}

// IdempotencyStore remembers which transfer a client key produced.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (domain.IdempotencyRecord, error)
	// Put returns domain.ErrIdempotencyConflict if the key already exists.
	Put(ctx context.Context, rec domain.IdempotencyRecord) error
}

// Tx is the set of stores bound to one unit of work.
type Tx interface {
	Accounts() AccountStore
	Transactions() TransactionStore
	Idempotency() IdempotencyStore
}

// Store is the persistence boundary of the ledger.
type Store interface {
	Tx
	// InTx runs fn atomically: every write made through tx becomes visible
	// together when fn returns nil, and none does otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}
