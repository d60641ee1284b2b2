package store

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/minledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Memory is an in-process Store. InTx holds the write lock for the whole unit
// of work and undoes its writes if fn fails, so readers never see partial state.
type Memory struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]domain.Account
	transactions map[uuid.UUID]domain.Transaction
	idempotency  map[string]domain.IdempotencyRecord
	failures     map[string]error
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[uuid.UUID]domain.Account),
		transactions: make(map[uuid.UUID]domain.Transaction),
		idempotency:  make(map[string]domain.IdempotencyRecord),
		failures:     make(map[string]error),
	}
}

// FailOn makes every call of op (for example "transactions.save") return err
// wrapped as a store failure. A nil err clears it.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close()                     {}

func (m *Memory) Accounts() AccountStore         { return memAccounts{memView{m: m}} }
func (m *Memory) Transactions() TransactionStore { return memTransactions{memView{m: m}} }
func (m *Memory) Idempotency() IdempotencyStore  { return memIdempotency{memView{m: m}} }

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{view: memView{m: m, inTx: true, undo: new([]func())}}
	if err := fn(ctx, tx); err != nil {
		undo := *tx.view.undo
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return err
	}
	return nil
}

type memTx struct {
	view memView
}

func (t *memTx) Accounts() AccountStore         { return memAccounts{t.view} }
func (t *memTx) Transactions() TransactionStore { return memTransactions{t.view} }
func (t *memTx) Idempotency() IdempotencyStore  { return memIdempotency{t.view} }

// memView runs operations either under their own lock or, inside InTx, under
// the lock already held by the transaction.
type memView struct {
	m    *Memory
	inTx bool
	undo *[]func()
}

func (v memView) read(fn func() error) error {
	if !v.inTx {
		v.m.mu.RLock()
		defer v.m.mu.RUnlock()
	}
	return fn()
}

func (v memView) write(fn func() error) error {
	if !v.inTx {
		v.m.mu.Lock()
		defer v.m.mu.Unlock()
	}
	return fn()
}

func (v memView) record(undo func()) {
	if v.undo != nil {
		*v.undo = append(*v.undo, undo)
	}
}

func (v memView) failure(op string) error {
	if err, ok := v.m.failures[op]; ok {
		return domain.StoreError(op, err)
	}
	return nil
}

func lessByCreated(at, bt time.Time, a, b uuid.UUID) bool {
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return bytes.Compare(a[:], b[:]) < 0
}

type memAccounts struct{ memView }

func (s memAccounts) sorted(keep func(domain.Account) bool) []domain.Account {
	out := []domain.Account{}
	for _, a := range s.m.accounts {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lessByCreated(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

func (s memAccounts) Get(_ context.Context, id uuid.UUID) (domain.Account, error) {
	var a domain.Account
	err := s.read(func() error {
		if err := s.failure("accounts.get"); err != nil {
			return err
		}
		found, ok := s.m.accounts[id]
		if !ok {
			return fmt.Errorf("get account %s: %w", id, domain.ErrNotFound)
		}
		a = found
		return nil
	})
	return a, err
}

func (s memAccounts) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	return s.Get(ctx, id)
}

func (s memAccounts) GetByNumber(_ context.Context, number string) (domain.Account, error) {
	var a domain.Account
	err := s.read(func() error {
		for _, found := range s.m.accounts {
			if found.AccountNumber == number {
				a = found
				return nil
			}
		}
		return fmt.Errorf("get account by number %s: %w", number, domain.ErrNotFound)
	})
	return a, err
}

func (s memAccounts) Save(_ context.Context, a domain.Account) (domain.Account, error) {
	err := s.write(func() error {
		if err := s.failure("accounts.save"); err != nil {
			return err
		}
		for _, other := range s.m.accounts {
			if other.ID != a.ID && other.AccountNumber == a.AccountNumber {
				return fmt.Errorf("save account %s: %w", a.AccountNumber, domain.ErrDuplicateAccountNumber)
			}
		}
		prev, existed := s.m.accounts[a.ID]
		s.m.accounts[a.ID] = a
		s.record(func() {
			if existed {
				s.m.accounts[a.ID] = prev
			} else {
				delete(s.m.accounts, a.ID)
			}
		})
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

func (s memAccounts) Delete(_ context.Context, id uuid.UUID) error {
	return s.write(func() error {
		prev, ok := s.m.accounts[id]
		if !ok {
			return fmt.Errorf("delete account %s: %w", id, domain.ErrNotFound)
		}
		delete(s.m.accounts, id)
		s.record(func() { s.m.accounts[id] = prev })
		return nil
	})
}

func (s memAccounts) FindAll(context.Context) ([]domain.Account, error) {
	var out []domain.Account
	err := s.read(func() error {
		if err := s.failure("accounts.find"); err != nil {
			return err
		}
		out = s.sorted(func(domain.Account) bool { return true })
		return nil
	})
	return out, err
}

func (s memAccounts) FindByStatus(_ context.Context, status domain.AccountStatus) ([]domain.Account, error) {
	var out []domain.Account
	err := s.read(func() error {
		out = s.sorted(func(a domain.Account) bool { return a.Status == status })
		return nil
	})
	return out, err
}

func (s memAccounts) FindByKeyword(_ context.Context, keyword string, status domain.AccountStatus, page domain.PageRequest) (domain.Page[domain.Account], error) {
	var out domain.Page[domain.Account]
	err := s.read(func() error {
		matches := s.sorted(func(a domain.Account) bool {
			if status != "" && a.Status != status {
				return false
			}
			return strings.Contains(a.Name, keyword) || strings.Contains(a.AccountNumber, keyword)
		})
		out = domain.Paginate(matches, page)
		return nil
	})
	return out, err
}

type memTransactions struct{ memView }

func (s memTransactions) sorted(keep func(domain.Transaction) bool) []domain.Transaction {
	out := []domain.Transaction{}
	for _, t := range s.m.transactions {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lessByCreated(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

func (s memTransactions) Get(_ context.Context, id uuid.UUID) (domain.Transaction, error) {
	var t domain.Transaction
	err := s.read(func() error {
		found, ok := s.m.transactions[id]
		if !ok {
			return fmt.Errorf("get transaction %s: %w", id, domain.ErrNotFound)
		}
		t = found
		return nil
	})
	return t, err
}

func (s memTransactions) Save(_ context.Context, t domain.Transaction) (domain.Transaction, error) {
	err := s.write(func() error {
		if err := s.failure("transactions.save"); err != nil {
			return err
		}
		prev, existed := s.m.transactions[t.ID]
		if existed {
			// Only the status label of a recorded transaction may change.
			updated := prev
			updated.Status = t.Status
			t = updated
		}
		s.m.transactions[t.ID] = t
		s.record(func() {
			if existed {
				s.m.transactions[t.ID] = prev
			} else {
				delete(s.m.transactions, t.ID)
			}
		})
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

func (s memTransactions) DeleteByID(_ context.Context, id uuid.UUID) error {
	return s.write(func() error {
		prev, ok := s.m.transactions[id]
		if !ok {
			return fmt.Errorf("delete transaction %s: %w", id, domain.ErrNotFound)
		}
		delete(s.m.transactions, id)
		s.record(func() { s.m.transactions[id] = prev })
		return nil
	})
}

func (s memTransactions) FindBySenderOrReceiver(_ context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := s.read(func() error {
		out = s.sorted(func(t domain.Transaction) bool { return t.Involves(accountID) })
		return nil
	})
	return out, err
}

func (s memTransactions) FindByDateRange(_ context.Context, f DateRangeFilter) (domain.Page[domain.Transaction], error) {
	start, end := domain.DateOf(f.Start), domain.DateOf(f.End)
	var out domain.Page[domain.Transaction]
	err := s.read(func() error {
		matches := s.sorted(func(t domain.Transaction) bool {
			day := domain.DateOf(t.CreatedAt)
			if day.Before(start) || day.After(end) {
				return false
			}
			if f.AccountID != nil && !t.Involves(*f.AccountID) {
				return false
			}
			return f.Status == "" || t.Status == f.Status
		})
		out = domain.Paginate(matches, f.Page)
		return nil
	})
	return out, err
}

func (s memTransactions) SumAmountByAccount(_ context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := s.read(func() error {
		if err := s.failure("transactions.sum"); err != nil {
			return err
		}
		for _, t := range s.m.transactions {
			if t.Involves(accountID) {
				sum = sum.Add(t.Amount)
			}
		}
		return nil
	})
	return sum, err
}

func (s memTransactions) CountBySenderOrReceiver(_ context.Context, accountID uuid.UUID) (int64, error) {
	var n int64
	err := s.read(func() error {
		for _, t := range s.m.transactions {
			if t.Involves(accountID) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s memTransactions) DailySummaryGroupedBySender(_ context.Context, date time.Time) ([]domain.DailySummary, error) {
	day := domain.DateOf(date)
	out := []domain.DailySummary{}
	err := s.read(func() error {
		bySender := make(map[uuid.UUID]*domain.DailySummary)
		for _, t := range s.m.transactions {
			if !domain.DateOf(t.CreatedAt).Equal(day) {
				continue
			}
			row, ok := bySender[t.SenderAccountID]
			if !ok {
				row = &domain.DailySummary{AccountID: t.SenderAccountID, Date: day, TotalAmount: decimal.Zero}
				bySender[t.SenderAccountID] = row
			}
			row.TransactionCount++
			row.TotalAmount = row.TotalAmount.Add(t.Amount)
		}
		for _, row := range bySender {
			out = append(out, *row)
		}
		sort.Slice(out, func(i, j int) bool {
			return bytes.Compare(out[i].AccountID[:], out[j].AccountID[:]) < 0
		})
		return nil
	})
	return out, err
}

type memIdempotency struct{ memView }

func (s memIdempotency) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := s.read(func() error {
		found, ok := s.m.idempotency[key]
		if !ok {
			return fmt.Errorf("get idempotency key: %w", domain.ErrNotFound)
		}
		rec = found
		return nil
	})
	return rec, err
}

func (s memIdempotency) Put(_ context.Context, rec domain.IdempotencyRecord) error {
	return s.write(func() error {
		if _, ok := s.m.idempotency[rec.Key]; ok {
			return fmt.Errorf("put idempotency key: %w", domain.ErrIdempotencyConflict)
		}
		s.m.idempotency[rec.Key] = rec
		s.record(func() { delete(s.m.idempotency, rec.Key) })
		return nil
	})
}
