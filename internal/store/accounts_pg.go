package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/punchamoorthee/minledger/internal/domain"
)

const accountColumns = "id, account_number, name, balance, status, created_at, updated_at"

type pgAccounts struct {
	q       querier
	locking bool
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		a       domain.Account
		balance pgtype.Numeric
		status  string
	)
	if err := row.Scan(&a.ID, &a.AccountNumber, &a.Name, &balance, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return domain.Account{}, err
	}
	b, err := fromNumeric(balance)
	if err != nil {
		return domain.Account{}, err
	}
	a.Balance = b
	a.Status = domain.AccountStatus(status)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func collectAccounts(rows pgx.Rows) ([]domain.Account, error) {
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *pgAccounts) Get(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	a, err := scanAccount(s.q.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id))
	if err != nil {
		return domain.Account{}, queryErr("get account", err)
	}
	return a, nil
}

// GetForUpdate locks the row when running inside a transaction.
func (s *pgAccounts) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	if !s.locking {
		return s.Get(ctx, id)
	}
	a, err := scanAccount(s.q.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return domain.Account{}, queryErr("lock account", err)
	}
	return a, nil
}

func (s *pgAccounts) GetByNumber(ctx context.Context, number string) (domain.Account, error) {
	a, err := scanAccount(s.q.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE account_number = $1", number))
	if err != nil {
		return domain.Account{}, queryErr("get account by number", err)
	}
	return a, nil
}

func (s *pgAccounts) Save(ctx context.Context, a domain.Account) (domain.Account, error) {
	_, err := s.q.Exec(ctx, `
		INSERT INTO accounts (id, account_number, name, balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			account_number = EXCLUDED.account_number,
			name = EXCLUDED.name,
			balance = EXCLUDED.balance,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		a.ID, a.AccountNumber, a.Name, toNumeric(a.Balance), string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Account{}, fmt.Errorf("save account %s: %w", a.AccountNumber, domain.ErrDuplicateAccountNumber)
		}
		return domain.Account{}, domain.StoreError("save account", err)
	}
	return a, nil
}

func (s *pgAccounts) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, "DELETE FROM accounts WHERE id = $1", id)
	if err != nil {
		return domain.StoreError("delete account", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *pgAccounts) FindAll(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.q.Query(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY created_at, id")
	if err != nil {
		return nil, domain.StoreError("list accounts", err)
	}
	accounts, err := collectAccounts(rows)
	if err != nil {
		return nil, domain.StoreError("list accounts", err)
	}
	return accounts, nil
}

func (s *pgAccounts) FindByStatus(ctx context.Context, status domain.AccountStatus) ([]domain.Account, error) {
	rows, err := s.q.Query(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE status = $1 ORDER BY created_at, id",
		string(status))
	if err != nil {
		return nil, domain.StoreError("list accounts by status", err)
	}
	accounts, err := collectAccounts(rows)
	if err != nil {
		return nil, domain.StoreError("list accounts by status", err)
	}
	return accounts, nil
}

// strpos keeps % and _ in the keyword literal, which LIKE would not.
const keywordPredicate = `($1::text = '' OR status = $1::text) AND (strpos(name, $2::text) > 0 OR strpos(account_number, $2::text) > 0)`

func (s *pgAccounts) FindByKeyword(ctx context.Context, keyword string, status domain.AccountStatus, page domain.PageRequest) (domain.Page[domain.Account], error) {
	var total int64
	if err := s.q.QueryRow(ctx,
		"SELECT COUNT(*) FROM accounts WHERE "+keywordPredicate,
		string(status), keyword,
	).Scan(&total); err != nil {
		return domain.Page[domain.Account]{}, domain.StoreError("count accounts", err)
	}

	rows, err := s.q.Query(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE "+keywordPredicate+" ORDER BY created_at, id LIMIT $3 OFFSET $4",
		string(status), keyword, page.Size, page.Offset(),
	)
	if err != nil {
		return domain.Page[domain.Account]{}, domain.StoreError("search accounts", err)
	}
	accounts, err := collectAccounts(rows)
	if err != nil {
		return domain.Page[domain.Account]{}, domain.StoreError("search accounts", err)
	}
	return domain.NewPage(accounts, page, total), nil
}
