package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/punchamoorthee/minledger/internal/domain"
	"github.com/shopspring/decimal"
)

const transactionColumns = "id, sender_account_id, receiver_account_id, amount, status, message, created_at"

// createdDay is the UTC calendar day a transaction was created on.
const createdDay = "(created_at AT TIME ZONE 'UTC')::date"

type pgTransactions struct {
	q querier
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		t      domain.Transaction
		amount pgtype.Numeric
		status string
	)
	if err := row.Scan(&t.ID, &t.SenderAccountID, &t.ReceiverAccountID, &amount, &status, &t.Message, &t.CreatedAt); err != nil {
		return domain.Transaction{}, err
	}
	a, err := fromNumeric(amount)
	if err != nil {
		return domain.Transaction{}, err
	}
	t.Amount = a
	t.Status = domain.TransactionStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	txs := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *pgTransactions) Get(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	t, err := scanTransaction(s.q.QueryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = $1", id))
	if err != nil {
		return domain.Transaction{}, queryErr("get transaction", err)
	}
	return t, nil
}

// Save inserts the record, or relabels its status if it already exists.
// The other columns never change after creation.
func (s *pgTransactions) Save(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	_, err := s.q.Exec(ctx, `
		INSERT INTO transactions (id, sender_account_id, receiver_account_id, amount, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		t.ID, t.SenderAccountID, t.ReceiverAccountID, toNumeric(t.Amount), string(t.Status), t.Message, t.CreatedAt,
	)
	if err != nil {
		return domain.Transaction{}, domain.StoreError("save transaction", err)
	}
	return t, nil
}

func (s *pgTransactions) DeleteByID(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, "DELETE FROM transactions WHERE id = $1", id)
	if err != nil {
		return domain.StoreError("delete transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete transaction %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *pgTransactions) FindBySenderOrReceiver(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := s.q.Query(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE sender_account_id = $1 OR receiver_account_id = $1 ORDER BY created_at, id",
		accountID)
	if err != nil {
		return nil, domain.StoreError("list transactions", err)
	}
	txs, err := collectTransactions(rows)
	if err != nil {
		return nil, domain.StoreError("list transactions", err)
	}
	return txs, nil
}

const dateRangePredicate = createdDay + ` BETWEEN $1::date AND $2::date
	AND ($3::uuid IS NULL OR sender_account_id = $3::uuid OR receiver_account_id = $3::uuid)
	AND ($4::text = '' OR status = $4::text)`

func (s *pgTransactions) FindByDateRange(ctx context.Context, f DateRangeFilter) (domain.Page[domain.Transaction], error) {
	account := pgtype.UUID{}
	if f.AccountID != nil {
		account = pgtype.UUID{Bytes: *f.AccountID, Valid: true}
	}
	args := []any{
		f.Start.Format(domain.DateLayout),
		f.End.Format(domain.DateLayout),
		account,
		string(f.Status),
	}

	var total int64
	if err := s.q.QueryRow(ctx, "SELECT COUNT(*) FROM transactions WHERE "+dateRangePredicate, args...).Scan(&total); err != nil {
		return domain.Page[domain.Transaction]{}, domain.StoreError("count transactions", err)
	}

	rows, err := s.q.Query(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE "+dateRangePredicate+" ORDER BY created_at, id LIMIT $5 OFFSET $6",
		append(args, f.Page.Size, f.Page.Offset())...,
	)
	if err != nil {
		return domain.Page[domain.Transaction]{}, domain.StoreError("list transactions by date", err)
	}
	txs, err := collectTransactions(rows)
	if err != nil {
		return domain.Page[domain.Transaction]{}, domain.StoreError("list transactions by date", err)
	}
	return domain.NewPage(txs, f.Page, total), nil
}

func (s *pgTransactions) SumAmountByAccount(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var sum pgtype.Numeric
	err := s.q.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE sender_account_id = $1 OR receiver_account_id = $1",
		accountID,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, domain.StoreError("sum transactions", err)
	}
	d, err := fromNumeric(sum)
	if err != nil {
		return decimal.Zero, domain.StoreError("sum transactions", err)
	}
	return d, nil
}

func (s *pgTransactions) CountBySenderOrReceiver(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var n int64
	err := s.q.QueryRow(ctx,
		"SELECT COUNT(*) FROM transactions WHERE sender_account_id = $1 OR receiver_account_id = $1",
		accountID,
	).Scan(&n)
	if err != nil {
		return 0, domain.StoreError("count transactions", err)
	}
	return n, nil
}

func (s *pgTransactions) DailySummaryGroupedBySender(ctx context.Context, date time.Time) ([]domain.DailySummary, error) {
	day := domain.DateOf(date)
	rows, err := s.q.Query(ctx, `
		SELECT sender_account_id, COUNT(*), COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE `+createdDay+` = $1::date
		GROUP BY sender_account_id
		ORDER BY sender_account_id`,
		day.Format(domain.DateLayout),
	)
	if err != nil {
		return nil, domain.StoreError("daily summary", err)
	}
	defer rows.Close()

	summaries := []domain.DailySummary{}
	for rows.Next() {
		var (
			row   domain.DailySummary
			total pgtype.Numeric
		)
		if err := rows.Scan(&row.AccountID, &row.TransactionCount, &total); err != nil {
			return nil, domain.StoreError("daily summary", err)
		}
		if row.TotalAmount, err = fromNumeric(total); err != nil {
			return nil, domain.StoreError("daily summary", err)
		}
		row.Date = day
		summaries = append(summaries, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreError("daily summary", err)
	}
	return summaries, nil
}
