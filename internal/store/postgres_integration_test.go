//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/minledger/internal/domain"
	"github.com/punchamoorthee/minledger/internal/service"
	"github.com/punchamoorthee/minledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// setupPostgres starts a disposable PostgreSQL container, applies the
// migrations and returns a connected store.
func setupPostgres(t *testing.T) *store.Postgres {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.Migrate(dsn, zap.NewNop()))
	// A second run finds nothing to apply.
	require.NoError(t, store.Migrate(dsn, zap.NewNop()))

	db, err := store.NewPostgres(ctx, dsn, store.PoolConfig{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func newAccount(number, name, balance string) domain.Account {
	now := time.Now().UTC()
	return domain.Account{
		ID:            uuid.New(),
		AccountNumber: number,
		Name:          name,
		Balance:       decimal.RequireFromString(balance),
		Status:        domain.AccountActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestIntegration_Postgres(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	t.Run("accounts", func(t *testing.T) {
		a, err := db.Accounts().Save(ctx, newAccount("10000001", "Alice Smith", "12.345"))
		require.NoError(t, err)

		got, err := db.Accounts().Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "12.345", got.Balance.String())
		assert.Equal(t, "Alice Smith", got.Name)

		byNumber, err := db.Accounts().GetByNumber(ctx, "10000001")
		require.NoError(t, err)
		assert.Equal(t, a.ID, byNumber.ID)

		_, err = db.Accounts().Save(ctx, newAccount("10000001", "Impostor", "0"))
		assert.ErrorIs(t, err, domain.ErrDuplicateAccountNumber)

		got.Status = domain.AccountBlocked
		got.Balance = decimal.NewFromInt(3)
		_, err = db.Accounts().Save(ctx, got)
		require.NoError(t, err)
		blocked, err := db.Accounts().FindByStatus(ctx, domain.AccountBlocked)
		require.NoError(t, err)
		require.Len(t, blocked, 1)
		assert.Equal(t, "3", blocked[0].Balance.String())

		page, err := db.Accounts().FindByKeyword(ctx, "Smith", "", domain.PageRequest{Page: 0, Size: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 1, page.TotalElements)
		page, err = db.Accounts().FindByKeyword(ctx, "smith", "", domain.PageRequest{Page: 0, Size: 10})
		require.NoError(t, err)
		assert.Empty(t, page.Items)

		require.NoError(t, db.Accounts().Delete(ctx, a.ID))
		_, err = db.Accounts().Get(ctx, a.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, db.Accounts().Delete(ctx, a.ID), domain.ErrNotFound)
	})

	t.Run("rollback", func(t *testing.T) {
		a, err := db.Accounts().Save(ctx, newAccount("20000001", "rollback", "10"))
		require.NoError(t, err)

		boom := errors.New("boom")
		err = db.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			locked, err := tx.Accounts().GetForUpdate(ctx, a.ID)
			if err != nil {
				return err
			}
			locked.Balance = decimal.Zero
			if _, err := tx.Accounts().Save(ctx, locked); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := db.Accounts().Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "10", got.Balance.String())
	})

	t.Run("transfers and aggregations", func(t *testing.T) {
		logger := zap.NewNop()
		accounts := service.NewAccountService(db, service.RandomNumbers, 10, logger)
		transfers := service.NewTransferService(db, nil, logger)
		queries := service.NewQueryService(db, nil, logger)

		a, err := accounts.Create(ctx, "alice", decimal.NewFromInt(1000))
		require.NoError(t, err)
		b, err := accounts.Create(ctx, "bob", decimal.NewFromInt(500))
		require.NoError(t, err)

		res, err := transfers.Transfer(ctx, service.TransferRequest{
			SenderID: a.ID, ReceiverID: b.ID, Amount: decimal.NewFromInt(200), Message: "rent",
		})
		require.NoError(t, err)

		balance, err := accounts.Balance(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "800", balance.String())
		balance, err = accounts.Balance(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "700", balance.String())

		stored, err := transfers.GetByID(ctx, res.Transaction.ID)
		require.NoError(t, err)
		assert.Equal(t, "rent", stored.Message)
		assert.Equal(t, domain.TransactionSuccess, stored.Status)

		_, err = transfers.Transfer(ctx, service.TransferRequest{SenderID: b.ID, ReceiverID: a.ID, Amount: decimal.RequireFromString("0.5")})
		require.NoError(t, err)

		total, err := queries.TotalAmountByAccount(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "200.5", total.String())
		n, err := queries.CountByAccount(ctx, b.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		list, err := queries.ListByAccount(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, res.Transaction.ID, list[0].ID)

		rows, err := queries.DailySummary(ctx, time.Now())
		require.NoError(t, err)
		require.Len(t, rows, 2)
		for _, r := range rows {
			assert.EqualValues(t, 1, r.TransactionCount)
		}

		today := time.Now().UTC()
		page, err := queries.ListByDateRange(ctx, service.DateRangeQuery{
			Start: today, End: today, AccountID: &b.ID, Status: "success",
			Page: domain.PageRequest{Page: 0, Size: 1},
		})
		require.NoError(t, err)
		assert.EqualValues(t, 2, page.TotalElements)
		assert.Len(t, page.Items, 1)

		_, err = transfers.UpdateStatus(ctx, res.Transaction.ID, "PENDING")
		require.NoError(t, err)
		require.NoError(t, transfers.DeleteByID(ctx, res.Transaction.ID))
		assert.ErrorIs(t, transfers.DeleteByID(ctx, res.Transaction.ID), domain.ErrNotFound)
	})

	t.Run("idempotency", func(t *testing.T) {
		logger := zap.NewNop()
		accounts := service.NewAccountService(db, service.RandomNumbers, 10, logger)
		transfers := service.NewTransferService(db, nil, logger)

		a, err := accounts.Create(ctx, "payer", decimal.NewFromInt(100))
		require.NoError(t, err)
		b, err := accounts.Create(ctx, "payee", decimal.Zero)
		require.NoError(t, err)

		req := service.TransferRequest{SenderID: a.ID, ReceiverID: b.ID, Amount: decimal.NewFromInt(10), IdempotencyKey: "order-1"}
		first, err := transfers.Transfer(ctx, req)
		require.NoError(t, err)
		again, err := transfers.Transfer(ctx, req)
		require.NoError(t, err)
		assert.True(t, again.Replayed)
		assert.Equal(t, first.Transaction.ID, again.Transaction.ID)

		req.Amount = decimal.NewFromInt(11)
		_, err = transfers.Transfer(ctx, req)
		assert.ErrorIs(t, err, domain.ErrIdempotencyMismatch)

		err = db.Idempotency().Put(ctx, domain.IdempotencyRecord{
			Key: "order-1", RequestHash: "x", TransactionID: uuid.New(), CreatedAt: time.Now().UTC(),
		})
		assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)
	})

	t.Run("concurrent transfers serialize on row locks", func(t *testing.T) {
		logger := zap.NewNop()
		accounts := service.NewAccountService(db, service.RandomNumbers, 10, logger)
		transfers := service.NewTransferService(db, nil, logger)

		a, err := accounts.Create(ctx, "contended", decimal.NewFromInt(15))
		require.NoError(t, err)
		b, err := accounts.Create(ctx, "x", decimal.Zero)
		require.NoError(t, err)
		c, err := accounts.Create(ctx, "y", decimal.Zero)
		require.NoError(t, err)

		var (
			wg   sync.WaitGroup
			errs = make([]error, 2)
		)
		for i, to := range []uuid.UUID{b.ID, c.ID} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = transfers.Transfer(ctx, service.TransferRequest{SenderID: a.ID, ReceiverID: to, Amount: decimal.NewFromInt(10)})
			}()
		}
		wg.Wait()

		var ok, insufficient int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientFunds):
				insufficient++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, insufficient)

		balance, err := accounts.Balance(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "5", balance.String())
	})

	t.Run("opposing transfers do not deadlock", func(t *testing.T) {
		logger := zap.NewNop()
		accounts := service.NewAccountService(db, service.RandomNumbers, 10, logger)
		transfers := service.NewTransferService(db, nil, logger)

		a, err := accounts.Create(ctx, "left", decimal.NewFromInt(100))
		require.NoError(t, err)
		b, err := accounts.Create(ctx, "right", decimal.NewFromInt(100))
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make(chan error, 40)
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := transfers.Transfer(ctx, service.TransferRequest{SenderID: a.ID, ReceiverID: b.ID, Amount: decimal.NewFromInt(1)})
				errs <- err
			}()
			go func() {
				defer wg.Done()
				_, err := transfers.Transfer(ctx, service.TransferRequest{SenderID: b.ID, ReceiverID: a.ID, Amount: decimal.NewFromInt(1)})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		left, err := accounts.Balance(ctx, a.ID)
		require.NoError(t, err)
		right, err := accounts.Balance(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "200", left.Add(right).String())
		assert.Equal(t, "100", left.String())
	})
}
