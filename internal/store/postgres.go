package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/minledger/internal/domain"
)

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PoolConfig tunes the pgx connection pool.
type PoolConfig struct {
	MaxConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Postgres is the pgx backed Store.
type Postgres struct {
	Db *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

func NewPostgres(ctx context.Context, connString string, pc PoolConfig) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if pc.MaxConns > 0 {
		config.MaxConns = pc.MaxConns
	}
	if pc.MaxConnLifetime > 0 {
		config.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{Db: pool}, nil
}

func (p *Postgres) Close() {
	p.Db.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.Db.Ping(ctx)
}

func (p *Postgres) Accounts() AccountStore         { return &pgAccounts{q: p.Db} }
func (p *Postgres) Transactions() TransactionStore { return &pgTransactions{q: p.Db} }
func (p *Postgres) Idempotency() IdempotencyStore  { return &pgIdempotency{q: p.Db} }

// InTx runs fn inside a READ COMMITTED transaction. Row locks taken with
// GetForUpdate make concurrent transfers on the same account wait for each
// other and re-read the committed balance.
func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return domain.StoreError("tx begin", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.StoreError("tx commit", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) Accounts() AccountStore         { return &pgAccounts{q: t.tx, locking: true} }
func (t pgTx) Transactions() TransactionStore { return &pgTransactions{q: t.tx} }
func (t pgTx) Idempotency() IdempotencyStore  { return &pgIdempotency{q: t.tx} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// queryErr maps pgx.ErrNoRows to domain.ErrNotFound and wraps everything else
// as a store failure.
func queryErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return domain.StoreError(op, err)
}
