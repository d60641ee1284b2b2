package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/punchamoorthee/minledger/internal/config"
	"github.com/punchamoorthee/minledger/internal/domain"
	"github.com/punchamoorthee/minledger/internal/logging"
	"github.com/punchamoorthee/minledger/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	total := flag.Int("accounts", 1000, "number of accounts to create")
	balance := flag.String("balance", "100.00", "initial balance of every seeded account")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	initial, err := decimal.NewFromString(*balance)
	if err != nil || initial.IsNegative() {
		logger.Fatal("invalid initial balance", zap.String("balance", *balance))
	}

	if cfg.DBMigrate {
		if err := store.Migrate(cfg.DBSource, logger); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.DBSource)
	if err != nil {
		logger.Fatal("unable to connect to database", zap.Error(err))
	}
	defer conn.Close(ctx)

	var count int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		logger.Fatal("count accounts", zap.Error(err))
	}
	if count >= *total {
		logger.Info("database already seeded, skipping", zap.Int("accounts", count))
		return
	}

	// Seeded numbers are sequential above the existing count so they cannot collide
	// with each other. A clash with a randomly generated number fails the copy.
	now := time.Now().UTC()
	amount := pgtype.Numeric{Int: initial.Coefficient(), Exp: initial.Exponent(), Valid: true}
	rows := make([][]any, 0, *total-count)
	for i := count; i < *total; i++ {
		rows = append(rows, []any{
			uuid.New(),
			fmt.Sprintf("%08d", 90_000_000+i),
			fmt.Sprintf("seed account %d", i+1),
			amount,
			string(domain.AccountActive),
			now,
			now,
		})
	}

	copied, err := conn.CopyFrom(
		ctx,
		pgx.Identifier{"accounts"},
		[]string{"id", "account_number", "name", "balance", "status", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		logger.Fatal("bulk insert failed", zap.Error(err))
	}

	logger.Info("seeded accounts", zap.Int64("accounts", copied), zap.String("balance", initial.String()))
}
