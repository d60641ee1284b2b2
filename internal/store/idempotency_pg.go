package store

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/minledger/internal/domain"
)

type pgIdempotency struct {
	q querier
}

func (s *pgIdempotency) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := s.q.QueryRow(ctx,
		"SELECT key, request_hash, transaction_id, created_at FROM idempotency_keys WHERE key = $1",
		key,
	).Scan(&rec.Key, &rec.RequestHash, &rec.TransactionID, &rec.CreatedAt)
	if err != nil {
		return domain.IdempotencyRecord{}, queryErr("get idempotency key", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

// Put blocks on the unique index while a concurrent holder of the same key is
// uncommitted, then fails with ErrIdempotencyConflict if that holder committed.
func (s *pgIdempotency) Put(ctx context.Context, rec domain.IdempotencyRecord) error {
	_, err := s.q.Exec(ctx,
		"INSERT INTO idempotency_keys (key, request_hash, transaction_id, created_at) VALUES ($1, $2, $3, $4)",
		rec.Key, rec.RequestHash, rec.TransactionID, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("put idempotency key: %w", domain.ErrIdempotencyConflict)
		}
		return domain.StoreError("put idempotency key", err)
	}
	return nil
}
