// Package cache keeps recently computed aggregations (totals, counts, daily
// summaries) close to the API. Cache failures are never fatal: a failed read
// is a miss and a failed write is dropped.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/minledger/internal/domain"
)

// Version identifies the generation of a key observed by Get. A value
// stored with a Version older than the key's latest invalidation is never
// served.
type Version int64

// NoVersion tells Set to drop the value.
const NoVersion Version = -1

// Cache stores JSON encodable values by key.
type Cache interface {
	// Get decodes the cached value into dst and reports whether it was found.
	// On a miss the returned Version is what the caller passes to Set.
	Get(ctx context.Context, key string, dst any) (bool, Version)
	Set(ctx context.Context, key string, v Version, value any)
	// Delete invalidates keys. Values computed before the call are not
	// served afterwards.
	Delete(ctx context.Context, keys ...string)
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string, any) (bool, Version) { return false, NoVersion }
func (Nop) Set(context.Context, string, Version, any)        {}
func (Nop) Delete(context.Context, ...string)                {}

// Load returns the cached value of key, or computes it with load and caches
// the result.
func Load[T any](ctx context.Context, c Cache, key string, load func(context.Context) (T, error)) (T, error) {
	var v T
	found, version := c.Get(ctx, key, &v)
	if found {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.Set(ctx, key, version, v)
	return v, nil
}

const prefix = "minledger:"

func TotalKey(accountID uuid.UUID) string {
	return prefix + "total:" + accountID.String()
}

func CountKey(accountID uuid.UUID) string {
	return prefix + "count:" + accountID.String()
}

func DailySummaryKey(date time.Time) string {
	return prefix + "daily:" + domain.DateOf(date).Format(domain.DateLayout)
}

// TransactionKeys lists every key whose value depends on t.
func TransactionKeys(t domain.Transaction) []string {
	return []string{
		TotalKey(t.SenderAccountID),
		TotalKey(t.ReceiverAccountID),
		CountKey(t.SenderAccountID),
		CountKey(t.ReceiverAccountID),
		DailySummaryKey(t.CreatedAt),
	}
}
