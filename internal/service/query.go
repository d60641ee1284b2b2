package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/minledger/internal/cache"
	"github.com/punchamoorthee/minledger/internal/domain"
	"github.com/punchamoorthee/minledger/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DateRangeQuery selects transactions created between Start and End, both
// inclusive UTC days. AccountID and Status are optional.
type DateRangeQuery struct {
	Start     time.Time
	End       time.Time
	AccountID *uuid.UUID
	Status    string
	Page      domain.PageRequest
}

// QueryService answers read-only questions about recorded transactions.
// Aggregations go through the cache.
type QueryService struct {
	store  store.Store
	cache  cache.Cache
	logger *zap.Logger
}

func NewQueryService(s store.Store, c cache.Cache, logger *zap.Logger) *QueryService {
	if c == nil {
		c = cache.Nop{}
	}
	return &QueryService{store: s, cache: c, logger: logger}
}

// TotalAmountByAccount sums every transaction the account sent or received.
func (s *QueryService) TotalAmountByAccount(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	total, err := cache.Load(ctx, s.cache, cache.TotalKey(accountID), func(ctx context.Context) (decimal.Decimal, error) {
		return s.store.Transactions().SumAmountByAccount(ctx, accountID)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *QueryService) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return cache.Load(ctx, s.cache, cache.CountKey(accountID), func(ctx context.Context) (int64, error) {
		return s.store.Transactions().CountBySenderOrReceiver(ctx, accountID)
	})
}

func (s *QueryService) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	return s.store.Transactions().FindBySenderOrReceiver(ctx, accountID)
}

// ListByUser lists the transactions of a user. Users own a single account
// whose id doubles as the user id.
func (s *QueryService) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	return s.store.Transactions().FindBySenderOrReceiver(ctx, userID)
}

func (s *QueryService) ListByDateRange(ctx context.Context, q DateRangeQuery) (domain.Page[domain.Transaction], error) {
	start, end := domain.DateOf(q.Start), domain.DateOf(q.End)
	if start.After(end) {
		return domain.Page[domain.Transaction]{}, fmt.Errorf("%w: start date %s is after end date %s",
			domain.ErrInvalidOperation, start.Format(domain.DateLayout), end.Format(domain.DateLayout))
	}
	if err := q.Page.Validate(); err != nil {
		return domain.Page[domain.Transaction]{}, err
	}

	f := store.DateRangeFilter{Start: start, End: end, AccountID: q.AccountID, Page: q.Page}
	if strings.TrimSpace(q.Status) != "" {
		st, err := domain.ParseTransactionStatus(q.Status)
		if err != nil {
			return domain.Page[domain.Transaction]{}, err
		}
		f.Status = st
	}
	return s.store.Transactions().FindByDateRange(ctx, f)
}

// DailySummary reports, per sending account, how many transfers it made on
// date and their total. Received amounts are not included.
func (s *QueryService) DailySummary(ctx context.Context, date time.Time) ([]domain.DailySummary, error) {
	day := domain.DateOf(date)
	rows, err := cache.Load(ctx, s.cache, cache.DailySummaryKey(day), func(ctx context.Context) ([]domain.DailySummary, error) {
		rows, err := s.store.Transactions().DailySummaryGroupedBySender(ctx, day)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("daily summary computed",
			zap.String("date", day.Format(domain.DateLayout)),
			zap.Int("senders", len(rows)))
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.DailySummary{}
	}
	return rows, nil
}
