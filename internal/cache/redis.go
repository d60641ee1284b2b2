package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_cache_requests_total",
	Help: "Aggregation cache lookups, labeled by result",
}, []string{"result"})

// Redis is a Cache backed by a Redis server. Calls go through a circuit
// breaker so an unavailable server is skipped instead of slowing every read.
//
// Every key has a generation counter stored next to it. Delete bumps the
// counter and values carry the generation they were computed under, so a
// value written by a reader that raced an invalidation is ignored. Keys
// whose invalidation failed are remembered and bypass the cache until a
// later invalidation succeeds.
type Redis struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	dirty map[string]struct{}
}

var _ Cache = (*Redis)(nil)

type entry struct {
	Gen   int64           `json:"gen"`
	Value json.RawMessage `json:"value"`
}

func genKey(key string) string { return key + ":gen" }

// NewRedis wraps client. Entries expire after ttl.
func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Redis{
		client:  client,
		breaker: breaker,
		ttl:     ttl,
		logger:  logger,
		dirty:   make(map[string]struct{}),
	}
}

func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, Version) {
	if r.isDirty(key) && !r.invalidate(ctx, key) {
		cacheRequests.WithLabelValues("bypass").Inc()
		return false, NoVersion
	}

	res, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.MGet(ctx, key, genKey(key)).Result()
	})
	if err != nil {
		cacheRequests.WithLabelValues("error").Inc()
		r.logger.Debug("cache get failed", zap.String("key", key), zap.Error(err))
		return false, NoVersion
	}

	vals, _ := res.([]interface{})
	if len(vals) != 2 {
		cacheRequests.WithLabelValues("error").Inc()
		return false, NoVersion
	}
	var gen int64
	if raw, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(raw, 10, 64); err != nil {
			cacheRequests.WithLabelValues("error").Inc()
			r.logger.Warn("cache generation undecodable", zap.String("key", key), zap.Error(err))
			return false, NoVersion
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		cacheRequests.WithLabelValues("miss").Inc()
		return false, Version(gen)
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		cacheRequests.WithLabelValues("error").Inc()
		r.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false, Version(gen)
	}
	if e.Gen != gen {
		cacheRequests.WithLabelValues("stale").Inc()
		return false, Version(gen)
	}
	if err := json.Unmarshal(e.Value, dst); err != nil {
		cacheRequests.WithLabelValues("error").Inc()
		r.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false, Version(gen)
	}
	cacheRequests.WithLabelValues("hit").Inc()
	return true, Version(gen)
}

func (r *Redis) Set(ctx context.Context, key string, v Version, value any) {
	if v < 0 || r.isDirty(key) {
		return
	}
	b, err := json.Marshal(value)
	if err != nil {
		r.logger.Warn("cache value unencodable", zap.String("key", key), zap.Error(err))
		return
	}
	b, err = json.Marshal(entry{Gen: int64(v), Value: b})
	if err != nil {
		r.logger.Warn("cache value unencodable", zap.String("key", key), zap.Error(err))
		return
	}
	_, err = r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, key, b, r.ttl).Err()
	})
	if err != nil {
		r.logger.Debug("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	r.invalidate(ctx, keys...)
}

// invalidate drops the values of keys and bumps their generations. On
// failure the keys are marked dirty and false is returned.
func (r *Redis) invalidate(ctx context.Context, keys ...string) bool {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			for _, k := range keys {
				pipe.Incr(ctx, genKey(k))
				if r.ttl > 0 {
					pipe.Expire(ctx, genKey(k), 2*r.ttl)
				}
			}
			return nil
		})
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		for _, k := range keys {
			r.dirty[k] = struct{}{}
		}
		r.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
		return false
	}
	for _, k := range keys {
		delete(r.dirty, k)
	}
	return true
}

func (r *Redis) isDirty(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.dirty[key]
	return ok
}
