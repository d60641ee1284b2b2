package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
	replayRatio float64
)

var (
	totalRequests uint64
	created201    uint64
	replayed200   uint64
	rejected422   uint64
	conflict409   uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API base URL")
	flag.IntVar(&concurrency, "workers", 10, "number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "test duration")
	flag.StringVar(&workload, "workload", "uniform", "workload type: uniform | hotspot")
	flag.IntVar(&accounts, "accounts", 100, "accounts to create before the run")
	flag.Float64Var(&replayRatio, "replay", 0.05, "share of requests that reuse an idempotency key")
}

type account struct {
	ID uuid.UUID `json:"id"`
}

func main() {
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if accounts < 2 {
		logger.Fatal("at least two accounts are required", zap.Int("accounts", accounts))
	}

	client := &http.Client{Timeout: 5 * time.Second}
	ids, err := createAccounts(client, accounts)
	if err != nil {
		logger.Fatal("account setup failed", zap.Error(err))
	}
	logger.Info("starting benchmark",
		zap.String("workload", workload),
		zap.Int("workers", concurrency),
		zap.Duration("duration", duration),
		zap.Int("accounts", len(ids)))

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			worker(gctx, client, ids, w)
			return nil
		})
	}
	_ = g.Wait()

	printResults(time.Since(start))
}

func createAccounts(client *http.Client, n int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		body, _ := json.Marshal(map[string]string{
			"name":            fmt.Sprintf("bench-%d", i),
			"initial_balance": "1000000",
		})
		resp, err := client.Post(targetURL+"/api/v1/accounts", "application/json", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		var a account
		err = json.NewDecoder(resp.Body).Decode(&a)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return nil, fmt.Errorf("create account: unexpected status %d", resp.StatusCode)
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func worker(ctx context.Context, client *http.Client, ids []uuid.UUID, id int) {
	var lastKey string
	var lastBody []byte

	for seq := 0; ctx.Err() == nil; seq++ {
		key, body := lastKey, lastBody
		if key == "" || rand.Float64() >= replayRatio {
			from, to := pickAccounts(ids)
			amount := decimal.New(int64(rand.IntN(1000)+1), -2)
			body, _ = json.Marshal(map[string]string{
				"sender_account_id":   from.String(),
				"receiver_account_id": to.String(),
				"amount":              amount.String(),
				"message":             "benchmark",
			})
			key = fmt.Sprintf("bench-%d-%d-%d", id, seq, time.Now().UnixNano())
			lastKey, lastBody = key, body
		}

		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, targetURL+"/api/v1/transactions", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				atomic.AddUint64(&failOther, 1)
			}
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusCreated:
			atomic.AddUint64(&created201, 1)
		case http.StatusOK:
			atomic.AddUint64(&replayed200, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&rejected422, 1)
		case http.StatusConflict:
			atomic.AddUint64(&conflict409, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickAccounts(ids []uuid.UUID) (uuid.UUID, uuid.UUID) {
	if workload == "hotspot" && len(ids) >= 2 && rand.Float32() < 0.90 {
		// 90% of traffic moves money between the first two accounts.
		if rand.Float32() < 0.5 {
			return ids[0], ids[1]
		}
		return ids[1], ids[0]
	}

	a := rand.IntN(len(ids))
	b := rand.IntN(len(ids))
	for a == b {
		b = rand.IntN(len(ids))
	}
	return ids[a], ids[b]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)

	results := map[string]any{
		"workload":        workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  float64(total) / d.Seconds(),
		"success_created": atomic.LoadUint64(&created201),
		"success_replay":  atomic.LoadUint64(&replayed200),
		"rejected":        atomic.LoadUint64(&rejected422),
		"conflicts":       atomic.LoadUint64(&conflict409),
		"errors":          atomic.LoadUint64(&failOther),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(results)

	file, err := os.Create(fmt.Sprintf("results_%s.json", workload))
	if err != nil {
		return
	}
	defer file.Close()
	_ = json.NewEncoder(file).Encode(results)
}
