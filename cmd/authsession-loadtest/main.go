package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/internal/authtest"
)

func main() {
	var (
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "requests per phase")
		expireEvery = flag.Int("expire-every", 500, "expire access credentials every N requests in the expiry phase")
		refreshWait = flag.Duration("refresh-delay", 20*time.Millisecond, "artificial latency of the refresh endpoint")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		namespace   = flag.String("namespace", "authsession-loadtest", "session key prefix")
	)
	flag.Parse()

	if *concurrency <= 0 || *ops <= 0 || *expireEvery <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency, ops, and expire-every must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	srv, err := authtest.New(authtest.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fake service: %v\n", err)
		os.Exit(1)
	}
	if _, err := srv.SeedUser("load@example.com", "correct-horse", "Load", "Test"); err != nil {
		fmt.Fprintf(os.Stderr, "seed user: %v\n", err)
		os.Exit(1)
	}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	cfg := authsession.DefaultConfig()
	cfg.Remote.BaseURL = ts.URL
	cfg.Storage.Namespace = *namespace
	cfg.Metrics.EnableLatencyHistograms = true

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = *concurrency

	client, err := authsession.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithTransport(transport).
		WithLogger(log.New(io.Discard, "", 0)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	client.Restore(ctx)
	if _, err := client.Login(ctx, "load@example.com", "correct-horse"); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	steadyStats := runPhase(ctx, client, *ops, *concurrency, nil)

	srv.SetRefreshDelay(*refreshWait)
	srv.ResetCalls()
	expiryStats := runPhase(ctx, client, *ops, *concurrency, func(i int) {
		if i%*expireEvery == 0 {
			srv.ExpireAccessTokens()
		}
	})
	refreshes := srv.Calls("/auth/refresh")
	expiries := (*ops + *expireEvery - 1) / *expireEvery

	counters := client.MetricsSnapshot().Counters
	fmt.Println("---- results ----")
	printStats("steady", steadyStats)
	printStats("expiry", expiryStats)
	fmt.Printf("renewal: exchanges=%d expiries=%d coalesced=%d skipped=%d replayed=%d signed_out=%t\n",
		refreshes,
		expiries,
		counters[authsession.MetricRefreshCoalesced],
		counters[authsession.MetricRefreshSkipped],
		counters[authsession.MetricRequestReplayed],
		!client.Snapshot().Authenticated(),
	)
}

// runPhase sends ops echo requests from concurrency workers. before, when set,
// runs ahead of request i.
func runPhase(ctx context.Context, client *authsession.Client, ops, concurrency int, before func(i int)) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				if before != nil {
					before(i)
				}
				t0 := time.Now()
				ok := send(ctx, client)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func send(ctx context.Context, client *authsession.Client) bool {
	req, err := client.NewRequest(ctx, http.MethodGet, "/api/echo", nil)
	if err != nil {
		return false
	}
	res := client.Send(req)
	if res.Response != nil {
		_, _ = io.Copy(io.Discard, res.Response.Body)
		_ = res.Response.Body.Close()
	}
	return res.OK() && res.Response.StatusCode == http.StatusOK
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
