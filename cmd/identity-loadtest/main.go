// Command identity-loadtest drives an in-process engine with concurrent
// login, access-token validation and refresh rotation.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"golang.org/x/sync/errgroup"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/store/memory"
)

const password = "Loadtest-pass-1"

type account struct {
	email   string
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 5000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		argonMemory = flag.Uint("argon-memory-kib", 8*1024, "argon2id memory per hash in KiB")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client, err := cache.NewRedisClient(ctx, cache.RedisOptions{Addr: addr, PoolSize: *concurrency})
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	c := cache.NewRedis(client, "lt")
	defer c.Close()

	cfg := goIdentity.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("loadtest-signing-key-0123456789abcdef")
	cfg.TOTP.SealKey = []byte("loadtest-seal-key-0123456789abcd")
	cfg.Password.Memory = uint32(*argonMemory)
	cfg.Password.Time = 1
	cfg.Registration.EnableIdentifierThrottle = false
	cfg.Registration.EnableIPThrottle = false
	cfg.Lockout.Threshold = 0

	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithStore(memory.New()).
		WithCache(c).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	accounts := make([]*account, *users)
	fmt.Printf("seeding %d accounts...\n", *users)
	startSeed := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)
	for i := range accounts {
		acc := &account{email: fmt.Sprintf("user-%d@loadtest.local", i)}
		accounts[i] = acc
		g.Go(func() error {
			res, err := engine.Register(gctx, goIdentity.RegisterCommand{
				Email:           acc.email,
				Password:        password,
				ConfirmPassword: password,
				FirstName:       "Load",
				LastName:        "Test",
			})
			if err != nil {
				return fmt.Errorf("register %s: %w", acc.email, err)
			}
			acc.access, acc.refresh = res.Tokens.AccessToken, res.Tokens.RefreshToken
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats := runPhase(*ops/10+1, *concurrency, accounts, func(acc *account) error {
		_, err := engine.Login(ctx, goIdentity.LoginCommand{Email: acc.email, Password: password})
		return err
	})
	validateStats := runPhase(*ops, *concurrency, accounts, func(acc *account) error {
		acc.mu.Lock()
		token := acc.access
		acc.mu.Unlock()
		_, err := engine.ValidateAccessToken(ctx, token)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, accounts, func(acc *account) error {
		acc.mu.Lock()
		defer acc.mu.Unlock()
		pair, err := engine.RefreshToken(ctx, goIdentity.RefreshTokenCommand{RefreshToken: acc.refresh})
		if err != nil {
			return err
		}
		acc.access, acc.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
	fmt.Printf("reuse detections: %d\n", engine.MetricsSnapshot().Counters[goIdentity.MetricRefreshReuseDetected])
}

// runPhase spreads ops calls of fn over concurrency workers, each picking a
// random account. Failures are counted, not fatal.
func runPhase(ops, concurrency int, accounts []*account, fn func(*account) error) phaseStats {
	var (
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
		g         errgroup.Group
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		worker := w
		g.Go(func() error {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			local := make([]time.Duration, 0, ops/concurrency+1)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					break
				}
				acc := accounts[r.Intn(len(accounts))]
				t0 := time.Now()
				if err := fn(acc); err != nil {
					atomic.AddInt64(&failures, 1)
				}
				local = append(local, time.Since(t0))
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return computeStats(time.Since(start), latencies, failures)
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
	return samples[(len(samples)-1)*p/100]
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
