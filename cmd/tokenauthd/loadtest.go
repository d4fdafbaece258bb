package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	tokenAuth "github.com/MrEthical07/tokenAuth"
	"github.com/MrEthical07/tokenAuth/internal/settings"
)

type familyState struct {
	access  string
	refresh string
	mu      sync.Mutex
}

type loadtestOptions struct {
	families    int
	concurrency int
	ops         int
	embedded    bool
}

func newLoadtestCommand(configPath *string) *cobra.Command {
	var opts loadtestOptions

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Benchmark authenticate and refresh against the configured backends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.families <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return fmt.Errorf("families, concurrency and ops must be > 0")
			}
			s, err := settings.Load(*configPath)
			if err != nil {
				return err
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), s, opts)
		},
	}
	cmd.Flags().IntVar(&opts.families, "families", 10000, "number of token families to seed")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 256, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 200000, "operations per phase (authenticate + refresh)")
	cmd.Flags().BoolVar(&opts.embedded, "embedded-redis", false, "run an in-process redis instead of connecting to redis.addr")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, s *settings.Settings, opts loadtestOptions) error {
	// audit output would dominate the measurement
	s.Audit.Sink = "none"
	deps, err := buildRuntime(ctx, s, zap.NewNop(), buildOptions{embeddedRedis: opts.embedded})
	if err != nil {
		return err
	}
	defer deps.Close()
	engine := deps.engine

	states := make([]familyState, opts.families)
	fmt.Fprintf(out, "seeding %d families (ledger=%s)...\n", opts.families, s.Ledger.Backend)
	startSeed := time.Now()
	for i := range states {
		pair, err := engine.Issue(tokenAuth.NewIdentity(fmt.Sprintf("load-%d", i), "USER"), engine.Now())
		if err != nil {
			return fmt.Errorf("issue failed: %w", err)
		}
		states[i].access = pair.AccessToken
		states[i].refresh = pair.RefreshToken
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(opts.ops, opts.concurrency, 7919, func(r *rand.Rand) error {
		_, err := engine.Authenticate(ctx, states[r.Intn(len(states))].access)
		return err
	})
	refreshStats := runPhase(opts.ops, opts.concurrency, 6151, func(r *rand.Rand) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()
		pair, err := engine.Refresh(ctx, state.refresh, engine.Now())
		if err != nil {
			return err
		}
		state.access = pair.AccessToken
		state.refresh = pair.RefreshToken
		return nil
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "authenticate", authStats)
	printStats(out, "refresh", refreshStats)
	return nil
}

// runPhase runs op ops times across concurrency workers and records each
// call's latency. Time spent waiting on a family lock counts toward it.
func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) phaseStats {
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
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
