package executor

import (
	"context"
	"sync/atomic"

	"github.com/mentorpal/askload/internal/load"
	"github.com/mentorpal/askload/internal/load/metrics"
)

// PerVUIterations runs exactly Iterations iterations on each of VUs VUs,
// bounded by MaxDuration.
type PerVUIterations struct {
	base
}

// NewPerVUIterations creates a new per-VU iterations executor.
func NewPerVUIterations() *PerVUIterations {
	return &PerVUIterations{}
}

// Type returns the executor type.
func (e *PerVUIterations) Type() Type {
	return TypePerVUIterations
}

// Init initializes the executor with configuration.
func (e *PerVUIterations) Init(ctx context.Context, config *Config) error {
	return e.init(config, TypePerVUIterations)
}

// Run starts the executor and blocks until every VU has finished its
// iterations or MaxDuration expires.
func (e *PerVUIterations) Run(ctx context.Context, scheduler *load.VUScheduler, metricsEngine *metrics.Engine) error {
	runCtx, iterCtx := e.begin(ctx, scheduler, metricsEngine)

	e.metrics.SetPhase(metrics.PhaseSteady)

	for i := 0; i < e.config.VUs; i++ {
		vu := scheduler.SpawnVU()
		var left atomic.Int64
		left.Store(e.config.Iterations)

		e.wg.Add(1)
		go e.loop(runCtx, iterCtx, vu, func() bool {
			return left.Add(-1) >= 0
		})
	}

	e.waitOrTimeout(runCtx)
	e.finish()
	return nil
}

// GetProgress returns completed iterations over the planned total.
func (e *PerVUIterations) GetProgress() float64 {
	return iterationProgress(&e.base, int64(e.config.VUs)*e.config.Iterations)
}

// GetStats returns executor statistics.
func (e *PerVUIterations) GetStats() *Stats {
	s := e.stats()
	s.TargetVUs = e.config.VUs
	s.TotalIterations = int64(e.config.VUs) * e.config.Iterations
	return s
}

// SharedIterations runs Iterations iterations in total, shared among VUs
// VUs: faster VUs run more of them.
type SharedIterations struct {
	base

	remaining atomic.Int64
}

// NewSharedIterations creates a new shared iterations executor.
func NewSharedIterations() *SharedIterations {
	return &SharedIterations{}
}

// Type returns the executor type.
func (e *SharedIterations) Type() Type {
	return TypeSharedIterations
}

// Init initializes the executor with configuration.
func (e *SharedIterations) Init(ctx context.Context, config *Config) error {
	return e.init(config, TypeSharedIterations)
}

// Run starts the executor and blocks until the shared iterations are used
// up or MaxDuration expires.
func (e *SharedIterations) Run(ctx context.Context, scheduler *load.VUScheduler, metricsEngine *metrics.Engine) error {
	runCtx, iterCtx := e.begin(ctx, scheduler, metricsEngine)

	e.metrics.SetPhase(metrics.PhaseSteady)
	e.remaining.Store(e.config.Iterations)

	take := func() bool { return e.remaining.Add(-1) >= 0 }

	vus := min(int64(e.config.VUs), e.config.Iterations)
	for i := int64(0); i < vus; i++ {
		vu := scheduler.SpawnVU()
		e.wg.Add(1)
		go e.loop(runCtx, iterCtx, vu, take)
	}

	e.waitOrTimeout(runCtx)
	e.finish()
	return nil
}

// GetProgress returns completed iterations over the planned total.
func (e *SharedIterations) GetProgress() float64 {
	return iterationProgress(&e.base, e.config.Iterations)
}

// GetStats returns executor statistics.
func (e *SharedIterations) GetStats() *Stats {
	s := e.stats()
	s.TargetVUs = e.config.VUs
	s.TotalIterations = e.config.Iterations
	return s
}

// waitOrTimeout blocks until all VU goroutines exit or runCtx ends.
func (b *base) waitOrTimeout(runCtx context.Context) {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
	}
}

func iterationProgress(b *base, total int64) float64 {
	if !b.running.Load() {
		if b.start().IsZero() {
			return 0
		}
		return 1
	}
	if total <= 0 {
		return 1
	}
	return min(float64(b.iterations.Load())/float64(total), 1)
}

var (
	_ Executor = (*PerVUIterations)(nil)
	_ Executor = (*SharedIterations)(nil)
)
