package executor

import (
	"context"

	"github.com/mentorpal/askload/internal/load"
	"github.com/mentorpal/askload/internal/load/metrics"
)

// ConstantArrivalRate starts iterations at a fixed rate regardless of how
// long they take (open model).
//
//	type: constant-arrival-rate
//	rate: 50            # iterations per second
//	duration: 5m
//	preAllocatedVUs: 10
//	maxVUs: 100
type ConstantArrivalRate struct {
	arrivalRate
}

// NewConstantArrivalRate creates a new constant arrival rate executor.
func NewConstantArrivalRate() *ConstantArrivalRate {
	return &ConstantArrivalRate{}
}

// Type returns the executor type.
func (e *ConstantArrivalRate) Type() Type {
	return TypeConstantArrivalRate
}

// Init initializes the executor with configuration.
func (e *ConstantArrivalRate) Init(ctx context.Context, config *Config) error {
	if err := e.init(config, TypeConstantArrivalRate); err != nil {
		return err
	}
	e.normalizePool(config)
	return nil
}

// Run starts the executor and blocks until completion.
func (e *ConstantArrivalRate) Run(ctx context.Context, scheduler *load.VUScheduler, metricsEngine *metrics.Engine) error {
	runCtx, iterCtx := e.begin(ctx, scheduler, metricsEngine)

	e.startPool(e.config.Rate)
	e.metrics.SetPhase(metrics.PhaseSteady)

	e.wg.Add(1)
	go e.schedule(runCtx, iterCtx)

	<-runCtx.Done()
	e.drain()
	return nil
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *ConstantArrivalRate) GetProgress() float64 {
	return e.timeProgress()
}

// GetStats returns executor statistics.
func (e *ConstantArrivalRate) GetStats() *Stats {
	s := e.poolStats()
	s.TargetRate = e.config.Rate
	return s
}

var _ Executor = (*ConstantArrivalRate)(nil)
