package executor

import (
	"context"

	"github.com/mentorpal/askload/internal/load"
	"github.com/mentorpal/askload/internal/load/metrics"
)

// ConstantVUs runs a fixed number of VUs for a duration.
//
// Each VU loops as fast as responses come back (closed model), with
// optional pacing between iterations.
type ConstantVUs struct {
	base
}

// NewConstantVUs creates a new constant VUs executor.
func NewConstantVUs() *ConstantVUs {
	return &ConstantVUs{}
}

// Type returns the executor type.
func (e *ConstantVUs) Type() Type {
	return TypeConstantVUs
}

// Init initializes the executor with configuration.
func (e *ConstantVUs) Init(ctx context.Context, config *Config) error {
	return e.init(config, TypeConstantVUs)
}

// Run starts the executor and blocks until completion.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *load.VUScheduler, metricsEngine *metrics.Engine) error {
	runCtx, iterCtx := e.begin(ctx, scheduler, metricsEngine)

	e.metrics.SetPhase(metrics.PhaseSteady)

	for i := 0; i < e.config.VUs; i++ {
		vu := scheduler.SpawnVU()
		e.wg.Add(1)
		go e.loop(runCtx, iterCtx, vu, nil)
	}

	<-runCtx.Done()
	e.finish()
	return nil
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *ConstantVUs) GetProgress() float64 {
	return e.timeProgress()
}

// GetStats returns executor statistics.
func (e *ConstantVUs) GetStats() *Stats {
	s := e.stats()
	s.TargetVUs = e.config.VUs
	return s
}

var _ Executor = (*ConstantVUs)(nil)
