package executor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mentorpal/askload/internal/load"
	"github.com/mentorpal/askload/internal/load/metrics"
)

// RampingArrivalRate changes the iteration rate over time according to
// stages (open model).
//
// The first stage starts at its own target; later stages interpolate from
// the previous target. Add a leading stage with target 0 to ramp from zero.
//
//	type: ramping-arrival-rate
//	stages:
//	  - duration: 1m
//	    target: 50     # hold 50/s
//	  - duration: 1m
//	    target: 100    # 50/s -> 100/s
//	  - duration: 30s
//	    target: 0      # ramp down
//	preAllocatedVUs: 10
//	maxVUs: 100
type RampingArrivalRate struct {
	arrivalRate

	currentStage atomic.Int32
}

// NewRampingArrivalRate creates a new ramping arrival rate executor.
func NewRampingArrivalRate() *RampingArrivalRate {
	return &RampingArrivalRate{}
}

// Type returns the executor type.
func (e *RampingArrivalRate) Type() Type {
	return TypeRampingArrivalRate
}

// Init initializes the executor with configuration.
func (e *RampingArrivalRate) Init(ctx context.Context, config *Config) error {
	if err := e.init(config, TypeRampingArrivalRate); err != nil {
		return err
	}
	e.normalizePool(config)
	return nil
}

// Run starts the executor and blocks until completion.
func (e *RampingArrivalRate) Run(ctx context.Context, scheduler *load.VUScheduler, metricsEngine *metrics.Engine) error {
	runCtx, iterCtx := e.begin(ctx, scheduler, metricsEngine)

	e.startPool(e.targetRate())
	e.updatePhase()

	e.wg.Add(1)
	go e.schedule(runCtx, iterCtx)

	ticker := time.NewTicker(controlInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case <-ticker.C:
			e.setRate(e.targetRate())
			e.updatePhase()
		}
	}

	e.drain()
	return nil
}

func (e *RampingArrivalRate) targetRate() float64 {
	start := 0.0
	if len(e.config.Stages) > 0 {
		start = float64(e.config.Stages[0].Target)
	}
	r, stage := interpolate(e.config.Stages, e.elapsed(), start)
	e.currentStage.Store(int32(stage))
	return r
}

func (e *RampingArrivalRate) updatePhase() {
	e.metrics.SetPhase(stagePhase(e.config.Stages, int(e.currentStage.Load()), true))
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingArrivalRate) GetProgress() float64 {
	return e.timeProgress()
}

// GetStats returns executor statistics.
func (e *RampingArrivalRate) GetStats() *Stats {
	s := e.poolStats()
	stage := int(e.currentStage.Load())
	s.CurrentStage = stage
	s.TotalStages = len(e.config.Stages)
	if stage < len(e.config.Stages) {
		s.CurrentStageName = e.config.Stages[stage].Name
		s.TargetRate = float64(e.config.Stages[stage].Target)
	}
	return s
}

var _ Executor = (*RampingArrivalRate)(nil)
