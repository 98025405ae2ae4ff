package executor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mentorpal/askload/internal/load"
	"github.com/mentorpal/askload/internal/load/metrics"
)

// controlInterval is how often ramping executors re-evaluate their target.
const controlInterval = 100 * time.Millisecond

// RampingVUs changes the number of VUs over time according to stages.
//
// Each stage interpolates linearly from the previous stage's target (0 for
// the first stage) to its own target over its duration.
//
//	stages:
//	  - duration: 30s
//	    target: 20   # 0 -> 20 VUs
//	  - duration: 2m
//	    target: 20   # hold
//	  - duration: 30s
//	    target: 0    # ramp down
type RampingVUs struct {
	base

	targetVUs    atomic.Int32
	currentStage atomic.Int32
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{}
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	return e.init(config, TypeRampingVUs)
}

// Run starts the executor and blocks until completion.
func (e *RampingVUs) Run(ctx context.Context, scheduler *load.VUScheduler, metricsEngine *metrics.Engine) error {
	runCtx, iterCtx := e.begin(ctx, scheduler, metricsEngine)

	spawn := func(vu *load.VirtualUser) {
		e.wg.Add(1)
		go e.loop(runCtx, iterCtx, vu, nil)
	}

	e.adjust(spawn)

	ticker := time.NewTicker(controlInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case <-ticker.C:
			e.adjust(spawn)
		}
	}

	e.finish()
	return nil
}

func (e *RampingVUs) adjust(spawn func(*load.VirtualUser)) {
	target, stage := interpolate(e.config.Stages, e.elapsed(), 0)
	t := int(target + 0.5)

	e.currentStage.Store(int32(stage))
	e.targetVUs.Store(int32(t))
	e.scheduler.ScaleVUs(t, spawn)
	e.metrics.SetPhase(stagePhase(e.config.Stages, stage, false))
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	return e.timeProgress()
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	s := e.stats()
	stage := int(e.currentStage.Load())
	s.TargetVUs = int(e.targetVUs.Load())
	s.CurrentStage = stage
	s.TotalStages = len(e.config.Stages)
	if stage < len(e.config.Stages) {
		s.CurrentStageName = e.config.Stages[stage].Name
	}
	return s
}

// interpolate returns the target at elapsed and the index of the active
// stage. start is the value the first stage ramps from.
func interpolate(stages []Stage, elapsed time.Duration, start float64) (float64, int) {
	var stageStart time.Duration
	prev := start

	for i, stage := range stages {
		stageEnd := stageStart + stage.Duration
		if elapsed < stageEnd {
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			progress = max(0, min(progress, 1))
			return prev + (float64(stage.Target)-prev)*progress, i
		}
		prev = float64(stage.Target)
		stageStart = stageEnd
	}

	if len(stages) == 0 {
		return 0, 0
	}
	return float64(stages[len(stages)-1].Target), len(stages) - 1
}

// stagePhase classifies a stage as ramp-up, steady or ramp-down. When
// flatStart is set the first stage holds its own target instead of ramping
// from zero.
func stagePhase(stages []Stage, idx int, flatStart bool) metrics.Phase {
	if idx >= len(stages) {
		return metrics.PhaseDone
	}

	stage := stages[idx]
	prev := 0
	switch {
	case idx > 0:
		prev = stages[idx-1].Target
	case flatStart:
		prev = stage.Target
	}

	switch {
	case stage.Target > prev:
		return metrics.PhaseRampUp
	case stage.Target < prev:
		return metrics.PhaseRampDown
	default:
		return metrics.PhaseSteady
	}
}

var _ Executor = (*RampingVUs)(nil)
