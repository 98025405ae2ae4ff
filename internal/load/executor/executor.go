// Package executor provides the load generation strategies that drive
// virtual users.
package executor

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/mentorpal/askload/internal/load"
	"github.com/mentorpal/askload/internal/load/metrics"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"

	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"

	// TypeConstantArrivalRate starts iterations at a fixed rate.
	TypeConstantArrivalRate Type = "constant-arrival-rate"

	// TypeRampingArrivalRate ramps the iteration rate according to stages.
	TypeRampingArrivalRate Type = "ramping-arrival-rate"

	// TypePerVUIterations runs a fixed number of iterations on every VU.
	TypePerVUIterations Type = "per-vu-iterations"

	// TypeSharedIterations shares a total iteration count across VUs.
	TypeSharedIterations Type = "shared-iterations"
)

// DefaultGracefulStop is how long in-flight iterations may run after an
// executor's duration ends before they are interrupted.
const DefaultGracefulStop = 30 * time.Second

// DefaultMaxDuration bounds the iteration-count executors.
const DefaultMaxDuration = 10 * time.Minute

// Executor is a load generation strategy.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init validates and stores the configuration. Called once before Run.
	Init(ctx context.Context, config *Config) error

	// Run drives VUs from scheduler and blocks until the executor finishes
	// or ctx is cancelled.
	Run(ctx context.Context, scheduler *load.VUScheduler, metrics *metrics.Engine) error

	// GetProgress returns progress from 0.0 to 1.0.
	GetProgress() float64

	// GetActiveVUs returns the number of running VUs.
	GetActiveVUs() int

	// GetStats returns executor statistics.
	GetStats() *Stats

	// Stop ends the run early, letting in-flight iterations finish within
	// the graceful stop period.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`

	// VU-based executors
	VUs        int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration   time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Iterations int64         `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// MaxDuration bounds per-vu-iterations and shared-iterations.
	MaxDuration time.Duration `json:"maxDuration,omitempty" yaml:"maxDuration,omitempty"`

	// Arrival-rate executors, rate in iterations per second
	Rate            float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	PreAllocatedVUs int     `json:"preAllocatedVUs,omitempty" yaml:"preAllocatedVUs,omitempty"`
	MaxVUs          int     `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	// Stages for ramping executors
	Stages []Stage `json:"stages,omitempty" yaml:"stages,omitempty"`

	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	Pacing *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`
}

// Stage defines a stage in ramping executors.
type Stage struct {
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target is a VU count (ramping-vus) or a rate (ramping-arrival-rate).
	Target int `json:"target" yaml:"target"`

	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// PacingConfig controls the wait between iterations of one VU.
type PacingConfig struct {
	Type PacingType `json:"type" yaml:"type"`

	// Duration for constant pacing
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min and Max bound random pacing
	Min time.Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max time.Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// PacingType identifies the type of pacing.
type PacingType string

const (
	PacingNone     PacingType = "none"
	PacingConstant PacingType = "constant"
	PacingRandom   PacingType = "random"
)

// Delay returns the wait before the next iteration. Random pacing draws
// uniformly from [Min, Max) using r.
func (p *PacingConfig) Delay(r *rand.Rand) time.Duration {
	if p == nil {
		return 0
	}
	switch p.Type {
	case PacingConstant:
		return p.Duration
	case PacingRandom:
		span := p.Max - p.Min
		if span <= 0 {
			return p.Min
		}
		if r == nil {
			return p.Min + time.Duration(rand.Int64N(int64(span)))
		}
		return p.Min + time.Duration(r.Int64N(int64(span)))
	default:
		return 0
	}
}

// Stats contains real-time executor statistics.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`

	Iterations        int64 `json:"iterations"`
	TotalIterations   int64 `json:"totalIterations,omitempty"`
	DroppedIterations int64 `json:"droppedIterations,omitempty"`

	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName,omitempty"`
	TotalStages      int    `json:"totalStages,omitempty"`

	CurrentRate float64 `json:"currentRate,omitempty"`
	TargetRate  float64 `json:"targetRate,omitempty"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}

	switch c.Type {
	case TypeConstantVUs:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}

	case TypeRampingVUs, TypeRampingArrivalRate:
		if len(c.Stages) == 0 {
			return &ValidationError{Field: "stages", Message: "at least one stage is required"}
		}
		for _, s := range c.Stages {
			if s.Duration <= 0 {
				return &ValidationError{Field: "stages", Message: "stage duration must be > 0"}
			}
			if s.Target < 0 {
				return &ValidationError{Field: "stages", Message: "stage target must be >= 0"}
			}
		}

	case TypeConstantArrivalRate:
		if c.Rate <= 0 {
			return &ValidationError{Field: "rate", Message: "rate must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}

	case TypePerVUIterations, TypeSharedIterations:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Iterations <= 0 {
			return &ValidationError{Field: "iterations", Message: "iterations must be > 0"}
		}

	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	if c.Pacing != nil {
		switch c.Pacing.Type {
		case PacingNone, PacingConstant, "":
		case PacingRandom:
			if c.Pacing.Max < c.Pacing.Min {
				return &ValidationError{Field: "pacing", Message: "max must be >= min"}
			}
		default:
			return &ValidationError{Field: "pacing", Message: "unknown pacing type: " + string(c.Pacing.Type)}
		}
	}

	return nil
}

// TotalDuration returns the planned run time. Iteration-count executors
// return their MaxDuration.
func (c *Config) TotalDuration() time.Duration {
	switch c.Type {
	case TypeConstantVUs, TypeConstantArrivalRate:
		return c.Duration

	case TypeRampingVUs, TypeRampingArrivalRate:
		var total time.Duration
		for _, stage := range c.Stages {
			total += stage.Duration
		}
		return total

	case TypePerVUIterations, TypeSharedIterations:
		if c.MaxDuration > 0 {
			return c.MaxDuration
		}
		return DefaultMaxDuration

	default:
		return 0
	}
}

func (c *Config) gracefulStop() time.Duration {
	if c.GracefulStop > 0 {
		return c.GracefulStop
	}
	return DefaultGracefulStop
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
