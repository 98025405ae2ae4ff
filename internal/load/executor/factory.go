package executor

import (
	"context"
	"fmt"

	"github.com/mentorpal/askload/internal/load/config"
)

// NewExecutor returns an uninitialized executor of the given type. Call
// Init before Run.
func NewExecutor(executorType Type) (Executor, error) {
	switch executorType {
	case TypeConstantVUs:
		return NewConstantVUs(), nil
	case TypeRampingVUs:
		return NewRampingVUs(), nil
	case TypeConstantArrivalRate:
		return NewConstantArrivalRate(), nil
	case TypeRampingArrivalRate:
		return NewRampingArrivalRate(), nil
	case TypePerVUIterations:
		return NewPerVUIterations(), nil
	case TypeSharedIterations:
		return NewSharedIterations(), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", executorType)
	}
}

// CreateAndInitExecutor creates an executor for cfg.Type and initializes it.
func CreateAndInitExecutor(ctx context.Context, cfg *Config) (Executor, error) {
	exec, err := NewExecutor(cfg.Type)
	if err != nil {
		return nil, err
	}

	if err := exec.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	return exec, nil
}

// CreateExecutorFromScenarioConfig converts a scenario from a test file
// and returns the initialized executor together with its parsed config.
func CreateExecutorFromScenarioConfig(ctx context.Context, name string, sc *config.ScenarioConfig) (Executor, *Config, error) {
	execConfig, err := ConfigFromScenario(name, sc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert scenario config: %w", err)
	}

	exec, err := CreateAndInitExecutor(ctx, execConfig)
	if err != nil {
		return nil, nil, err
	}

	return exec, execConfig, nil
}

// ConfigFromScenario parses the string durations of sc into a Config.
func ConfigFromScenario(name string, sc *config.ScenarioConfig) (*Config, error) {
	cfg := &Config{
		Name:            name,
		Type:            Type(sc.Executor),
		VUs:             sc.VUs,
		Iterations:      sc.Iterations,
		Rate:            sc.Rate,
		PreAllocatedVUs: sc.PreAllocatedVUs,
		MaxVUs:          sc.MaxVUs,
	}

	var err error
	if cfg.Duration, err = config.ParseDurationString(sc.Duration); err != nil {
		return nil, fmt.Errorf("invalid duration: %w", err)
	}
	if cfg.MaxDuration, err = config.ParseDurationString(sc.MaxDuration); err != nil {
		return nil, fmt.Errorf("invalid maxDuration: %w", err)
	}
	if cfg.GracefulStop, err = config.ParseDurationString(sc.GracefulStop); err != nil {
		return nil, fmt.Errorf("invalid gracefulStop: %w", err)
	}

	for i, stage := range sc.Stages {
		d, err := config.ParseDurationString(stage.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid duration for stage %d: %w", i, err)
		}
		cfg.Stages = append(cfg.Stages, Stage{
			Duration: d,
			Target:   stage.Target,
			Name:     stage.Name,
		})
	}

	if sc.Pacing != nil {
		p := &PacingConfig{Type: PacingType(sc.Pacing.Type)}
		if p.Duration, err = config.ParseDurationString(sc.Pacing.Duration); err != nil {
			return nil, fmt.Errorf("invalid pacing duration: %w", err)
		}
		if p.Min, err = config.ParseDurationString(sc.Pacing.Min); err != nil {
			return nil, fmt.Errorf("invalid pacing min: %w", err)
		}
		if p.Max, err = config.ParseDurationString(sc.Pacing.Max); err != nil {
			return nil, fmt.Errorf("invalid pacing max: %w", err)
		}
		cfg.Pacing = p
	}

	return cfg, nil
}

// IsValidExecutorType reports whether executorType names an executor.
func IsValidExecutorType(executorType string) bool {
	for _, t := range GetSupportedExecutors() {
		if string(t) == executorType {
			return true
		}
	}
	return false
}

// GetSupportedExecutors returns every executor type.
func GetSupportedExecutors() []Type {
	return []Type{
		TypeConstantVUs,
		TypeRampingVUs,
		TypeConstantArrivalRate,
		TypeRampingArrivalRate,
		TypePerVUIterations,
		TypeSharedIterations,
	}
}

// Description documents an executor type for CLI help.
type Description struct {
	Type        Type
	Name        string
	Description string
}

// GetDescription returns documentation for an executor type, or nil.
func GetDescription(executorType Type) *Description {
	switch executorType {
	case TypeConstantVUs:
		return &Description{executorType, "Constant VUs",
			"A fixed number of VUs loop over the iteration for a duration (closed model)."}
	case TypeRampingVUs:
		return &Description{executorType, "Ramping VUs",
			"VU count follows stages, interpolated linearly between targets."}
	case TypeConstantArrivalRate:
		return &Description{executorType, "Constant Arrival Rate",
			"Iterations start at a fixed rate regardless of response time (open model); iterations are dropped when maxVUs are busy."}
	case TypeRampingArrivalRate:
		return &Description{executorType, "Ramping Arrival Rate",
			"Iteration rate follows stages, interpolated linearly between targets."}
	case TypePerVUIterations:
		return &Description{executorType, "Per-VU Iterations",
			"Each VU runs a fixed number of iterations, bounded by maxDuration."}
	case TypeSharedIterations:
		return &Description{executorType, "Shared Iterations",
			"VUs share a total iteration count, bounded by maxDuration."}
	default:
		return nil
	}
}

// CalculateMaxVUs returns the most VUs cfg may run at once.
func CalculateMaxVUs(cfg *Config) int {
	switch cfg.Type {
	case TypeRampingVUs:
		maxVUs := 0
		for _, stage := range cfg.Stages {
			maxVUs = max(maxVUs, stage.Target)
		}
		return maxVUs
	case TypeConstantArrivalRate, TypeRampingArrivalRate:
		return cfg.MaxVUs
	case TypeSharedIterations:
		return int(min(int64(cfg.VUs), cfg.Iterations))
	default:
		return cfg.VUs
	}
}
