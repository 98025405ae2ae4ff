// Package engine runs the scenarios of a test file against one Script and
// evaluates thresholds on the result.
package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mentorpal/askload/internal/load"
	"github.com/mentorpal/askload/internal/load/config"
	"github.com/mentorpal/askload/internal/load/executor"
	"github.com/mentorpal/askload/internal/load/metrics"
)

// vuIDStride separates the VU ids of concurrent scenarios.
const vuIDStride = 100000

// Engine orchestrates a load test.
//
// Every scenario gets its own executor and scheduler; all of them share one
// metrics engine and run the same Script.
//
//	cfg, _ := config.LoadConfig("test.yaml")
//	eng, _ := engine.NewEngine(cfg, script, engine.WithLogger(logger))
//	result, _ := eng.Run(ctx)
type Engine struct {
	config *config.TestConfig
	script load.Script
	logger *zap.Logger
	runID  string

	metricsEngine *metrics.Engine
	httpConfig    load.HTTPClientConfig

	scenarios map[string]*ScenarioRunner
	mu        sync.RWMutex

	startTime time.Time
	running   bool
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Every record carries the run id.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.runID = id
		}
	}
}

// WithMetrics supplies the metrics engine, e.g. one carrying a Prometheus
// mirror.
func WithMetrics(m *metrics.Engine) Option {
	return func(e *Engine) {
		if m != nil {
			e.metricsEngine = m
		}
	}
}

// ScenarioRunner holds the runtime pieces of one scenario.
type ScenarioRunner struct {
	Name      string
	Config    *config.ScenarioConfig
	Executor  executor.Executor
	Scheduler *load.VUScheduler
	StartTime time.Duration
	Result    *ScenarioResult
}

// ScenarioResult contains the results of a single scenario.
type ScenarioResult struct {
	Name     string          `json:"name"`
	Executor string          `json:"executor"`
	Duration time.Duration   `json:"duration"`
	Stats    *executor.Stats `json:"stats"`
	Error    string          `json:"error,omitempty"`
}

// TestResult contains the complete test results.
type TestResult struct {
	RunID       string        `json:"runId"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Script      string        `json:"script"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`

	Scenarios map[string]*ScenarioResult `json:"scenarios"`

	Metrics      *metrics.Snapshot               `json:"metrics"`
	RequestStats map[string]metrics.LatencyStats `json:"requestStats,omitempty"`
	TimeSeries   []*metrics.TimeBucket           `json:"timeSeries,omitempty"`

	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`

	Error string `json:"error,omitempty"`
}

// NewEngine validates cfg and prepares an engine that runs script.
func NewEngine(cfg *config.TestConfig, script load.Script, opts ...Option) (*Engine, error) {
	if script == nil {
		return nil, fmt.Errorf("no script to run")
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		config:    cfg,
		script:    script,
		logger:    zap.NewNop(),
		runID:     uuid.NewString(),
		scenarios: make(map[string]*ScenarioRunner),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metricsEngine == nil {
		e.metricsEngine = metrics.NewEngine()
	}
	e.logger = e.logger.With(zap.String("run_id", e.runID))

	e.httpConfig = load.HTTPClientConfig{
		Timeout:             cfg.Settings.Timeout.GetDuration(30 * time.Second),
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: cfg.Settings.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.Settings.MaxConnectionsPerHost,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   cfg.Options.NoVUConnectionReuse,
		InsecureSkipVerify:  cfg.Settings.InsecureSkipVerify,
		UseSharedClient:     true,
		UserAgent:           cfg.Settings.UserAgent,
		Headers:             cfg.Settings.Headers,
	}

	if err := e.initializeScenarios(); err != nil {
		return nil, err
	}
	return e, nil
}

// RunID returns the id of this run.
func (e *Engine) RunID() string {
	return e.runID
}

// Logger returns the run logger.
func (e *Engine) Logger() *zap.Logger {
	return e.logger
}

// Metrics returns the shared metrics engine.
func (e *Engine) Metrics() *metrics.Engine {
	return e.metricsEngine
}

// Run executes all scenarios and returns the results.
//
// Scenarios run concurrently unless options.sequential is set. Cancelling
// ctx stops every scenario.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.startTime = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.metricsEngine.Reset()
	e.metricsEngine.SetPhase(metrics.PhaseInit)

	e.logger.Info("test started",
		zap.String("name", e.config.Name),
		zap.String("script", e.script.Name()),
		zap.Int("scenarios", len(e.scenarios)),
	)

	var results map[string]*ScenarioResult
	var runErr error
	if e.config.Options.Sequential {
		results, runErr = e.runScenariosSequentially(ctx)
	} else {
		results, runErr = e.runScenariosConcurrently(ctx)
	}

	e.metricsEngine.Stop()
	e.metricsEngine.SetPhase(metrics.PhaseDone)

	snapshot := e.metricsEngine.GetSnapshot()
	thresholds := EvaluateThresholds(e.config.Thresholds, snapshot)

	result := &TestResult{
		RunID:        e.runID,
		Name:         e.config.Name,
		Description:  e.config.Description,
		Script:       e.script.Name(),
		StartTime:    e.startTime,
		EndTime:      time.Now(),
		Duration:     time.Since(e.startTime),
		Scenarios:    results,
		Metrics:      snapshot,
		RequestStats: e.metricsEngine.GetRequestStats(),
		TimeSeries:   e.metricsEngine.GetTimeSeries(),
		Passed:       runErr == nil && AllPassed(thresholds),
		Thresholds:   thresholds,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	e.logger.Info("test finished",
		zap.Duration("duration", result.Duration),
		zap.Int64("requests", snapshot.TotalRequests),
		zap.Int64("iterations", snapshot.Iterations),
		zap.Float64("checks_rate", snapshot.Checks.Rate),
		zap.Bool("passed", result.Passed),
	)

	return result, runErr
}

// initializeScenarios creates an executor and a scheduler per scenario.
func (e *Engine) initializeScenarios() error {
	ctx := context.Background()

	for i, name := range e.scenarioNames() {
		sc := e.config.Scenarios[name]

		exec, _, err := executor.CreateExecutorFromScenarioConfig(ctx, name, sc)
		if err != nil {
			return fmt.Errorf("failed to create executor for scenario %s: %w", name, err)
		}

		startTime, err := config.ParseDurationString(sc.StartTime)
		if err != nil {
			return fmt.Errorf("invalid startTime for scenario %s: %w", name, err)
		}

		logger := e.logger.With(zap.String("scenario", name))
		scheduler := load.NewVUScheduler(e.script, e.metricsEngine, e.httpConfig).
			WithLogger(logger).
			WithIDOffset(i * vuIDStride)
		if seed := e.config.Options.Seed; seed != nil {
			scheduler.WithSeed(*seed)
		}

		e.scenarios[name] = &ScenarioRunner{
			Name:      name,
			Config:    sc,
			Executor:  exec,
			Scheduler: scheduler,
			StartTime: startTime,
		}
	}
	return nil
}

func (e *Engine) scenarioNames() []string {
	names := make([]string, 0, len(e.config.Scenarios))
	for name := range e.config.Scenarios {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (e *Engine) runScenariosConcurrently(ctx context.Context) (map[string]*ScenarioResult, error) {
	results := make(map[string]*ScenarioResult)
	var resultsMu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	for name, runner := range e.scenarios {
		wg.Add(1)
		go func() {
			defer wg.Done()

			result, err := e.runScenario(ctx, runner)

			resultsMu.Lock()
			defer resultsMu.Unlock()
			results[name] = result
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("scenario %s failed: %w", name, err)
			}
		}()
	}

	wg.Wait()
	return results, firstErr
}

func (e *Engine) runScenariosSequentially(ctx context.Context) (map[string]*ScenarioResult, error) {
	results := make(map[string]*ScenarioResult)

	for _, name := range e.scenarioNames() {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := e.runScenario(ctx, e.scenarios[name])
		results[name] = result
		if err != nil {
			return results, fmt.Errorf("scenario %s failed: %w", name, err)
		}
	}

	return results, nil
}

func (e *Engine) runScenario(ctx context.Context, runner *ScenarioRunner) (*ScenarioResult, error) {
	logger := runner.Scheduler.Logger()

	if runner.StartTime > 0 {
		timer := time.NewTimer(runner.StartTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return e.skipped(runner, ctx.Err().Error()), nil
		case <-e.stopCh:
			timer.Stop()
			return e.skipped(runner, "stopped before start"), nil
		case <-timer.C:
		}
	}

	logger.Info("scenario started", zap.String("executor", string(runner.Executor.Type())))
	startTime := time.Now()

	err := runner.Executor.Run(ctx, runner.Scheduler, e.metricsEngine)

	stats := runner.Executor.GetStats()
	result := &ScenarioResult{
		Name:     runner.Name,
		Executor: string(runner.Executor.Type()),
		Duration: time.Since(startTime),
		Stats:    stats,
	}
	if err != nil {
		result.Error = err.Error()
	}

	runner.Scheduler.Shutdown(5 * time.Second)

	logger.Info("scenario finished",
		zap.Duration("duration", result.Duration),
		zap.Int64("iterations", stats.Iterations),
		zap.Int64("dropped_iterations", stats.DroppedIterations),
	)

	e.mu.Lock()
	runner.Result = result
	e.mu.Unlock()
	return result, err
}

func (e *Engine) skipped(runner *ScenarioRunner, reason string) *ScenarioResult {
	runner.Scheduler.Logger().Info("scenario skipped", zap.String("reason", reason))
	return &ScenarioResult{
		Name:     runner.Name,
		Executor: string(runner.Executor.Type()),
		Stats:    &executor.Stats{},
		Error:    reason,
	}
}

// IsRunning returns true while Run is executing.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop ends every scenario early, letting in-flight iterations finish
// within their graceful stop period.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.RLock()
	if !e.running {
		e.mu.RUnlock()
		return nil
	}
	e.mu.RUnlock()

	e.stopOnce.Do(func() { close(e.stopCh) })

	var lastErr error
	for _, runner := range e.scenarios {
		if err := runner.Executor.Stop(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// GetProgress returns overall progress from 0.0 to 1.0.
func (e *Engine) GetProgress() float64 {
	if len(e.scenarios) == 0 {
		return 0
	}

	var total float64
	for _, runner := range e.scenarios {
		total += runner.Executor.GetProgress()
	}
	return total / float64(len(e.scenarios))
}

// GetScenarioStats returns current stats for all scenarios.
func (e *Engine) GetScenarioStats() map[string]*executor.Stats {
	stats := make(map[string]*executor.Stats, len(e.scenarios))
	for name, runner := range e.scenarios {
		stats[name] = runner.Executor.GetStats()
	}
	return stats
}

// EstimatedDuration returns the longest planned scenario run including
// its start delay.
func (e *Engine) EstimatedDuration() time.Duration {
	var longest time.Duration
	var sequential time.Duration
	for _, name := range e.scenarioNames() {
		runner := e.scenarios[name]
		cfg, err := executor.ConfigFromScenario(name, runner.Config)
		if err != nil {
			continue
		}
		d := runner.StartTime + cfg.TotalDuration()
		longest = max(longest, d)
		sequential += d
	}
	if e.config.Options.Sequential {
		return sequential
	}
	return longest
}
