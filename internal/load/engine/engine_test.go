package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mentorpal/askload/internal/load"
	"github.com/mentorpal/askload/internal/load/config"
)

func testServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"answer_text":"ok"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func getScript(url string) load.Script {
	return load.ScriptFunc(func(ctx context.Context, vu load.VU) error {
		resp, err := vu.Get(ctx, url, "ask")
		vu.Check("is status 200", err == nil && resp.StatusCode == http.StatusOK)
		return nil
	})
}

func testConfig(scenarios map[string]*config.ScenarioConfig) *config.TestConfig {
	return &config.TestConfig{
		Name: "engine test",
		Target: config.TargetConfig{
			Variant: config.VariantDirectURL,
			URLs:    "urls.json",
		},
		Scenarios: scenarios,
	}
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	_, err := NewEngine(testConfig(nil), getScript("http://localhost"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestNewEngine_NoScript(t *testing.T) {
	_, err := NewEngine(testConfig(map[string]*config.ScenarioConfig{
		"a": {Executor: "constant-vus", VUs: 1, Duration: "1s"},
	}), nil)
	require.Error(t, err)
}

func TestEngine_Run(t *testing.T) {
	server := testServer(t, http.StatusOK)

	core, logs := observer.New(zap.InfoLevel)
	cfg := testConfig(map[string]*config.ScenarioConfig{
		"ask": {Executor: "per-vu-iterations", VUs: 2, Iterations: 5},
	})
	cfg.Thresholds = &config.ThresholdsConfig{
		Checks:     []string{"rate == 1"},
		Iterations: []string{"count == 10"},
	}

	eng, err := NewEngine(cfg, getScript(server.URL), WithLogger(zap.New(core)), WithRunID("run-1"))
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "func", result.Script)
	assert.True(t, result.Passed, "thresholds: %+v", result.Thresholds)
	assert.Equal(t, int64(10), result.Metrics.TotalRequests)
	assert.Equal(t, int64(10), result.Metrics.Iterations)
	assert.Equal(t, int64(10), result.Metrics.Checks.Passes)
	assert.Contains(t, result.RequestStats, "ask")

	require.Contains(t, result.Scenarios, "ask")
	assert.Equal(t, "per-vu-iterations", result.Scenarios["ask"].Executor)
	assert.Equal(t, int64(10), result.Scenarios["ask"].Stats.Iterations)

	finished := logs.FilterMessage("test finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, "run-1", finished[0].ContextMap()["run_id"])
	assert.Equal(t, 1, logs.FilterMessage("scenario started").Len())
	assert.False(t, eng.IsRunning())
}

func TestEngine_Run_FailedThresholds(t *testing.T) {
	server := testServer(t, http.StatusInternalServerError)

	cfg := testConfig(map[string]*config.ScenarioConfig{
		"ask": {Executor: "shared-iterations", VUs: 2, Iterations: 6},
	})
	cfg.Thresholds = &config.ThresholdsConfig{
		HTTPReqFailed: []string{"rate < 0.5"},
		Checks:        []string{"rate > 0.99"},
	}

	eng, err := NewEngine(cfg, getScript(server.URL))
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err, "failed thresholds are not a run error")
	assert.False(t, result.Passed)
	require.Len(t, result.Thresholds, 2)
	for _, th := range result.Thresholds {
		assert.False(t, th.Passed, th.Expression)
	}
	assert.Equal(t, int64(6), result.Metrics.Checks.Fails)
}

func TestEngine_Run_ConcurrentScenarios(t *testing.T) {
	server := testServer(t, http.StatusOK)

	cfg := testConfig(map[string]*config.ScenarioConfig{
		"a": {Executor: "per-vu-iterations", VUs: 1, Iterations: 3},
		"b": {Executor: "shared-iterations", VUs: 2, Iterations: 4, StartTime: "50ms"},
	})

	eng, err := NewEngine(cfg, getScript(server.URL))
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Scenarios, 2)
	assert.Equal(t, int64(7), result.Metrics.Iterations)
	assert.Equal(t, 0, result.Metrics.ActiveVUs)
}

func TestEngine_Run_Sequential(t *testing.T) {
	var order []string
	var inFlight atomic.Int32
	script := load.ScriptFunc(func(ctx context.Context, vu load.VU) error {
		if inFlight.Add(1) > 1 {
			order = append(order, "overlap")
		}
		defer inFlight.Add(-1)
		time.Sleep(time.Millisecond)
		return nil
	})

	cfg := testConfig(map[string]*config.ScenarioConfig{
		"first":  {Executor: "per-vu-iterations", VUs: 1, Iterations: 3},
		"second": {Executor: "per-vu-iterations", VUs: 1, Iterations: 3},
	})
	cfg.Options = &config.ExecutionOptions{Sequential: true}

	eng, err := NewEngine(cfg, script)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, order, "sequential scenarios must not overlap")
	assert.Equal(t, int64(6), result.Metrics.Iterations)
}

func TestEngine_Stop(t *testing.T) {
	server := testServer(t, http.StatusOK)

	cfg := testConfig(map[string]*config.ScenarioConfig{
		"long": {Executor: "constant-vus", VUs: 2, Duration: "1m"},
	})
	eng, err := NewEngine(cfg, getScript(server.URL))
	require.NoError(t, err)

	done := make(chan *TestResult, 1)
	go func() {
		result, _ := eng.Run(context.Background())
		done <- result
	}()

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, eng.Stop(context.Background()))

	select {
	case result := <-done:
		assert.Greater(t, result.Metrics.TotalRequests, int64(0))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestEngine_SeedIsReproducible(t *testing.T) {
	draws := func() []int {
		var got []int
		script := load.ScriptFunc(func(ctx context.Context, vu load.VU) error {
			got = append(got, vu.Rand().IntN(1_000_000))
			return nil
		})

		seed := uint64(7)
		cfg := testConfig(map[string]*config.ScenarioConfig{
			"one": {Executor: "per-vu-iterations", VUs: 1, Iterations: 5},
		})
		cfg.Options = &config.ExecutionOptions{Seed: &seed}

		eng, err := NewEngine(cfg, script)
		require.NoError(t, err)
		_, err = eng.Run(context.Background())
		require.NoError(t, err)
		return got
	}

	assert.Equal(t, draws(), draws())
}

func TestEngine_EstimatedDuration(t *testing.T) {
	cfg := testConfig(map[string]*config.ScenarioConfig{
		"a": {Executor: "constant-vus", VUs: 1, Duration: "30s"},
		"b": {Executor: "ramping-vus", StartTime: "10s", Stages: []config.StageConfig{
			{Duration: "20s", Target: 5}, {Duration: "20s", Target: 0},
		}},
	})

	eng, err := NewEngine(cfg, getScript("http://localhost"))
	require.NoError(t, err)
	assert.Equal(t, 50*time.Second, eng.EstimatedDuration())
}
