package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorpal/askload/internal/load/engine"
	"github.com/mentorpal/askload/internal/load/executor"
	"github.com/mentorpal/askload/internal/load/metrics"
)

func sampleResult() *engine.TestResult {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &engine.TestResult{
		RunID:     "8c1f",
		Name:      "classifier <smoke>",
		Script:    "mentor-question",
		StartTime: start,
		EndTime:   start.Add(30 * time.Second),
		Duration:  30 * time.Second,
		Passed:    false,
		Metrics: &metrics.Snapshot{
			TotalRequests: 1200,
			ErrorRate:     0.01,
			RPS:           40,
			Iterations:    1200,
			TotalBytes:    2048,
			Latency:       metrics.LatencyStats{P95: 250 * time.Millisecond, Mean: 5 * time.Millisecond},
			Checks: metrics.ChecksSummary{
				Rate:   0.99,
				Checks: []metrics.CheckStats{{Name: "is status 200", Passes: 1188, Fails: 12}},
			},
		},
		RequestStats: map[string]metrics.LatencyStats{
			"ask": {Count: 1200, P95: 250 * time.Millisecond},
		},
		Scenarios: map[string]*engine.ScenarioResult{
			"ask": {Name: "ask", Executor: "constant-arrival-rate", Duration: 30 * time.Second, Stats: &executor.Stats{Iterations: 1200, DroppedIterations: 3}},
		},
		TimeSeries: []*metrics.TimeBucket{
			{IntervalRPS: 40, LatencyP95: 250 * time.Millisecond, ActiveVUs: 5},
		},
		Thresholds: []engine.ThresholdResult{
			{Metric: "http_req_duration", Expression: "p95 < 200ms", Passed: false, Value: "250ms"},
		},
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, sampleResult()))

	html := buf.String()
	assert.Contains(t, html, "classifier &lt;smoke&gt;", "names are escaped")
	assert.Contains(t, html, "FAILED")
	assert.Contains(t, html, "1,200")
	assert.Contains(t, html, "is status 200")
	assert.Contains(t, html, "99.00%")
	assert.Contains(t, html, "constant-arrival-rate")
	assert.Contains(t, html, "p95 &lt; 200ms")
	assert.Contains(t, html, "2.00 KB")
	assert.Contains(t, html, `"rps":40`)
}

func TestWriteHTML_Minimal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, &engine.TestResult{Name: "empty", Passed: true}))
	assert.Contains(t, buf.String(), "PASSED")
	assert.Contains(t, buf.String(), "const series = [];")
}

func TestWriteHTML_Nil(t *testing.T) {
	assert.Error(t, WriteHTML(&bytes.Buffer{}, nil))
	assert.Error(t, WriteJSON(&bytes.Buffer{}, nil))
}

func TestSaveJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "result.json")
	require.NoError(t, SaveJSON(sampleResult(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "8c1f", decoded["runId"])
	assert.Equal(t, false, decoded["passed"])
	assert.Contains(t, decoded, "metrics")
}

func TestSaveHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.html")
	require.NoError(t, SaveHTML(sampleResult(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<!DOCTYPE html>"))
}

func TestDefaultPath(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)
	assert.Equal(t, "askload-classifier-smoke-20240301-090507.html", DefaultPath("Classifier Smoke", "html", now))
	assert.Equal(t, "askload-a-b-20240301-090507.json", DefaultPath("a/b", "json", now))
}

func TestFormatters(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{formatLatency(0), "0"},
		{formatLatency(500 * time.Microsecond), "500µs"},
		{formatLatency(5 * time.Millisecond), "5.00ms"},
		{formatLatency(250 * time.Millisecond), "250.0ms"},
		{formatLatency(1500 * time.Millisecond), "1.50s"},
		{formatNumber(1234567), "1,234,567"},
		{formatNumber(-1000), "-1,000"},
		{formatBytes(512), "512 B"},
		{formatBytes(1536), "1.50 KB"},
		{formatBytes(3 * 1024 * 1024), "3.00 MB"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
