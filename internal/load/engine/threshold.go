package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mentorpal/askload/internal/load/config"
	"github.com/mentorpal/askload/internal/load/metrics"
)

// ThresholdResult contains the result of a threshold evaluation.
type ThresholdResult struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

// AllPassed reports whether every threshold passed.
func AllPassed(results []ThresholdResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// EvaluateThresholds evaluates every configured threshold against snapshot.
func EvaluateThresholds(t *config.ThresholdsConfig, snapshot *metrics.Snapshot) []ThresholdResult {
	if t == nil {
		return nil
	}

	var results []ThresholdResult
	for _, expr := range t.HTTPReqDuration {
		results = append(results, evaluateDurationThreshold(expr, snapshot))
	}
	for _, expr := range t.HTTPReqFailed {
		results = append(results, evaluateRateThreshold("http_req_failed", expr, snapshot.ErrorRate))
	}
	for _, expr := range t.HTTPReqs {
		results = append(results, evaluateCountThreshold("http_reqs", expr,
			float64(snapshot.TotalRequests), snapshot.RPS))
	}
	for _, expr := range t.Checks {
		results = append(results, evaluateRateThreshold("checks", expr, snapshot.Checks.Rate))
	}
	for _, expr := range t.Iterations {
		var rate float64
		if secs := snapshot.Elapsed.Seconds(); secs > 0 {
			rate = float64(snapshot.Iterations) / secs
		}
		results = append(results, evaluateCountThreshold("iterations", expr,
			float64(snapshot.Iterations), rate))
	}
	return results
}

// evaluateDurationThreshold evaluates expressions like "p95 < 500ms".
func evaluateDurationThreshold(expr string, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{Metric: "http_req_duration", Expression: expr}

	metric, op, valueStr, err := config.ParseThresholdExpression(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	var actual time.Duration
	switch metric {
	case "min":
		actual = snapshot.Latency.Min
	case "max":
		actual = snapshot.Latency.Max
	case "avg":
		actual = snapshot.Latency.Mean
	case "p50", "med":
		actual = snapshot.Latency.P50
	case "p90":
		actual = snapshot.Latency.P90
	case "p95":
		actual = snapshot.Latency.P95
	case "p99":
		actual = snapshot.Latency.P99
	default:
		result.Message = fmt.Sprintf("http_req_duration does not support %q", metric)
		return result
	}

	threshold, err := config.ParseDurationString(valueStr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = actual.String()
	result.Passed = compareValues(float64(actual), op, float64(threshold))
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", metric, actual, op, threshold)
	}
	return result
}

// evaluateRateThreshold evaluates "rate <op> <fraction>" against actual.
func evaluateRateThreshold(name, expr string, actual float64) ThresholdResult {
	result := ThresholdResult{Metric: name, Expression: expr}

	metric, op, valueStr, err := config.ParseThresholdExpression(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}
	if metric != "rate" {
		result.Message = fmt.Sprintf("%s only supports 'rate', got: %s", name, metric)
		return result
	}

	threshold, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = fmt.Sprintf("%.4f", actual)
	result.Passed = compareValues(actual, op, threshold)
	if !result.Passed {
		result.Message = fmt.Sprintf("rate is %.4f, threshold: %s %.4f", actual, op, threshold)
	}
	return result
}

// evaluateCountThreshold evaluates "count" or per-second "rate" expressions.
func evaluateCountThreshold(name, expr string, count, rate float64) ThresholdResult {
	result := ThresholdResult{Metric: name, Expression: expr}

	metric, op, valueStr, err := config.ParseThresholdExpression(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	threshold, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	var actual float64
	switch metric {
	case "count":
		actual = count
	case "rate":
		actual = rate
	default:
		result.Message = fmt.Sprintf("%s only supports 'count' or 'rate', got: %s", name, metric)
		return result
	}

	result.Value = fmt.Sprintf("%.2f", actual)
	result.Passed = compareValues(actual, op, threshold)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %.2f, threshold: %s %.2f", metric, actual, op, threshold)
	}
	return result
}

func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==":
		return actual == threshold
	case "!=":
		return actual != threshold
	default:
		return false
	}
}
