// Package report writes test results as JSON or as a standalone HTML page.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mentorpal/askload/internal/load/engine"
	"github.com/mentorpal/askload/internal/load/metrics"
)

// WriteJSON writes result as indented JSON.
func WriteJSON(w io.Writer, result *engine.TestResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// SaveJSON writes result to path, creating parent directories.
func SaveJSON(result *engine.TestResult, path string) error {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, result); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}

// SaveHTML renders result to path, creating parent directories.
func SaveHTML(result *engine.TestResult, path string) error {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, result); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// DefaultPath returns a timestamped report file name for testName.
func DefaultPath(testName, ext string, now time.Time) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':':
			return '-'
		}
		return r
	}, strings.ToLower(testName))
	return fmt.Sprintf("askload-%s-%s.%s", safe, now.Format("20060102-150405"), ext)
}

type reportData struct {
	*engine.TestResult
	ScenarioNames []string
	RequestNames  []string
	SeriesJSON    template.JS
}

type seriesPoint struct {
	Second    int     `json:"t"`
	RPS       float64 `json:"rps"`
	P50       float64 `json:"p50"`
	P95       float64 `json:"p95"`
	ActiveVUs int     `json:"vus"`
	ErrorRate float64 `json:"err"`
}

// WriteHTML renders result as a standalone HTML page.
func WriteHTML(w io.Writer, result *engine.TestResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	series, err := seriesJSON(result.TimeSeries)
	if err != nil {
		return fmt.Errorf("failed to encode time series: %w", err)
	}

	data := reportData{
		TestResult:    result,
		ScenarioNames: sortedKeys(result.Scenarios),
		RequestNames:  sortedKeys(result.RequestStats),
		SeriesJSON:    template.JS(series),
	}
	if err := htmlTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

func seriesJSON(buckets []*metrics.TimeBucket) (string, error) {
	points := make([]seriesPoint, 0, len(buckets))
	for i, b := range buckets {
		points = append(points, seriesPoint{
			Second:    i + 1,
			RPS:       b.IntervalRPS,
			P50:       ms(b.LatencyP50),
			P95:       ms(b.LatencyP95),
			ActiveVUs: b.ActiveVUs,
			ErrorRate: b.IntervalErrorRate,
		})
	}
	out, err := json.Marshal(points)
	return string(out), err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"latency": formatLatency,
	"percent": func(f float64) string { return fmt.Sprintf("%.2f%%", f*100) },
	"number":  formatNumber,
	"bytes":   formatBytes,
}).Parse(pageTemplate))

func formatLatency(d time.Duration) string {
	switch {
	case d == 0:
		return "0"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < 10*time.Millisecond:
		return fmt.Sprintf("%.2fms", ms(d))
	case d < time.Second:
		return fmt.Sprintf("%.1fms", ms(d))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
