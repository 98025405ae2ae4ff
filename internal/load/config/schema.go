// Package config parses and validates askload test files.
package config

import (
	"time"
)

// Target variants.
const (
	VariantMentorQuestion = "mentor-question"
	VariantDirectURL      = "direct-url"
)

// DefaultRequestName tags every request for per-request latency grouping.
const DefaultRequestName = "ask"

// TestConfig is the root configuration for a load test.
//
// Example YAML:
//
//	name: "classifier smoke"
//	settings:
//	  timeout: 30s
//	target:
//	  variant: mentor-question
//	  apiUrl: "https://api.mentorpal.org/classifier/questions/?referer=load-test"
//	  questions: questions.json
//	scenarios:
//	  ask:
//	    executor: constant-vus
//	    vus: 10
//	    duration: 30s
type TestConfig struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Target describes what every iteration requests
	Target TargetConfig `json:"target" yaml:"target"`

	// Scenarios defines the load profiles to run, each with its own executor
	Scenarios map[string]*ScenarioConfig `json:"scenarios" yaml:"scenarios"`

	Thresholds *ThresholdsConfig  `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Options    *ExecutionOptions `json:"options,omitempty" yaml:"options,omitempty"`

	// dir is the directory the file was loaded from; relative dataset
	// paths resolve against it.
	dir string
}

// GlobalSettings contains HTTP settings shared by all scenarios.
type GlobalSettings struct {
	// Timeout is the HTTP request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`
	MaxIdleConnsPerHost   int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are added to every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// TargetConfig selects the iteration variant and its datasets.
//
// mentor-question builds each URL from apiUrl, a random mentor and a random
// question. direct-url requests a random entry of the urls dataset as is.
type TargetConfig struct {
	Variant string `json:"variant,omitempty" yaml:"variant,omitempty" validate:"oneof=mentor-question direct-url"`

	APIURL string `json:"apiUrl,omitempty" yaml:"apiUrl,omitempty" validate:"required_if=Variant mentor-question,omitempty,url"`

	// Questions is a JSON file holding an array of question strings
	Questions string `json:"questions,omitempty" yaml:"questions,omitempty" validate:"required_if=Variant mentor-question"`

	// Mentors overrides the built-in mentor list
	Mentors []string `json:"mentors,omitempty" yaml:"mentors,omitempty" validate:"omitempty,dive,required"`

	// MentorsFile is a JSON file holding an array of mentor ids
	MentorsFile string `json:"mentorsFile,omitempty" yaml:"mentorsFile,omitempty" validate:"excluded_with=Mentors"`

	// URLs is a JSON file holding an array of complete request URLs
	URLs string `json:"urls,omitempty" yaml:"urls,omitempty" validate:"required_if=Variant direct-url"`

	RequestName string `json:"requestName,omitempty" yaml:"requestName,omitempty"`
}

// ScenarioConfig defines a single load testing scenario.
type ScenarioConfig struct {
	// Executor is one of constant-vus, ramping-vus, constant-arrival-rate,
	// ramping-arrival-rate, per-vu-iterations, shared-iterations
	Executor string `json:"executor" yaml:"executor"`

	VUs      int    `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Iterations is per VU (per-vu-iterations) or in total (shared-iterations)
	Iterations int64 `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// MaxDuration bounds the iteration-count executors
	MaxDuration string `json:"maxDuration,omitempty" yaml:"maxDuration,omitempty"`

	// Rate is iterations per second (arrival-rate executors)
	Rate            float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	PreAllocatedVUs int     `json:"preAllocatedVUs,omitempty" yaml:"preAllocatedVUs,omitempty"`
	MaxVUs          int     `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	GracefulStop string        `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
	Pacing       *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`

	// StartTime delays this scenario relative to the test start
	StartTime string `json:"startTime,omitempty" yaml:"startTime,omitempty"`
}

// StageConfig defines a single stage in a ramping executor.
type StageConfig struct {
	Duration string `json:"duration" yaml:"duration"`

	// Target VU count (ramping-vus) or rate (ramping-arrival-rate)
	Target int `json:"target" yaml:"target"`

	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// PacingConfig controls pacing between iterations.
type PacingConfig struct {
	// Type is "none", "constant" or "random"
	Type     string `json:"type" yaml:"type"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Min      string `json:"min,omitempty" yaml:"min,omitempty"`
	Max      string `json:"max,omitempty" yaml:"max,omitempty"`
}

// ThresholdsConfig defines pass/fail criteria for the test.
type ThresholdsConfig struct {
	// e.g. ["p95 < 500ms", "avg < 200ms"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// e.g. ["rate < 0.01"]
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// e.g. ["count > 1000", "rate > 100"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`

	// Pass rate over every check, e.g. ["rate > 0.99"]
	Checks []string `json:"checks,omitempty" yaml:"checks,omitempty"`

	// Completed iterations, e.g. ["count > 100"]
	Iterations []string `json:"iterations,omitempty" yaml:"iterations,omitempty"`
}

// IsEmpty reports whether no threshold is configured.
func (t *ThresholdsConfig) IsEmpty() bool {
	return t == nil || len(t.HTTPReqDuration)+len(t.HTTPReqFailed)+len(t.HTTPReqs)+len(t.Checks)+len(t.Iterations) == 0
}

// ExecutionOptions controls test execution behavior.
type ExecutionOptions struct {
	// Sequential runs scenarios one by one instead of in parallel
	Sequential bool `json:"sequential,omitempty" yaml:"sequential,omitempty"`

	// Seed makes dataset selection reproducible
	Seed *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// NoVUConnectionReuse disables HTTP keep-alives
	NoVUConnectionReuse bool `json:"noVUConnectionReuse,omitempty" yaml:"noVUConnectionReuse,omitempty"`
}

// Dir returns the directory relative dataset paths resolve against.
func (c *TestConfig) Dir() string {
	return c.dir
}

// Duration is a time.Duration that unmarshals from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or defaultValue if unset.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
