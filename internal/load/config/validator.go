package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the failing field paths in order.
func (e *ValidationErrors) Fields() []string {
	fields := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		fields[i] = err.Field
	}
	return fields
}

var executors = []string{
	"constant-vus",
	"ramping-vus",
	"constant-arrival-rate",
	"ramping-arrival-rate",
	"per-vu-iterations",
	"shared-iterations",
}

// ThresholdMetrics lists the aggregates a threshold expression may test.
var ThresholdMetrics = []string{"p50", "p90", "p95", "p99", "min", "max", "avg", "med", "rate", "count"}

// ThresholdOperators lists the comparison operators a threshold may use.
var ThresholdOperators = []string{"<", ">", "<=", ">=", "==", "!="}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate validates the entire test configuration. ApplyDefaults should
// run first.
//
// Returns nil if valid, or a ValidationErrors with every problem found.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	validateTarget(&c.Target, errs)

	if len(c.Scenarios) == 0 {
		errs.Add("scenarios", "at least one scenario is required")
	}

	names := make([]string, 0, len(c.Scenarios))
	for name := range c.Scenarios {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		validateScenario(name, c.Scenarios[name], errs)
	}

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	validateSettings(&c.Settings, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateTarget(t *TargetConfig, errs *ValidationErrors) {
	err := structValidator.Struct(t)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs.Add("target", err.Error())
		return
	}

	for _, fe := range fieldErrs {
		errs.Add("target."+fe.Field(), targetMessage(fe, t))
	}
}

func targetMessage(fe validator.FieldError, t *TargetConfig) string {
	switch fe.Tag() {
	case "required_if":
		return fmt.Sprintf("required for variant %s", t.Variant)
	case "oneof":
		return fmt.Sprintf("must be one of %s, %s", VariantMentorQuestion, VariantDirectURL)
	case "url":
		return fmt.Sprintf("invalid URL: %v", fe.Value())
	case "excluded_with":
		return "cannot be combined with mentors"
	case "required":
		return "must not be empty"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func validateScenario(name string, sc *ScenarioConfig, errs *ValidationErrors) {
	prefix := "scenarios." + name
	if sc == nil {
		errs.Add(prefix, "scenario is empty")
		return
	}

	if sc.Executor == "" {
		errs.Add(prefix+".executor", "executor type is required")
	} else if !slices.Contains(executors, sc.Executor) {
		errs.Add(prefix+".executor", fmt.Sprintf("unknown executor type: %s", sc.Executor))
	}

	switch sc.Executor {
	case "constant-vus":
		validateVUs(prefix, sc, errs)
		validateRequiredDuration(prefix+".duration", sc.Duration, sc.Executor, errs)
	case "ramping-vus":
		validateStages(prefix, sc, errs)
	case "constant-arrival-rate":
		if sc.Rate <= 0 {
			errs.Add(prefix+".rate", "rate must be greater than 0")
		}
		validateRequiredDuration(prefix+".duration", sc.Duration, sc.Executor, errs)
		validatePool(prefix, sc, errs)
	case "ramping-arrival-rate":
		validateStages(prefix, sc, errs)
		validatePool(prefix, sc, errs)
	case "per-vu-iterations", "shared-iterations":
		validateVUs(prefix, sc, errs)
		if sc.Iterations <= 0 {
			errs.Add(prefix+".iterations", "iterations must be greater than 0")
		}
		validateOptionalDuration(prefix+".maxDuration", sc.MaxDuration, errs)
	}

	validateOptionalDuration(prefix+".gracefulStop", sc.GracefulStop, errs)
	validateOptionalDuration(prefix+".startTime", sc.StartTime, errs)

	if sc.Pacing != nil {
		validatePacing(prefix+".pacing", sc.Pacing, errs)
	}
}

func validateVUs(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if sc.VUs <= 0 {
		errs.Add(prefix+".vus", "vus must be greater than 0")
	}
}

func validateRequiredDuration(field, value, executor string, errs *ValidationErrors) {
	if value == "" {
		errs.Add(field, fmt.Sprintf("duration is required for %s executor", executor))
		return
	}
	d, err := ParseDurationString(value)
	if err != nil {
		errs.Add(field, fmt.Sprintf("invalid duration: %v", err))
	} else if d <= 0 {
		errs.Add(field, "duration must be greater than 0")
	}
}

func validateOptionalDuration(field, value string, errs *ValidationErrors) {
	if value == "" {
		return
	}
	if d, err := ParseDurationString(value); err != nil {
		errs.Add(field, fmt.Sprintf("invalid duration: %v", err))
	} else if d < 0 {
		errs.Add(field, "duration cannot be negative")
	}
}

func validateStages(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if len(sc.Stages) == 0 {
		errs.Add(prefix+".stages", fmt.Sprintf("at least one stage is required for %s executor", sc.Executor))
	}
	for i, stage := range sc.Stages {
		validateStage(fmt.Sprintf("%s.stages[%d]", prefix, i), &stage, errs)
	}
}

func validatePool(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if sc.PreAllocatedVUs < 0 {
		errs.Add(prefix+".preAllocatedVUs", "preAllocatedVUs cannot be negative")
	}
	if sc.MaxVUs > 0 && sc.PreAllocatedVUs > sc.MaxVUs {
		errs.Add(prefix+".preAllocatedVUs", "preAllocatedVUs cannot be greater than maxVUs")
	}
}

func validatePacing(prefix string, pacing *PacingConfig, errs *ValidationErrors) {
	switch pacing.Type {
	case "none":
	case "constant":
		if pacing.Duration == "" {
			errs.Add(prefix+".duration", "duration is required for constant pacing")
		} else if _, err := ParseDurationString(pacing.Duration); err != nil {
			errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
		}
	case "random":
		minDur, minErr := ParseDurationString(pacing.Min)
		maxDur, maxErr := ParseDurationString(pacing.Max)
		switch {
		case pacing.Min == "":
			errs.Add(prefix+".min", "min is required for random pacing")
		case minErr != nil:
			errs.Add(prefix+".min", fmt.Sprintf("invalid min: %v", minErr))
		}
		switch {
		case pacing.Max == "":
			errs.Add(prefix+".max", "max is required for random pacing")
		case maxErr != nil:
			errs.Add(prefix+".max", fmt.Sprintf("invalid max: %v", maxErr))
		}
		if minErr == nil && maxErr == nil && minDur > maxDur {
			errs.Add(prefix, "min must be less than or equal to max")
		}
	default:
		errs.Add(prefix+".type", fmt.Sprintf("invalid pacing type: %s", pacing.Type))
	}
}

func validateStage(prefix string, stage *StageConfig, errs *ValidationErrors) {
	if stage.Duration == "" {
		errs.Add(prefix+".duration", "duration is required")
	} else if d, err := ParseDurationString(stage.Duration); err != nil {
		errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
	} else if d <= 0 {
		errs.Add(prefix+".duration", "duration must be greater than 0")
	}

	if stage.Target < 0 {
		errs.Add(prefix+".target", "target cannot be negative")
	}
}

func validateThresholds(t *ThresholdsConfig, errs *ValidationErrors) {
	groups := []struct {
		name  string
		exprs []string
	}{
		{"http_req_duration", t.HTTPReqDuration},
		{"http_req_failed", t.HTTPReqFailed},
		{"http_reqs", t.HTTPReqs},
		{"checks", t.Checks},
		{"iterations", t.Iterations},
	}

	for _, g := range groups {
		for i, expr := range g.exprs {
			if _, _, _, err := ParseThresholdExpression(expr); err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", g.name, i), err.Error())
			}
		}
	}
}

// ParseThresholdExpression splits an expression like "p95 < 500ms" into
// its metric, operator and value.
func ParseThresholdExpression(expr string) (metric, op, value string, err error) {
	parts := strings.Fields(expr)
	if len(parts) == 0 {
		return "", "", "", fmt.Errorf("threshold expression cannot be empty")
	}
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("invalid threshold expression %q: want \"<metric> <op> <value>\"", expr)
	}

	metric, op, value = parts[0], parts[1], parts[2]
	if !slices.Contains(ThresholdMetrics, metric) {
		return "", "", "", fmt.Errorf("threshold must start with a valid metric (%s)", strings.Join(ThresholdMetrics, ", "))
	}
	if !slices.Contains(ThresholdOperators, op) {
		return "", "", "", fmt.Errorf("threshold must contain a comparison operator (%s)", strings.Join(ThresholdOperators, ", "))
	}
	return metric, op, value, nil
}

func validateSettings(s *GlobalSettings, errs *ValidationErrors) {
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "cannot be negative")
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
}
