// Package load runs a Script repeatedly on virtual users.
//
// A Script is the per-iteration entry point. It sees the host only through
// the VU capability interface: one blocking HTTP GET, named checks, a
// per-VU random source and a logger.
package load

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Script is executed once per iteration by every virtual user.
type Script interface {
	// Name identifies the script in logs and reports.
	Name() string

	// Iterate runs one iteration. A returned error is counted as an
	// iteration error; it never stops the run.
	Iterate(ctx context.Context, vu VU) error
}

// ScriptFunc adapts a function to the Script interface.
type ScriptFunc func(ctx context.Context, vu VU) error

// Name implements Script.
func (f ScriptFunc) Name() string { return "func" }

// Iterate implements Script.
func (f ScriptFunc) Iterate(ctx context.Context, vu VU) error { return f(ctx, vu) }

// VU is what a Script may do during an iteration.
type VU interface {
	// Get issues one GET request tagged with name for metric grouping.
	// Transport failures return a Response with StatusCode 0 and a non-nil
	// error.
	Get(ctx context.Context, url, name string) (*Response, error)

	// Check records a named boolean assertion and returns ok.
	Check(name string, ok bool) bool

	// Rand returns the VU's private random source.
	Rand() *rand.Rand

	// Logger returns a logger tagged with the VU id.
	Logger() *zap.Logger
}

// Response is the result of VU.Get.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Error      error
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}
