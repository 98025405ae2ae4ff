package load

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mentorpal/askload/internal/load/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is running an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been asked to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrVUStopped is returned by RunIteration on a stopping or stopped VU.
var ErrVUStopped = errors.New("virtual user is stopped")

// VirtualUser is one simulated client running Script iterations.
//
// The HTTP client and metrics engine are shared with every other VU; the
// random source and logger are private.
type VirtualUser struct {
	ID         int
	Script     Script
	HTTPClient *http.Client
	Metrics    *metrics.Engine

	headers http.Header
	rng     *rand.Rand
	logger  *zap.Logger

	state     atomic.Int32
	stopCh    chan struct{}
	doneCh    chan struct{}
	doneOnce  sync.Once
	iteration atomic.Int64
}

// NewVirtualUser creates a VU with a time-seeded random source and a no-op
// logger. The scheduler overrides both for VUs it spawns.
func NewVirtualUser(id int, script Script, httpClient *http.Client, metricsEngine *metrics.Engine) *VirtualUser {
	return &VirtualUser{
		ID:         id,
		Script:     script,
		HTTPClient: httpClient,
		Metrics:    metricsEngine,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), uint64(id))),
		logger:     zap.NewNop(),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// RunIteration runs the script once.
//
// Script errors and panics are recorded as iteration errors and returned;
// the caller keeps going. An iteration interrupted by ctx is not recorded.
func (vu *VirtualUser) RunIteration(ctx context.Context) (err error) {
	switch vu.GetState() {
	case VUStateStopping, VUStateStopped:
		return ErrVUStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
	iter := vu.iteration.Add(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("iteration panicked: %v", r)
		}
		vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))

		if ctx.Err() != nil {
			if err == nil {
				err = ctx.Err()
			}
			return
		}
		if vu.Metrics != nil {
			vu.Metrics.RecordIteration(err)
		}
		if err != nil {
			vu.logger.Warn("iteration failed",
				zap.Int64("iteration", iter),
				zap.Error(err),
			)
		}
	}()

	if vu.Script == nil {
		return errors.New("no script configured")
	}
	return vu.Script.Iterate(ctx, vu)
}

// Get implements VU.
func (vu *VirtualUser) Get(ctx context.Context, url, name string) (*Response, error) {
	start := time.Now()
	resp := &Response{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		resp.Error = fmt.Errorf("build request: %w", err)
		return resp, resp.Error
	}
	for k, vs := range vu.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	httpResp, err := vu.HTTPClient.Do(req)
	if err != nil {
		resp.Duration = time.Since(start)
		resp.Error = err
		if ctx.Err() == nil {
			vu.record(resp, name)
		}
		return resp, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	resp.Duration = time.Since(start)
	resp.StatusCode = httpResp.StatusCode
	resp.Body = body
	if err != nil {
		resp.Error = fmt.Errorf("read response body: %w", err)
	}

	vu.record(resp, name)
	return resp, resp.Error
}

func (vu *VirtualUser) record(resp *Response, name string) {
	if vu.Metrics == nil {
		return
	}
	success := resp.Error == nil && resp.StatusCode < 400
	vu.Metrics.RecordLatency(resp.Duration, name, success, int64(len(resp.Body)))
}

// Check implements VU.
func (vu *VirtualUser) Check(name string, ok bool) bool {
	if vu.Metrics != nil {
		vu.Metrics.RecordCheck(name, ok)
	}
	return ok
}

// Rand implements VU. The source is not safe for use outside the VU's own
// goroutine.
func (vu *VirtualUser) Rand() *rand.Rand {
	return vu.rng
}

// Logger implements VU.
func (vu *VirtualUser) Logger() *zap.Logger {
	return vu.logger
}

// RequestStop signals the VU to stop after the current iteration.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// Stopping returns a channel closed once RequestStop has been called.
func (vu *VirtualUser) Stopping() <-chan struct{} {
	return vu.stopCh
}

// WaitForStop waits for MarkStopped. It reports whether the VU stopped
// within timeout.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
// The goroutine running the VU calls it on exit.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
	vu.doneOnce.Do(func() { close(vu.doneCh) })
}
