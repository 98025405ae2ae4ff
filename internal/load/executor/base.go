package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mentorpal/askload/internal/load"
	"github.com/mentorpal/askload/internal/load/metrics"
)

// base holds the lifecycle shared by every executor.
//
// Two contexts drive a run. runCtx ends when the executor's duration is up
// or Stop is called; no new iteration starts after that. iterCtx is handed
// to iterations and is only cancelled once the graceful stop period has
// also expired.
type base struct {
	config    *Config
	scheduler *load.VUScheduler
	metrics   *metrics.Engine

	startMu   sync.RWMutex
	startTime time.Time

	running    atomic.Bool
	activeVUs  atomic.Int32
	iterations atomic.Int64

	cancelMu   sync.Mutex
	runCancel  context.CancelFunc
	iterCancel context.CancelFunc

	wg sync.WaitGroup
}

func (b *base) init(config *Config, want Type) error {
	if config.Type != want {
		return fmt.Errorf("invalid config type: expected %s, got %s", want, config.Type)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	b.config = config
	return nil
}

// begin records the start of a run and returns its two contexts.
func (b *base) begin(ctx context.Context, s *load.VUScheduler, m *metrics.Engine) (runCtx, iterCtx context.Context) {
	b.scheduler = s
	b.metrics = m

	b.startMu.Lock()
	b.startTime = time.Now()
	b.startMu.Unlock()
	b.running.Store(true)

	iterCtx, iterCancel := context.WithCancel(ctx)
	runCtx, runCancel := context.WithTimeout(iterCtx, b.config.TotalDuration())

	b.cancelMu.Lock()
	b.runCancel = runCancel
	b.iterCancel = iterCancel
	b.cancelMu.Unlock()

	return runCtx, iterCtx
}

// finish waits for in-flight iterations, interrupting them once the
// graceful stop period expires, and marks the run done.
func (b *base) finish() {
	b.cancelRun()
	if !b.waitFor(b.config.gracefulStop()) {
		b.cancelMu.Lock()
		b.iterCancel()
		b.cancelMu.Unlock()
		b.wg.Wait()
	}

	b.cancelMu.Lock()
	b.iterCancel()
	b.cancelMu.Unlock()

	b.metrics.SetPhase(metrics.PhaseDone)
	b.running.Store(false)
}

func (b *base) cancelRun() {
	b.cancelMu.Lock()
	defer b.cancelMu.Unlock()
	if b.runCancel != nil {
		b.runCancel()
	}
}

// waitFor reports whether all VU goroutines exited within d.
func (b *base) waitFor(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (b *base) vuStarted() {
	b.activeVUs.Add(1)
	b.metrics.AddActiveVUs(1)
}

func (b *base) vuEnded() {
	b.activeVUs.Add(-1)
	b.metrics.AddActiveVUs(-1)
}

func (b *base) pacing(vu *load.VirtualUser) time.Duration {
	return b.config.Pacing.Delay(vu.Rand())
}

// runIteration runs one iteration and reports whether the VU may continue.
func (b *base) runIteration(iterCtx context.Context, vu *load.VirtualUser) bool {
	err := vu.RunIteration(iterCtx)
	if errors.Is(err, load.ErrVUStopped) {
		return false
	}
	if iterCtx.Err() != nil {
		return false
	}
	b.iterations.Add(1)
	return true
}

// loop runs iterations on vu until runCtx ends, the VU is stopped or take
// reports that no iterations are left. A nil take never runs out.
func (b *base) loop(runCtx, iterCtx context.Context, vu *load.VirtualUser, take func() bool) {
	defer b.wg.Done()
	defer vu.MarkStopped()

	b.vuStarted()
	defer b.vuEnded()

	for {
		select {
		case <-runCtx.Done():
			return
		case <-vu.Stopping():
			return
		default:
		}

		if take != nil && !take() {
			return
		}
		if !b.runIteration(iterCtx, vu) {
			return
		}
		if !b.scheduler.Pace(runCtx, vu, b.pacing) {
			return
		}
	}
}

func (b *base) start() time.Time {
	b.startMu.RLock()
	defer b.startMu.RUnlock()
	return b.startTime
}

func (b *base) elapsed() time.Duration {
	if st := b.start(); !st.IsZero() {
		return time.Since(st)
	}
	return 0
}

// timeProgress is the default progress: elapsed over planned duration.
func (b *base) timeProgress() float64 {
	if !b.running.Load() {
		if b.start().IsZero() {
			return 0
		}
		return 1
	}
	total := b.config.TotalDuration()
	if total <= 0 {
		return 1
	}
	return min(float64(b.elapsed())/float64(total), 1)
}

func (b *base) stats() *Stats {
	return &Stats{
		StartTime:     b.start(),
		CurrentTime:   time.Now(),
		Elapsed:       b.elapsed(),
		TotalDuration: b.config.TotalDuration(),
		ActiveVUs:     int(b.activeVUs.Load()),
		Iterations:    b.iterations.Load(),
	}
}

// GetActiveVUs returns the number of running VUs.
func (b *base) GetActiveVUs() int {
	return int(b.activeVUs.Load())
}

// Stop ends the run early and waits for VUs to exit.
func (b *base) Stop(ctx context.Context) error {
	b.cancelRun()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	graceful := DefaultGracefulStop
	if b.config != nil {
		graceful = b.config.gracefulStop()
	}
	timer := time.NewTimer(graceful)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("graceful stop timeout after %v", graceful)
	case <-ctx.Done():
		return ctx.Err()
	}
}
