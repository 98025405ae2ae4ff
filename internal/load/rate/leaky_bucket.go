// Package rate schedules iteration start times for arrival-rate executors.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket hands out iteration start times at a fixed rate.
//
// The bucket tracks a virtual drip time that advances by 1/rate per call to
// Next. When the caller falls behind, Next returns the current time and the
// iteration starts immediately; no more than maxBurst iterations are ever
// released back to back.
//
// LeakyBucket is safe for concurrent use.
type LeakyBucket struct {
	rate        float64
	lastDrip    time.Time
	accumulated float64
	maxBurst    float64
	mu          sync.Mutex

	scheduled atomic.Int64
	waited    atomic.Int64
}

// NewLeakyBucket creates a bucket releasing rate iterations per second.
// A non-positive rate is treated as 1/s. The first call to Next returns
// immediately.
func NewLeakyBucket(rate float64) *LeakyBucket {
	return NewLeakyBucketWithBurst(rate, 1)
}

// NewLeakyBucketWithBurst creates a bucket that may release up to maxBurst
// iterations at once after a slow period.
func NewLeakyBucketWithBurst(rate, maxBurst float64) *LeakyBucket {
	if rate <= 0 {
		rate = 1
	}
	if maxBurst < 1 {
		maxBurst = 1
	}
	return &LeakyBucket{
		rate:        rate,
		lastDrip:    time.Now(),
		accumulated: 1,
		maxBurst:    maxBurst,
	}
}

// Next returns when the next iteration should start. The returned time is
// never before the call.
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(lb.lastDrip).Seconds(); elapsed > 0 {
		lb.accumulated += elapsed * lb.rate
	}
	if lb.accumulated > lb.maxBurst {
		lb.accumulated = lb.maxBurst
	}

	lb.scheduled.Add(1)

	if lb.accumulated >= 1 {
		lb.accumulated--
		if lb.lastDrip.Before(now) {
			lb.lastDrip = now
		}
		return now
	}

	wait := time.Duration((1 - lb.accumulated) / lb.rate * float64(time.Second))
	lb.accumulated = 0

	// lastDrip moves to the scheduled start so the wake-up is not counted twice.
	next := now.Add(wait)
	if lb.lastDrip.After(now) {
		next = lb.lastDrip.Add(time.Duration(float64(time.Second) / lb.rate))
	}
	lb.lastDrip = next
	lb.waited.Add(int64(next.Sub(now)))

	return next
}

// Wait blocks until the next iteration should start or ctx is done.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	d := time.Until(lb.Next())
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetRate changes the target rate. Accumulated credit is dropped so a rate
// change never releases a burst.
func (lb *LeakyBucket) SetRate(rate float64) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if rate <= 0 {
		rate = 1
	}
	lb.rate = rate
	lb.accumulated = 0
	if now := time.Now(); lb.lastDrip.Before(now) {
		lb.lastDrip = now
	}
}

// GetRate returns the current rate in iterations per second.
func (lb *LeakyBucket) GetRate() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.rate
}

// Stats returns counters describing the bucket's activity.
func (lb *LeakyBucket) Stats() LeakyBucketStats {
	lb.mu.Lock()
	s := LeakyBucketStats{
		Rate:        lb.rate,
		Accumulated: lb.accumulated,
		MaxBurst:    lb.maxBurst,
	}
	lb.mu.Unlock()

	s.TotalIterations = lb.scheduled.Load()
	s.TotalWaitTime = time.Duration(lb.waited.Load())
	return s
}

// Reset restores the initial state, keeping the rate.
func (lb *LeakyBucket) Reset() {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.accumulated = 1
	lb.lastDrip = time.Now()
	lb.scheduled.Store(0)
	lb.waited.Store(0)
}

// LeakyBucketStats contains statistics about a LeakyBucket.
type LeakyBucketStats struct {
	Rate            float64       `json:"rate"`
	Accumulated     float64       `json:"accumulated"`
	MaxBurst        float64       `json:"maxBurst"`
	TotalIterations int64         `json:"totalIterations"`
	TotalWaitTime   time.Duration `json:"totalWaitTime"`
}
