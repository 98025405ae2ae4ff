package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mentorpal/askload/internal/load"
	"github.com/mentorpal/askload/internal/load/rate"
)

// minRate is the floor below which arrival-rate executors stop issuing
// iterations.
const minRate = 0.01

// arrivalRate drives iterations from a leaky bucket onto a pool of idle
// VUs. It is shared by the constant and ramping arrival-rate executors.
//
// When every VU up to maxVUs is busy the scheduled iteration is dropped
// and counted; the bucket keeps its pace.
type arrivalRate struct {
	base

	bucket *rate.LeakyBucket
	// rate * 1000
	currentRate atomic.Int64

	idle     chan *load.VirtualUser
	allVUs   []*load.VirtualUser
	allocMu  sync.Mutex
	dropped  atomic.Int64
}

func (e *arrivalRate) normalizePool(config *Config) {
	if config.PreAllocatedVUs <= 0 {
		config.PreAllocatedVUs = 1
	}
	if config.MaxVUs < config.PreAllocatedVUs {
		config.MaxVUs = config.PreAllocatedVUs
	}
}

func (e *arrivalRate) setRate(r float64) {
	e.currentRate.Store(int64(r * 1000))
	if r >= minRate {
		e.bucket.SetRate(r)
	}
}

func (e *arrivalRate) rate() float64 {
	return float64(e.currentRate.Load()) / 1000
}

// startPool creates the bucket and pre-allocates VUs.
func (e *arrivalRate) startPool(initialRate float64) {
	e.bucket = rate.NewLeakyBucket(max(initialRate, minRate))
	e.currentRate.Store(int64(initialRate * 1000))

	e.idle = make(chan *load.VirtualUser, e.config.MaxVUs)
	e.allVUs = make([]*load.VirtualUser, 0, e.config.MaxVUs)
	for i := 0; i < e.config.PreAllocatedVUs; i++ {
		e.idle <- e.allocate()
	}
}

// allocate spawns a VU and counts it as active. Callers hold allocMu or
// run before the scheduler loop starts.
func (e *arrivalRate) allocate() *load.VirtualUser {
	vu := e.scheduler.SpawnVU()
	e.allVUs = append(e.allVUs, vu)
	e.vuStarted()
	return vu
}

// acquire returns an idle VU, allocating one if the pool may grow.
func (e *arrivalRate) acquire() *load.VirtualUser {
	select {
	case vu := <-e.idle:
		return vu
	default:
	}

	e.allocMu.Lock()
	defer e.allocMu.Unlock()
	if len(e.allVUs) < e.config.MaxVUs {
		return e.allocate()
	}
	return nil
}

func (e *arrivalRate) release(vu *load.VirtualUser) {
	switch vu.GetState() {
	case load.VUStateStopping, load.VUStateStopped:
		return
	}
	select {
	case e.idle <- vu:
	default:
	}
}

// schedule starts iterations at the bucket's pace until runCtx ends.
func (e *arrivalRate) schedule(runCtx, iterCtx context.Context) {
	defer e.wg.Done()

	for {
		if err := e.bucket.Wait(runCtx); err != nil {
			return
		}

		if e.rate() < minRate {
			select {
			case <-runCtx.Done():
				return
			case <-time.After(controlInterval):
				continue
			}
		}

		vu := e.acquire()
		if vu == nil {
			if n := e.dropped.Add(1); n == 1 || n%100 == 0 {
				e.scheduler.Logger().Warn("insufficient VUs, dropping iterations",
					zap.Int("max_vus", e.config.MaxVUs),
					zap.Int64("dropped", n),
				)
			}
			continue
		}

		// schedule still holds its own wg count here, so Add never races
		// a Wait on a zero counter.
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer e.release(vu)
			e.runIteration(iterCtx, vu)
		}()
	}
}

// drain waits for the scheduler loop and in-flight iterations, then
// retires the pool.
func (e *arrivalRate) drain() {
	e.finish()

	e.allocMu.Lock()
	for _, vu := range e.allVUs {
		vu.RequestStop()
		vu.MarkStopped()
		e.vuEnded()
	}
	e.allVUs = nil
	e.allocMu.Unlock()
}

func (e *arrivalRate) poolStats() *Stats {
	s := e.stats()
	s.TargetVUs = e.config.MaxVUs
	s.CurrentRate = e.rate()
	s.DroppedIterations = e.dropped.Load()
	return s
}
