package metrics

import (
	"sync"
	"sync/atomic"
)

// CheckStats holds pass/fail counts for one named check.
type CheckStats struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Total returns the number of times the check was evaluated.
func (c CheckStats) Total() int64 {
	return c.Passes + c.Fails
}

// PassRate returns the fraction of passing evaluations, or 0 if none.
func (c CheckStats) PassRate() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.Passes) / float64(c.Total())
}

// ChecksSummary aggregates all checks of a run.
type ChecksSummary struct {
	Passes int64        `json:"passes"`
	Fails  int64        `json:"fails"`
	Rate   float64      `json:"rate"`
	Checks []CheckStats `json:"checks,omitempty"`
}

type checkCounter struct {
	passes atomic.Int64
	fails  atomic.Int64
}

// checkSet keeps one counter pair per check name in registration order.
type checkSet struct {
	mu       sync.RWMutex
	counters map[string]*checkCounter
	order    []string
}

func newCheckSet() *checkSet {
	return &checkSet{counters: make(map[string]*checkCounter)}
}

func (cs *checkSet) counter(name string) *checkCounter {
	cs.mu.RLock()
	c, ok := cs.counters[name]
	cs.mu.RUnlock()
	if ok {
		return c
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if c, ok = cs.counters[name]; ok {
		return c
	}
	c = &checkCounter{}
	cs.counters[name] = c
	cs.order = append(cs.order, name)
	return c
}

func (cs *checkSet) record(name string, ok bool) {
	c := cs.counter(name)
	if ok {
		c.passes.Add(1)
	} else {
		c.fails.Add(1)
	}
}

func (cs *checkSet) summary() ChecksSummary {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	var s ChecksSummary
	s.Checks = make([]CheckStats, 0, len(cs.order))
	for _, name := range cs.order {
		c := cs.counters[name]
		st := CheckStats{Name: name, Passes: c.passes.Load(), Fails: c.fails.Load()}
		s.Passes += st.Passes
		s.Fails += st.Fails
		s.Checks = append(s.Checks, st)
	}
	if total := s.Passes + s.Fails; total > 0 {
		s.Rate = float64(s.Passes) / float64(total)
	}
	return s
}

func (cs *checkSet) reset() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.counters = make(map[string]*checkCounter)
	cs.order = nil
}
