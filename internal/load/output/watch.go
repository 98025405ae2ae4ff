package output

import (
	"context"
	"time"

	"github.com/mentorpal/askload/internal/load/executor"
	"github.com/mentorpal/askload/internal/load/metrics"
)

// Source is the running test Watch polls.
type Source interface {
	IsRunning() bool
	Metrics() *metrics.Engine
	GetProgress() float64
	GetScenarioStats() map[string]*executor.Stats
	EstimatedDuration() time.Duration
}

// Watch refreshes c from src every interval until ctx is done.
func Watch(ctx context.Context, c *ConsoleOutput, src Source, targetVUs int, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	total := src.EstimatedDuration()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !src.IsRunning() {
				continue
			}
			current, stages := StageInfo(src.GetScenarioStats())
			c.Refresh(StatsFromMetrics(src.Metrics().GetSnapshot(), src.GetProgress(), total, targetVUs, current, stages))
		}
	}
}

// StartWatch runs Watch in the background. The returned stop function
// returns only after the last refresh has been written.
func StartWatch(ctx context.Context, c *ConsoleOutput, src Source, targetVUs int, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Watch(ctx, c, src, targetVUs, interval)
	}()
	return func() {
		cancel()
		<-done
	}
}

// StageInfo returns the furthest stage reached and the largest stage
// count across scenarios.
func StageInfo(stats map[string]*executor.Stats) (current, total int) {
	for _, s := range stats {
		if s == nil {
			continue
		}
		current = max(current, s.CurrentStage)
		total = max(total, s.TotalStages)
	}
	return current, total
}
