package rate

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewLeakyBucket(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		expected float64
	}{
		{"positive rate", 100.0, 100.0},
		{"zero rate defaults to 1", 0.0, 1.0},
		{"negative rate defaults to 1", -10.0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb := NewLeakyBucket(tt.rate)
			if lb.GetRate() != tt.expected {
				t.Errorf("GetRate() = %v, want %v", lb.GetRate(), tt.expected)
			}
		})
	}
}

func TestLeakyBucket_Next_ImmediateFirst(t *testing.T) {
	lb := NewLeakyBucket(10.0)

	before := time.Now()
	next := lb.Next()

	if d := next.Sub(before); d > 5*time.Millisecond {
		t.Errorf("first Next() delayed by %v, want immediate", d)
	}
}

func TestLeakyBucket_Next_Spacing(t *testing.T) {
	lb := NewLeakyBucket(100.0)

	first := lb.Next()
	second := lb.Next()
	third := lb.Next()

	gap := third.Sub(second)
	if gap < 9*time.Millisecond || gap > 11*time.Millisecond {
		t.Errorf("gap between queued iterations = %v, want ~10ms", gap)
	}
	if !second.After(first) {
		t.Errorf("second start %v not after first %v", second, first)
	}
}

func TestLeakyBucket_Wait_Rate(t *testing.T) {
	lb := NewLeakyBucket(200.0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 21; i++ {
		if err := lb.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// 20 intervals at 5ms each.
	if elapsed < 80*time.Millisecond || elapsed > 250*time.Millisecond {
		t.Errorf("21 waits took %v, want ~100ms", elapsed)
	}
}

func TestLeakyBucket_Wait_Cancelled(t *testing.T) {
	lb := NewLeakyBucket(0.5)
	_ = lb.Next()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := lb.Wait(ctx)
	if err == nil {
		t.Fatal("Wait() error = nil, want context error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Wait() did not return promptly after cancellation")
	}
}

func TestLeakyBucket_Concurrent(t *testing.T) {
	lb := NewLeakyBucket(1000.0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = lb.Wait(ctx)
			}
		}()
	}
	wg.Wait()

	if got := lb.Stats().TotalIterations; got != 100 {
		t.Errorf("TotalIterations = %d, want 100", got)
	}
}

func TestLeakyBucket_SetRate(t *testing.T) {
	lb := NewLeakyBucket(10.0)
	lb.SetRate(50.0)
	if lb.GetRate() != 50.0 {
		t.Errorf("GetRate() = %v, want 50", lb.GetRate())
	}
	lb.SetRate(-1)
	if lb.GetRate() != 1.0 {
		t.Errorf("GetRate() after negative = %v, want 1", lb.GetRate())
	}
	if lb.Stats().Accumulated != 0 {
		t.Errorf("Accumulated after SetRate = %v, want 0", lb.Stats().Accumulated)
	}
}

func TestLeakyBucket_Reset(t *testing.T) {
	lb := NewLeakyBucket(100.0)
	_ = lb.Next()
	_ = lb.Next()

	lb.Reset()

	s := lb.Stats()
	if s.TotalIterations != 0 || s.TotalWaitTime != 0 {
		t.Errorf("Stats after Reset = %+v, want zero counters", s)
	}
}
