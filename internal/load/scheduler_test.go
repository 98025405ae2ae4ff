package load

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorpal/askload/internal/load/metrics"
)

func newTestScheduler(t *testing.T) *VUScheduler {
	t.Helper()
	m := metrics.NewEngine()
	t.Cleanup(m.Stop)
	script := ScriptFunc(func(ctx context.Context, vu VU) error { return nil })
	return NewVUScheduler(script, m, DefaultHTTPClientConfig())
}

func TestNewHTTPClient(t *testing.T) {
	cfg := DefaultHTTPClientConfig()
	cfg.Timeout = 5 * time.Second
	cfg.InsecureSkipVerify = true
	cfg.DisableKeepAlives = true

	client := NewHTTPClient(cfg)
	assert.Equal(t, 5*time.Second, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.True(t, transport.DisableKeepAlives)
	require.NotNil(t, transport.TLSClientConfig)
	assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)
}

func TestVUScheduler_SpawnVU(t *testing.T) {
	s := newTestScheduler(t)

	a := s.SpawnVU()
	b := s.SpawnVU()

	assert.Equal(t, 1, a.ID)
	assert.Equal(t, 2, b.ID)
	assert.Same(t, a.HTTPClient, b.HTTPClient, "VUs share one client")
	assert.Same(t, a, s.GetVU(1))
	assert.Equal(t, 2, s.GetActiveVUCount())
	assert.Len(t, s.GetActiveVUs(), 2)
}

func TestVUScheduler_OwnClients(t *testing.T) {
	m := metrics.NewEngine()
	defer m.Stop()

	cfg := DefaultHTTPClientConfig()
	cfg.UseSharedClient = false
	s := NewVUScheduler(nil, m, cfg)

	a, b := s.SpawnVU(), s.SpawnVU()
	assert.NotSame(t, a.HTTPClient, b.HTTPClient)
}

func TestVUScheduler_Headers(t *testing.T) {
	m := metrics.NewEngine()
	defer m.Stop()

	cfg := DefaultHTTPClientConfig()
	cfg.UserAgent = "askload/test"
	cfg.Headers = map[string]string{"X-Run": "1"}
	s := NewVUScheduler(nil, m, cfg)

	vu := s.SpawnVU()
	assert.Equal(t, "askload/test", vu.headers.Get("User-Agent"))
	assert.Equal(t, "1", vu.headers.Get("X-Run"))
}

func TestVUScheduler_WithSeed(t *testing.T) {
	draw := func(offset int) []int {
		s := newTestScheduler(t).WithSeed(42).WithIDOffset(offset)
		vu := s.SpawnVU()
		out := make([]int, 10)
		for i := range out {
			out[i] = vu.Rand().IntN(1000)
		}
		return out
	}

	assert.Equal(t, draw(0), draw(0), "same seed and id must repeat")
	assert.NotEqual(t, draw(0), draw(100), "different ids draw differently")
}

func TestVUScheduler_ScaleVUs(t *testing.T) {
	s := newTestScheduler(t)

	var mu sync.Mutex
	var spawned []*VirtualUser
	onSpawn := func(vu *VirtualUser) {
		mu.Lock()
		spawned = append(spawned, vu)
		mu.Unlock()
	}

	s.ScaleVUs(5, onSpawn)
	assert.Len(t, spawned, 5)

	s.ScaleVUs(2, onSpawn)
	stopping := 0
	for _, vu := range spawned {
		if vu.GetState() == VUStateStopping {
			stopping++
			assert.Greater(t, vu.ID, 2, "newest VUs stop first")
		}
	}
	assert.Equal(t, 3, stopping)

	s.ScaleVUs(4, onSpawn)
	assert.Len(t, spawned, 7)
}

func TestVUScheduler_Pace(t *testing.T) {
	s := newTestScheduler(t)
	vu := s.SpawnVU()

	assert.True(t, s.Pace(context.Background(), vu, nil))
	assert.True(t, s.Pace(context.Background(), vu, func(*VirtualUser) time.Duration { return time.Millisecond }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, s.Pace(ctx, vu, func(*VirtualUser) time.Duration { return time.Hour }))

	vu.RequestStop()
	assert.False(t, s.Pace(context.Background(), vu, func(*VirtualUser) time.Duration { return time.Hour }))
}

func TestVUScheduler_Shutdown(t *testing.T) {
	s := newTestScheduler(t)
	vu := s.SpawnVU()

	go func() {
		<-vu.Stopping()
		vu.MarkStopped()
	}()

	assert.True(t, s.Shutdown(time.Second))
	select {
	case <-s.Done():
	default:
		t.Fatal("Done() should be closed after Shutdown")
	}
	assert.Equal(t, 0, s.GetActiveVUCount())
}

func TestVUScheduler_ShutdownTimeout(t *testing.T) {
	s := newTestScheduler(t)
	s.SpawnVU()

	assert.False(t, s.Shutdown(20*time.Millisecond))
}

func TestVUScheduler_RemoveVU(t *testing.T) {
	s := newTestScheduler(t)
	vu := s.SpawnVU()

	s.RemoveVU(vu.ID)
	assert.Nil(t, s.GetVU(vu.ID))
	assert.Equal(t, VUStateStopped, vu.GetState())
}
