package load

import (
	"context"
	"crypto/tls"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mentorpal/askload/internal/load/metrics"
)

// VUScheduler spawns and stops virtual users for executors.
//
// It owns the HTTP client shared by all VUs and coordinates graceful
// shutdown.
type VUScheduler struct {
	script  Script
	metrics *metrics.Engine
	logger  *zap.Logger

	httpClientConfig HTTPClientConfig
	sharedClient     *http.Client
	headers          http.Header

	seed     uint64
	seeded   bool
	idBase   int
	nextVUID atomic.Int32

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	// MaxConnsPerHost limits total connections per host; 0 is unlimited.
	MaxConnsPerHost int
	IdleConnTimeout time.Duration

	DisableKeepAlives  bool
	DisableCompression bool

	// InsecureSkipVerify skips TLS certificate verification.
	InsecureSkipVerify bool

	// UseSharedClient makes all VUs share one client and connection pool.
	UseSharedClient bool

	// UserAgent is sent with every request when non-empty.
	UserAgent string

	// Headers are added to every request.
	Headers map[string]string
}

// DefaultHTTPClientConfig returns defaults suited to load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		UseSharedClient:     true,
	}
}

// NewHTTPClient builds a client from cfg.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		DisableCompression:  cfg.DisableCompression,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// NewVUScheduler creates a scheduler whose VUs run script.
func NewVUScheduler(script Script, metricsEngine *metrics.Engine, httpConfig HTTPClientConfig) *VUScheduler {
	s := &VUScheduler{
		script:           script,
		metrics:          metricsEngine,
		logger:           zap.NewNop(),
		httpClientConfig: httpConfig,
		headers:          make(http.Header),
		vus:              make(map[int]*VirtualUser),
		shutdownCh:       make(chan struct{}),
	}

	for k, v := range httpConfig.Headers {
		s.headers.Set(k, v)
	}
	if httpConfig.UserAgent != "" {
		s.headers.Set("User-Agent", httpConfig.UserAgent)
	}

	if httpConfig.UseSharedClient {
		s.sharedClient = NewHTTPClient(httpConfig)
	}

	return s
}

// WithLogger sets the parent logger for spawned VUs.
func (s *VUScheduler) WithLogger(logger *zap.Logger) *VUScheduler {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Logger returns the scheduler's logger.
func (s *VUScheduler) Logger() *zap.Logger {
	return s.logger
}

// WithSeed makes every VU's random source deterministic: VU n draws from
// a generator seeded with (seed, n).
func (s *VUScheduler) WithSeed(seed uint64) *VUScheduler {
	s.seed = seed
	s.seeded = true
	return s
}

// WithIDOffset shifts VU ids so several schedulers in one run do not
// produce overlapping ids.
func (s *VUScheduler) WithIDOffset(offset int) *VUScheduler {
	s.idBase = offset
	return s
}

// SpawnVU creates and registers a new VU. The caller runs it.
func (s *VUScheduler) SpawnVU() *VirtualUser {
	id := s.idBase + int(s.nextVUID.Add(1))

	client := s.sharedClient
	if client == nil {
		client = NewHTTPClient(s.httpClientConfig)
	}

	vu := NewVirtualUser(id, s.script, client, s.metrics)
	vu.headers = s.headers
	vu.logger = s.logger.With(zap.Int("vu", id))
	if s.seeded {
		vu.rng = rand.New(rand.NewPCG(s.seed, uint64(id)))
	}

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	return vu
}

// GetVU returns a VU by ID, or nil if not found.
func (s *VUScheduler) GetVU(id int) *VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return s.vus[id]
}

// GetActiveVUs returns all VUs that have not stopped.
func (s *VUScheduler) GetActiveVUs() []*VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	result := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			result = append(result, vu)
		}
	}
	return result
}

// GetActiveVUCount returns the number of VUs that have not stopped.
func (s *VUScheduler) GetActiveVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			count++
		}
	}
	return count
}

// StopVU requests a specific VU to stop.
func (s *VUScheduler) StopVU(id int) {
	if vu := s.GetVU(id); vu != nil {
		vu.RequestStop()
	}
}

// StopAllVUs requests all VUs to stop.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// RemoveVU marks a VU stopped and forgets it.
func (s *VUScheduler) RemoveVU(id int) {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	if vu, ok := s.vus[id]; ok {
		vu.MarkStopped()
		delete(s.vus, id)
	}
}

// WaitForAllVUs waits for all VUs to stop and returns how many did not
// stop within timeout.
func (s *VUScheduler) WaitForAllVUs(timeout time.Duration) int {
	deadline := time.Now().Add(timeout)

	s.vusMu.RLock()
	vus := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		vus = append(vus, vu)
	}
	s.vusMu.RUnlock()

	notStopped := 0
	for _, vu := range vus {
		remaining := time.Until(deadline)
		if remaining <= 0 || !vu.WaitForStop(remaining) {
			notStopped++
		}
	}
	return notStopped
}

// Done returns a channel closed by Shutdown.
func (s *VUScheduler) Done() <-chan struct{} {
	return s.shutdownCh
}

// Pace sleeps for the next pacing interval. It reports false when the wait
// was interrupted by ctx, the VU stopping or scheduler shutdown.
func (s *VUScheduler) Pace(ctx context.Context, vu *VirtualUser, pacing func(*VirtualUser) time.Duration) bool {
	if pacing == nil {
		return true
	}
	d := pacing(vu)
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-s.shutdownCh:
		return false
	case <-vu.Stopping():
		return false
	case <-timer.C:
		return true
	}
}

// Shutdown stops all VUs and waits up to timeout for them to exit.
// It reports whether every VU exited in time.
func (s *VUScheduler) Shutdown(timeout time.Duration) bool {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	s.StopAllVUs()

	clean := s.WaitForAllVUs(timeout) == 0
	if !clean {
		s.logger.Warn("virtual users still running after graceful stop",
			zap.Duration("timeout", timeout),
			zap.Int("active", s.GetActiveVUCount()),
		)
	}

	if s.sharedClient != nil {
		s.sharedClient.CloseIdleConnections()
	}
	return clean
}

// ScaleVUs spawns or stops VUs to reach target. onSpawn is called for each
// new VU and is responsible for running it. Returns the active count.
func (s *VUScheduler) ScaleVUs(target int, onSpawn func(*VirtualUser)) int {
	current := s.countRunnable()

	switch {
	case target > current:
		for i := current; i < target; i++ {
			vu := s.SpawnVU()
			if onSpawn != nil {
				onSpawn(vu)
			}
		}
	case target < current:
		excess := current - target

		s.vusMu.RLock()
		// Stop the newest VUs first.
		ids := make([]int, 0, len(s.vus))
		for id, vu := range s.vus {
			st := vu.GetState()
			if st == VUStateIdle || st == VUStateRunning {
				ids = append(ids, id)
			}
		}
		s.vusMu.RUnlock()

		sort.Sort(sort.Reverse(sort.IntSlice(ids)))
		for i := 0; i < excess && i < len(ids); i++ {
			s.StopVU(ids[i])
		}
	}

	return s.GetActiveVUCount()
}

func (s *VUScheduler) countRunnable() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	n := 0
	for _, vu := range s.vus {
		st := vu.GetState()
		if st == VUStateIdle || st == VUStateRunning {
			n++
		}
	}
	return n
}
