package load

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mentorpal/askload/internal/load/metrics"
)

func newTestVU(t *testing.T, script Script) (*VirtualUser, *metrics.Engine) {
	t.Helper()
	m := metrics.NewEngine()
	t.Cleanup(m.Stop)
	return NewVirtualUser(1, script, http.DefaultClient, m), m
}

func TestVUState_String(t *testing.T) {
	tests := map[VUState]string{
		VUStateIdle:     "idle",
		VUStateRunning:  "running",
		VUStateStopping: "stopping",
		VUStateStopped:  "stopped",
		VUState(42):     "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("VUState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestVirtualUser_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Load-Test"))
		w.Write([]byte(`{"answer_text":"Hi"}`))
	}))
	defer server.Close()

	vu, m := newTestVU(t, nil)
	vu.headers = http.Header{"X-Load-Test": []string{"yes"}}

	resp, err := vu.Get(context.Background(), server.URL, "ask")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"answer_text":"Hi"}`, resp.Text())
	assert.Greater(t, resp.Duration, time.Duration(0))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.SuccessRequests)
	assert.Contains(t, m.GetRequestStats(), "ask")
}

func TestVirtualUser_Get_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Error", http.StatusInternalServerError)
	}))
	defer server.Close()

	vu, m := newTestVU(t, nil)

	resp, err := vu.Get(context.Background(), server.URL, "ask")
	require.NoError(t, err, "HTTP errors are not transport errors")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int64(1), m.GetSnapshot().FailedRequests)
}

func TestVirtualUser_Get_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	vu, m := newTestVU(t, nil)

	resp, err := vu.Get(context.Background(), url, "ask")
	require.Error(t, err)
	assert.Equal(t, 0, resp.StatusCode)
	assert.Equal(t, err, resp.Error)
	assert.Equal(t, int64(1), m.GetSnapshot().FailedRequests)
}

func TestVirtualUser_Get_CancelledNotRecorded(t *testing.T) {
	vu, m := newTestVU(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := vu.Get(ctx, "http://127.0.0.1:1/", "ask")
	require.Error(t, err)
	assert.Equal(t, int64(0), m.GetSnapshot().TotalRequests)
}

func TestVirtualUser_Check(t *testing.T) {
	vu, m := newTestVU(t, nil)

	assert.True(t, vu.Check("is status 200", true))
	assert.False(t, vu.Check("is status 200", false))

	checks := m.GetChecks()
	require.Len(t, checks.Checks, 1)
	assert.Equal(t, int64(1), checks.Checks[0].Passes)
	assert.Equal(t, int64(1), checks.Checks[0].Fails)
}

func TestVirtualUser_RunIteration(t *testing.T) {
	calls := 0
	vu, m := newTestVU(t, ScriptFunc(func(ctx context.Context, v VU) error {
		calls++
		return nil
	}))

	require.NoError(t, vu.RunIteration(context.Background()))
	require.NoError(t, vu.RunIteration(context.Background()))

	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(2), vu.GetIteration())
	assert.Equal(t, VUStateIdle, vu.GetState())

	total, errs := m.GetIterations()
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(0), errs)
}

func TestVirtualUser_RunIteration_ErrorLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	vu, m := newTestVU(t, ScriptFunc(func(ctx context.Context, v VU) error {
		return errors.New("unexpected body")
	}))
	vu.logger = zap.New(core)

	err := vu.RunIteration(context.Background())
	require.Error(t, err)

	_, errs := m.GetIterations()
	assert.Equal(t, int64(1), errs)
	require.Equal(t, 1, logs.FilterMessage("iteration failed").Len())
}

func TestVirtualUser_RunIteration_Panic(t *testing.T) {
	vu, m := newTestVU(t, ScriptFunc(func(ctx context.Context, v VU) error {
		panic("boom")
	}))

	err := vu.RunIteration(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, errs := m.GetIterations()
	assert.Equal(t, int64(1), errs)
}

func TestVirtualUser_StopLifecycle(t *testing.T) {
	vu, _ := newTestVU(t, ScriptFunc(func(ctx context.Context, v VU) error { return nil }))

	vu.RequestStop()
	vu.RequestStop()
	assert.Equal(t, VUStateStopping, vu.GetState())

	select {
	case <-vu.Stopping():
	default:
		t.Fatal("Stopping() channel should be closed")
	}

	assert.ErrorIs(t, vu.RunIteration(context.Background()), ErrVUStopped)
	assert.False(t, vu.WaitForStop(10*time.Millisecond))

	vu.MarkStopped()
	vu.MarkStopped()
	assert.True(t, vu.WaitForStop(10*time.Millisecond))
	assert.Equal(t, VUStateStopped, vu.GetState())
}
