package connectivity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProber reports reachability from an atomic flag.
type scriptedProber struct {
	up    atomic.Bool
	calls atomic.Int32
}

func (p *scriptedProber) Probe(context.Context) error {
	p.calls.Add(1)
	if p.up.Load() {
		return nil
	}
	return errors.New("network unreachable")
}

func TestSetOnlineFiresOnEdgeOnly(t *testing.T) {
	m := NewMonitor(&scriptedProber{}, Options{}, nil)

	var fired int
	m.OnOnline(func() { fired++ })

	m.SetOnline(true)
	m.SetOnline(true)
	assert.Equal(t, 1, fired)
	assert.True(t, m.Online())

	m.SetOnline(false)
	assert.Equal(t, 1, fired)
	assert.False(t, m.Online())

	m.SetOnline(true)
	assert.Equal(t, 2, fired)
}

func TestInitialOnlineSuppressesFirstEdge(t *testing.T) {
	m := NewMonitor(&scriptedProber{}, Options{InitialOnline: true}, nil)
	var fired int
	m.OnOnline(func() { fired++ })

	m.SetOnline(true)
	assert.Zero(t, fired)
}

func TestProbeLoopDetectsReconnect(t *testing.T) {
	prober := &scriptedProber{}
	m := NewMonitor(prober, Options{ProbeInterval: 20 * time.Millisecond, RefreshInterval: time.Hour}, nil)

	var fired atomic.Int32
	m.OnOnline(func() { fired.Add(1) })

	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool { return prober.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, m.Online())
	assert.Zero(t, fired.Load())

	prober.up.Store(true)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.Online())
}

func TestRefreshTicks(t *testing.T) {
	prober := &scriptedProber{}
	prober.up.Store(true)
	m := NewMonitor(prober, Options{ProbeInterval: time.Hour, RefreshInterval: 10 * time.Millisecond}, nil)

	var ticks atomic.Int32
	m.OnTick(func() { ticks.Add(1) })

	m.Start(context.Background())
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)

	m.Stop()
	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "no ticks after Stop")
}

func TestStopIdempotent(t *testing.T) {
	m := NewMonitor(&scriptedProber{}, Options{ProbeInterval: time.Hour, RefreshInterval: time.Hour}, nil)
	m.Stop()

	m2 := NewMonitor(&scriptedProber{}, Options{ProbeInterval: time.Hour, RefreshInterval: time.Hour}, nil)
	m2.Start(context.Background())
	m2.Stop()
	m2.Stop()
}

func TestStartStopsWithContext(t *testing.T) {
	prober := &scriptedProber{}
	m := NewMonitor(prober, Options{ProbeInterval: 10 * time.Millisecond, RefreshInterval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	require.Eventually(t, func() bool { return prober.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after context cancellation")
	}
}

func TestHTTPProber(t *testing.T) {
	var method atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	p := NewHTTPProber(srv.URL+"/health", time.Second)
	assert.NoError(t, p.Probe(context.Background()), "any HTTP response means reachable")
	assert.Equal(t, http.MethodHead, method.Load())

	srv.Close()
	assert.Error(t, p.Probe(context.Background()))
}
