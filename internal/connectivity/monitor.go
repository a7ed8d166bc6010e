package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"offlinesync/internal/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Prober checks whether the remote API can be reached.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber sends HEAD to a health URL. Any HTTP response, including
// non-2xx, means the network path is up.
type HTTPProber struct {
	url    string
	client *http.Client
}

func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{url: url, client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, http.NoBody)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.url, err)
	}
	_ = resp.Body.Close()
	return nil
}

type Options struct {
	ProbeInterval   time.Duration
	RefreshInterval time.Duration
	// InitialOnline is the state assumed before the first probe completes.
	InitialOnline bool
}

// Monitor tracks connectivity and drives the replay trigger: OnOnline
// handlers fire on every offline to online edge and OnTick handlers on the
// periodic refresh.
type Monitor struct {
	prober          Prober
	probeInterval   time.Duration
	refreshInterval time.Duration
	logger          *zerolog.Logger

	online atomic.Bool

	mu       sync.Mutex
	onOnline []func()
	onTick   []func()
	cancel   context.CancelFunc
	wg       *conc.WaitGroup
}

func NewMonitor(prober Prober, opts Options, logger *zerolog.Logger) *Monitor {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = models.DefaultProbeInterval
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = models.DefaultRefreshInterval
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	m := &Monitor{
		prober:          prober,
		probeInterval:   opts.ProbeInterval,
		refreshInterval: opts.RefreshInterval,
		logger:          logger,
	}
	m.online.Store(opts.InitialOnline)
	return m
}

// OnOnline registers a handler for offline to online transitions. Handlers
// run on the goroutine that observed the transition and should not block.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// OnTick registers a handler for the periodic refresh.
func (m *Monitor) OnTick(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTick = append(m.onTick, fn)
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline records the current state. Platform signals may call it directly.
func (m *Monitor) SetOnline(online bool) {
	prev := m.online.Swap(online)
	if prev == online {
		return
	}
	if !online {
		m.logger.Warn().Msg("remote unreachable, operations will be queued")
		return
	}
	m.logger.Info().Msg("connectivity restored")
	m.fire(m.onlineHandlers())
}

// Start launches the probe and refresh loops. They stop when ctx is done or
// Stop is called. Start has no effect on a monitor that is already running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg = conc.NewWaitGroup()
	m.wg.Go(func() { m.probeLoop(ctx) })
	m.wg.Go(func() { m.refreshLoop(ctx) })

	m.logger.Info().
		Dur("probe_interval", m.probeInterval).
		Dur("refresh_interval", m.refreshInterval).
		Msg("connectivity monitor started")
}

// Stop cancels both loops and waits for them. Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, wg := m.cancel, m.wg
	m.cancel, m.wg = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	wg.Wait()
	m.logger.Info().Msg("connectivity monitor stopped")
}

func (m *Monitor) probeLoop(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = min(time.Second, m.probeInterval)
	bo.MaxInterval = m.probeInterval

	for {
		wait := m.probeInterval
		if err := m.probeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Debug().Err(err).Msg("probe failed")
			m.SetOnline(false)
			if wait = bo.NextBackOff(); wait == backoff.Stop {
				wait = m.probeInterval
			}
		} else {
			bo.Reset()
			m.SetOnline(true)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeInterval)
	defer cancel()
	return m.prober.Probe(probeCtx)
}

func (m *Monitor) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.fire(m.tickHandlers())
		}
	}
}

func (m *Monitor) onlineHandlers() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]func(){}, m.onOnline...)
}

func (m *Monitor) tickHandlers() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]func(){}, m.onTick...)
}

func (m *Monitor) fire(handlers []func()) {
	for _, fn := range handlers {
		fn()
	}
}
