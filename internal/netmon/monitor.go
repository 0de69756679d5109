package netmon

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"game-sync-client/internal/logger"
)

// Probe answers a point-in-time connectivity question. The default probe
// requires the remote API to actually respond, not merely a route to exist.
type Probe func(ctx context.Context) bool

// HealthProbe probes the remote service's health endpoint.
func HealthProbe(baseURL string, timeout time.Duration) Probe {
	url := strings.TrimSuffix(baseURL, "/") + "/api/health"
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode < 500
	}
}

// Monitor runs a shared periodic probe and fans the resulting boolean signal
// out to subscribers. Consecutive identical values are not re-emitted.
type Monitor struct {
	probe    Probe
	interval time.Duration

	mu          sync.Mutex
	subscribers map[chan bool]struct{}
	last        bool
	started     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMonitor(probe Probe, interval time.Duration) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		probe:       probe,
		interval:    interval,
		subscribers: make(map[chan bool]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// IsConnectedNow probes synchronously.
func (m *Monitor) IsConnectedNow() bool {
	return m.probe(m.ctx)
}

// Start begins the periodic probe loop. Calling Start more than once is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.last = m.probe(m.ctx)
	initial := m.last
	m.mu.Unlock()

	logger.Log.Info("Starting connectivity monitor",
		zap.Duration("interval", m.interval),
		zap.Bool("connected", initial),
	)

	m.wg.Add(1)
	go m.run()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.publish(m.probe(m.ctx))
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Monitor) publish(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if connected == m.last {
		return
	}
	m.last = connected

	logger.Log.Info("Connectivity changed", zap.Bool("connected", connected))

	for ch := range m.subscribers {
		select {
		case ch <- connected:
		default:
			// Slow subscriber; it will catch up on the next transition.
		}
	}
}

// Subscribe returns a channel of connectivity transitions plus the current
// value as the first element, and a cancel func detaching the subscriber.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 4)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	if m.started {
		ch <- m.last
	}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subscribers, ch)
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
	logger.Log.Info("Stopped connectivity monitor")
}
