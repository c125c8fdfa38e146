package remote

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is the Redis connection state reported by GET /health.
type Status struct {
	Connected  bool      `json:"connected"`
	LastPingOK time.Time `json:"last_ping_ok,omitempty"`
	DownSince  time.Time `json:"down_since,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Outages    int       `json:"outages"`
	Reconnects int       `json:"reconnects"`
	Latency    string    `json:"latency,omitempty"`
}

// HealthMonitor pings Redis on an interval and keeps the Redis-backed parts
// of loxr (the heartbeat relay, the worker registry feed) running across
// outages. Loops handed to Supervise are started again once a ping
// succeeds after a failure.
type HealthMonitor struct {
	rdb      *redis.Client
	interval time.Duration
	logger   *log.Logger
	onDown   func()
	onUp     func()

	mu         sync.RWMutex
	connected  bool
	lastPing   time.Time
	downSince  time.Time
	lastErr    string
	outages    int
	reconnects int
	latency    time.Duration
	restored   chan struct{}
}

// HealthOption configures the HealthMonitor.
type HealthOption func(*HealthMonitor)

// WithInterval sets the ping interval (default 5s).
func WithInterval(d time.Duration) HealthOption {
	return func(m *HealthMonitor) { m.interval = d }
}

// WithOnDown is called when the connection goes from up to down.
func WithOnDown(fn func()) HealthOption {
	return func(m *HealthMonitor) { m.onDown = fn }
}

// WithOnUp is called when the connection comes back.
func WithOnUp(fn func()) HealthOption {
	return func(m *HealthMonitor) { m.onUp = fn }
}

// WithHealthLogger sets the logger for connection transitions.
func WithHealthLogger(l *log.Logger) HealthOption {
	return func(m *HealthMonitor) { m.logger = l }
}

// NewHealthMonitor creates a monitor that starts out assuming Redis is up.
func NewHealthMonitor(rdb *redis.Client, opts ...HealthOption) *HealthMonitor {
	m := &HealthMonitor{
		rdb:       rdb,
		interval:  5 * time.Second,
		logger:    log.New(io.Discard, "", 0),
		connected: true,
		lastPing:  time.Now(),
		restored:  make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run pings Redis every interval until ctx is cancelled.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// Supervise runs fn until ctx is cancelled, starting it again each time it
// returns. While Redis is down the restart waits for the connection to come
// back; otherwise it waits one interval.
func (m *HealthMonitor) Supervise(ctx context.Context, name string, fn func(context.Context) error) {
	for {
		err := fn(ctx)
		if ctx.Err() != nil {
			return
		}

		m.mu.RLock()
		connected, restored := m.connected, m.restored
		m.mu.RUnlock()

		var retry <-chan time.Time
		if connected {
			retry = time.After(m.interval)
			m.logger.Printf("%s stopped: %v (restarting in %v)", name, err, m.interval)
		} else {
			m.logger.Printf("%s stopped: %v (restarting when Redis is back)", name, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-restored:
		case <-retry:
		}
		m.logger.Printf("%s restarting", name)
	}
}

// check pings once. After a failure it keeps retrying with backoff until
// Redis answers or the retry budget for this cycle runs out.
func (m *HealthMonitor) check(ctx context.Context) {
	latency, err := m.ping(ctx)
	if err == nil {
		m.markUp(latency, false)
		return
	}
	m.markDown(err)

	const attempts = 10
	delay := 500 * time.Millisecond
	for i := 1; i <= attempts; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if latency, err = m.ping(ctx); err == nil {
			m.logger.Printf("reconnected after %d attempts", i)
			m.markUp(latency, true)
			return
		}
		m.logger.Printf("reconnect attempt %d/%d failed: %v", i, attempts, err)
		delay = min(2*delay, 30*time.Second)
	}
	m.logger.Printf("Redis still unreachable, will retry on next health check")
}

func (m *HealthMonitor) ping(ctx context.Context) (time.Duration, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	start := time.Now()
	err := m.rdb.Ping(pingCtx).Err()
	return time.Since(start), err
}

func (m *HealthMonitor) markDown(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	wasConnected := m.connected
	if wasConnected {
		m.connected = false
		m.downSince = time.Now()
		m.outages++
	}
	m.mu.Unlock()

	if wasConnected {
		m.logger.Printf("connection lost: %v", err)
		if m.onDown != nil {
			m.onDown()
		}
	}
}

// markUp records a successful ping. Coming back from an outage wakes every
// Supervise loop waiting on it.
func (m *HealthMonitor) markUp(latency time.Duration, reconnected bool) {
	m.mu.Lock()
	wasConnected := m.connected
	m.connected = true
	m.lastPing = time.Now()
	m.latency = latency
	m.lastErr = ""
	if reconnected {
		m.reconnects++
	}
	var outage time.Duration
	if !wasConnected {
		outage = time.Since(m.downSince)
		m.downSince = time.Time{}
		close(m.restored)
		m.restored = make(chan struct{})
	}
	m.mu.Unlock()

	if !wasConnected {
		m.logger.Printf("connection restored after %v (latency=%v)", outage.Round(time.Millisecond), latency)
		if m.onUp != nil {
			m.onUp()
		}
	}
}

// IsConnected returns whether the last ping succeeded.
func (m *HealthMonitor) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Status returns the current connection state.
func (m *HealthMonitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Status{
		Connected:  m.connected,
		LastPingOK: m.lastPing,
		DownSince:  m.downSince,
		LastError:  m.lastErr,
		Outages:    m.outages,
		Reconnects: m.reconnects,
	}
	if m.latency > 0 {
		s.Latency = m.latency.String()
	}
	return s
}
