// Package gateway manages the process-wide venue session.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"execution-core/internal/events"
	"execution-core/internal/monitor"
	exchange "execution-core/pkg/exchanges/common"
)

var ErrManagerStopped = errors.New("session manager stopped")

// Config holds configuration for the session Manager.
type Config struct {
	HealthInterval   time.Duration // Interval between health checks
	PingTimeout      time.Duration // Deadline of one health ping
	FailureThreshold int           // Consecutive ping failures before the session is dropped
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		HealthInterval:   30 * time.Second,
		PingTimeout:      5 * time.Second,
		FailureThreshold: 3,
	}
}

// SessionEvent is published on every session state change.
type SessionEvent struct {
	Up     bool   `json:"up"`
	Reason string `json:"reason"`
}

// Manager owns the venue session. Initialize is serialized so concurrent callers never
// race a login; holders are reference counted and the session is shut down when the last
// one releases.
type Manager struct {
	session exchange.Session
	config  Config
	bus     *events.Bus
	metrics *monitor.SystemMetrics
	logger  *zap.Logger

	mu       sync.Mutex
	ready    bool
	refs     int
	failures int
	stopped  bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a session Manager.
func NewManager(session exchange.Session, cfg Config, bus *events.Bus, metrics *monitor.SystemMetrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = def.HealthInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	return &Manager{
		session: session,
		config:  cfg,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Acquire establishes the session if needed and registers a holder. The returned release
// must be called exactly once; extra calls are ignored.
func (m *Manager) Acquire(ctx context.Context) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("%w: %w", exchange.ErrSessionUnavailable, ErrManagerStopped)
	}
	if !m.ready {
		if err := m.session.Initialize(ctx); err != nil {
			m.logger.Warn("session initialize failed", zap.Error(err))
			return nil, fmt.Errorf("%w: initialize: %v", exchange.ErrSessionUnavailable, err)
		}
		m.ready = true
		m.failures = 0
		m.setStateLocked(true, "initialized")
	}
	m.refs++

	var once sync.Once
	return func() { once.Do(m.release) }, nil
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refs--
	if m.refs > 0 || !m.ready {
		return
	}
	m.shutdownLocked("released")
}

// WithSession runs fn inside an acquired session and releases it on every exit path.
func (m *Manager) WithSession(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Healthy reports whether the session is currently established.
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Holders returns the number of outstanding acquisitions.
func (m *Manager) Holders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}

// Start begins the background health check goroutine.
func (m *Manager) Start(ctx context.Context) {
	if _, ok := m.session.(exchange.Pinger); !ok {
		m.logger.Info("session has no ping; health checks disabled")
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.HealthInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.healthCheck(ctx)
			}
		}
	}()
}

// Stop halts health checks and shuts the session down regardless of holders.
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if !m.ready {
		return nil
	}
	return m.shutdownLocked("stopped")
}

func (m *Manager) healthCheck(ctx context.Context) {
	pinger, ok := m.session.(exchange.Pinger)
	if !ok {
		return
	}
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()
	if !ready {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
	err := pinger.Ping(pctx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.failures = 0
		return
	}
	m.failures++
	m.logger.Warn("session ping failed", zap.Int("failures", m.failures), zap.Error(err))
	if m.failures >= m.config.FailureThreshold && m.ready {
		// next Acquire logs in again
		m.shutdownLocked("health check failed")
	}
}

func (m *Manager) shutdownLocked(reason string) error {
	err := m.session.Shutdown()
	if err != nil {
		m.logger.Warn("session shutdown failed", zap.Error(err))
	}
	m.ready = false
	m.failures = 0
	m.setStateLocked(false, reason)
	return err
}

func (m *Manager) setStateLocked(up bool, reason string) {
	m.metrics.SetSessionUp(up)
	m.logger.Info("session state changed", zap.Bool("up", up), zap.String("reason", reason))
	m.bus.Publish(events.EventSessionChange, SessionEvent{Up: up, Reason: reason})
}
