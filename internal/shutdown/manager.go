// Package shutdown coordinates graceful shutdown of the tenancy server.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State represents the current shutdown state.
type State string

const (
	// StateRunning indicates the server is running normally.
	StateRunning State = "running"
	// StateDraining indicates readiness is failing so load balancers stop routing new traffic.
	StateDraining State = "draining"
	// StateStopping indicates registered components are being stopped.
	StateStopping State = "stopping"
	// StateComplete indicates shutdown is complete.
	StateComplete State = "complete"
)

// StopFunc stops one component. It should return once the component is idle
// or ctx is done.
type StopFunc func(ctx context.Context) error

type hook struct {
	name string
	stop StopFunc
}

// Status represents the current shutdown status.
type Status struct {
	State         State         `json:"state"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	TimeRemaining time.Duration `json:"time_remaining,omitempty"`
	Stopped       int           `json:"stopped"`
	Pending       int           `json:"pending"`
	Accepting     bool          `json:"accepting"`
}

// Config holds configuration for the shutdown manager.
type Config struct {
	// Timeout is the maximum time to wait for graceful shutdown.
	Timeout time.Duration

	// DrainTimeout is how long readiness fails before components are stopped.
	DrainTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		DrainTimeout: 5 * time.Second,
	}
}

// Manager stops registered components in registration order once shutdown begins.
type Manager struct {
	config       Config
	logger       zerolog.Logger
	mu           sync.RWMutex
	state        State
	startedAt    *time.Time
	hooks        []hook
	stopped      int32
	accepting    atomic.Bool
	doneCh       chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewManager creates a new shutdown manager.
func NewManager(config Config, logger zerolog.Logger) *Manager {
	m := &Manager{
		config: config,
		logger: logger.With().Str("component", "shutdown_manager").Logger(),
		state:  StateRunning,
		doneCh: make(chan struct{}),
	}
	m.accepting.Store(true)
	return m
}

// Register adds a component to stop. Components stop in the order registered,
// so register the HTTP server before the things its handlers depend on.
func (m *Manager) Register(name string, stop StopFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, stop: stop})
}

// IsAccepting returns false once shutdown has begun.
func (m *Manager) IsAccepting() bool {
	return m.accepting.Load()
}

// GetState returns the current shutdown state.
func (m *Manager) GetState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// GetStatus returns the current shutdown status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stopped := int(atomic.LoadInt32(&m.stopped))
	status := Status{
		State:     m.state,
		StartedAt: m.startedAt,
		Stopped:   stopped,
		Pending:   len(m.hooks) - stopped,
		Accepting: m.accepting.Load(),
	}
	if m.startedAt != nil {
		if remaining := m.config.Timeout - time.Since(*m.startedAt); remaining > 0 {
			status.TimeRemaining = remaining
		}
	}
	return status
}

// Shutdown drains, then stops every registered component. Later calls wait
// for the first to finish and return its result.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.shutdownErr = m.doShutdown(ctx)
		close(m.doneCh)
	})
	<-m.doneCh
	return m.shutdownErr
}

func (m *Manager) doShutdown(ctx context.Context) error {
	m.logger.Info().
		Dur("timeout", m.config.Timeout).
		Dur("drain_timeout", m.config.DrainTimeout).
		Msg("initiating graceful shutdown")

	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	now := time.Now()
	m.mu.Lock()
	m.startedAt = &now
	m.state = StateDraining
	hooks := append([]hook(nil), m.hooks...)
	m.mu.Unlock()
	m.accepting.Store(false)

	// Phase 1: fail readiness for a while before refusing connections
	if m.config.DrainTimeout > 0 {
		timer := time.NewTimer(m.config.DrainTimeout)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			m.logger.Warn().Msg("shutdown deadline reached during drain phase")
		}
	}

	// Phase 2: stop components in order, sharing what is left of the deadline
	m.mu.Lock()
	m.state = StateStopping
	m.mu.Unlock()

	var errs []error
	for _, h := range hooks {
		logger := m.logger.With().Str("target", h.name).Logger()
		start := time.Now()
		if err := h.stop(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to stop component")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		} else {
			logger.Info().Dur("duration", time.Since(start)).Msg("component stopped")
		}
		atomic.AddInt32(&m.stopped, 1)
	}

	m.mu.Lock()
	m.state = StateComplete
	m.mu.Unlock()

	m.logger.Info().
		Dur("duration", time.Since(now)).
		Int("failed", len(errs)).
		Msg("graceful shutdown complete")

	return errors.Join(errs...)
}

// Done returns a channel that is closed when shutdown is complete.
func (m *Manager) Done() <-chan struct{} {
	return m.doneCh
}

// WaitContext adapts a stop function that signals completion through a
// context, such as cron.Cron.Stop, into a StopFunc.
func WaitContext(stop func() context.Context) StopFunc {
	return func(ctx context.Context) error {
		select {
		case <-stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitFunc adapts a blocking wait, such as sync.WaitGroup.Wait, into a StopFunc.
// The wait keeps running in the background if ctx ends first.
func WaitFunc(wait func()) StopFunc {
	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
