package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the lifecycle state of the store connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateFailed       State = "failed"
)

// defaultBackoff is the pause between startup connection attempts.
const defaultBackoff = 5 * time.Second

// Config holds Manager settings.
type Config struct {
	// Backoff is the fixed delay between startup connection attempts.
	// Zero or negative means defaultBackoff.
	Backoff time.Duration

	// OnStateChange is called after every state transition (optional).
	// It must not call back into the Manager.
	OnStateChange func(State)
}

// Logger defines the logging interface for the store manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager owns the single store connection.
//
// Connection I/O (dial, insert, close, ping) is serialised by ioMu. The
// state is additionally guarded by mu so that State() never waits behind a
// slow insert or reconnect.
type Manager struct {
	dialer Dialer
	config Config
	logger Logger

	ioMu sync.Mutex
	conn Conn

	mu    sync.RWMutex
	state State
}

// NewManager creates a Manager in the Disconnected state. No connection is
// attempted until Connect is called.
func NewManager(dialer Dialer, cfg Config) *Manager {
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Manager{
		dialer: dialer,
		config: cfg,
		logger: noopLogger{},
		state:  StateDisconnected,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Backend returns the dialer's backend name.
func (m *Manager) Backend() string {
	return m.dialer.Name()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()

	if changed && m.config.OnStateChange != nil {
		m.config.OnStateChange(s)
	}
}

// Connect opens the store connection, trying up to maxAttempts times with
// the configured fixed backoff between attempts.
//
// Connect is meant to run once at startup, before any message is consumed.
//
// Returns:
//   - error: wraps ErrStartupFatal when all attempts fail or ctx ends
func (m *Manager) Connect(ctx context.Context, maxAttempts int) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	m.closeConnLocked()
	m.setState(StateConnecting)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := m.dialer.Dial(ctx)
		if err == nil {
			m.conn = conn
			m.setState(StateReady)
			m.logger.Info("store connected",
				"backend", m.dialer.Name(),
				"attempt", attempt,
			)
			return nil
		}
		lastErr = err

		m.logger.Warn("store connection attempt failed",
			"backend", m.dialer.Name(),
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)

		if attempt == maxAttempts {
			break
		}
		if err := sleepContext(ctx, m.config.Backoff); err != nil {
			m.setState(StateFailed)
			return fmt.Errorf("%w: connecting to %s: %w", ErrStartupFatal, m.dialer.Name(), err)
		}
	}

	m.setState(StateFailed)
	m.logger.Error("store connection attempts exhausted",
		"backend", m.dialer.Name(),
		"max_attempts", maxAttempts,
		"error", lastErr,
	)
	return fmt.Errorf("%w: %s unreachable after %d attempts: %w",
		ErrStartupFatal, m.dialer.Name(), maxAttempts, lastErr)
}

// EnsureSchema creates the telemetry table if absent. It is idempotent.
//
// Returns:
//   - error: wraps ErrStartupFatal on any failure
func (m *Manager) EnsureSchema(ctx context.Context) error {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	if m.conn == nil || m.State() != StateReady {
		return fmt.Errorf("%w: ensuring schema: %w", ErrStartupFatal, ErrNotReady)
	}
	if err := m.conn.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("%w: ensuring schema: %w", ErrStartupFatal, err)
	}

	m.logger.Info("store schema ready", "backend", m.dialer.Name())
	return nil
}

// Reconnect replaces the current connection with a fresh one.
//
// The previous handle is closed first; a close error is logged and
// otherwise ignored. Exactly one dial is attempted. On failure the state
// becomes Failed and the dial error is returned; the caller decides whether
// to try again.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	m.closeConnLocked()
	m.setState(StateConnecting)

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		m.setState(StateFailed)
		m.logger.Warn("store reconnect failed",
			"backend", m.dialer.Name(),
			"error", err,
		)
		return fmt.Errorf("reconnecting to %s: %w", m.dialer.Name(), err)
	}

	m.conn = conn
	m.setState(StateReady)
	m.logger.Info("store reconnected", "backend", m.dialer.Name())
	return nil
}

// Write inserts one reading through the Ready connection.
//
// Returns:
//   - nil on success
//   - error wrapping ErrConnectivity (state moves to Disconnected), or
//   - error wrapping ErrSchema (state unchanged)
func (m *Manager) Write(ctx context.Context, r Reading) error {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	if m.conn == nil || m.State() != StateReady {
		return ErrNotReady
	}

	err := m.conn.Insert(ctx, r)
	if err == nil {
		return nil
	}

	// Anything a backend failed to classify is treated as a bad row: only
	// errors known to be transport problems justify a reconnect.
	if !errors.Is(err, ErrConnectivity) && !errors.Is(err, ErrSchema) {
		err = Schema(err)
	}

	if errors.Is(err, ErrConnectivity) {
		m.setState(StateDisconnected)
	}
	return err
}

// HealthCheck reports whether the store is usable.
//
// When the consumer is mid-write the connection is busy and the check
// relies on the state alone.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if s := m.State(); s != StateReady {
		return fmt.Errorf("store %s: %w", s, ErrNotReady)
	}

	if !m.ioMu.TryLock() {
		return nil
	}
	defer m.ioMu.Unlock()

	if m.conn == nil {
		return ErrNotReady
	}
	if err := m.conn.Ping(ctx); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

// Close releases the connection. The state becomes Disconnected.
func (m *Manager) Close() error {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	if m.conn == nil {
		m.setState(StateDisconnected)
		return nil
	}

	err := m.conn.Close()
	m.conn = nil
	m.setState(StateDisconnected)
	if err != nil {
		return fmt.Errorf("closing %s connection: %w", m.dialer.Name(), err)
	}
	return nil
}

// closeConnLocked closes the current handle, logging any error.
// Caller must hold ioMu.
func (m *Manager) closeConnLocked() {
	if m.conn == nil {
		return
	}
	if err := m.conn.Close(); err != nil {
		m.logger.Warn("closing previous store connection failed",
			"backend", m.dialer.Name(),
			"error", err,
		)
	}
	m.conn = nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
