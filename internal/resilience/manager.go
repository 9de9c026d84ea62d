package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"drainwatch/internal/logger"
)

// State of one managed connection.
type State int

const (
	Disconnected State = iota
	Reconnecting
	Connected
)

func (s State) String() string {
	switch s {
	case Reconnecting:
		return "reconnecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	// ErrRetriesExhausted means the bounded reconnect budget is spent.
	// Ingestion must not keep running past this point.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

	// ErrReconnectInProgress is returned when a disconnect event arrives
	// while a reconnect loop is already active for the same connection.
	ErrReconnectInProgress = errors.New("reconnect already in progress")
)

// Manager owns the retry policy for one connection. A single loop at a time
// walks Disconnected -> Reconnecting(attempt) -> Connected; exhausting the
// attempt budget fires the fatal hook exactly once.
type Manager struct {
	name        string
	maxAttempts int
	delay       time.Duration
	fatal       func(error)

	mu      sync.Mutex
	state   State
	attempt int

	fatalOnce sync.Once
}

// New builds a manager for one named connection. A nil fatal hook defaults
// to terminating the process so an external supervisor can restart it.
func New(name string, maxAttempts int, delay time.Duration, fatal func(error)) *Manager {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if delay <= 0 {
		delay = 5 * time.Second
	}
	m := &Manager{
		name:        name,
		maxAttempts: maxAttempts,
		delay:       delay,
		state:       Connected,
	}
	if fatal == nil {
		fatal = func(err error) {
			log := logger.WithComponent("resilience")
			log.Fatal().
				Err(err).
				Str("connection", name).
				Msg("connection unrecoverable, terminating")
		}
	}
	m.fatal = fatal
	return m
}

// State reports the connection's current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reconnect drives the retry loop for one disconnect event. The first
// attempt runs immediately, later ones after the fixed delay. Success moves
// the connection back to Connected and resets the attempt counter. If a
// loop is already running the call is rejected with ErrReconnectInProgress
// so concurrent disconnect events cannot stack loops.
func (m *Manager) Reconnect(ctx context.Context, connect func(context.Context) error) error {
	m.mu.Lock()
	if m.state == Reconnecting {
		m.mu.Unlock()
		return ErrReconnectInProgress
	}
	m.state = Reconnecting
	m.attempt = 0
	m.mu.Unlock()

	log := logger.WithComponent("resilience")

	for {
		m.mu.Lock()
		m.attempt++
		attempt := m.attempt
		m.mu.Unlock()

		log.Info().
			Str("connection", m.name).
			Int("attempt", attempt).
			Int("max_attempts", m.maxAttempts).
			Msg("reconnect attempt")

		err := connect(ctx)
		if err == nil {
			m.mu.Lock()
			m.state = Connected
			m.attempt = 0
			m.mu.Unlock()
			log.Info().Str("connection", m.name).Msg("reconnected")
			return nil
		}

		log.Warn().
			Err(err).
			Str("connection", m.name).
			Int("attempt", attempt).
			Msg("reconnect attempt failed")

		if attempt >= m.maxAttempts {
			m.mu.Lock()
			m.state = Disconnected
			m.mu.Unlock()

			exhausted := fmt.Errorf("%w: %s after %d attempts", ErrRetriesExhausted, m.name, m.maxAttempts)
			m.fatalOnce.Do(func() { m.fatal(exhausted) })
			return exhausted
		}

		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			m.mu.Lock()
			m.state = Disconnected
			m.mu.Unlock()
			return ctx.Err()
		}
	}
}
