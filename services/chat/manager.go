package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/services/routing"
)

// ErrSessionNotFound is returned for unknown or expired session IDs
var ErrSessionNotFound = errors.New("session not found")

// Manager keeps the live sessions of the HTTP gateway. Sessions share the
// orchestrator; each has its own log.
type Manager struct {
	orchestrator *routing.Orchestrator
	systemPrompt string
	opts         []Option
	logger       *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry
	idleTTL  time.Duration
	now      func() time.Time
}

type entry struct {
	session  *Session
	lastUsed time.Time
}

// NewManager creates a manager. Sessions idle for longer than idleTTL are
// dropped by Sweep; zero keeps them forever.
func NewManager(orchestrator *routing.Orchestrator, systemPrompt string, idleTTL time.Duration, logger *zap.Logger, opts ...Option) *Manager {
	return &Manager{
		orchestrator: orchestrator,
		systemPrompt: systemPrompt,
		opts:         opts,
		logger:       logger,
		sessions:     make(map[uuid.UUID]*entry),
		idleTTL:      idleTTL,
		now:          time.Now,
	}
}

// Create starts a new session. An empty systemPrompt uses the default.
func (m *Manager) Create(systemPrompt string) *Session {
	if systemPrompt == "" {
		systemPrompt = m.systemPrompt
	}
	s := NewSession(m.orchestrator, systemPrompt, m.logger, m.opts...)

	m.mu.Lock()
	m.sessions[s.ID()] = &entry{session: s, lastUsed: m.now()}
	m.mu.Unlock()

	m.logger.Debug("session created", zap.String("session_id", s.ID().String()))
	return s
}

// Get returns a live session and marks it used
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastUsed = m.now()
	return e.session, nil
}

// Delete drops a session
func (m *Manager) Delete(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops idle sessions and returns how many were removed. A session
// with a turn still running is kept and counted as used.
func (m *Manager) Sweep() int {
	if m.idleTTL <= 0 {
		return 0
	}

	cutoff := m.now().Add(-m.idleTTL)
	removed := 0

	m.mu.Lock()
	for id, e := range m.sessions {
		if !e.lastUsed.Before(cutoff) {
			continue
		}
		if e.session.Busy() {
			e.lastUsed = m.now()
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Info("idle sessions dropped", zap.Int("count", removed))
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if m.idleTTL <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
