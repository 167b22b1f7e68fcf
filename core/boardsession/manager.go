package boardsession

import (
	"context"
	"sync"
	"time"

	"github.com/jrazmi/kanban/sdk/logger"
)

// Manager hands out one Session per board.
type Manager struct {
	log   *logger.Logger
	store Store
	cfg   Config

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(log *logger.Logger, store Store, cfg Config) *Manager {
	return &Manager{
		log:      log,
		store:    store,
		cfg:      cfg.normalized(),
		sessions: map[string]*Session{},
	}
}

// Session returns the session for boardID, creating an empty one on first
// use. Handing a session out counts as use, so Sweep leaves it alone for
// another IdleTTL.
func (m *Manager) Session(boardID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[boardID]
	if !ok {
		s = New(m.log, m.store, boardID, m.cfg)
		m.sessions[boardID] = s
		return s
	}
	s.touch()
	return s
}

// Discard marks the session for boardID stale so its next read goes to the
// store. The session itself stays in place: a move running on it still
// blocks new moves until it finishes. Only Sweep removes sessions.
func (m *Manager) Discard(boardID string) {
	m.mu.Lock()
	s, ok := m.sessions[boardID]
	m.mu.Unlock()
	if ok {
		s.Invalidate()
	}
}

// Len reports how many sessions are held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep discards idle sessions unused since before now minus IdleTTL and
// returns how many were dropped. A zero IdleTTL keeps everything.
func (m *Manager) Sweep(now time.Time) int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for id, s := range m.sessions {
		last, idle := s.idleSince()
		if idle && last.Before(cutoff) {
			delete(m.sessions, id)
			dropped++
		}
	}
	return dropped
}

// Run sweeps on every tick until ctx is done.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Sweep(now); n > 0 {
				m.log.InfoContext(ctx, "swept idle board sessions", "dropped", n, "remaining", m.Len())
			}
		}
	}
}
