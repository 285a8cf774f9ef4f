package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/etf-team/tariffbot/core/logger"
)

// MemoryOption configures the in-memory manager.
type MemoryOption func(*memoryManager)

// WithMemoryTTL expires sessions not updated for ttl. Zero keeps them forever.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(m *memoryManager) { m.ttl = ttl }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *memoryManager) {
		if now != nil {
			m.now = now
		}
	}
}

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	ttl      time.Duration
	now      func() time.Time
}

// MemoryManager is the in-memory Manager with an explicit sweep hook.
type MemoryManager interface {
	Manager
	// Sweep drops expired sessions and returns how many were removed.
	Sweep() int
	// RunSweeper calls Sweep every interval until ctx is done.
	RunSweeper(ctx context.Context, interval time.Duration)
}

// NewMemoryManager constructs an in-memory Manager.
func NewMemoryManager(opts ...MemoryOption) MemoryManager {
	m := &memoryManager{
		sessions: make(map[int64]*Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *memoryManager) expired(s *Session, now time.Time) bool {
	return m.ttl > 0 && now.Sub(s.UpdatedAt) > m.ttl
}

// Get returns the session for a user if it exists, otherwise returns a default idle session.
func (m *memoryManager) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[userID]
	m.mu.RUnlock()

	if !ok {
		return NewSession(userID), nil
	}
	if m.expired(session, m.now()) {
		m.mu.Lock()
		if cur, still := m.sessions[userID]; still && cur == session {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
		return NewSession(userID), nil
	}
	return session.Clone(), nil
}

// Save stores a copy of s.
func (m *memoryManager) Save(_ context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	cp := s.Clone()
	cp.UpdatedAt = m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = cp
	return nil
}

// Clear removes the entire session for a user.
func (m *memoryManager) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// InProgress reports whether the user currently has an active FSM state.
func (m *memoryManager) InProgress(ctx context.Context, userID int64) bool {
	s, _ := m.Get(ctx, userID)
	return !s.Idle()
}

func (m *memoryManager) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

func (m *memoryManager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *memoryManager) RunSweeper(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logger.Debug(ctx, "fsm", "session.sweep", slog.Int("removed", n))
			}
		}
	}
}
