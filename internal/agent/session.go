package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"aidoctor/internal/domain"
	"aidoctor/internal/metrics"
)

// DefaultMaxTurns bounds a session's memory when no limit is configured.
const DefaultMaxTurns = 50

// Memory is the ordered conversation log of one session. Turns are only
// ever appended; once the bound is exceeded the oldest turns are evicted.
// Memory is safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	turns    []domain.Turn
	maxTurns int
}

func NewMemory(maxTurns int) *Memory {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Memory{maxTurns: maxTurns}
}

// Append adds a turn, evicting the oldest turns beyond the bound.
func (m *Memory) Append(role domain.Role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, domain.Turn{Role: role, Content: content})
	if excess := len(m.turns) - m.maxTurns; excess > 0 {
		m.turns = append(m.turns[:0], m.turns[excess:]...)
	}
}

// Turns returns a snapshot of the log, oldest first.
func (m *Memory) Turns() []domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Turn(nil), m.turns...)
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Reset drops every turn.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

// DefaultMaxSessions bounds how many conversations a SessionManager holds
// when no limit is configured.
const DefaultMaxSessions = 1000

type SessionManagerConfig struct {
	MaxTurns    int           // per-session bound; DefaultMaxTurns when 0
	MaxSessions int           // DefaultMaxSessions when 0
	IdleTTL     time.Duration // sessions unused for longer are pruned; 0 keeps them
	Logger      *slog.Logger
}

type session struct {
	mem      *Memory
	lastUsed time.Time
}

// SessionManager hands out one Memory per conversation key (a chat ID, an
// HTTP session ID). Nothing is persisted. Once MaxSessions is reached the
// least recently used session is dropped to make room.
type SessionManager struct {
	mu          sync.Mutex
	sessions    map[string]*session
	maxTurns    int
	maxSessions int
	idleTTL     time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SessionManager{
		sessions:    make(map[string]*session),
		maxTurns:    cfg.MaxTurns,
		maxSessions: cfg.MaxSessions,
		idleTTL:     cfg.IdleTTL,
		now:         time.Now,
		logger:      cfg.Logger,
	}
}

// GetOrCreate returns the session's memory, creating it on first use.
// Either way the session counts as used now.
func (sm *SessionManager) GetOrCreate(key string) *Memory {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[key]; ok {
		s.lastUsed = sm.now()
		return s.mem
	}
	if len(sm.sessions) >= sm.maxSessions {
		sm.evictOldestLocked()
	}
	s := &session{mem: NewMemory(sm.maxTurns), lastUsed: sm.now()}
	sm.sessions[key] = s
	metrics.ActiveSessions.Set(int64(len(sm.sessions)))
	sm.logger.Info("created new session", "session", key)
	return s.mem
}

func (sm *SessionManager) evictOldestLocked() {
	var (
		oldest   string
		oldestAt time.Time
		found    bool
	)
	for k, s := range sm.sessions {
		if !found || s.lastUsed.Before(oldestAt) {
			oldest, oldestAt, found = k, s.lastUsed, true
		}
	}
	if !found {
		return
	}
	delete(sm.sessions, oldest)
	metrics.SessionsEvicted("limit").Inc()
	sm.logger.Info("session evicted, limit reached", "session", oldest, "limit", sm.maxSessions)
}

// Get returns the session's memory if it exists. It does not count as a
// use.
func (sm *SessionManager) Get(key string) (*Memory, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[key]
	if !ok {
		return nil, false
	}
	return s.mem, true
}

// Clear forgets a session. It reports whether the session existed.
func (sm *SessionManager) Clear(key string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.sessions[key]; !ok {
		return false
	}
	delete(sm.sessions, key)
	metrics.ActiveSessions.Set(int64(len(sm.sessions)))
	sm.logger.Info("session cleared", "session", key)
	return true
}

// Prune drops sessions idle for longer than IdleTTL and returns how many
// were dropped.
func (sm *SessionManager) Prune() int {
	if sm.idleTTL <= 0 {
		return 0
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	cutoff := sm.now().Add(-sm.idleTTL)
	n := 0
	for k, s := range sm.sessions {
		if s.lastUsed.Before(cutoff) {
			delete(sm.sessions, k)
			n++
		}
	}
	if n > 0 {
		metrics.SessionsEvicted("idle").Add(int64(n))
		metrics.ActiveSessions.Set(int64(len(sm.sessions)))
		sm.logger.Info("idle sessions pruned", "count", n, "remaining", len(sm.sessions))
	}
	return n
}

// RunPruner calls Prune every interval until ctx is done. It returns
// at once when IdleTTL is 0.
func (sm *SessionManager) RunPruner(ctx context.Context, interval time.Duration) {
	if sm.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.Prune()
		}
	}
}

func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}
