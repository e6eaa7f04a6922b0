package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tradecouncil/orchestrator/internal/metrics"
)

// Manager is the in-memory session store. Sessions have no durability across
// restarts; they are discarded on idle timeout or LRU pressure.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	limits    Limits
	ctxLimits ContextLimits

	idleTTL     time.Duration
	maxSessions int
	logger      *zap.Logger
}

// NewManager creates a session manager.
func NewManager(limits Limits, ctxLimits ContextLimits, idleTTL time.Duration, maxSessions int, logger *zap.Logger) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		limits:      limits,
		ctxLimits:   ctxLimits,
		idleTTL:     idleTTL,
		maxSessions: maxSessions,
		logger:      logger,
	}
}

// GetOrCreate returns the session for id, creating it when absent. The bool
// reports whether the session already existed.
func (m *Manager) GetOrCreate(id, query string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, true
	}
	s := New(id, query, m.limits, m.ctxLimits)
	m.sessions[id] = s
	m.evictLocked()
	metrics.SessionStoreSize.Set(float64(len(m.sessions)))
	m.logger.Info("session created", zap.String("session_id", id))
	return s, false
}

// Get returns the session for id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete discards a session.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		metrics.SessionStoreSize.Set(float64(len(m.sessions)))
		m.logger.Info("session discarded", zap.String("session_id", id))
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle past the TTL. Returns the number removed.
func (m *Manager) Sweep() int {
	cutoff := time.Now().Add(-m.idleTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
			metrics.SessionEvictions.Inc()
		}
	}
	if removed > 0 {
		metrics.SessionStoreSize.Set(float64(len(m.sessions)))
		m.logger.Info("idle sessions swept", zap.Int("count", removed))
	}
	return removed
}

// RunSweeper sweeps idle sessions periodically until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
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

// evictLocked drops the least recently updated sessions when over capacity.
// Caller holds the write lock.
func (m *Manager) evictLocked() {
	if len(m.sessions) <= m.maxSessions {
		return
	}
	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(m.sessions))
	for id, s := range m.sessions {
		entries = append(entries, entry{id, s.UpdatedAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	for _, e := range entries[:len(m.sessions)-m.maxSessions] {
		delete(m.sessions, e.id)
		metrics.SessionEvictions.Inc()
	}
}
