package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory stores sessions in memory for tests and dev mode.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
	gauge    Gauge
}

type memoryEntry struct {
	registrarID string
	expiresAt   time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source, for expiry tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithGauge reports the number of open sessions to the given gauge.
func WithGauge(g Gauge) MemoryOption {
	return func(m *Memory) { m.gauge = g }
}

// NewMemory constructs an empty in-memory session store.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *Memory) Create(_ context.Context, registrarID string) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = memoryEntry{
		registrarID: registrarID,
		expiresAt:   m.now().Add(m.ttl),
	}
	if m.gauge != nil {
		m.gauge.Set(float64(len(m.sessions)))
	}
	return id, nil
}

// Resolve maps a session id to its registrar. A hit refreshes the idle
// deadline so active sessions are not cut off mid-conversation.
func (m *Memory) Resolve(_ context.Context, sessionID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[sessionID]
	if !ok {
		return "", false, nil
	}
	now := m.now()
	if entry.expiresAt.Before(now) {
		delete(m.sessions, sessionID)
		if m.gauge != nil {
			m.gauge.Set(float64(len(m.sessions)))
		}
		return "", false, nil
	}
	entry.expiresAt = now.Add(m.ttl)
	m.sessions[sessionID] = entry
	return entry.registrarID, true, nil
}

func (m *Memory) Destroy(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	if m.gauge != nil {
		m.gauge.Set(float64(len(m.sessions)))
	}
	return nil
}

// DeleteExpired removes every session past its idle deadline and reports
// how many were dropped.
func (m *Memory) DeleteExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	deleted := 0
	for id, entry := range m.sessions {
		if entry.expiresAt.Before(now) {
			delete(m.sessions, id)
			deleted++
		}
	}
	if deleted > 0 && m.gauge != nil {
		m.gauge.Set(float64(len(m.sessions)))
	}
	return deleted, nil
}
