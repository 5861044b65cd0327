package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hazyhaar/pkg/idgen"
)

// ErrSessionNotFound means the handle is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

var timeNow = time.Now

type entry struct {
	mu       sync.Mutex
	progress *Progress
	lastSeen time.Time
}

// Manager keeps visitor progress in memory, addressed by a short handle.
// Idle sessions are evicted after ttl.
type Manager struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

func NewManager(ttl time.Duration) *Manager {
	return &Manager{ttl: ttl, entries: make(map[string]*entry)}
}

// Create starts a new visitor with a fresh random user id.
func (m *Manager) Create() (string, *Progress) {
	now := timeNow()
	handle := idgen.New()
	p := NewProgress(uuid.NewString(), now)
	m.mu.Lock()
	m.entries[handle] = &entry{progress: p, lastSeen: now}
	m.mu.Unlock()
	return handle, p
}

// With runs fn with exclusive access to the visitor's progress.
func (m *Manager) With(handle string, fn func(p *Progress) error) error {
	m.mu.Lock()
	e, ok := m.entries[handle]
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = timeNow()
	return fn(e.progress)
}

func (m *Manager) Delete(handle string) {
	m.mu.Lock()
	delete(m.entries, handle)
	m.mu.Unlock()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep evicts sessions idle for longer than the ttl.
func (m *Manager) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for h, e := range m.entries {
		if e.mu.TryLock() {
			idle := now.Sub(e.lastSeen) > m.ttl
			e.mu.Unlock()
			if idle {
				delete(m.entries, h)
				n++
			}
		}
	}
	return n
}

// Run sweeps periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.ttl <= 0 {
		return
	}
	every := m.ttl / 4
	if every < time.Minute {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(timeNow()); n > 0 {
				slog.Debug("evicted idle sessions", "count", n)
			}
		}
	}
}
