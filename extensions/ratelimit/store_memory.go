package ratelimit

import (
	"context"
	"sync"
	"time"

	checkout "github.com/payelement/checkout/go"
)

// window is the decline count of one session
type window struct {
	count int
	start time.Time
}

// MemoryRegistry keeps decline counts in process memory.
//
// Suitable for single-instance deployments. Counts are lost on restart and
// are not shared between processes; use RedisRegistry for clusters.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[string]*window
	cfg      config
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry(opts ...Option) *MemoryRegistry {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MemoryRegistry{
		sessions: make(map[string]*window),
		cfg:      cfg,
	}
}

// Attempts returns the declines counted in the session's open window
func (r *MemoryRegistry) Attempts(ctx context.Context, session string) (int, error) {
	if session == "" {
		return 0, ErrEmptySession
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.liveLocked(session)
	if !ok {
		return 0, nil
	}
	return w.count, nil
}

// RecordDecline counts a declined attempt, opening a window if none is open
func (r *MemoryRegistry) RecordDecline(ctx context.Context, session string) (int, error) {
	if session == "" {
		return 0, ErrEmptySession
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.liveLocked(session)
	if !ok {
		w = &window{start: r.cfg.now()}
		r.sessions[session] = w
	}
	w.count++
	return w.count, nil
}

// Reset forgets the session
func (r *MemoryRegistry) Reset(ctx context.Context, session string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, session)
	return nil
}

// Prune removes expired windows and returns how many were removed
func (r *MemoryRegistry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.cfg.now()
	removed := 0
	for session, w := range r.sessions {
		if !now.Before(w.start.Add(r.cfg.window)) {
			delete(r.sessions, session)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions, expired or not
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// liveLocked returns the open window of a session. Must be called with lock held.
func (r *MemoryRegistry) liveLocked(session string) (*window, bool) {
	w, ok := r.sessions[session]
	if !ok {
		return nil, false
	}
	if !r.cfg.now().Before(w.start.Add(r.cfg.window)) {
		delete(r.sessions, session)
		return nil, false
	}
	return w, true
}

var _ checkout.RateLimitRegistry = (*MemoryRegistry)(nil)
