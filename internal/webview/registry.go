// ABOUTME: Process-wide registry of live web-view sessions.
// ABOUTME: Enables bulk cancellation on application teardown.

package webview

import (
	"log/slog"
	"sync"
)

// Registry tracks every live session so they can be cancelled in bulk. It
// holds non-owning references: membership never extends a session's lifetime.
// Created at startup and passed into each session at construction.
type Registry struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[*Session]struct{}),
		logger:   logger.With("component", "registry"),
	}
}

// Add registers a session. Idempotent.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s] = struct{}{}
	r.logger.Debug("session registered", "total", len(r.sessions))
}

// Remove deregisters a session. Removing an unknown session is a no-op.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ClearAll cancels sessions until the registry is empty. Cancellation removes
// the session from the registry re-entrantly, so this pops one session at a
// time instead of iterating a snapshot.
func (r *Registry) ClearAll() {
	for {
		r.mu.Lock()
		var next *Session
		for s := range r.sessions {
			next = s
			break
		}
		r.mu.Unlock()

		if next == nil {
			return
		}
		next.Cancel()
	}
}
