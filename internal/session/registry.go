// Package session tracks which users are currently in a focus session.
//
// The registry holds two maps keyed by user ID: the active set (users
// connected to a voice channel right now) and the grace window (users
// who just disconnected but may reconnect and resume the same logical
// session). A user's open session is owned by exactly one of the two
// maps or the persisted store, never several at once.
package session

import (
	"sync"
	"time"
)

// ActiveEntry is a user currently in a tracked focus session.
type ActiveEntry struct {
	ChannelID string
	JoinTime  time.Time
	SessionID string
	LastSeen  time.Time
}

// GraceEntry is a user inside the post-disconnect grace window.
type GraceEntry struct {
	ChannelID      string
	SessionID      string
	DisconnectedAt time.Time
}

// Registry is the process-wide active-session and grace-window state.
// Constructed once at startup and injected into collaborators.
type Registry struct {
	mu     sync.RWMutex
	active map[string]ActiveEntry
	grace  map[string]GraceEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]ActiveEntry),
		grace:  make(map[string]GraceEntry),
	}
}

// HasActive reports whether the user is in the active set.
func (r *Registry) HasActive(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[userID]
	return ok
}

// GetActive returns the user's active entry.
func (r *Registry) GetActive(userID string) (ActiveEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.active[userID]
	return e, ok
}

// SetActive inserts or replaces the user's active entry.
func (r *Registry) SetActive(userID string, e ActiveEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[userID] = e
}

// DeleteActive removes the user from the active set.
func (r *Registry) DeleteActive(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, userID)
}

// HasGrace reports whether the user is in the grace window.
func (r *Registry) HasGrace(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.grace[userID]
	return ok
}

// GetGrace returns the user's grace entry.
func (r *Registry) GetGrace(userID string) (GraceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.grace[userID]
	return e, ok
}

// SetGrace inserts or replaces the user's grace entry.
func (r *Registry) SetGrace(userID string, e GraceEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grace[userID] = e
}

// DeleteGrace removes the user from the grace window.
func (r *Registry) DeleteGrace(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grace, userID)
}

// UnionUsers returns every user present in either map. This is the
// input set for the midnight crossover.
func (r *Registry) UnionUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.active)+len(r.grace))
	users := make([]string, 0, len(r.active)+len(r.grace))
	for id := range r.active {
		seen[id] = struct{}{}
		users = append(users, id)
	}
	for id := range r.grace {
		if _, ok := seen[id]; !ok {
			users = append(users, id)
		}
	}
	return users
}

// Counts returns the active and grace set sizes.
func (r *Registry) Counts() (active, grace int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active), len(r.grace)
}
