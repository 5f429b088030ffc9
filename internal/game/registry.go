package game

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when an operation references a participant the
// registry has never seen.
var ErrNotFound = errors.New("participant not tracked")

// Registry tracks every non-spectator, non-bot participant present in the
// moderated channels while a game is active. It is safe for concurrent
// use; [Registry.Snapshot] never exposes a partially-mutated view.
//
// The zero value is ready to use.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]*Participant
}

// NewRegistry returns an initialised [Registry].
func NewRegistry() *Registry {
	return &Registry{participants: make(map[string]*Participant)}
}

// Upsert inserts the participant if absent and refreshes the volatile
// presence fields (display name, room, spectator flag) if present. New
// participants start alive. Idempotent; no error conditions.
func (r *Registry) Upsert(p Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.participants == nil {
		r.participants = make(map[string]*Participant)
	}

	if existing, ok := r.participants[p.ID]; ok {
		existing.DisplayName = p.DisplayName
		existing.Room = p.Room
		existing.Spectator = p.Spectator
		return
	}

	r.participants[p.ID] = &Participant{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Alive:       true,
		Spectator:   p.Spectator,
		Room:        p.Room,
	}
}

// SetAlias records the player-chosen name used for identity matching.
// Returns [ErrNotFound] if the participant was never seen.
func (r *Registry) SetAlias(id, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return ErrNotFound
	}
	p.Alias = alias
	return nil
}

// MarkAlive sets the life status. Last writer wins; marking an already
// dead participant dead again is not an error. Returns [ErrNotFound] if
// the participant was never seen.
func (r *Registry) MarkAlive(id string, alive bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return ErrNotFound
	}
	p.Alive = alive
	return nil
}

// Remove drops a departed participant. Departure races are expected, so
// removing an unseen ID is a no-op rather than an error.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, id)
}

// Clear drops every participant. Called when the game returns to idle.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = make(map[string]*Participant)
}

// Len returns the number of tracked participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Snapshot produces an immutable copy of the current state for planning,
// ordered by participant ID for deterministic iteration.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return Snapshot{Participants: out}
}
