// matchmaker/store/entry_store.go
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/Playcade/GO-HOSTING/shared/models"
	"github.com/google/uuid"
)

var (
	// ErrEntryNotFound is returned when a server id was never registered or
	// has already been removed.
	ErrEntryNotFound = errors.New("matchmaker entry not found")
	// ErrEntryGone is returned when the entry still exists but its heartbeat
	// window has lapsed and it is pending eviction. Callers can distinguish
	// "never existed" from "expired".
	ErrEntryGone = errors.New("matchmaker entry expired")
)

// EntryStore is the liveness registry: the in-memory table of game servers
// that have registered themselves and are kept alive by heartbeats. Liveness
// is always derived from the LastHeartbeat timestamp, never from a cached
// flag, so reads are correct even between sweeper runs. A single mutex guards
// the map and the registration-order index; no operation blocks while holding
// it.
type EntryStore struct {
	mu               sync.RWMutex
	entries          map[string]*models.MatchmakerEntry
	order            []string // server ids in registration order
	heartbeatTimeout time.Duration
}

// NewEntryStore creates an empty liveness registry with the given heartbeat
// timeout.
func NewEntryStore(heartbeatTimeout time.Duration) *EntryStore {
	return &EntryStore{
		entries:          make(map[string]*models.MatchmakerEntry),
		heartbeatTimeout: heartbeatTimeout,
	}
}

// Register stores a new entry and returns a copy of it. A caller-supplied
// ServerID is honored when it is not already taken; otherwise a fresh id is
// generated, so registration always succeeds for a live server.
func (s *EntryStore) Register(entry models.MatchmakerEntry) *models.MatchmakerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ServerID == "" {
		entry.ServerID = uuid.New().String()
	} else if _, taken := s.entries[entry.ServerID]; taken {
		entry.ServerID = uuid.New().String()
	}

	now := time.Now()
	entry.RegisteredAt = now
	entry.LastHeartbeat = now

	stored := entry.Clone()
	s.entries[stored.ServerID] = stored
	s.order = append(s.order, stored.ServerID)
	return stored.Clone()
}

// Heartbeat refreshes the entry's liveness window and current player count.
// An entry that has lapsed but not yet been swept is revived; one that was
// already evicted returns ErrEntryNotFound.
func (s *EntryStore) Heartbeat(serverID string, currentPlayers int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[serverID]
	if !ok {
		return ErrEntryNotFound
	}
	entry.LastHeartbeat = time.Now()
	entry.CurrentPlayers = currentPlayers
	return nil
}

// Get returns a copy of the entry. It returns ErrEntryGone when the entry
// exists but its heartbeat window has lapsed, and ErrEntryNotFound when the
// id is unknown (never registered, unregistered, or already swept).
func (s *EntryStore) Get(serverID string) (*models.MatchmakerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[serverID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	if !entry.Active(s.heartbeatTimeout, time.Now()) {
		return nil, ErrEntryGone
	}
	return entry.Clone(), nil
}

// List returns a snapshot of entries ordered by registration time. With
// activeOnly set, entries whose heartbeat has lapsed are excluded even if the
// sweeper has not removed them yet.
func (s *EntryStore) List(activeOnly bool) []*models.MatchmakerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	out := make([]*models.MatchmakerEntry, 0, len(s.order))
	for _, id := range s.order {
		entry, ok := s.entries[id]
		if !ok {
			continue
		}
		if activeOnly && !entry.Active(s.heartbeatTimeout, now) {
			continue
		}
		out = append(out, entry.Clone())
	}
	return out
}

// Unregister removes the entry explicitly, independent of the sweeper.
func (s *EntryStore) Unregister(serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[serverID]; !ok {
		return ErrEntryNotFound
	}
	s.remove(serverID)
	return nil
}

// Evict removes every entry whose heartbeat lapsed at or before now and
// returns copies of the removed entries for logging and event publishing.
func (s *EntryStore) Evict(now time.Time) []*models.MatchmakerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []*models.MatchmakerEntry
	for id, entry := range s.entries {
		if now.Sub(entry.LastHeartbeat) >= s.heartbeatTimeout {
			evicted = append(evicted, entry.Clone())
			s.remove(id)
		}
	}
	return evicted
}

// Count returns the number of entries currently held, lapsed ones included.
func (s *EntryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// remove deletes an entry and its order-index slot. Caller holds the lock.
func (s *EntryStore) remove(serverID string) {
	delete(s.entries, serverID)
	for i, id := range s.order {
		if id == serverID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
