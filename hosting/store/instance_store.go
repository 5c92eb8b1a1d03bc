// hosting/store/instance_store.go
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Playcade/GO-HOSTING/shared/models"
)

// ErrInstanceNotFound is returned when a server id is unknown to the registry.
var ErrInstanceNotFound = errors.New("game server instance not found")

// InstanceStore is the authoritative in-memory registry of provisioned game
// server instances. The provisioning pipeline and the read-only query paths
// access it concurrently, so every operation is guarded by an RWMutex and
// every returned instance is a copy. No caller ever holds a reference into
// the store's own state.
type InstanceStore struct {
	mu        sync.RWMutex
	instances map[string]*models.GameServerInstance
}

// NewInstanceStore creates an empty instance registry.
func NewInstanceStore() *InstanceStore {
	return &InstanceStore{
		instances: make(map[string]*models.GameServerInstance),
	}
}

// Get returns a copy of the instance with the given id, or ErrInstanceNotFound.
func (s *InstanceStore) Get(serverID string) (*models.GameServerInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[serverID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return inst.Clone(), nil
}

// List returns a stable snapshot of all instances, ordered by creation time
// (oldest first, ties broken by id). Concurrent mutation after List returns
// cannot affect the snapshot.
func (s *InstanceStore) List() []*models.GameServerInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.GameServerInstance, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, inst.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ServerID < out[j].ServerID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Upsert inserts or replaces the instance record, stamping UpdatedAt.
// The store keeps its own copy of the passed instance.
func (s *InstanceStore) Upsert(inst *models.GameServerInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := inst.Clone()
	c.UpdatedAt = time.Now()
	s.instances[c.ServerID] = c
}

// Update applies mutate to the stored instance under the write lock and stamps
// UpdatedAt. It returns ErrInstanceNotFound if the id is unknown. The mutate
// function must not block; runtime calls happen before Update, never inside it.
func (s *InstanceStore) Update(serverID string, mutate func(*models.GameServerInstance)) (*models.GameServerInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[serverID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	mutate(inst)
	inst.UpdatedAt = time.Now()
	return inst.Clone(), nil
}

// Delete removes the instance record entirely.
func (s *InstanceStore) Delete(serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[serverID]; !ok {
		return ErrInstanceNotFound
	}
	delete(s.instances, serverID)
	return nil
}

// ActiveCount returns the number of instances in provisioning or running
// state. The admission controller uses this as its usage source.
func (s *InstanceStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, inst := range s.instances {
		if inst.Active() {
			count++
		}
	}
	return count
}
