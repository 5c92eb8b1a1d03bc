// matchmaker/assign/assigner.go
package assign

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/Playcade/GO-HOSTING/matchmaker/store"
	"github.com/Playcade/GO-HOSTING/shared/models"
	"github.com/stathat/consistent"
)

// ErrNoActiveServers is returned when no game server is alive to receive a
// player.
var ErrNoActiveServers = errors.New("no active game servers available for assignment")

// Assigner maps player ids onto active game servers with consistent hashing,
// so the same player lands on the same server as long as the set of active
// servers is stable.
type Assigner struct {
	entries        *store.EntryStore
	consistentHash *consistent.Consistent
	chMux          sync.RWMutex
}

// NewAssigner creates an Assigner over the given liveness registry.
func NewAssigner(entries *store.EntryStore) *Assigner {
	return &Assigner{
		entries:        entries,
		consistentHash: consistent.New(),
	}
}

// Assign picks the game server responsible for the given player id and
// returns its registry entry.
func (a *Assigner) Assign(playerID string) (*models.MatchmakerEntry, error) {
	active := a.entries.List(true)
	if len(active) == 0 {
		return nil, ErrNoActiveServers
	}
	a.refreshRing(active)

	a.chMux.RLock()
	serverID, err := a.consistentHash.Get(playerID)
	a.chMux.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to get responsible server for player '%s': %w", playerID, err)
	}

	entry, err := a.entries.Get(serverID)
	if err != nil {
		// The server lapsed between the ring lookup and the fetch. Rare; the
		// next request rebuilds the ring without it.
		return nil, ErrNoActiveServers
	}
	return entry, nil
}

// refreshRing rebuilds the consistent hash ring if the set of active members
// has changed since the last call.
func (a *Assigner) refreshRing(active []*models.MatchmakerEntry) {
	members := make([]string, 0, len(active))
	for _, entry := range active {
		members = append(members, entry.ServerID)
	}
	slices.Sort(members)

	a.chMux.Lock()
	defer a.chMux.Unlock()

	currentMembers := a.consistentHash.Members()
	slices.Sort(currentMembers)

	if !slices.Equal(members, currentMembers) {
		newHashRing := consistent.New()
		for _, member := range members {
			newHashRing.Add(member)
		}
		a.consistentHash = newHashRing
		log.Printf("INFO: Assignment ring updated. Active members: %v", members)
	}
}
