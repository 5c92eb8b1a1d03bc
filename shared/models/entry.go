// shared/models/entry.go
package models

import "time"

// MatchmakerEntry represents one live game server as reported by the server
// itself. Its lifetime is independent from GameServerInstance: any reachable
// server may register, whether or not this platform provisioned it.
type MatchmakerEntry struct {
	ServerID       string            `json:"serverId"`
	IP             string            `json:"ip"`
	Port           int               `json:"port"`
	Name           string            `json:"name"`
	MaxPlayers     int               `json:"maxPlayers"`
	CurrentPlayers int               `json:"currentPlayers"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	RegisteredAt   time.Time         `json:"registeredAt"`
	LastHeartbeat  time.Time         `json:"lastHeartbeat"`
}

// Active reports whether the entry's heartbeat is still within the timeout
// window at the given time. Liveness is always derived from the timestamp so
// that observable behavior is correct even before the sweeper has run.
func (e *MatchmakerEntry) Active(timeout time.Duration, now time.Time) bool {
	return now.Sub(e.LastHeartbeat) < timeout
}

// Clone returns a deep copy of the entry.
func (e *MatchmakerEntry) Clone() *MatchmakerEntry {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
