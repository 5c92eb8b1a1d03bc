// shared/service/matchmakerclient.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Playcade/GO-HOSTING/shared/api"
)

// MatchmakerClient is a client for the Matchmaker Service.
type MatchmakerClient struct {
	apiClient *api.Client
}

// NewMatchmakerClient creates a new Matchmaker Service client.
func NewMatchmakerClient(baseURL string) *MatchmakerClient {
	// Pass the default HTTP client for inter-service communication
	return &MatchmakerClient{
		apiClient: api.NewClient(baseURL, api.NewDefaultHTTPClient()),
	}
}

// RegisterRequest represents the payload for registering a game server.
type RegisterRequest struct {
	ServerID   string            `json:"serverId,omitempty"`
	IP         string            `json:"ip"`
	Port       int               `json:"port"`
	Name       string            `json:"name"`
	MaxPlayers int               `json:"maxPlayers,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// HeartbeatRequest represents the payload for a liveness heartbeat.
type HeartbeatRequest struct {
	CurrentPlayers int `json:"currentPlayers"`
}

// ServerEntry is the wire shape of a matchmaker registry entry.
type ServerEntry struct {
	ServerID       string            `json:"serverId"`
	IP             string            `json:"ip"`
	Port           int               `json:"port"`
	Name           string            `json:"name"`
	MaxPlayers     int               `json:"maxPlayers"`
	CurrentPlayers int               `json:"currentPlayers"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	RegisteredAt   time.Time         `json:"registeredAt"`
	LastHeartbeat  time.Time         `json:"lastHeartbeat"`
	Active         bool              `json:"active"`
}

// Register sends a POST request to the /matchmaker/servers endpoint and
// returns the stored entry, including the server id the matchmaker settled on.
func (c *MatchmakerClient) Register(ctx context.Context, req RegisterRequest) (*ServerEntry, error) {
	var entry ServerEntry
	if err := c.apiClient.Post(ctx, "/matchmaker/servers", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Heartbeat sends a PUT request to the heartbeat endpoint for the given server.
func (c *MatchmakerClient) Heartbeat(ctx context.Context, serverID string, currentPlayers int) error {
	reqData := HeartbeatRequest{CurrentPlayers: currentPlayers}
	return c.apiClient.Put(ctx, fmt.Sprintf("/matchmaker/servers/%s/heartbeat", serverID), reqData, nil)
}

// GetServer fetches one registry entry. api.ErrGone signals an entry whose
// heartbeat window has lapsed; api.ErrNotFound one that was never registered.
func (c *MatchmakerClient) GetServer(ctx context.Context, serverID string) (*ServerEntry, error) {
	var entry ServerEntry
	if err := c.apiClient.Get(ctx, fmt.Sprintf("/matchmaker/servers/%s", serverID), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListServers fetches registry entries. With activeOnly set only servers with
// a live heartbeat are returned.
func (c *MatchmakerClient) ListServers(ctx context.Context, activeOnly bool) ([]ServerEntry, error) {
	path := "/matchmaker/servers"
	if !activeOnly {
		path += "?active=false"
	}
	var entries []ServerEntry
	if err := c.apiClient.Get(ctx, path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Unregister sends a DELETE request to remove a server from the registry.
func (c *MatchmakerClient) Unregister(ctx context.Context, serverID string) error {
	return c.apiClient.Delete(ctx, fmt.Sprintf("/matchmaker/servers/%s", serverID))
}

// AssignPlayer asks the matchmaker which game server the player belongs on.
func (c *MatchmakerClient) AssignPlayer(ctx context.Context, playerID string) (*ServerEntry, error) {
	var entry ServerEntry
	if err := c.apiClient.Get(ctx, fmt.Sprintf("/matchmaker/assign/%s", playerID), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
