// shared/service/hostingclient.go
package service

import (
	"context"
	"fmt"

	"github.com/Playcade/GO-HOSTING/shared/api"
	"github.com/Playcade/GO-HOSTING/shared/models"
)

// HostingClient is a client for the Hosting Service.
type HostingClient struct {
	apiClient *api.Client
}

// NewHostingClient creates a new Hosting Service client.
func NewHostingClient(baseURL string) *HostingClient {
	// Pass the default HTTP client for inter-service communication
	return &HostingClient{
		apiClient: api.NewClient(baseURL, api.NewDefaultHTTPClient()),
	}
}

// CreateServerRequest represents the payload for provisioning a game server.
type CreateServerRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// LogsResponse is the wire shape of a log tail.
type LogsResponse struct {
	ServerID string   `json:"serverId"`
	Logs     []string `json:"logs"`
}

// StatsResponse is the wire shape of a resource usage snapshot.
type StatsResponse struct {
	ServerID string                `json:"serverId"`
	Status   models.InstanceStatus `json:"status"`
	Usage    models.ResourceUsage  `json:"resourceUsage"`
}

// CreateServer provisions a new game server from the given user code.
// Provisioning builds an image and starts a container, so callers should pass
// a generous context deadline.
func (c *HostingClient) CreateServer(ctx context.Context, code, name, description string) (*models.GameServerInstance, error) {
	reqData := CreateServerRequest{Code: code, Name: name, Description: description}
	var inst models.GameServerInstance
	if err := c.apiClient.Post(ctx, "/servers", reqData, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// ListServers fetches all instances known to the hosting service.
func (c *HostingClient) ListServers(ctx context.Context) ([]models.GameServerInstance, error) {
	var instances []models.GameServerInstance
	if err := c.apiClient.Get(ctx, "/servers", &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

// GetServer fetches one instance by id.
func (c *HostingClient) GetServer(ctx context.Context, serverID string) (*models.GameServerInstance, error) {
	var inst models.GameServerInstance
	if err := c.apiClient.Get(ctx, fmt.Sprintf("/servers/%s", serverID), &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// StopServer stops a running instance. Stopping an already-stopped instance
// succeeds without effect.
func (c *HostingClient) StopServer(ctx context.Context, serverID string) (*models.GameServerInstance, error) {
	var inst models.GameServerInstance
	if err := c.apiClient.Post(ctx, fmt.Sprintf("/servers/%s/stop", serverID), nil, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// DeleteServer removes an instance entirely.
func (c *HostingClient) DeleteServer(ctx context.Context, serverID string) error {
	return c.apiClient.Delete(ctx, fmt.Sprintf("/servers/%s", serverID))
}

// GetLogs fetches the recent log tail for an instance. A tail of 0 uses the
// service default.
func (c *HostingClient) GetLogs(ctx context.Context, serverID string, tail int) ([]string, error) {
	path := fmt.Sprintf("/servers/%s/logs", serverID)
	if tail > 0 {
		path = fmt.Sprintf("%s?tail=%d", path, tail)
	}
	var resp LogsResponse
	if err := c.apiClient.Get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// GetStats fetches a fresh resource usage snapshot for an instance.
func (c *HostingClient) GetStats(ctx context.Context, serverID string) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.apiClient.Get(ctx, fmt.Sprintf("/servers/%s/stats", serverID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
