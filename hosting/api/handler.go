// hosting/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/Playcade/GO-HOSTING/hosting/ports"
	"github.com/Playcade/GO-HOSTING/hosting/service"
	"github.com/Playcade/GO-HOSTING/hosting/store"
	"github.com/Playcade/GO-HOSTING/shared/api"
	"github.com/Playcade/GO-HOSTING/shared/models"
	"github.com/gorilla/mux" // Still needed for mux.Vars
)

// HostingAPIHandlers holds references to the services that handle business logic for the hosting service.
type HostingAPIHandlers struct {
	HostingService *service.HostingService
}

// NewHostingAPIHandlers is the constructor for the hosting API handlers.
func NewHostingAPIHandlers(hs *service.HostingService) *HostingAPIHandlers {
	return &HostingAPIHandlers{
		HostingService: hs,
	}
}

// --- Request/Response DTOs (Data Transfer Objects) ---

// CreateServerRequest is the structure for the request body of POST /servers.
type CreateServerRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// LogsResponse is the structure for the JSON response of GET /servers/{id}/logs.
type LogsResponse struct {
	ServerID string   `json:"serverId"`
	Logs     []string `json:"logs"`
}

// StatsResponse is the structure for the JSON response of GET /servers/{id}/stats.
type StatsResponse struct {
	ServerID string                `json:"serverId"`
	Status   models.InstanceStatus `json:"status"`
	Usage    models.ResourceUsage  `json:"resourceUsage"`
}

// writeProvisionError maps the pipeline error taxonomy onto HTTP status codes
// with distinct codes per failure class.
func writeProvisionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		api.WriteBadRequest(w, err.Error())
	case errors.Is(err, service.ErrResourceExhausted), errors.Is(err, ports.ErrNoPortAvailable):
		api.WriteServiceUnavailable(w, err.Error())
	case errors.Is(err, service.ErrBuildFailed), errors.Is(err, service.ErrLaunchFailed):
		api.WriteBadGateway(w, err.Error())
	case errors.Is(err, store.ErrInstanceNotFound):
		api.WriteNotFound(w, err.Error())
	default:
		api.WriteInternalServerError(w, "Internal error during provisioning")
	}
}

// --- Handler Methods ---

// HandleCreateServer provisions a new game server from submitted code.
// POST /servers
// Body: { "code": "...", "name": "...", "description": "..." }
func (h *HostingAPIHandlers) HandleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req CreateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Building an image and launching a container is slow by nature.
	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	inst, err := h.HostingService.Provision(ctx, req.Code, req.Name, req.Description)
	if err != nil {
		log.Printf("Error provisioning game server %q: %v", req.Name, err)
		writeProvisionError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusCreated, inst)
}

// HandleListServers returns a snapshot of all instances.
// GET /servers
func (h *HostingAPIHandlers) HandleListServers(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, h.HostingService.List())
}

// HandleGetServer returns one instance by id.
// GET /servers/{id}
func (h *HostingAPIHandlers) HandleGetServer(w http.ResponseWriter, r *http.Request) {
	serverID := mux.Vars(r)["id"]

	inst, err := h.HostingService.Get(serverID)
	if err != nil {
		if errors.Is(err, store.ErrInstanceNotFound) {
			api.WriteNotFound(w, "Game server not found")
			return
		}
		log.Printf("Error fetching game server %s: %v", serverID, err)
		api.WriteInternalServerError(w, "Failed to fetch game server")
		return
	}

	api.WriteJSON(w, http.StatusOK, inst)
}

// HandleStopServer stops a running instance. Stopping an already-stopped
// instance is a no-op success.
// POST /servers/{id}/stop
func (h *HostingAPIHandlers) HandleStopServer(w http.ResponseWriter, r *http.Request) {
	serverID := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	inst, err := h.HostingService.Stop(ctx, serverID)
	if err != nil {
		if errors.Is(err, store.ErrInstanceNotFound) {
			api.WriteNotFound(w, "Game server not found")
			return
		}
		log.Printf("Error stopping game server %s: %v", serverID, err)
		api.WriteInternalServerError(w, "Failed to stop game server")
		return
	}

	api.WriteJSON(w, http.StatusOK, inst)
}

// HandleDeleteServer removes an instance entirely: container, image, port
// lease and registry record.
// DELETE /servers/{id}
func (h *HostingAPIHandlers) HandleDeleteServer(w http.ResponseWriter, r *http.Request) {
	serverID := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	inst, err := h.HostingService.Remove(ctx, serverID)
	if err != nil {
		if errors.Is(err, store.ErrInstanceNotFound) {
			api.WriteNotFound(w, "Game server not found")
			return
		}
		log.Printf("Error removing game server %s: %v", serverID, err)
		api.WriteInternalServerError(w, "Failed to remove game server")
		return
	}

	api.WriteJSON(w, http.StatusOK, inst)
}

// HandleGetLogs returns the recent log tail for an instance. If the container
// runtime is unreachable the cached tail is served.
// GET /servers/{id}/logs?tail=N
func (h *HostingAPIHandlers) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	serverID := mux.Vars(r)["id"]

	tail := 0
	if tailStr := r.URL.Query().Get("tail"); tailStr != "" {
		parsed, err := strconv.Atoi(tailStr)
		if err != nil || parsed < 0 {
			api.WriteBadRequest(w, "Invalid tail parameter")
			return
		}
		tail = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	lines, err := h.HostingService.FetchLogs(ctx, serverID, tail)
	if err != nil {
		if errors.Is(err, store.ErrInstanceNotFound) {
			api.WriteNotFound(w, "Game server not found")
			return
		}
		log.Printf("Error fetching logs for game server %s: %v", serverID, err)
		api.WriteInternalServerError(w, "Failed to fetch logs")
		return
	}

	api.WriteJSON(w, http.StatusOK, LogsResponse{ServerID: serverID, Logs: lines})
}

// HandleGetStats refreshes and returns the resource usage snapshot for an
// instance. If the container runtime is unreachable the cached snapshot is
// served.
// GET /servers/{id}/stats
func (h *HostingAPIHandlers) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	serverID := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	inst, err := h.HostingService.RefreshStats(ctx, serverID)
	if err != nil {
		if errors.Is(err, store.ErrInstanceNotFound) {
			api.WriteNotFound(w, "Game server not found")
			return
		}
		log.Printf("Error refreshing stats for game server %s: %v", serverID, err)
		api.WriteInternalServerError(w, "Failed to refresh stats")
		return
	}

	api.WriteJSON(w, http.StatusOK, StatsResponse{ServerID: serverID, Status: inst.Status, Usage: inst.Usage})
}

// RegisterRoutes registers all API endpoints for the Hosting Service.
// This method is called from main.go to set up the HTTP routes.
func (h *HostingAPIHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/servers", h.HandleCreateServer).Methods("POST")
	router.HandleFunc("/servers", h.HandleListServers).Methods("GET")
	router.HandleFunc("/servers/{id}", h.HandleGetServer).Methods("GET")
	router.HandleFunc("/servers/{id}", h.HandleDeleteServer).Methods("DELETE")
	router.HandleFunc("/servers/{id}/stop", h.HandleStopServer).Methods("POST")
	router.HandleFunc("/servers/{id}/logs", h.HandleGetLogs).Methods("GET")
	router.HandleFunc("/servers/{id}/stats", h.HandleGetStats).Methods("GET")
}
