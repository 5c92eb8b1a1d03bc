// matchmaker/api/handler.go
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/Playcade/GO-HOSTING/matchmaker/assign"
	"github.com/Playcade/GO-HOSTING/matchmaker/store"
	"github.com/Playcade/GO-HOSTING/shared/api"
	"github.com/Playcade/GO-HOSTING/shared/events"
	"github.com/Playcade/GO-HOSTING/shared/metrics"
	"github.com/Playcade/GO-HOSTING/shared/models"
	"github.com/gorilla/mux" // Still needed for mux.Vars
)

// MatchmakerAPIHandlers holds references to the stores that handle business logic for the matchmaker service.
type MatchmakerAPIHandlers struct {
	Entries          *store.EntryStore
	Assigner         *assign.Assigner
	Events           *events.Publisher
	HeartbeatTimeout time.Duration
}

// NewMatchmakerAPIHandlers is the constructor for the matchmaker API handlers.
func NewMatchmakerAPIHandlers(entries *store.EntryStore, assigner *assign.Assigner, publisher *events.Publisher, heartbeatTimeout time.Duration) *MatchmakerAPIHandlers {
	return &MatchmakerAPIHandlers{
		Entries:          entries,
		Assigner:         assigner,
		Events:           publisher,
		HeartbeatTimeout: heartbeatTimeout,
	}
}

// --- Request/Response DTOs (Data Transfer Objects) ---

// RegisterServerRequest is the structure for the request body of POST /matchmaker/servers.
type RegisterServerRequest struct {
	ServerID   string            `json:"serverId,omitempty"`
	IP         string            `json:"ip"`
	Port       int               `json:"port"`
	Name       string            `json:"name"`
	MaxPlayers int               `json:"maxPlayers,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// HeartbeatRequest is the structure for the request body of PUT /matchmaker/servers/{id}/heartbeat.
type HeartbeatRequest struct {
	CurrentPlayers int `json:"currentPlayers"`
}

// EntryResponse is the wire shape of a registry entry, with liveness computed
// at response time.
type EntryResponse struct {
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

func (h *MatchmakerAPIHandlers) toResponse(entry *models.MatchmakerEntry) EntryResponse {
	return EntryResponse{
		ServerID:       entry.ServerID,
		IP:             entry.IP,
		Port:           entry.Port,
		Name:           entry.Name,
		MaxPlayers:     entry.MaxPlayers,
		CurrentPlayers: entry.CurrentPlayers,
		Metadata:       entry.Metadata,
		RegisteredAt:   entry.RegisteredAt,
		LastHeartbeat:  entry.LastHeartbeat,
		Active:         entry.Active(h.HeartbeatTimeout, time.Now()),
	}
}

// --- Handler Methods ---

// HandleRegisterServer registers a game server with the matchmaker.
// POST /matchmaker/servers
// Body: { "serverId": "...", "ip": "...", "port": N, "name": "...", ... }
func (h *MatchmakerAPIHandlers) HandleRegisterServer(w http.ResponseWriter, r *http.Request) {
	var req RegisterServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.IP == "" || req.Port <= 0 {
		api.WriteBadRequest(w, "ip and port are required")
		return
	}

	entry := h.Entries.Register(models.MatchmakerEntry{
		ServerID:   req.ServerID,
		IP:         req.IP,
		Port:       req.Port,
		Name:       req.Name,
		MaxPlayers: req.MaxPlayers,
		Metadata:   req.Metadata,
	})

	log.Printf("INFO: Registered game server %s (%s:%d)", entry.ServerID, entry.IP, entry.Port)
	metrics.RegisteredServers.Set(float64(h.Entries.Count()))
	h.Events.Publish(events.SubjectServerRegistered, entry)

	api.WriteJSON(w, http.StatusCreated, h.toResponse(entry))
}

// HandleHeartbeat refreshes a server's liveness window.
// PUT /matchmaker/servers/{id}/heartbeat
// Body: { "currentPlayers": N }
func (h *MatchmakerAPIHandlers) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	serverID := mux.Vars(r)["id"]

	var req HeartbeatRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	if err := h.Entries.Heartbeat(serverID, req.CurrentPlayers); err != nil {
		api.WriteNotFound(w, "Game server not registered")
		return
	}
	metrics.HeartbeatsTotal.Inc()

	w.WriteHeader(http.StatusNoContent)
}

// HandleListServers returns registered servers, active ones only unless
// ?active=false is passed.
// GET /matchmaker/servers?active=true|false
func (h *MatchmakerAPIHandlers) HandleListServers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") != "false"

	entries := h.Entries.List(activeOnly)
	out := make([]EntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, h.toResponse(entry))
	}

	api.WriteJSON(w, http.StatusOK, out)
}

// HandleGetServer returns one registry entry. An entry whose heartbeat has
// lapsed but has not been swept yet yields 410 Gone rather than 404.
// GET /matchmaker/servers/{id}
func (h *MatchmakerAPIHandlers) HandleGetServer(w http.ResponseWriter, r *http.Request) {
	serverID := mux.Vars(r)["id"]

	entry, err := h.Entries.Get(serverID)
	if err != nil {
		if errors.Is(err, store.ErrEntryGone) {
			api.WriteGone(w, "Game server heartbeat expired")
			return
		}
		api.WriteNotFound(w, "Game server not registered")
		return
	}

	api.WriteJSON(w, http.StatusOK, h.toResponse(entry))
}

// HandleUnregisterServer removes a server from the registry explicitly.
// DELETE /matchmaker/servers/{id}
func (h *MatchmakerAPIHandlers) HandleUnregisterServer(w http.ResponseWriter, r *http.Request) {
	serverID := mux.Vars(r)["id"]

	if err := h.Entries.Unregister(serverID); err != nil {
		api.WriteNotFound(w, "Game server not registered")
		return
	}

	log.Printf("INFO: Unregistered game server %s", serverID)
	metrics.RegisteredServers.Set(float64(h.Entries.Count()))
	h.Events.Publish(events.SubjectServerUnregistered, map[string]string{"serverId": serverID})

	w.WriteHeader(http.StatusNoContent)
}

// HandleAssignPlayer picks the game server responsible for a player.
// GET /matchmaker/assign/{playerId}
func (h *MatchmakerAPIHandlers) HandleAssignPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := mux.Vars(r)["playerId"]

	entry, err := h.Assigner.Assign(playerID)
	if err != nil {
		if errors.Is(err, assign.ErrNoActiveServers) {
			api.WriteServiceUnavailable(w, "No active game servers available")
			return
		}
		log.Printf("Error assigning player %s: %v", playerID, err)
		api.WriteInternalServerError(w, "Failed to assign player")
		return
	}

	api.WriteJSON(w, http.StatusOK, h.toResponse(entry))
}

// RegisterRoutes registers all API endpoints for the Matchmaker Service.
// This method is called from main.go to set up the HTTP routes.
func (h *MatchmakerAPIHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/matchmaker/servers", h.HandleRegisterServer).Methods("POST")
	router.HandleFunc("/matchmaker/servers", h.HandleListServers).Methods("GET")
	router.HandleFunc("/matchmaker/servers/{id}", h.HandleGetServer).Methods("GET")
	router.HandleFunc("/matchmaker/servers/{id}", h.HandleUnregisterServer).Methods("DELETE")
	router.HandleFunc("/matchmaker/servers/{id}/heartbeat", h.HandleHeartbeat).Methods("PUT")
	router.HandleFunc("/matchmaker/assign/{playerId}", h.HandleAssignPlayer).Methods("GET")
}
