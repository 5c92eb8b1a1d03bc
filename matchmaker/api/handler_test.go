package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Playcade/GO-HOSTING/matchmaker/assign"
	"github.com/Playcade/GO-HOSTING/matchmaker/store"
	sharedapi "github.com/Playcade/GO-HOSTING/shared/api"
	"github.com/Playcade/GO-HOSTING/shared/service"
	"github.com/gorilla/mux"
)

func newTestServer(t *testing.T, heartbeatTimeout time.Duration) (*httptest.Server, *service.MatchmakerClient) {
	t.Helper()

	entries := store.NewEntryStore(heartbeatTimeout)
	handlers := NewMatchmakerAPIHandlers(entries, assign.NewAssigner(entries), nil, heartbeatTimeout)

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv, service.NewMatchmakerClient(srv.URL)
}

func TestRegisterAndGetOverHTTP(t *testing.T) {
	_, client := newTestServer(t, time.Minute)
	ctx := context.Background()

	entry, err := client.Register(ctx, service.RegisterRequest{
		IP:   "192.168.1.100",
		Port: 8080,
		Name: "arena-1",
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if entry.ServerID == "" || !entry.Active {
		t.Fatalf("Register() returned %+v, want active entry with id", entry)
	}

	got, err := client.GetServer(ctx, entry.ServerID)
	if err != nil {
		t.Fatalf("GetServer() failed: %v", err)
	}
	if got.IP != "192.168.1.100" || got.Port != 8080 || got.Name != "arena-1" {
		t.Fatalf("GetServer() = %+v", got)
	}
}

func TestRegisterRejectsMissingAddress(t *testing.T) {
	_, client := newTestServer(t, time.Minute)

	_, err := client.Register(context.Background(), service.RegisterRequest{Name: "no-address"})
	if !errors.Is(err, sharedapi.ErrBadRequest) {
		t.Fatalf("Register() without ip/port = %v, want ErrBadRequest", err)
	}
}

func TestGetUnknownServerOverHTTP(t *testing.T) {
	_, client := newTestServer(t, time.Minute)

	_, err := client.GetServer(context.Background(), "no-such-server")
	if !errors.Is(err, sharedapi.ErrNotFound) {
		t.Fatalf("GetServer(unknown) = %v, want ErrNotFound", err)
	}
}

func TestGetLapsedServerReturnsGone(t *testing.T) {
	const timeout = 50 * time.Millisecond
	_, client := newTestServer(t, timeout)
	ctx := context.Background()

	entry, err := client.Register(ctx, service.RegisterRequest{IP: "10.0.0.1", Port: 8080})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	time.Sleep(timeout + 20*time.Millisecond)

	if _, err := client.GetServer(ctx, entry.ServerID); !errors.Is(err, sharedapi.ErrGone) {
		t.Fatalf("GetServer(lapsed) = %v, want ErrGone", err)
	}
}

func TestHeartbeatOverHTTP(t *testing.T) {
	const timeout = 80 * time.Millisecond
	_, client := newTestServer(t, timeout)
	ctx := context.Background()

	entry, err := client.Register(ctx, service.RegisterRequest{IP: "10.0.0.1", Port: 8080})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	time.Sleep(timeout / 2)
	if err := client.Heartbeat(ctx, entry.ServerID, 7); err != nil {
		t.Fatalf("Heartbeat() failed: %v", err)
	}
	time.Sleep(3 * timeout / 4)

	got, err := client.GetServer(ctx, entry.ServerID)
	if err != nil {
		t.Fatalf("GetServer() after heartbeat = %v, want active", err)
	}
	if got.CurrentPlayers != 7 {
		t.Fatalf("CurrentPlayers = %d, want 7", got.CurrentPlayers)
	}

	if err := client.Heartbeat(ctx, "no-such-server", 1); !errors.Is(err, sharedapi.ErrNotFound) {
		t.Fatalf("Heartbeat(unknown) = %v, want ErrNotFound", err)
	}
}

func TestListServersOverHTTP(t *testing.T) {
	const timeout = 60 * time.Millisecond
	_, client := newTestServer(t, timeout)
	ctx := context.Background()

	if _, err := client.Register(ctx, service.RegisterRequest{IP: "10.0.0.1", Port: 8080, Name: "stale"}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	time.Sleep(timeout + 20*time.Millisecond)
	if _, err := client.Register(ctx, service.RegisterRequest{IP: "10.0.0.2", Port: 8081, Name: "fresh"}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	active, err := client.ListServers(ctx, true)
	if err != nil {
		t.Fatalf("ListServers(active) failed: %v", err)
	}
	if len(active) != 1 || active[0].Name != "fresh" {
		t.Fatalf("ListServers(active) = %+v, want only the fresh entry", active)
	}

	all, err := client.ListServers(ctx, false)
	if err != nil {
		t.Fatalf("ListServers(all) failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListServers(all) = %d entries, want 2", len(all))
	}
	if all[0].Active || !all[1].Active {
		t.Fatalf("liveness flags wrong in %+v", all)
	}
}

func TestUnregisterOverHTTP(t *testing.T) {
	_, client := newTestServer(t, time.Minute)
	ctx := context.Background()

	entry, err := client.Register(ctx, service.RegisterRequest{IP: "10.0.0.1", Port: 8080})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if err := client.Unregister(ctx, entry.ServerID); err != nil {
		t.Fatalf("Unregister() failed: %v", err)
	}
	if _, err := client.GetServer(ctx, entry.ServerID); !errors.Is(err, sharedapi.ErrNotFound) {
		t.Fatalf("GetServer() after unregister = %v, want ErrNotFound", err)
	}
	if err := client.Unregister(ctx, entry.ServerID); !errors.Is(err, sharedapi.ErrNotFound) {
		t.Fatalf("second Unregister() = %v, want ErrNotFound", err)
	}
}

func TestAssignPlayerOverHTTP(t *testing.T) {
	_, client := newTestServer(t, time.Minute)
	ctx := context.Background()

	if _, err := client.AssignPlayer(ctx, "player-1"); !errors.Is(err, sharedapi.ErrUnavailable) {
		t.Fatalf("AssignPlayer() with no servers = %v, want ErrUnavailable", err)
	}

	registered, err := client.Register(ctx, service.RegisterRequest{IP: "10.0.0.1", Port: 8080})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	assigned, err := client.AssignPlayer(ctx, "player-1")
	if err != nil {
		t.Fatalf("AssignPlayer() failed: %v", err)
	}
	if assigned.ServerID != registered.ServerID {
		t.Fatalf("AssignPlayer() = %s, want %s", assigned.ServerID, registered.ServerID)
	}
}
