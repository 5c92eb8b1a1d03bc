package sweeper

import (
	"errors"
	"testing"
	"time"

	"github.com/Playcade/GO-HOSTING/matchmaker/store"
	"github.com/Playcade/GO-HOSTING/shared/models"
)

func TestSweeperEvictsLapsedEntries(t *testing.T) {
	entries := store.NewEntryStore(50 * time.Millisecond)
	entry := entries.Register(models.MatchmakerEntry{IP: "10.0.0.1", Port: 8080, Name: "arena"})

	s := NewSweeper(entries, nil, 20*time.Millisecond)
	s.Start()
	defer s.Stop()

	// Wait past the heartbeat timeout plus at least one sweep tick.
	time.Sleep(120 * time.Millisecond)

	if _, err := entries.Get(entry.ServerID); !errors.Is(err, store.ErrEntryNotFound) {
		t.Fatalf("Get() after sweep = %v, want ErrEntryNotFound", err)
	}
	if entries.Count() != 0 {
		t.Fatalf("Count() after sweep = %d, want 0", entries.Count())
	}
}

func TestSweeperKeepsHeartbeatingEntries(t *testing.T) {
	entries := store.NewEntryStore(60 * time.Millisecond)
	entry := entries.Register(models.MatchmakerEntry{IP: "10.0.0.1", Port: 8080})

	s := NewSweeper(entries, nil, 15*time.Millisecond)
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if err := entries.Heartbeat(entry.ServerID, 2); err != nil {
			t.Fatalf("Heartbeat() failed mid-run: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if _, err := entries.Get(entry.ServerID); err != nil {
		t.Fatalf("heartbeating entry was evicted: %v", err)
	}
}

func TestSweeperStopIsClean(t *testing.T) {
	entries := store.NewEntryStore(time.Minute)
	s := NewSweeper(entries, nil, 10*time.Millisecond)
	s.Start()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() did not return")
	}
}
