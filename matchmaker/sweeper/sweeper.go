// matchmaker/sweeper/sweeper.go
package sweeper

import (
	"log"
	"time"

	"github.com/Playcade/GO-HOSTING/matchmaker/store"
	"github.com/Playcade/GO-HOSTING/shared/events"
	"github.com/Playcade/GO-HOSTING/shared/metrics"
)

// Sweeper periodically removes registry entries whose heartbeat window has
// lapsed. Reads stay correct between runs because liveness is derived from
// timestamps; the sweeper only reclaims memory and publishes eviction events.
type Sweeper struct {
	entries  *store.EntryStore
	events   *events.Publisher
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSweeper creates a sweeper over the given registry. The interval should be
// shorter than the registry's heartbeat timeout so evictions are timely.
func NewSweeper(entries *store.EntryStore, publisher *events.Publisher, interval time.Duration) *Sweeper {
	return &Sweeper{
		entries:  entries,
		events:   publisher,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the periodic sweep in a background goroutine.
func (s *Sweeper) Start() {
	log.Printf("Starting matchmaker eviction sweeper, checking every %v", s.interval)
	go s.run()
}

// Stop signals the sweeper to stop and waits for the current sweep to finish.
func (s *Sweeper) Stop() {
	log.Println("Signaling matchmaker eviction sweeper to stop...")
	close(s.stopChan)
	<-s.doneChan
	log.Println("Matchmaker eviction sweeper stopped successfully.")
}

// run is the main loop for the sweeper's background goroutine.
func (s *Sweeper) run() {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			return
		}
	}
}

// sweep evicts every lapsed entry and reports each one. A panic in a single
// sweep is recovered so one bad run never kills the loop.
func (s *Sweeper) sweep() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Eviction sweep panicked: %v", r)
		}
	}()

	evicted := s.entries.Evict(time.Now())
	for _, entry := range evicted {
		log.Printf("INFO: Evicted game server %s (%s:%d), last heartbeat %v",
			entry.ServerID, entry.IP, entry.Port, entry.LastHeartbeat)
		metrics.EvictionsTotal.Inc()
		s.events.Publish(events.SubjectServerEvicted, entry)
	}
	if len(evicted) > 0 {
		metrics.RegisteredServers.Set(float64(s.entries.Count()))
	}
}
