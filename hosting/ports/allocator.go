// hosting/ports/allocator.go
package ports

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// ErrNoPortAvailable is returned when every port in the configured range is
// either leased or already bound on the host. Callers surface this to the
// client; the allocator never retries on its own.
var ErrNoPortAvailable = errors.New("no port available")

// Allocator hands out host ports for game server containers from a bounded
// inclusive range. It searches in ascending order, skipping ports it has
// already leased and ports the host reports as bound. The lease table and the
// bind probe are covered by a single mutex, so two concurrent Allocate calls
// can never return the same port.
type Allocator struct {
	mu     sync.Mutex
	start  int
	end    int
	leased map[int]bool
	probe  func(port int) bool // reports whether the host can bind the port right now
}

// NewAllocator creates an Allocator for the inclusive range [start, end].
func NewAllocator(start, end int) (*Allocator, error) {
	if start <= 0 || end > 65535 || end < start {
		return nil, fmt.Errorf("invalid port range %d-%d", start, end)
	}
	return &Allocator{
		start:  start,
		end:    end,
		leased: make(map[int]bool),
		probe:  probeHostPort,
	}, nil
}

// Allocate reserves and returns the lowest free port in the range.
// The port stays leased until Release is called for it.
func (a *Allocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for port := a.start; port <= a.end; port++ {
		if a.leased[port] {
			continue
		}
		if !a.probe(port) {
			// Something outside our control is bound to this port.
			continue
		}
		a.leased[port] = true
		return port, nil
	}
	return 0, fmt.Errorf("%w: range %d-%d exhausted", ErrNoPortAvailable, a.start, a.end)
}

// Release returns a previously allocated port to the pool. Releasing a port
// that is not leased is a no-op, so failure-path cleanup can call it freely.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.leased, port)
}

// LeasedCount returns the number of ports currently leased.
func (a *Allocator) LeasedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.leased)
}

// probeHostPort reports whether the port can currently be bound on the host,
// using a bind-and-release check.
func probeHostPort(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}
