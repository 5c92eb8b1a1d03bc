// shared/events/publisher.go
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects for lifecycle events published by the two services.
const (
	SubjectInstanceProvisioned = "hosting.instance.provisioned"
	SubjectInstanceStopped     = "hosting.instance.stopped"
	SubjectInstanceRemoved     = "hosting.instance.removed"
	SubjectInstanceErrored     = "hosting.instance.errored"

	SubjectServerRegistered   = "matchmaker.server.registered"
	SubjectServerEvicted      = "matchmaker.server.evicted"
	SubjectServerUnregistered = "matchmaker.server.unregistered"
)

// Publisher publishes lifecycle events to NATS. A nil *Publisher is valid and
// publishes nothing, so services can run without a broker configured.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher connects to NATS at the given URL. An empty URL returns a nil
// publisher, which disables event publishing entirely.
func NewPublisher(url, serviceName string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}

	opts := []nats.Option{
		nats.Name(serviceName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("WARNING: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("INFO: NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &Publisher{nc: nc}, nil
}

// Publish marshals the payload to JSON and publishes it on the given subject.
// Failures are logged, never propagated: lifecycle events are advisory and
// must not fail the operation that produced them.
func (p *Publisher) Publish(subject string, payload interface{}) {
	if p == nil || p.nc == nil || p.nc.IsClosed() {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: Failed to marshal event payload for subject %s: %v", subject, err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		log.Printf("ERROR: Failed to publish event on subject %s: %v", subject, err)
	}
}

// Close drains and closes the underlying NATS connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		log.Printf("WARNING: NATS drain on shutdown failed: %v", err)
	}
	p.nc.Close()
}
