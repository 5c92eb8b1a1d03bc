// shared/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors shared by the hosting and matchmaker services. promauto registers
// them on the default registry at init.
var (
	// ProvisionsTotal counts provisioning attempts by outcome:
	// "success", "invalid", "denied", "no_port", "build_failed", "launch_failed".
	ProvisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hosting_provisions_total",
		Help: "Provisioning pipeline attempts partitioned by outcome.",
	}, []string{"outcome"})

	// ActiveInstances tracks instances currently in provisioning or running state.
	ActiveInstances = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hosting_active_instances",
		Help: "Number of game server instances currently holding a port lease.",
	})

	// LeasedPorts tracks ports currently handed out by the allocator.
	LeasedPorts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hosting_leased_ports",
		Help: "Number of host ports currently leased to game servers.",
	})

	// RegisteredServers tracks entries currently held by the liveness registry.
	RegisteredServers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matchmaker_registered_servers",
		Help: "Number of servers currently registered with the matchmaker.",
	})

	// HeartbeatsTotal counts accepted heartbeat requests.
	HeartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchmaker_heartbeats_total",
		Help: "Number of heartbeats accepted by the matchmaker.",
	})

	// EvictionsTotal counts entries removed by the eviction sweeper.
	EvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchmaker_evictions_total",
		Help: "Number of matchmaker entries evicted after their heartbeat lapsed.",
	})
)

// RegisterHandler registers the Prometheus handler on the provided mux.
func RegisterHandler(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
