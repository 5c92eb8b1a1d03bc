// shared/models/instance.go
package models

import "time"

// InstanceStatus is the lifecycle state of a provisioned game server instance.
type InstanceStatus string

const (
	// StatusProvisioning is the transient initial state, held only while the
	// pipeline is validating, building and launching. Instances in this state
	// are never visible in the registry.
	StatusProvisioning InstanceStatus = "provisioning"
	// StatusRunning means the backing container was launched successfully.
	StatusRunning InstanceStatus = "running"
	// StatusStopped means an explicit stop request succeeded.
	StatusStopped InstanceStatus = "stopped"
	// StatusError means the container crashed or exited unexpectedly,
	// discovered on a stats refresh. There is no restart transition; a new
	// provisioning call is required to get a new instance.
	StatusError InstanceStatus = "error"
	// StatusRemoved is terminal. A removed instance is deleted from the
	// registry entirely, so the status is only ever observed on the final
	// descriptor returned by the delete operation.
	StatusRemoved InstanceStatus = "removed"
)

// ResourceUsage is the last-observed resource snapshot for an instance.
// It is refreshed on demand via the container runtime, not continuously.
type ResourceUsage struct {
	CPUPercent  float64   `json:"cpuPercent"`
	MemoryMB    float64   `json:"memoryMb"`
	RefreshedAt time.Time `json:"refreshedAt,omitempty"`
}

// GameServerInstance represents one provisioned game server, owned exclusively
// by the hosting service's instance registry.
type GameServerInstance struct {
	ServerID     string         `json:"serverId"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Status       InstanceStatus `json:"status"`
	ContainerRef string         `json:"containerRef,omitempty"` // opaque container runtime handle
	ImageRef     string         `json:"imageRef,omitempty"`     // image built for this instance, released on remove
	Port         int            `json:"port,omitempty"`         // externally reachable host port, 0 before allocation
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	Usage        ResourceUsage  `json:"resourceUsage"`
	Logs         []string       `json:"logs,omitempty"` // cached log tail, bounded by config
}

// Active reports whether the instance currently holds its port lease,
// i.e. its status is provisioning or running.
func (i *GameServerInstance) Active() bool {
	return i.Status == StatusProvisioning || i.Status == StatusRunning
}

// Clone returns a deep copy, so registry snapshots cannot be mutated through
// shared slices by concurrent readers.
func (i *GameServerInstance) Clone() *GameServerInstance {
	c := *i
	if i.Logs != nil {
		c.Logs = append([]string(nil), i.Logs...)
	}
	return &c
}
