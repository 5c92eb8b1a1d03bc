// hosting/admission/admission.go
package admission

import "fmt"

// UsageSource reports the number of instances currently holding resources
// (status provisioning or running). The instance registry implements this.
type UsageSource interface {
	ActiveCount() int
}

// Limits are the configured admission ceilings. Aggregate CPU and memory are
// computed from the per-container reservations, since every admitted container
// is launched with exactly those limits applied by the runtime.
type Limits struct {
	MaxContainers       int
	ContainerCPUPercent float64
	ContainerMemoryMB   float64
	MaxTotalCPUPercent  float64
	MaxTotalMemoryMB    float64
}

// Controller decides whether a new provisioning attempt may proceed given the
// current aggregate load. It is a pure decision function: it reserves nothing
// itself, and its answer is advisory. The pipeline queries it immediately
// before each attempt; a stale "allowed" is acceptable for one attempt.
type Controller struct {
	usage  UsageSource
	limits Limits
}

// NewController creates an admission Controller over the given usage source.
func NewController(usage UsageSource, limits Limits) *Controller {
	return &Controller{
		usage:  usage,
		limits: limits,
	}
}

// CanAdmit reports whether one more container may be provisioned, and when not,
// a human-readable reason suitable for the client.
func (c *Controller) CanAdmit() (bool, string) {
	count := c.usage.ActiveCount()

	if c.limits.MaxContainers > 0 && count >= c.limits.MaxContainers {
		return false, fmt.Sprintf("container limit reached (%d/%d)", count, c.limits.MaxContainers)
	}

	if c.limits.MaxTotalCPUPercent > 0 {
		reserved := float64(count) * c.limits.ContainerCPUPercent
		if reserved+c.limits.ContainerCPUPercent > c.limits.MaxTotalCPUPercent {
			return false, fmt.Sprintf("CPU reservation ceiling reached (%.0f%% reserved, %.0f%% ceiling)",
				reserved, c.limits.MaxTotalCPUPercent)
		}
	}

	if c.limits.MaxTotalMemoryMB > 0 {
		reserved := float64(count) * c.limits.ContainerMemoryMB
		if reserved+c.limits.ContainerMemoryMB > c.limits.MaxTotalMemoryMB {
			return false, fmt.Sprintf("memory reservation ceiling reached (%.0fMB reserved, %.0fMB ceiling)",
				reserved, c.limits.MaxTotalMemoryMB)
		}
	}

	return true, ""
}
