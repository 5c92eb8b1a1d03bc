// hosting/runtime/runtime.go
package runtime

import "context"

// BuildSpec describes an image build request: the tag to apply and the
// in-memory build context files (Dockerfile included), as produced by the
// template wrapper.
type BuildSpec struct {
	Tag   string
	Files map[string][]byte
}

// RunOptions describes how to launch a container from a built image.
type RunOptions struct {
	Name          string   // container name, derived from the server id
	HostPort      int      // allocated host port the game is reachable on
	ContainerPort int      // port the scaffold listens on inside the container
	Env           []string // KEY=VALUE pairs injected into the container
	MemoryMB      int64    // hard memory limit, matching the admission reservation
	CPUPercent    float64  // CPU limit in percent of one core, matching the reservation
}

// Stats is a point-in-time resource snapshot for a container. Running is false
// when the container has exited, which the pipeline maps to the error status.
type Stats struct {
	CPUPercent float64
	MemoryMB   float64
	Running    bool
}

// ContainerRuntime is the narrow capability interface the provisioning
// pipeline needs from a container engine. Keeping it small lets tests
// substitute a fake without touching pipeline logic.
type ContainerRuntime interface {
	// BuildImage builds an image from the spec and returns an opaque image ref.
	BuildImage(ctx context.Context, spec BuildSpec) (string, error)
	// RunContainer starts a container from the image and returns an opaque
	// container ref. On failure no container is left behind.
	RunContainer(ctx context.Context, imageRef string, opts RunOptions) (string, error)
	// StopContainer stops a running container.
	StopContainer(ctx context.Context, containerRef string) error
	// RemoveContainer force-removes a container (stopped or not).
	RemoveContainer(ctx context.Context, containerRef string) error
	// RemoveImage removes a built image.
	RemoveImage(ctx context.Context, imageRef string) error
	// Stats returns a live resource snapshot for the container.
	Stats(ctx context.Context, containerRef string) (Stats, error)
	// Logs returns up to tail recent log lines from the container.
	Logs(ctx context.Context, containerRef string, tail int) ([]string, error)
}
