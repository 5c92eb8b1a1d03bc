// hosting/runtime/docker.go
package runtime

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// DockerRuntime implements ContainerRuntime against a Docker Engine reached
// through the standard environment configuration (DOCKER_HOST etc.).
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime creates a Docker-backed runtime. It negotiates the API
// version with the daemon so it works across engine releases.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerRuntime{cli: cli}, nil
}

// Close releases the underlying Docker client.
func (d *DockerRuntime) Close() error {
	return d.cli.Close()
}

// BuildImage tars the build context in memory and runs a daemon-side build.
// Docker reports build failures inside the JSON progress stream rather than
// through the request error, so the stream must be consumed to completion.
func (d *DockerRuntime) BuildImage(ctx context.Context, spec BuildSpec) (string, error) {
	buildCtx, err := tarBuildContext(spec.Files)
	if err != nil {
		return "", fmt.Errorf("failed to assemble build context: %w", err)
	}

	resp, err := d.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{spec.Tag},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return "", fmt.Errorf("image build request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, io.Discard, 0, false, nil); err != nil {
		return "", fmt.Errorf("image build failed: %w", err)
	}
	return spec.Tag, nil
}

// RunContainer creates and starts a container bound to the allocated host
// port, with the admission reservations applied as hard limits.
func (d *DockerRuntime) RunContainer(ctx context.Context, imageRef string, opts RunOptions) (string, error) {
	exposed := nat.Port(fmt.Sprintf("%d/tcp", opts.ContainerPort))

	created, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        imageRef,
			Env:          opts.Env,
			ExposedPorts: nat.PortSet{exposed: struct{}{}},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				exposed: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(opts.HostPort)}},
			},
			Resources: container.Resources{
				Memory:   opts.MemoryMB * 1024 * 1024,
				NanoCPUs: int64(opts.CPUPercent / 100 * 1e9),
			},
			RestartPolicy: container.RestartPolicy{Name: "no"},
		},
		nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("container create failed: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
		// Remove the created-but-unstarted container so a failed launch leaves
		// nothing behind on the host.
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = d.cli.ContainerRemove(rmCtx, created.ID, types.ContainerRemoveOptions{Force: true})
		return "", fmt.Errorf("container start failed: %w", err)
	}
	return created.ID, nil
}

// StopContainer stops the container with a grace period.
func (d *DockerRuntime) StopContainer(ctx context.Context, containerRef string) error {
	timeout := 10 // seconds
	if err := d.cli.ContainerStop(ctx, containerRef, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("container stop failed for %s: %w", containerRef, err)
	}
	return nil
}

// RemoveContainer force-removes the container and its anonymous volumes.
func (d *DockerRuntime) RemoveContainer(ctx context.Context, containerRef string) error {
	err := d.cli.ContainerRemove(ctx, containerRef, types.ContainerRemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil {
		return fmt.Errorf("container remove failed for %s: %w", containerRef, err)
	}
	return nil
}

// RemoveImage removes the image built for an instance.
func (d *DockerRuntime) RemoveImage(ctx context.Context, imageRef string) error {
	_, err := d.cli.ImageRemove(ctx, imageRef, types.ImageRemoveOptions{
		Force:         true,
		PruneChildren: true,
	})
	if err != nil {
		return fmt.Errorf("image remove failed for %s: %w", imageRef, err)
	}
	return nil
}

// Stats inspects the container and, when it is running, takes a one-shot
// stats sample. A container that has exited reports Running=false with zero
// usage, which the pipeline maps to the error status.
func (d *DockerRuntime) Stats(ctx context.Context, containerRef string) (Stats, error) {
	inspect, err := d.cli.ContainerInspect(ctx, containerRef)
	if err != nil {
		return Stats{}, fmt.Errorf("container inspect failed for %s: %w", containerRef, err)
	}

	st := Stats{Running: inspect.State != nil && inspect.State.Running}
	if !st.Running {
		return st, nil
	}

	resp, err := d.cli.ContainerStatsOneShot(ctx, containerRef)
	if err != nil {
		return Stats{}, fmt.Errorf("container stats failed for %s: %w", containerRef, err)
	}
	defer resp.Body.Close()

	var raw types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Stats{}, fmt.Errorf("failed to decode stats for %s: %w", containerRef, err)
	}

	st.CPUPercent = calculateCPUPercent(&raw)
	st.MemoryMB = float64(raw.MemoryStats.Usage) / (1024 * 1024)
	return st, nil
}

// Logs fetches up to tail recent lines from the container's stdout and stderr.
// Docker multiplexes both streams into one connection, so stdcopy demuxes them.
func (d *DockerRuntime) Logs(ctx context.Context, containerRef string, tail int) ([]string, error) {
	rc, err := d.cli.ContainerLogs(ctx, containerRef, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return nil, fmt.Errorf("container logs failed for %s: %w", containerRef, err)
	}
	defer rc.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		return nil, fmt.Errorf("failed to read log stream for %s: %w", containerRef, err)
	}
	if out.Len() == 0 {
		return nil, nil
	}
	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n"), nil
}

// tarBuildContext packs the in-memory build files into a tar stream the
// Docker daemon accepts as a build context.
func tarBuildContext(files map[string][]byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, data := range files {
		hdr := &tar.Header{
			Name:    name,
			Mode:    0o644,
			Size:    int64(len(data)),
			ModTime: time.Now(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("failed to write tar header for %s: %w", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write tar entry for %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// calculateCPUPercent derives a CPU percentage from a stats sample using the
// same delta formula as the docker CLI.
func calculateCPUPercent(s *types.StatsJSON) float64 {
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(s.CPUStats.SystemUsage) - float64(s.PreCPUStats.SystemUsage)
	if sysDelta <= 0 || cpuDelta <= 0 {
		return 0
	}
	online := float64(s.CPUStats.OnlineCPUs)
	if online == 0 {
		online = float64(len(s.CPUStats.CPUUsage.PercpuUsage))
	}
	return cpuDelta / sysDelta * online * 100.0
}
