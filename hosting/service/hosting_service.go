// hosting/service/hosting_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Playcade/GO-HOSTING/hosting/ports"
	"github.com/Playcade/GO-HOSTING/hosting/runtime"
	"github.com/Playcade/GO-HOSTING/hosting/store"
	"github.com/Playcade/GO-HOSTING/hosting/template"
	"github.com/Playcade/GO-HOSTING/shared/config"
	"github.com/Playcade/GO-HOSTING/shared/events"
	"github.com/Playcade/GO-HOSTING/shared/metrics"
	"github.com/Playcade/GO-HOSTING/shared/models"
	"github.com/google/uuid"
)

// Error taxonomy for the provisioning pipeline. Use errors.Is for checking;
// details are attached via wrapping.
var (
	// ErrInvalidInput marks a malformed or oversized request. Client error,
	// no side effects.
	ErrInvalidInput = errors.New("invalid input")
	// ErrResourceExhausted marks an admission denial. The client should retry
	// later; nothing was reserved.
	ErrResourceExhausted = errors.New("resource limits reached")
	// ErrBuildFailed marks a container runtime build failure.
	ErrBuildFailed = errors.New("image build failed")
	// ErrLaunchFailed marks a container runtime launch failure. The allocated
	// port has been released and no instance was recorded.
	ErrLaunchFailed = errors.New("container launch failed")
)

// AdmissionChecker gates new provisioning attempts. The admission package
// implements it; tests substitute their own.
type AdmissionChecker interface {
	CanAdmit() (bool, string)
}

// MatchmakerDeregisterer removes a server from the matchmaker when its
// instance is deleted. The shared matchmaker client implements it; a nil
// value disables the cleanup.
type MatchmakerDeregisterer interface {
	Unregister(ctx context.Context, serverID string) error
}

// HostingService is the container provisioning pipeline. It turns submitted
// game code into a running, port-bound container and records the resulting
// instance in the registry. All container runtime calls happen outside any
// registry lock; the registry is only touched to record outcomes.
type HostingService struct {
	instances  *store.InstanceStore
	ports      *ports.Allocator
	admission  AdmissionChecker
	runtime    runtime.ContainerRuntime
	matchmaker MatchmakerDeregisterer // optional
	events     *events.Publisher      // nil-safe
	cfg        *config.HostingServiceConfig
}

// NewHostingService wires the pipeline with its collaborators. matchmaker and
// publisher may be nil.
func NewHostingService(
	instances *store.InstanceStore,
	allocator *ports.Allocator,
	admission AdmissionChecker,
	containerRuntime runtime.ContainerRuntime,
	matchmaker MatchmakerDeregisterer,
	publisher *events.Publisher,
	cfg *config.HostingServiceConfig,
) *HostingService {
	return &HostingService{
		instances:  instances,
		ports:      allocator,
		admission:  admission,
		runtime:    containerRuntime,
		matchmaker: matchmaker,
		events:     publisher,
		cfg:        cfg,
	}
}

// Provision runs the full pipeline: validate, admit, wrap, build, allocate a
// port, launch, record. Every failure path releases whatever was acquired up
// to that point, so a failed attempt leaves no port lease, no container and
// no registry record behind.
func (hs *HostingService) Provision(ctx context.Context, userCode, name, description string) (*models.GameServerInstance, error) {
	// Step 1: validate the submitted code.
	if strings.TrimSpace(userCode) == "" {
		metrics.ProvisionsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: game code is empty", ErrInvalidInput)
	}
	if len(userCode) > hs.cfg.MaxCodeSizeBytes {
		metrics.ProvisionsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: game code is %d bytes, limit is %d", ErrInvalidInput, len(userCode), hs.cfg.MaxCodeSizeBytes)
	}
	if name == "" {
		name = "game-server"
	}

	// Step 2: admission. Advisory, queried immediately before the attempt.
	if allowed, reason := hs.admission.CanAdmit(); !allowed {
		metrics.ProvisionsTotal.WithLabelValues("denied").Inc()
		return nil, fmt.Errorf("%w: %s", ErrResourceExhausted, reason)
	}

	serverID := uuid.New().String()

	// Step 3: wrap the code into a deployable unit.
	files, err := template.Wrap(template.Params{
		UserCode:      userCode,
		GameName:      name,
		BaseImage:     hs.cfg.BaseImage,
		ContainerPort: hs.cfg.ContainerPort,
	})
	if err != nil {
		metrics.ProvisionsTotal.WithLabelValues("build_failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}

	// Step 4: build the image. Slow; runs outside any lock.
	imageRef, err := hs.runtime.BuildImage(ctx, runtime.BuildSpec{
		Tag:   fmt.Sprintf("playcade/game-%s", serverID),
		Files: files,
	})
	if err != nil {
		metrics.ProvisionsTotal.WithLabelValues("build_failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}

	// Step 5: allocate a host port.
	port, err := hs.ports.Allocate()
	if err != nil {
		hs.removeImageQuietly(imageRef)
		metrics.ProvisionsTotal.WithLabelValues("no_port").Inc()
		return nil, err
	}
	metrics.LeasedPorts.Set(float64(hs.ports.LeasedCount()))

	// Step 6: launch the container bound to the allocated port.
	containerRef, err := hs.runtime.RunContainer(ctx, imageRef, runtime.RunOptions{
		Name:          fmt.Sprintf("game-%s", serverID),
		HostPort:      port,
		ContainerPort: hs.cfg.ContainerPort,
		MemoryMB:      hs.cfg.ContainerMemoryMB,
		CPUPercent:    hs.cfg.ContainerCPUPercent,
		Env: []string{
			fmt.Sprintf("PORT=%d", hs.cfg.ContainerPort),
			fmt.Sprintf("SERVER_ID=%s", serverID),
			fmt.Sprintf("SERVER_NAME=%s", name),
			fmt.Sprintf("MATCHMAKER_URL=%s", hs.cfg.MatchmakerURL),
		},
	})
	if err != nil {
		hs.ports.Release(port)
		metrics.LeasedPorts.Set(float64(hs.ports.LeasedCount()))
		hs.removeImageQuietly(imageRef)
		metrics.ProvisionsTotal.WithLabelValues("launch_failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	// Step 7: record the instance. Only now does it become visible.
	now := time.Now()
	inst := &models.GameServerInstance{
		ServerID:     serverID,
		Name:         name,
		Description:  description,
		Status:       models.StatusRunning,
		ContainerRef: containerRef,
		ImageRef:     imageRef,
		Port:         port,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	hs.instances.Upsert(inst)

	metrics.ProvisionsTotal.WithLabelValues("success").Inc()
	metrics.ActiveInstances.Set(float64(hs.instances.ActiveCount()))
	hs.events.Publish(events.SubjectInstanceProvisioned, inst)
	log.Printf("INFO: Provisioned game server %s (%s) on port %d (container %s)", serverID, name, port, containerRef)

	return inst, nil
}

// Get returns the instance with the given id.
func (hs *HostingService) Get(serverID string) (*models.GameServerInstance, error) {
	return hs.instances.Get(serverID)
}

// List returns a snapshot of all instances.
func (hs *HostingService) List() []*models.GameServerInstance {
	return hs.instances.List()
}

// Stop asks the runtime to stop the backing container and transitions the
// instance to stopped. Stopping an instance that is not running is a no-op
// success, so the operation is idempotent.
func (hs *HostingService) Stop(ctx context.Context, serverID string) (*models.GameServerInstance, error) {
	inst, err := hs.instances.Get(serverID)
	if err != nil {
		return nil, err
	}
	if inst.Status != models.StatusRunning {
		return inst, nil
	}

	// Runtime call first, registry write after. Never the other way around.
	if err := hs.runtime.StopContainer(ctx, inst.ContainerRef); err != nil {
		return nil, fmt.Errorf("failed to stop container for instance %s: %w", serverID, err)
	}

	updated, err := hs.instances.Update(serverID, func(i *models.GameServerInstance) {
		i.Status = models.StatusStopped
	})
	if err != nil {
		return nil, err
	}

	metrics.ActiveInstances.Set(float64(hs.instances.ActiveCount()))
	hs.events.Publish(events.SubjectInstanceStopped, updated)
	log.Printf("INFO: Stopped game server %s", serverID)
	return updated, nil
}

// Remove tears the instance down completely: stops the container if still
// running, releases the container and its image, frees the port and deletes
// the registry record. The returned descriptor carries the terminal removed
// status. Also unregisters the server from the matchmaker, best-effort.
func (hs *HostingService) Remove(ctx context.Context, serverID string) (*models.GameServerInstance, error) {
	inst, err := hs.instances.Get(serverID)
	if err != nil {
		return nil, err
	}

	if inst.Status == models.StatusRunning {
		if err := hs.runtime.StopContainer(ctx, inst.ContainerRef); err != nil {
			// The container may have died on its own; removal below is forced.
			log.Printf("WARNING: Failed to stop container for instance %s during removal: %v", serverID, err)
		}
	}
	if inst.ContainerRef != "" {
		if err := hs.runtime.RemoveContainer(ctx, inst.ContainerRef); err != nil {
			return nil, fmt.Errorf("failed to remove container for instance %s: %w", serverID, err)
		}
	}
	if inst.ImageRef != "" {
		hs.removeImageQuietly(inst.ImageRef)
	}

	if err := hs.instances.Delete(serverID); err != nil {
		return nil, err
	}
	if inst.Port != 0 {
		hs.ports.Release(inst.Port)
		metrics.LeasedPorts.Set(float64(hs.ports.LeasedCount()))
	}

	if hs.matchmaker != nil {
		if err := hs.matchmaker.Unregister(ctx, serverID); err != nil {
			log.Printf("WARNING: Failed to unregister instance %s from matchmaker: %v", serverID, err)
		}
	}

	inst.Status = models.StatusRemoved
	inst.UpdatedAt = time.Now()
	metrics.ActiveInstances.Set(float64(hs.instances.ActiveCount()))
	hs.events.Publish(events.SubjectInstanceRemoved, inst)
	log.Printf("INFO: Removed game server %s (port %d released)", serverID, inst.Port)
	return inst, nil
}

// RefreshStats queries the runtime for a live resource snapshot and updates
// the cached usage. If the runtime cannot be reached, the last cached snapshot
// is returned and the call does not fail. A container found to have exited
// transitions the instance to the error status.
func (hs *HostingService) RefreshStats(ctx context.Context, serverID string) (*models.GameServerInstance, error) {
	inst, err := hs.instances.Get(serverID)
	if err != nil {
		return nil, err
	}
	if inst.ContainerRef == "" || inst.Status != models.StatusRunning {
		return inst, nil
	}

	st, err := hs.runtime.Stats(ctx, inst.ContainerRef)
	if err != nil {
		log.Printf("WARNING: Stats refresh for instance %s failed, returning cached snapshot: %v", serverID, err)
		return inst, nil
	}

	updated, err := hs.instances.Update(serverID, func(i *models.GameServerInstance) {
		i.Usage = models.ResourceUsage{
			CPUPercent:  st.CPUPercent,
			MemoryMB:    st.MemoryMB,
			RefreshedAt: time.Now(),
		}
		if !st.Running && i.Status == models.StatusRunning {
			i.Status = models.StatusError
		}
	})
	if err != nil {
		return nil, err
	}

	if updated.Status == models.StatusError && inst.Status == models.StatusRunning {
		metrics.ActiveInstances.Set(float64(hs.instances.ActiveCount()))
		hs.events.Publish(events.SubjectInstanceErrored, updated)
		log.Printf("WARNING: Game server %s exited unexpectedly, marked as error", serverID)
	}
	return updated, nil
}

// FetchLogs queries the runtime for up to tail recent log lines and refreshes
// the cached tail. If the runtime cannot be reached, the cached lines are
// returned and the call does not fail.
func (hs *HostingService) FetchLogs(ctx context.Context, serverID string, tail int) ([]string, error) {
	inst, err := hs.instances.Get(serverID)
	if err != nil {
		return nil, err
	}
	if tail <= 0 || tail > hs.cfg.LogTailLines {
		tail = hs.cfg.LogTailLines
	}
	if inst.ContainerRef == "" {
		return inst.Logs, nil
	}

	lines, err := hs.runtime.Logs(ctx, inst.ContainerRef, tail)
	if err != nil {
		log.Printf("WARNING: Log fetch for instance %s failed, returning cached tail: %v", serverID, err)
		return inst.Logs, nil
	}

	if _, err := hs.instances.Update(serverID, func(i *models.GameServerInstance) {
		i.Logs = lines
	}); err != nil {
		return nil, err
	}
	return lines, nil
}

// removeImageQuietly releases a built image on a failure or teardown path.
// Image removal is cleanup; its failure must not mask the primary outcome.
func (hs *HostingService) removeImageQuietly(imageRef string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := hs.runtime.RemoveImage(ctx, imageRef); err != nil {
		log.Printf("WARNING: Failed to remove image %s: %v", imageRef, err)
	}
}
