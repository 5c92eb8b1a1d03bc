package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Playcade/GO-HOSTING/hosting/ports"
	"github.com/Playcade/GO-HOSTING/hosting/runtime"
	"github.com/Playcade/GO-HOSTING/hosting/store"
	"github.com/Playcade/GO-HOSTING/shared/config"
	"github.com/Playcade/GO-HOSTING/shared/models"
)

// fakeRuntime implements runtime.ContainerRuntime in memory and records calls
// so tests can assert exactly which runtime operations the pipeline performed.
type fakeRuntime struct {
	mu         sync.Mutex
	builds     int
	runs       int
	stops      []string
	removed    []string
	images     []string
	failBuild  error
	failRun    error
	statsValue runtime.Stats
	failStats  error
	logLines   []string
	failLogs   error
}

func (f *fakeRuntime) BuildImage(ctx context.Context, spec runtime.BuildSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	if f.failBuild != nil {
		return "", f.failBuild
	}
	return spec.Tag, nil
}

func (f *fakeRuntime) RunContainer(ctx context.Context, imageRef string, opts runtime.RunOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	if f.failRun != nil {
		return "", f.failRun
	}
	return fmt.Sprintf("ctr-%d", f.runs), nil
}

func (f *fakeRuntime) StopContainer(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, ref)
	return nil
}

func (f *fakeRuntime) RemoveContainer(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, ref)
	return nil
}

func (f *fakeRuntime) RemoveImage(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, ref)
	return nil
}

func (f *fakeRuntime) Stats(ctx context.Context, ref string) (runtime.Stats, error) {
	if f.failStats != nil {
		return runtime.Stats{}, f.failStats
	}
	return f.statsValue, nil
}

func (f *fakeRuntime) Logs(ctx context.Context, ref string, tail int) ([]string, error) {
	if f.failLogs != nil {
		return nil, f.failLogs
	}
	return f.logLines, nil
}

type allowAll struct{}

func (allowAll) CanAdmit() (bool, string) { return true, "" }

type denyAll struct{}

func (denyAll) CanAdmit() (bool, string) { return false, "container limit reached (3/3)" }

type fakeDeregisterer struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeDeregisterer) Unregister(ctx context.Context, serverID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, serverID)
	return nil
}

func testConfig() *config.HostingServiceConfig {
	return &config.HostingServiceConfig{
		BaseImage:           "node:20-alpine",
		ContainerPort:       3000,
		MaxCodeSizeBytes:    1024,
		LogTailLines:        50,
		ContainerMemoryMB:   256,
		ContainerCPUPercent: 50,
		MatchmakerURL:       "http://matchmaker:8083",
	}
}

func newTestService(t *testing.T, rt *fakeRuntime, adm AdmissionChecker, portCount int) (*HostingService, *store.InstanceStore, *ports.Allocator) {
	t.Helper()
	instances := store.NewInstanceStore()
	allocator, err := ports.NewAllocator(41000, 41000+portCount-1)
	if err != nil {
		t.Fatalf("NewAllocator failed: %v", err)
	}
	hs := NewHostingService(instances, allocator, adm, rt, nil, nil, testConfig())
	return hs, instances, allocator
}

func TestProvisionSuccess(t *testing.T) {
	rt := &fakeRuntime{}
	hs, instances, _ := newTestService(t, rt, allowAll{}, 4)

	inst, err := hs.Provision(context.Background(), "module.exports = {}", "pong", "a pong clone")
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}
	if inst.Status != models.StatusRunning {
		t.Fatalf("status = %q, want running", inst.Status)
	}
	if inst.Port == 0 || inst.ContainerRef == "" || inst.ImageRef == "" {
		t.Fatalf("instance missing launch details: %+v", inst)
	}

	stored, err := instances.Get(inst.ServerID)
	if err != nil {
		t.Fatalf("instance not recorded: %v", err)
	}
	if stored.Port != inst.Port {
		t.Fatalf("recorded port %d != returned port %d", stored.Port, inst.Port)
	}
}

func TestProvisionPortsAreUniqueAcrossInstances(t *testing.T) {
	rt := &fakeRuntime{}
	hs, _, _ := newTestService(t, rt, allowAll{}, 8)

	seen := make(map[int]bool)
	for i := 0; i < 5; i++ {
		inst, err := hs.Provision(context.Background(), "// game", fmt.Sprintf("g%d", i), "")
		if err != nil {
			t.Fatalf("Provision() %d failed: %v", i, err)
		}
		if seen[inst.Port] {
			t.Fatalf("port %d assigned to two live instances", inst.Port)
		}
		seen[inst.Port] = true
	}
}

func TestProvisionRejectsEmptyAndOversizedCode(t *testing.T) {
	rt := &fakeRuntime{}
	hs, _, _ := newTestService(t, rt, allowAll{}, 2)

	if _, err := hs.Provision(context.Background(), "   \n", "g", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Provision(empty) = %v, want ErrInvalidInput", err)
	}

	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'x'
	}
	if _, err := hs.Provision(context.Background(), string(big), "g", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Provision(oversized) = %v, want ErrInvalidInput", err)
	}

	if rt.builds != 0 || rt.runs != 0 {
		t.Fatalf("runtime touched on invalid input: builds=%d runs=%d", rt.builds, rt.runs)
	}
}

func TestProvisionDeniedByAdmission(t *testing.T) {
	rt := &fakeRuntime{}
	hs, instances, allocator := newTestService(t, rt, denyAll{}, 2)

	_, err := hs.Provision(context.Background(), "// game", "g", "")
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("Provision() = %v, want ErrResourceExhausted", err)
	}
	if rt.builds != 0 || rt.runs != 0 {
		t.Fatalf("runtime touched on admission denial: builds=%d runs=%d", rt.builds, rt.runs)
	}
	if allocator.LeasedCount() != 0 {
		t.Fatalf("port leaked on admission denial: %d leased", allocator.LeasedCount())
	}
	if len(instances.List()) != 0 {
		t.Fatal("instance recorded despite admission denial")
	}
}

func TestProvisionBuildFailure(t *testing.T) {
	rt := &fakeRuntime{failBuild: errors.New("syntax error in Dockerfile")}
	hs, instances, allocator := newTestService(t, rt, allowAll{}, 2)

	_, err := hs.Provision(context.Background(), "// game", "g", "")
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("Provision() = %v, want ErrBuildFailed", err)
	}
	if rt.runs != 0 {
		t.Fatal("launch attempted after failed build")
	}
	if allocator.LeasedCount() != 0 {
		t.Fatalf("port leaked on build failure: %d leased", allocator.LeasedCount())
	}
	if len(instances.List()) != 0 {
		t.Fatal("instance recorded despite build failure")
	}
}

func TestProvisionLaunchFailureRollsBack(t *testing.T) {
	rt := &fakeRuntime{failRun: errors.New("port bind refused")}
	hs, instances, allocator := newTestService(t, rt, allowAll{}, 2)

	_, err := hs.Provision(context.Background(), "// game", "g", "")
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("Provision() = %v, want ErrLaunchFailed", err)
	}
	if len(instances.List()) != 0 {
		t.Fatal("instance recorded despite launch failure")
	}
	if allocator.LeasedCount() != 0 {
		t.Fatalf("port not released after launch failure: %d leased", allocator.LeasedCount())
	}
	if len(rt.images) != 1 {
		t.Fatalf("built image not cleaned up after launch failure: %v", rt.images)
	}

	// The released port must be available to the next attempt.
	rt.failRun = nil
	inst, err := hs.Provision(context.Background(), "// game", "g2", "")
	if err != nil {
		t.Fatalf("Provision() after rollback failed: %v", err)
	}
	if inst.Port != 41000 {
		t.Fatalf("port %d not reused after rollback, want 41000", inst.Port)
	}
}

func TestProvisionPortExhaustion(t *testing.T) {
	rt := &fakeRuntime{}
	hs, _, _ := newTestService(t, rt, allowAll{}, 1)

	if _, err := hs.Provision(context.Background(), "// game", "g1", ""); err != nil {
		t.Fatalf("first Provision() failed: %v", err)
	}
	_, err := hs.Provision(context.Background(), "// game", "g2", "")
	if !errors.Is(err, ports.ErrNoPortAvailable) {
		t.Fatalf("Provision() = %v, want ErrNoPortAvailable", err)
	}
	// The image built for the failed attempt must be released.
	if len(rt.images) != 1 {
		t.Fatalf("built image not cleaned up on port exhaustion: %v", rt.images)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rt := &fakeRuntime{}
	hs, _, _ := newTestService(t, rt, allowAll{}, 2)

	inst, err := hs.Provision(context.Background(), "// game", "g", "")
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}

	first, err := hs.Stop(context.Background(), inst.ServerID)
	if err != nil {
		t.Fatalf("first Stop() failed: %v", err)
	}
	if first.Status != models.StatusStopped {
		t.Fatalf("status after stop = %q, want stopped", first.Status)
	}

	second, err := hs.Stop(context.Background(), inst.ServerID)
	if err != nil {
		t.Fatalf("second Stop() failed: %v", err)
	}
	if second.Status != models.StatusStopped {
		t.Fatalf("status after second stop = %q, want stopped", second.Status)
	}
	if len(rt.stops) != 1 {
		t.Fatalf("runtime stop called %d times, want 1", len(rt.stops))
	}
}

func TestStopUnknownInstance(t *testing.T) {
	rt := &fakeRuntime{}
	hs, _, _ := newTestService(t, rt, allowAll{}, 1)

	if _, err := hs.Stop(context.Background(), "missing"); !errors.Is(err, store.ErrInstanceNotFound) {
		t.Fatalf("Stop(unknown) = %v, want ErrInstanceNotFound", err)
	}
}

func TestRemoveReleasesEverything(t *testing.T) {
	rt := &fakeRuntime{}
	dereg := &fakeDeregisterer{}
	instances := store.NewInstanceStore()
	allocator, err := ports.NewAllocator(41000, 41001)
	if err != nil {
		t.Fatalf("NewAllocator failed: %v", err)
	}
	hs := NewHostingService(instances, allocator, allowAll{}, rt, dereg, nil, testConfig())

	inst, err := hs.Provision(context.Background(), "// game", "g", "")
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}

	removed, err := hs.Remove(context.Background(), inst.ServerID)
	if err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if removed.Status != models.StatusRemoved {
		t.Fatalf("status after remove = %q, want removed", removed.Status)
	}
	if _, err := instances.Get(inst.ServerID); !errors.Is(err, store.ErrInstanceNotFound) {
		t.Fatalf("Get() after remove = %v, want ErrInstanceNotFound", err)
	}
	if len(hs.List()) != 0 {
		t.Fatal("removed instance still listed")
	}
	if allocator.LeasedCount() != 0 {
		t.Fatalf("port not released on remove: %d leased", allocator.LeasedCount())
	}
	if len(rt.removed) != 1 || len(rt.images) != 1 {
		t.Fatalf("container/image not released: containers=%v images=%v", rt.removed, rt.images)
	}
	if len(dereg.ids) != 1 || dereg.ids[0] != inst.ServerID {
		t.Fatalf("matchmaker unregister not called for %s: %v", inst.ServerID, dereg.ids)
	}

	if _, err := hs.Remove(context.Background(), inst.ServerID); !errors.Is(err, store.ErrInstanceNotFound) {
		t.Fatalf("second Remove() = %v, want ErrInstanceNotFound", err)
	}
}

func TestRefreshStatsUpdatesUsage(t *testing.T) {
	rt := &fakeRuntime{statsValue: runtime.Stats{CPUPercent: 12.5, MemoryMB: 64, Running: true}}
	hs, _, _ := newTestService(t, rt, allowAll{}, 1)

	inst, err := hs.Provision(context.Background(), "// game", "g", "")
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}

	refreshed, err := hs.RefreshStats(context.Background(), inst.ServerID)
	if err != nil {
		t.Fatalf("RefreshStats() failed: %v", err)
	}
	if refreshed.Usage.CPUPercent != 12.5 || refreshed.Usage.MemoryMB != 64 {
		t.Fatalf("usage not refreshed: %+v", refreshed.Usage)
	}
	if refreshed.Status != models.StatusRunning {
		t.Fatalf("status = %q, want running", refreshed.Status)
	}
}

func TestRefreshStatsMarksExitedContainerAsError(t *testing.T) {
	rt := &fakeRuntime{statsValue: runtime.Stats{Running: false}}
	hs, _, _ := newTestService(t, rt, allowAll{}, 1)

	inst, err := hs.Provision(context.Background(), "// game", "g", "")
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}

	refreshed, err := hs.RefreshStats(context.Background(), inst.ServerID)
	if err != nil {
		t.Fatalf("RefreshStats() failed: %v", err)
	}
	if refreshed.Status != models.StatusError {
		t.Fatalf("status = %q, want error after unexpected exit", refreshed.Status)
	}
}

func TestRefreshStatsFallsBackToCacheOnRuntimeFailure(t *testing.T) {
	rt := &fakeRuntime{failStats: errors.New("daemon unreachable")}
	hs, _, _ := newTestService(t, rt, allowAll{}, 1)

	inst, err := hs.Provision(context.Background(), "// game", "g", "")
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}

	cached, err := hs.RefreshStats(context.Background(), inst.ServerID)
	if err != nil {
		t.Fatalf("RefreshStats() should not fail when the runtime is unreachable: %v", err)
	}
	if cached.Status != models.StatusRunning {
		t.Fatalf("status changed on unreachable runtime: %q", cached.Status)
	}
}

func TestFetchLogsCachesAndFallsBack(t *testing.T) {
	rt := &fakeRuntime{logLines: []string{"boot", "listening on 3000"}}
	hs, _, _ := newTestService(t, rt, allowAll{}, 1)

	inst, err := hs.Provision(context.Background(), "// game", "g", "")
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}

	lines, err := hs.FetchLogs(context.Background(), inst.ServerID, 10)
	if err != nil {
		t.Fatalf("FetchLogs() failed: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("FetchLogs() = %d lines, want 2", len(lines))
	}

	// Runtime goes away: the cached tail must still be served.
	rt.failLogs = errors.New("daemon unreachable")
	cached, err := hs.FetchLogs(context.Background(), inst.ServerID, 10)
	if err != nil {
		t.Fatalf("FetchLogs() should not fail when the runtime is unreachable: %v", err)
	}
	if len(cached) != 2 || cached[0] != "boot" {
		t.Fatalf("cached logs not returned: %v", cached)
	}
}
