// shared/config/config.go
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// CommonConfig holds configuration fields that are shared across multiple services.
type CommonConfig struct {
	ServiceIP   string // The IP address this service advertises (Kubernetes Pod IP)
	ServicePort int    // The port this service listens on
	NATSUrl     string // NATS server URL for lifecycle events; empty disables publishing
	MetricsAddr string // Address for the Prometheus metrics endpoint (e.g., ":9090")
}

// HostingServiceConfig holds configuration specific to the hosting-service.
type HostingServiceConfig struct {
	CommonConfig                // Embed CommonConfig
	ListenAddr          string  // Address for the HTTP server (e.g., ":8082")
	MatchmakerURL       string  // Base URL of the matchmaker service, used for remove-time unregister
	BaseImage           string  // Base image for game server containers (e.g., "node:20-alpine")
	ContainerPort       int     // Port the game scaffold listens on inside the container
	PortRangeStart      int     // First host port handed out to game servers (inclusive)
	PortRangeEnd        int     // Last host port handed out to game servers (inclusive)
	MaxContainers       int     // Ceiling on simultaneously admitted containers
	ContainerCPUPercent float64 // CPU reservation per container, in percent of one core
	ContainerMemoryMB   int64   // Memory reservation per container, in MB
	MaxTotalCPUPercent  float64 // Ceiling on aggregate CPU reservation across all containers
	MaxTotalMemoryMB    float64 // Ceiling on aggregate memory reservation across all containers
	MaxCodeSizeBytes    int     // Ceiling on submitted game code size
	LogTailLines        int     // Number of log lines retained per instance
}

// MatchmakerConfig holds configuration specific to the matchmaker-service.
type MatchmakerConfig struct {
	CommonConfig                   // Embed CommonConfig
	ListenAddr       string        // Address for the HTTP server to listen on (e.g., ":8083")
	HeartbeatTimeout time.Duration // How long a server stays live without a heartbeat (e.g., 15s)
	SweepInterval    time.Duration // How often the eviction sweeper scans for lapsed entries (e.g., 5s)
}

// LoadCommonConfig loads common configuration from environment variables.
func LoadCommonConfig() (CommonConfig, error) {
	cfg := CommonConfig{}

	// Service IP (for registration, from Kubernetes Pod IP)
	cfg.ServiceIP = os.Getenv("POD_IP") // Injected by Kubernetes
	if cfg.ServiceIP == "" {
		// Fallback for local development outside K8s or if not injected
		cfg.ServiceIP = "0.0.0.0"
		fmt.Printf("WARNING: POD_IP not set, defaulting ServiceIP to %s\n", cfg.ServiceIP)
	}

	cfg.NATSUrl = os.Getenv("NATS_URL") // Empty means lifecycle events are disabled

	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}

	return cfg, nil
}

// Helper function to parse duration from environment variable
func getDuration(envKey string, defaultVal time.Duration) (time.Duration, error) {
	valStr := os.Getenv(envKey)
	if valStr == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format for %s: %w", envKey, err)
	}
	return d, nil
}

// Helper function to parse int from environment variable
func getInt(envKey string, defaultVal int) (int, error) {
	valStr := os.Getenv(envKey)
	if valStr == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer format for %s: %w", envKey, err)
	}
	return i, nil
}

// Helper function to parse float from environment variable
func getFloat(envKey string, defaultVal float64) (float64, error) {
	valStr := os.Getenv(envKey)
	if valStr == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float format for %s: %w", envKey, err)
	}
	return f, nil
}

// extractPort extracts the numeric port from a listen address (e.g., ":8082" -> 8082, "0.0.0.0:8082" -> 8082)
func extractPort(listenAddr string) (int, error) {
	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		// If SplitHostPort fails, check if ListenAddr is just a port (e.g., ":8082")
		if strings.HasPrefix(listenAddr, ":") {
			portStr = strings.TrimPrefix(listenAddr, ":")
		} else {
			return 0, fmt.Errorf("invalid ListenAddr format for port extraction: %w", err)
		}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port number '%s': %w", portStr, err)
	}
	return port, nil
}

// LoadHostingServiceConfig loads configuration for the hosting-service.
func LoadHostingServiceConfig() (*HostingServiceConfig, error) {
	common, err := LoadCommonConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load common config for hosting-service: %w", err)
	}

	cfg := &HostingServiceConfig{
		CommonConfig:  common,
		ListenAddr:    os.Getenv("HOSTING_SERVICE_LISTEN_ADDR"),
		MatchmakerURL: os.Getenv("MATCHMAKER_URL"),
		BaseImage:     os.Getenv("HOSTING_BASE_IMAGE"),
	}

	// Apply defaults for specific fields if not set
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8082"
	}
	if cfg.MatchmakerURL == "" {
		cfg.MatchmakerURL = "http://matchmaker-service:8083" // Default for K8s internal DNS
	}
	if cfg.BaseImage == "" {
		cfg.BaseImage = "node:20-alpine"
	}

	// Extract ServicePort from ListenAddr
	cfg.ServicePort, err = extractPort(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to extract port from HOSTING_SERVICE_LISTEN_ADDR '%s': %w", cfg.ListenAddr, err)
	}

	cfg.ContainerPort, err = getInt("HOSTING_CONTAINER_PORT", 3000)
	if err != nil {
		return nil, err
	}
	cfg.PortRangeStart, err = getInt("HOSTING_PORT_RANGE_START", 30000)
	if err != nil {
		return nil, err
	}
	cfg.PortRangeEnd, err = getInt("HOSTING_PORT_RANGE_END", 30099)
	if err != nil {
		return nil, err
	}
	cfg.MaxContainers, err = getInt("HOSTING_MAX_CONTAINERS", 16)
	if err != nil {
		return nil, err
	}
	cfg.ContainerCPUPercent, err = getFloat("HOSTING_CONTAINER_CPU_PERCENT", 50)
	if err != nil {
		return nil, err
	}
	containerMemMB, err := getInt("HOSTING_CONTAINER_MEMORY_MB", 256)
	if err != nil {
		return nil, err
	}
	cfg.ContainerMemoryMB = int64(containerMemMB)
	cfg.MaxTotalCPUPercent, err = getFloat("HOSTING_MAX_TOTAL_CPU_PERCENT", 400)
	if err != nil {
		return nil, err
	}
	cfg.MaxTotalMemoryMB, err = getFloat("HOSTING_MAX_TOTAL_MEMORY_MB", 4096)
	if err != nil {
		return nil, err
	}
	cfg.MaxCodeSizeBytes, err = getInt("HOSTING_MAX_CODE_SIZE_BYTES", 256*1024)
	if err != nil {
		return nil, err
	}
	cfg.LogTailLines, err = getInt("HOSTING_LOG_TAIL_LINES", 100)
	if err != nil {
		return nil, err
	}

	// Final validation for the port range and ceilings
	if cfg.PortRangeStart <= 0 || cfg.PortRangeEnd < cfg.PortRangeStart {
		return nil, fmt.Errorf("invalid game server port range %d-%d", cfg.PortRangeStart, cfg.PortRangeEnd)
	}
	if cfg.MaxContainers <= 0 {
		return nil, fmt.Errorf("HOSTING_MAX_CONTAINERS must be a positive integer (got %d)", cfg.MaxContainers)
	}

	return cfg, nil
}

// LoadMatchmakerConfig loads configuration for the matchmaker-service.
func LoadMatchmakerConfig() (*MatchmakerConfig, error) {
	common, err := LoadCommonConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load common config for matchmaker-service: %w", err)
	}

	cfg := &MatchmakerConfig{
		CommonConfig: common,
		ListenAddr:   os.Getenv("MATCHMAKER_LISTEN_ADDR"),
	}

	// Apply defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8083"
	}

	// Extract ServicePort from ListenAddr
	cfg.ServicePort, err = extractPort(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to extract port from MATCHMAKER_LISTEN_ADDR '%s': %w", cfg.ListenAddr, err)
	}

	// Durations
	cfg.HeartbeatTimeout, err = getDuration("MATCHMAKER_HEARTBEAT_TIMEOUT", 15*time.Second)
	if err != nil {
		return cfg, err
	}
	cfg.SweepInterval, err = getDuration("MATCHMAKER_SWEEP_INTERVAL", 5*time.Second)
	if err != nil {
		return cfg, err
	}

	if cfg.HeartbeatTimeout <= 0 {
		return nil, fmt.Errorf("MATCHMAKER_HEARTBEAT_TIMEOUT must be positive (got %v)", cfg.HeartbeatTimeout)
	}
	if cfg.SweepInterval <= 0 || cfg.SweepInterval >= cfg.HeartbeatTimeout {
		return nil, fmt.Errorf("MATCHMAKER_SWEEP_INTERVAL (%v) must be positive and shorter than MATCHMAKER_HEARTBEAT_TIMEOUT (%v)", cfg.SweepInterval, cfg.HeartbeatTimeout)
	}

	return cfg, nil
}
