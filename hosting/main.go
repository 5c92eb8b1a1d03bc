package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Playcade/GO-HOSTING/hosting/admission"
	hostingapi "github.com/Playcade/GO-HOSTING/hosting/api"
	"github.com/Playcade/GO-HOSTING/hosting/ports"
	"github.com/Playcade/GO-HOSTING/hosting/runtime"
	"github.com/Playcade/GO-HOSTING/hosting/service"
	"github.com/Playcade/GO-HOSTING/hosting/store"
	"github.com/Playcade/GO-HOSTING/shared/api"
	"github.com/Playcade/GO-HOSTING/shared/config"
	"github.com/Playcade/GO-HOSTING/shared/events"
	"github.com/Playcade/GO-HOSTING/shared/metrics"
	matchmakerclient "github.com/Playcade/GO-HOSTING/shared/service"
)

func main() {
	// --- 1. Load Configuration ---
	cfg, err := config.LoadHostingServiceConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Configuration loaded for Hosting Service. Listening on: %s", cfg.ListenAddr)

	// --- 2. Connect to the Container Runtime ---
	dockerRuntime, err := runtime.NewDockerRuntime()
	if err != nil {
		log.Fatalf("Failed to create Docker runtime: %v", err)
	}
	defer func() {
		if err := dockerRuntime.Close(); err != nil {
			log.Printf("ERROR: Failed to close Docker client: %v", err)
		}
	}()
	log.Println("Connected to Docker daemon.")

	// --- 3. Initialize Port Allocator and Instance Store ---
	allocator, err := ports.NewAllocator(cfg.PortRangeStart, cfg.PortRangeEnd)
	if err != nil {
		log.Fatalf("Failed to create port allocator: %v", err)
	}
	instanceStore := store.NewInstanceStore()

	// --- 4. Initialize Admission Controller ---
	admissionController := admission.NewController(instanceStore, admission.Limits{
		MaxContainers:       cfg.MaxContainers,
		ContainerCPUPercent: cfg.ContainerCPUPercent,
		ContainerMemoryMB:   float64(cfg.ContainerMemoryMB),
		MaxTotalCPUPercent:  cfg.MaxTotalCPUPercent,
		MaxTotalMemoryMB:    cfg.MaxTotalMemoryMB,
	})

	// --- 5. Initialize Event Publisher (optional, NATS) ---
	publisher, err := events.NewPublisher(cfg.NATSUrl, "hosting-service")
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer publisher.Close()

	// --- 6. Initialize Business Logic Service ---
	matchmaker := matchmakerclient.NewMatchmakerClient(cfg.MatchmakerURL)
	hostingService := service.NewHostingService(
		instanceStore,
		allocator,
		admissionController,
		dockerRuntime,
		matchmaker,
		publisher,
		cfg,
	)
	log.Println("Hosting Service business logic initialized.")

	// --- 7. Initialize API Handlers and Register Routes ---
	hostingAPIHandlers := hostingapi.NewHostingAPIHandlers(hostingService)
	baseServer := api.NewBaseServer(cfg.ListenAddr, log.Default())
	hostingAPIHandlers.RegisterRoutes(baseServer.Router)
	log.Println("HTTP routes registered.")

	// --- 8. Start Metrics Endpoint ---
	go func() {
		metricsMux := http.NewServeMux()
		metrics.RegisterHandler(metricsMux)
		log.Printf("Metrics server starting on %s...", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, metricsMux); err != nil && err != http.ErrServerClosed {
			log.Printf("ERROR: Metrics server failed: %v", err)
		}
	}()

	// --- 9. Start HTTP Server ---
	go func() {
		log.Printf("HTTP server starting on %s...", cfg.ListenAddr)
		if err := baseServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed to start: %v", err)
		}
	}()

	// --- 10. Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop // Wait for interrupt signal

	log.Println("Shutting down Hosting Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := baseServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP server graceful shutdown failed: %v", err)
	}
	log.Println("Hosting Service HTTP server gracefully stopped.")
	log.Println("Hosting Service gracefully shut down.")
}
