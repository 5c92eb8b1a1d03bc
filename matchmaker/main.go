package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	matchmakerapi "github.com/Playcade/GO-HOSTING/matchmaker/api"
	"github.com/Playcade/GO-HOSTING/matchmaker/assign"
	"github.com/Playcade/GO-HOSTING/matchmaker/store"
	"github.com/Playcade/GO-HOSTING/matchmaker/sweeper"
	"github.com/Playcade/GO-HOSTING/shared/api"
	"github.com/Playcade/GO-HOSTING/shared/config"
	"github.com/Playcade/GO-HOSTING/shared/events"
	"github.com/Playcade/GO-HOSTING/shared/metrics"
)

func main() {
	// --- 1. Load Configuration ---
	cfg, err := config.LoadMatchmakerConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Configuration loaded for Matchmaker Service. Listening on: %s (heartbeat timeout %v, sweep interval %v)",
		cfg.ListenAddr, cfg.HeartbeatTimeout, cfg.SweepInterval)

	// --- 2. Initialize Liveness Registry ---
	entryStore := store.NewEntryStore(cfg.HeartbeatTimeout)

	// --- 3. Initialize Event Publisher (optional, NATS) ---
	publisher, err := events.NewPublisher(cfg.NATSUrl, "matchmaker-service")
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer publisher.Close()

	// --- 4. Initialize and Start Eviction Sweeper ---
	evictionSweeper := sweeper.NewSweeper(entryStore, publisher, cfg.SweepInterval)
	evictionSweeper.Start()
	defer evictionSweeper.Stop()

	// --- 5. Initialize Player Assigner ---
	assigner := assign.NewAssigner(entryStore)
	log.Println("Matchmaker business logic initialized.")

	// --- 6. Initialize API Handlers and Register Routes ---
	matchmakerAPIHandlers := matchmakerapi.NewMatchmakerAPIHandlers(entryStore, assigner, publisher, cfg.HeartbeatTimeout)
	baseServer := api.NewBaseServer(cfg.ListenAddr, log.Default())
	matchmakerAPIHandlers.RegisterRoutes(baseServer.Router)
	log.Println("HTTP routes registered.")

	// --- 7. Start Metrics Endpoint ---
	go func() {
		metricsMux := http.NewServeMux()
		metrics.RegisterHandler(metricsMux)
		log.Printf("Metrics server starting on %s...", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, metricsMux); err != nil && err != http.ErrServerClosed {
			log.Printf("ERROR: Metrics server failed: %v", err)
		}
	}()

	// --- 8. Start HTTP Server ---
	go func() {
		log.Printf("HTTP server starting on %s...", cfg.ListenAddr)
		if err := baseServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed to start: %v", err)
		}
	}()

	// --- 9. Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop // Wait for interrupt signal

	log.Println("Shutting down Matchmaker Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := baseServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP server graceful shutdown failed: %v", err)
	}
	log.Println("Matchmaker Service HTTP server gracefully stopped.")
	log.Println("Matchmaker Service gracefully shut down.")
}
