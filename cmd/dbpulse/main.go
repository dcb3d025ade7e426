package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/savegress/dbpulse/internal/alerts"
	"github.com/savegress/dbpulse/internal/anomaly"
	"github.com/savegress/dbpulse/internal/api"
	"github.com/savegress/dbpulse/internal/baseline"
	"github.com/savegress/dbpulse/internal/config"
	"github.com/savegress/dbpulse/internal/storage"
)

func main() {
	log.Println("Starting DBPulse...")

	cfg := loadConfig()

	store, err := initStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat := cfg.Catalog()
	calculator := baseline.NewCalculator(cat, store, store, cfg.Baseline.TrainingDays)
	resolver := baseline.NewResolver(store)

	var dispatcher alerts.Dispatcher = &alerts.LogDispatcher{}
	if cfg.Alerts.Webhook != nil && cfg.Alerts.Webhook.URL != "" {
		dispatcher = alerts.NewWebhookDispatcher(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Headers)
	}

	detector := anomaly.NewDetector(cat, store, resolver, store, dispatcher, nil)
	manager := anomaly.NewManager(store)

	// Periodic detection and baseline recalculation per instance
	go runScheduler(ctx, cfg, calculator, detector, store)

	server := api.NewServer(cat, calculator, detector, manager, store, store)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("DBPulse API listening on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down DBPulse...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	cancel()

	log.Println("DBPulse stopped")
}

// runScheduler drives the periodic baseline and detection runs. Each
// tick processes configured instances sequentially; a failed instance
// never blocks the others.
func runScheduler(ctx context.Context, cfg *config.Config, calculator *baseline.Calculator, detector *anomaly.Detector, store storage.Store) {
	detectTicker := time.NewTicker(cfg.Detection.Interval.Std())
	baselineTicker := time.NewTicker(cfg.Baseline.Interval.Std())
	defer detectTicker.Stop()
	defer baselineTicker.Stop()

	// Prime baselines on startup so detection has something to work with
	for _, instance := range cfg.Instances {
		calculator.CalculateBaselines(ctx, instance)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-detectTicker.C:
			for _, instance := range cfg.Instances {
				found := detector.DetectAnomalies(ctx, instance)
				if len(found) > 0 {
					log.Printf("detect: %s: %d anomalies", instance, len(found))
				}
			}
		case <-baselineTicker.C:
			for _, instance := range cfg.Instances {
				calculator.CalculateBaselines(ctx, instance)
			}
			// Samples older than the training window never feed
			// another baseline
			retention := time.Duration(cfg.Baseline.TrainingDays) * 24 * time.Hour
			if purged, err := store.PurgeSamples(ctx, retention); err != nil {
				log.Printf("purge: %v", err)
			} else if purged > 0 {
				log.Printf("purge: removed %d expired samples", purged)
			}
		}
	}
}

func loadConfig() *config.Config {
	configPath := os.Getenv("DBPULSE_CONFIG")
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Printf("Failed to load config from %s: %v, using defaults", configPath, err)
			return config.LoadFromEnv()
		}
		return cfg
	}
	return config.LoadFromEnv()
}

func initStorage(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "postgres":
		if cfg.Storage.Postgres == nil || cfg.Storage.Postgres.URL == "" {
			return nil, fmt.Errorf("postgres storage requires a url")
		}
		return storage.NewPostgresStore(cfg.Storage.Postgres.URL)

	default:
		dataPath := "/var/lib/dbpulse/data"
		if cfg.Storage.Embedded != nil && cfg.Storage.Embedded.Path != "" {
			dataPath = cfg.Storage.Embedded.Path
		}
		if cfg.Server.Environment == "development" {
			dataPath = "/tmp/dbpulse/data"
		}
		return storage.NewEmbeddedStore(dataPath)
	}
}
