package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/organica-ai/nishub/pkg/api"
	"github.com/organica-ai/nishub/pkg/config"
	"github.com/organica-ai/nishub/pkg/heartbeat"
	"github.com/organica-ai/nishub/pkg/hub"
	nishubjson "github.com/organica-ai/nishub/pkg/json"
	"github.com/organica-ai/nishub/pkg/monitoring"
	"github.com/organica-ai/nishub/pkg/pipeline"
	"github.com/organica-ai/nishub/pkg/registry"
	"github.com/organica-ai/nishub/pkg/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (yaml)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	log.Printf("Starting NIS Hub coordination server")
	log.Printf("Storage: %s, heartbeat interval: %s, timeout: %s",
		cfg.Storage.Type, cfg.Heartbeat.Interval, cfg.Heartbeat.Timeout())

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	var metrics *monitoring.Metrics
	if cfg.Monitoring.Enabled {
		metrics = monitoring.NewMetrics(cfg.Monitoring.Namespace)
	}

	eventHub := hub.New(cfg.Hub.QueueSize, cfg.Hub.LagStrikeLimit)
	if metrics != nil {
		metrics.RegisterHubStats(func() monitoring.HubStats {
			stats := eventHub.Stats()
			return monitoring.HubStats{
				Subscribers:    stats.Subscribers,
				DroppedEvents:  stats.DroppedEvents,
				LagDisconnects: stats.LagDisconnects,
			}
		})
	}

	chain := pipeline.NewChain(cfg.Pipeline, nishubjson.New(cfg.Server.JSONLibrary), log.Printf)
	if chain.Len() > 0 {
		log.Printf("Validation pipeline enabled with %d stage(s)", chain.Len())
	}

	reg := registry.New(store, eventHub, chain, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restored, err := reg.Restore(ctx)
	if err != nil {
		log.Fatalf("Failed to restore roster: %v", err)
	}
	if restored > 0 {
		log.Printf("Restored %d node(s) from storage (offline until they heartbeat)", restored)
	}

	monitor := heartbeat.NewMonitor(reg, cfg.Heartbeat.Interval, cfg.Heartbeat.Timeout())
	monitor.Start(ctx)

	server := api.NewServer(cfg.Server, reg, eventHub, store, metrics)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	monitor.Stop()
	eventHub.Close()
	if err := server.Stop(shutdownTimeout); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	reg.Close()
	log.Printf("Shutdown complete")
}
