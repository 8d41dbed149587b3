package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrops-br/offline-catalog/internal/app/service"
	"github.com/mrops-br/offline-catalog/internal/domain"
	"github.com/mrops-br/offline-catalog/internal/infrastructure/config"
	"github.com/mrops-br/offline-catalog/internal/infrastructure/connectivity"
	"github.com/mrops-br/offline-catalog/internal/infrastructure/http"
	"github.com/mrops-br/offline-catalog/internal/infrastructure/http/handler"
	"github.com/mrops-br/offline-catalog/internal/infrastructure/remote"
	"github.com/mrops-br/offline-catalog/internal/infrastructure/repository/boltdb"
	"github.com/mrops-br/offline-catalog/internal/infrastructure/repository/memory"
	"github.com/mrops-br/offline-catalog/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "offline-catalog"

func main() {
	cfg := config.LoadConfig()

	var telem *telemetry.Telemetry
	if cfg.OTLP.ExportEnabled {
		var err error
		telem, err = telemetry.NewTelemetry(&cfg.OTLP, &cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize telemetry: %v", err)
		}
	} else {
		telem = telemetry.NewNoOpTelemetry(&cfg.OTLP, &cfg.Log)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telem.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	tracer := telem.TracerProvider.Tracer(instrumentationName)
	meter := telem.MeterProvider.Meter(instrumentationName)
	logger := telem.Logger

	logger.Info("Starting offline catalog",
		slog.String("api_base_url", cfg.Catalog.BaseURL),
		slog.String("storage_driver", cfg.Storage.Driver),
	)

	pending, favorites, closeStorage, err := openStorage(&cfg.Storage, tracer, logger)
	if err != nil {
		logger.Error("Failed to open storage", slog.String("error", err.Error()))
		return
	}
	defer func() {
		if err := closeStorage(); err != nil {
			logger.Error("Failed to close storage", slog.String("error", err.Error()))
		}
	}()

	client := remote.NewCatalogHTTPClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, tracer, logger)

	prober := connectivity.DialProber{
		Address: cfg.Connectivity.ProbeAddr,
		Timeout: cfg.Connectivity.ProbeTimeout,
	}
	monitor := connectivity.NewMonitor(prober, cfg.Connectivity.ProbeInterval, logger)

	// The monitor starts out connected, so Start runs the first drain and
	// catalog load in the background
	catalogService := service.NewCatalogService(client, pending, favorites, monitor, tracer, meter, logger)
	if err := catalogService.Start(ctx); err != nil {
		logger.Error("Failed to start catalog service", slog.String("error", err.Error()))
		return
	}

	if err := monitor.Start(ctx); err != nil {
		logger.Error("Failed to start connectivity monitor", slog.String("error", err.Error()))
		return
	}

	productHandler := handler.NewProductHandler(catalogService, logger)
	isOffline := func() bool { return !monitor.IsConnected() }
	server := http.NewServer(&cfg.Server, productHandler, isOffline, telem.MeterProvider, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down server...")
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", slog.String("error", err.Error()))
	}

	monitor.Stop()
	if err := catalogService.Close(); err != nil {
		logger.Error("Failed to close catalog service", slog.String("error", err.Error()))
	}

	logger.Info("Server stopped")
}

// openStorage returns the pending-write and favorite stores for the
// configured driver along with a func that releases them
func openStorage(cfg *config.StorageConfig, tracer trace.Tracer, logger *slog.Logger) (domain.PendingWriteStore, domain.FavoriteStore, func() error, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("Using in-memory storage, pending products are lost on exit")
		return memory.NewPendingStore(tracer, logger), memory.NewFavoriteStore(tracer, logger), func() error { return nil }, nil
	case "bolt", "":
		store, err := boltdb.Open(cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return boltdb.NewPendingStore(store, tracer, logger), boltdb.NewFavoriteStore(store, tracer, logger), store.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
