/*
Package main is the entry point for the coedit collaboration server.

It loads configuration, initializes the global logging system, connects the
persistence and archive adapters, starts the room registry, and handles operating
system interrupt signals (SIGINT, SIGTERM) for a graceful shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coedit/internal/app/archive"
	"coedit/internal/app/collab"
	"coedit/internal/app/metrics"
	"coedit/internal/app/store"
	"coedit/internal/configs"
	"coedit/internal/handler"
	"coedit/internal/pkg/limiter"
	"coedit/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("archive_enabled", cfg.ArchiveEnabled()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect the persistence adapter. Runtime store failures are tolerated by
	// the rooms; an unreachable database at boot is an operational error.
	pool, err := store.NewPool(cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to initialize database connection pool")
	}
	defer pool.Close()

	documentStore := store.NewPostgresStore(pool)

	// Connect the snapshot archiver when configured; otherwise discard snapshots.
	var archiver archive.Archiver = archive.Noop{}
	if cfg.ArchiveEnabled() {
		archiver, err = archive.NewArchiver(archive.Config{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize snapshot archiver")
		}
	}

	// Initialize metrics, the admission guard and the room registry.
	metricsRegistry := metrics.NewRegistry()
	guard := limiter.NewAdmissionGuard(limiter.AdmissionLimit, limiter.AdmissionWindow)
	manager := collab.NewManager(documentStore, archiver, metricsRegistry)

	// Setup HTTP server and routes
	deps := &handler.AppDeps{
		Manager: manager,
		Config:  cfg,
		Metrics: metricsRegistry,
		Guard:   guard,
	}
	router := handler.Router(deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Collaboration server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	manager.Shutdown()
	guard.Stop()

	logx.Info("Server gracefully stopped.")
}
