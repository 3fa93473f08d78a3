package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/cors"

	"github.com/travelops/importhub/internal/api"
	"github.com/travelops/importhub/internal/config"
	"github.com/travelops/importhub/internal/db"
	"github.com/travelops/importhub/internal/impact"
	"github.com/travelops/importhub/internal/importer"
	"github.com/travelops/importhub/internal/report"
	"github.com/travelops/importhub/internal/repository"
	"github.com/travelops/importhub/pkg/logger"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to database")
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database); err != nil {
		appLogger.WithError(err).Fatal("Failed to run migrations")
	}

	jobRepo := repository.NewImportJobRepository(conn.Pool)
	rowRepo := repository.NewStagedRowRepository(conn.Pool)
	errorRepo := repository.NewImportErrorRepository(conn.Pool)
	supplierRepo := repository.NewSupplierRepository(conn.Pool)
	recordRepo := repository.NewRecordRepository(conn.Pool)
	snapshotRepo := repository.NewPriceSnapshotRepository(conn.Pool)

	importService := importer.NewService(
		jobRepo, rowRepo, errorRepo, recordRepo, snapshotRepo, supplierRepo,
		conn, appLogger,
		importer.WithMaxRows(cfg.Import.MaxRows),
		importer.WithPreviewRows(cfg.Import.PreviewRows),
		importer.WithStageWorkers(cfg.Import.StageWorkers),
	)
	impactAnalyzer := impact.NewAnalyzer(recordRepo, snapshotRepo, appLogger,
		impact.WithSampleSize(cfg.Import.ImpactSampleSize))
	reportService := report.NewService(jobRepo, errorRepo, impactAnalyzer, appLogger)

	handler := api.NewHandler(importService, impactAnalyzer, reportService, appLogger, cfg.Import.MaxUploadBytes)
	router := api.NewRouter(handler, appLogger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * 4,
	}

	go func() {
		appLogger.WithField("addr", cfg.Server.Addr).Info("Starting import API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
