package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/panelworks/production-engine/internal/api"
	"github.com/panelworks/production-engine/internal/application"
	"github.com/panelworks/production-engine/internal/config"
	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/internal/infrastructure/kafka"
	"github.com/panelworks/production-engine/internal/infrastructure/marketplace"
	mongorepo "github.com/panelworks/production-engine/internal/infrastructure/mongodb"
	"github.com/panelworks/production-engine/internal/planner"
	"github.com/panelworks/production-engine/internal/scheduler"
	"github.com/panelworks/production-engine/pkg/logging"
	"github.com/panelworks/production-engine/pkg/metrics"
	"github.com/panelworks/production-engine/pkg/mongodb"
)

const serviceName = "production-engine"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.DefaultConfig(serviceName))
	logger.SetDefault()
	logger.Info("starting production engine")

	m := metrics.New(metrics.DefaultConfig(serviceName))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoCfg := mongodb.DefaultConfig()
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		mongoCfg.URI = uri
	}
	if db := os.Getenv("MONGODB_DATABASE"); db != "" {
		mongoCfg.Database = db
	}

	mongoClient, err := mongodb.NewClient(ctx, mongoCfg)
	if err != nil {
		logger.Error("failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongoClient.Close(shutdownCtx)
	}()

	db := mongoClient.Database()
	taskRepo := mongorepo.NewTaskRepository(db)
	batchRepo := mongorepo.NewBatchRepository(db)
	summaryRepo := mongorepo.NewSummaryRepository(db)
	alertRepo := mongorepo.NewAlertRepository(db)
	cursorRepo := mongorepo.NewCursorRepository(db)
	stationRepo := mongorepo.NewWorkstationRepository(db)
	workflowRepo := mongorepo.NewWorkflowOverrideRepository(db)
	jobStateRepo := mongorepo.NewJobStateRepository(db)
	lockManager := mongorepo.NewLockManager(db, logger.Logger)

	if err := stationRepo.SeedIfEmpty(ctx, domain.CanonicalWorkstations()); err != nil {
		logger.Error("failed to seed workstation catalogue", "error", err)
		os.Exit(1)
	}

	publisher := kafka.NewEventPublisher(cfg.KafkaBrokers, cfg.EventsTopic, m, logger.Logger)
	defer publisher.Close()

	marketplaceClient := marketplace.NewClient(cfg.Marketplace, m, logger.Logger)

	taskPlanner := planner.New(workflowRepo, cfg.Multipliers)
	clock := domain.SystemClock()

	packagingService := application.NewPackagingService(
		summaryRepo, taskRepo, marketplaceClient, cursorRepo,
		clock, logger.Logger, cfg.Reconcile.ShippedStatusID,
	)
	priorityService := application.NewPriorityService(taskRepo, lockManager, logger.Logger)
	batchGrouper := application.NewBatchGrouper(batchRepo, taskRepo, clock, logger.Logger)
	productionService := application.NewProductionService(
		taskRepo, batchRepo, stationRepo, packagingService, alertRepo, cursorRepo,
		priorityService, lockManager, publisher, m, clock, logger.Logger,
		cfg.Reconcile.CompletedStatusID,
	)
	reconciler := application.NewReconciler(
		marketplaceClient, taskRepo, productionService, cursorRepo, alertRepo,
		lockManager, clock, logger.Logger, cfg.Reconcile,
	)
	ingestionService := application.NewIngestionService(
		marketplaceClient, taskRepo, summaryRepo, stationRepo, cursorRepo, alertRepo,
		taskPlanner, priorityService, batchGrouper, reconciler, lockManager,
		publisher, m, clock, logger.Logger, cfg.Ingest,
	)
	alertingService := application.NewAlertingService(
		taskRepo, stationRepo, alertRepo, publisher, m, clock, logger.Logger, cfg.Alerts,
	)

	runner := scheduler.NewRunner(
		ingestionService, reconciler, priorityService, alertingService,
		taskRepo, batchRepo, alertRepo, jobStateRepo, lockManager,
		m, clock, logger.Logger, cfg.Reconcile, cfg.Sweep,
	)
	runner.Start(ctx)
	defer runner.Stop()

	router := api.NewRouter(api.Dependencies{
		ServiceName: serviceName,
		Logger:      logger.Logger,
		Metrics:     m,
		Production:  productionService,
		Packaging:   packagingService,
		Alerting:    alertingService,
		Runner:      runner,
		Stations:    stationRepo,
		ReadyCheck: func() error {
			return mongoClient.HealthCheck(context.Background())
		},
	})

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	logger.Info("production engine stopped")
}
