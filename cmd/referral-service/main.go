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

	"github.com/gorilla/mux"

	"github.com/carelink/referral-core/internal/export"
	"github.com/carelink/referral-core/internal/referral"
	"github.com/carelink/referral-core/internal/scheduler"
	"github.com/carelink/referral-core/pkg/config"
	"github.com/carelink/referral-core/pkg/database"
	"github.com/carelink/referral-core/pkg/encryption"
	"github.com/carelink/referral-core/pkg/logger"
	"github.com/carelink/referral-core/pkg/monitoring"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.CreateSchema(ctx); err != nil {
		logger.Fatalf("Failed to create database schema: %v", err)
	}

	// Select the key provider
	keys, err := newKeyProvider(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize key provider: %v", err)
	}

	// Initialize object storage
	store, err := export.NewS3Store(ctx, &cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize object storage: %v", err)
	}

	// Wire services
	referralRepo := referral.NewSQLRepository(db, logger)
	referralService := referral.NewService(referralRepo, logger)
	automation := referral.NewAutomation(referralService, referralRepo, logger, cfg.Scheduler.InactivityDays)

	packageRepo := export.NewSQLPackageRepository(db, logger)
	notifier := export.NewLogNotificationSink(logger)
	exportService := export.NewService(referralService, packageRepo, store, keys, notifier, logger, cfg)

	// Automation scheduler
	sched := scheduler.New(logger)
	if cfg.Scheduler.Enabled {
		sched.AddJob("auto_transition", time.Duration(cfg.Scheduler.AutoTransitionIntervalMin)*time.Minute,
			func(ctx context.Context) error {
				_, err := automation.RunAutoTransitionSweep(ctx)
				return err
			})
		sched.AddJob("sla", time.Duration(cfg.Scheduler.SLAIntervalMin)*time.Minute,
			func(ctx context.Context) error {
				_, err := automation.RunSLASweep(ctx)
				return err
			})
		sched.Start(ctx)
		defer sched.Stop()
	}

	// HTTP server
	router := mux.NewRouter()
	handler := referral.NewHandler(referralService, exportService, logger)
	handler.RegisterRoutes(router)

	router.HandleFunc(cfg.Monitoring.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"unhealthy"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"healthy"}`)
	}).Methods("GET")

	if cfg.Monitoring.Enabled {
		router.Handle(cfg.Monitoring.MetricsPath, monitoring.Handler()).Methods("GET")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Starting Referral Core Service on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start Referral Core Service: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Referral Core Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	logger.Info("Referral Core Service stopped")
}

func newKeyProvider(cfg *config.Config) (encryption.KeyProvider, error) {
	switch cfg.Encryption.Provider {
	case "env":
		return encryption.NewEnvKeyProvider(cfg.Encryption.MasterSecret)
	case "ephemeral":
		return encryption.NewEphemeralKeyProvider(), nil
	default:
		return nil, fmt.Errorf("unknown encryption provider %q", cfg.Encryption.Provider)
	}
}
