package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paper-kb/app"
	"paper-kb/config"
	"paper-kb/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}

	logging, err := app.NewLogger(cfg.LogMode)
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	if err := cfg.Validate(); err != nil {
		logging.Fatal("Ungültige Konfiguration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenDatabase(cfg)
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.", zap.String("driver", cfg.DBDriver))

	logging.Info("Running database auto-migration...")
	if err := storage.Migrate(db); err != nil {
		logging.Fatal("Migration failed", zap.Error(err))
	}

	a, err := app.New(cfg, db, logging, prometheus.DefaultRegisterer, app.DefaultCollaborators(cfg, logging))
	if err != nil {
		logging.Fatal("Setup failed", zap.Error(err))
	}
	if err := a.EnableArchive(ctx); err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	runner := app.NewRunner(a)

	router := newRouter(a, runner)

	// Setup Cron
	cronScheduler := cron.New()
	if cfg.DedupSchedule != "" {
		_, err := cronScheduler.AddFunc(cfg.DedupSchedule, func() {
			logging.Info("Running scheduled dedup job...")
			report, err := a.Dedup.Run(ctx, false)
			if err != nil {
				logging.Error("Cron job failed", zap.Error(err))
				return
			}
			logging.Info("Cron job completed",
				zap.Int("groups_with_duplicates", report.GroupsWithDuplicates),
				zap.Int("rows_deleted", report.RowsDeleted),
				zap.Int("citations_added", report.CitationsAdded))
		})
		if err != nil {
			logging.Fatal("Invalid DEDUP_SCHEDULE", zap.String("schedule", cfg.DedupSchedule), zap.Error(err))
		}
	}
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("Failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logging.Info("Shutting down")
	<-cronScheduler.Stop().Done()
	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.JoinTimeout+5*time.Second)
	defer cancel()
	if err := runner.Wait(shutdownCtx); err != nil {
		logging.Warn("Run did not finish in time", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server shutdown failed", zap.Error(err))
	}
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}
