package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/apocaliptyx/scenario-dedup/config"
	"github.com/apocaliptyx/scenario-dedup/database"
	"github.com/apocaliptyx/scenario-dedup/handlers"
	"github.com/apocaliptyx/scenario-dedup/jobs"
	"github.com/apocaliptyx/scenario-dedup/services"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	unified := cfg.UnifiedConfiguration()
	config.ConfigureLogging(unified.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Scenario store: Postgres when configured, in-memory otherwise
	var store services.ScenarioStore
	var dbMetrics handlers.DatabaseMetricsProvider
	var ping func(ctx context.Context) error

	if cfg.DatabaseURL != "" {
		if err := database.ConnectWithConfig(cfg.DatabaseURL, &unified.Database); err != nil {
			logrus.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		if err := database.Migrate("database/schema.sql"); err != nil {
			logrus.Warnf("Migration warning: %v", err)
		}
		if err := database.ValidateAndOptimizeSchema(ctx); err != nil {
			logrus.Fatalf("Schema validation failed: %v", err)
		}

		postgresStore := services.NewPostgresScenarioStore(database.DB, unified.Database)
		store = postgresStore
		dbMetrics = postgresStore
		ping = database.HealthCheck
	} else {
		logrus.Warn("DATABASE_URL not set, using in-memory scenario store")
		store = services.NewMemoryScenarioStore()
	}

	// Suggestion sample cache: Redis when configured, in-process otherwise
	var sampleCache services.SampleCache
	if unified.Cache.SuggestionTTL > 0 {
		if unified.Cache.RedisAddr != "" {
			redisCache, err := services.NewRedisSampleCache(unified.Cache)
			if err != nil {
				logrus.Warnf("Redis unavailable, falling back to in-memory suggestion cache: %v", err)
			} else {
				defer redisCache.Close()
				sampleCache = redisCache
			}
		}
		if sampleCache == nil {
			memoryCache := services.NewMemorySampleCache(unified.Cache.SuggestionTTL)
			defer memoryCache.Close()
			sampleCache = memoryCache
		}
	}

	duplicateService := services.NewDuplicateService(store, unified.Detector, sampleCache)

	// Start background jobs
	backfillJob := jobs.NewHashBackfillJob(duplicateService, unified.Detector.BackfillInterval)
	backfillJob.Start(ctx)

	// Initialize handlers
	duplicateHandler := handlers.NewDuplicateHandler(duplicateService)
	adminHandler := handlers.NewAdminHandler(duplicateService, backfillJob, dbMetrics)
	healthHandler := handlers.NewHealthHandler(ping)

	if cfg.AdminToken == "" {
		logrus.Warn("ADMIN_TOKEN not set, admin routes are unauthenticated")
	}

	logrus.WithFields(logrus.Fields{
		"inclusion_threshold":  unified.Detector.InclusionThreshold,
		"duplicate_threshold":  unified.Detector.DuplicateThreshold,
		"suggestion_threshold": unified.Detector.SuggestionThreshold,
		"repository_timeout":   unified.Detector.RepositoryTimeout,
		"suggestion_cache_ttl": unified.Cache.SuggestionTTL,
		"backfill_interval":    unified.Detector.BackfillInterval,
	}).Info("Scenario duplicate detector initialized")

	// Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	handlers.RegisterRoutes(app, duplicateHandler, adminHandler, healthHandler, cfg.AdminToken)

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.Errorf("Server shutdown failed: %v", err)
		}
	}()

	// Start server
	logrus.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logrus.Fatalf("Server failed to start: %v", err)
	}

	duplicateService.GetServiceMetrics().LogSummary()
}
