package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medassist/triage/internal/config"
	"github.com/medassist/triage/internal/domain/alerts"
	"github.com/medassist/triage/internal/domain/triage"
	"github.com/medassist/triage/internal/domain/updates"
	"github.com/medassist/triage/internal/platform/db"
	"github.com/medassist/triage/internal/platform/middleware"
	"github.com/medassist/triage/internal/platform/push"
	"github.com/medassist/triage/internal/platform/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "triage-server",
		Short: "Risk scoring and real-time priority queue engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(schemaCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the triage engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the engine's database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()
			return store.NewPostgres(pool).Schema(ctx)
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()

	// Persistence: Postgres when configured, in-memory otherwise.
	var (
		snapshots      store.SnapshotStore
		snapshotWriter store.SnapshotWriter
		assessments    store.AssessmentStore
		auditLog       store.NotificationLog
		pool           *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		var perr error
		pool, perr = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if perr != nil {
			logger.Fatal().Err(perr).Msg("failed to connect to database")
		}
		defer pool.Close()

		pg := store.NewPostgres(pool)
		if serr := pg.Schema(ctx); serr != nil {
			logger.Fatal().Err(serr).Msg("failed to ensure database schema")
		}
		snapshots, snapshotWriter, assessments, auditLog = pg, pg, pg, pg
		logger.Info().Msg("connected to database")
	} else {
		mem := store.NewMemory()
		snapshots, snapshotWriter, assessments, auditLog = mem, mem, mem, mem
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
	}

	// Redis cache in front of the assessment store.
	if cfg.RedisURL != "" {
		rdb, rerr := db.NewRedisClient(ctx, cfg.RedisURL)
		if rerr != nil {
			logger.Fatal().Err(rerr).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		assessments = store.NewAssessmentCache(assessments, rdb)
		logger.Info().Msg("connected to redis")
	}

	// Core engine
	arena := triage.NewArena(logger, cfg.QueueDebugVerify)
	queueSvc := triage.NewService(arena, assessments, logger)
	hub := push.NewHub(logger)

	notifier := alerts.NewNotifier(
		&alerts.LogEmailSender{Logger: logger},
		&alerts.LogSMSSender{Logger: logger},
		cfg.AlertEmailRecipients,
		cfg.AlertSMSRecipients,
		logger,
	)
	registry := alerts.NewRegistry(notifier, logger)

	scheduler := updates.NewScheduler(updates.Options{
		Snapshots:   snapshots,
		Assessments: assessments,
		AuditLog:    auditLog,
		Queue:       queueSvc,
		Broadcaster: hub,
		Critical:    registry,
		BatchWindow: cfg.BatchWindow(),
		Logger:      logger,
	})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	// Routes
	triage.NewHandler(queueSvc, cfg.DefaultTenant).RegisterRoutes(apiV1)
	updates.NewHandler(scheduler, snapshotWriter, cfg.DefaultTenant).RegisterRoutes(apiV1)
	alerts.NewHandler(registry, cfg.DefaultTenant).RegisterRoutes(apiV1)
	push.NewHandler(hub, cfg.DefaultTenant).RegisterRoutes(apiV1)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	// Background workers
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go scheduler.Run(runCtx)
	go queueSvc.RunSweeper(runCtx, cfg.SweepInterval(), cfg.TreatedGrace())

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
