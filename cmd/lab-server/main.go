package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/labcore/labcore/internal/config"
	"github.com/labcore/labcore/internal/domain/custody"
	"github.com/labcore/labcore/internal/domain/ingestion"
	"github.com/labcore/labcore/internal/domain/orders"
	"github.com/labcore/labcore/internal/domain/results"
	"github.com/labcore/labcore/internal/domain/simulation"
	"github.com/labcore/labcore/internal/platform/auth"
	"github.com/labcore/labcore/internal/platform/db"
	"github.com/labcore/labcore/internal/platform/extraction"
	"github.com/labcore/labcore/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lab-server",
		Short: "Lab result unification and order lifecycle API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the lab API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevMiddleware())
	} else {
		e.Use(auth.JWTMiddleware([]byte(cfg.JWTSecret)))
	}

	// Repositories and services
	orderRepo := orders.NewRepoPG(pool)
	patientRepo := orders.NewPatientRepoPG(pool)
	resultRepo := results.NewRepoPG(pool)

	orderSvc := orders.NewService(orderRepo, patientRepo, logger)
	resultSvc := results.NewService(resultRepo, logger)

	catalog := ingestion.NewCatalog()
	processor := ingestion.NewProcessor(catalog, resultSvc, logger)
	extractor := extraction.NewClient(cfg.ExtractionURL, time.Duration(cfg.ExtractionTimeout)*time.Second, logger)

	simSvc := simulation.NewService(orderSvc, resultSvc, cfg.SimStepScale(), logger)
	custodySvc := custody.NewService(orderSvc, logger)

	// Routes
	apiV1 := e.Group("/api/v1")
	orders.NewHandler(orderSvc).RegisterRoutes(apiV1)
	results.NewHandler(resultSvc).RegisterRoutes(apiV1)
	ingestion.NewHandler(
		processor,
		ingestion.NewHL7Adapter(logger),
		ingestion.NewFHIRAdapter(logger),
		ingestion.NewAttachmentAdapter(extractor, logger),
		ingestion.NewAPIAdapter(catalog, logger),
		ingestion.NewManualAdapter(),
		orderSvc,
		logger,
	).RegisterRoutes(apiV1)
	simulation.NewHandler(simSvc).RegisterRoutes(apiV1)
	custody.NewHandler(custodySvc).RegisterRoutes(apiV1)

	e.GET("/healthz", func(c echo.Context) error {
		pingCtx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": "0.1.0"})
	})

	// Start server with graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
