package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appLogger "github.com/FACorreiaa/go-places-chat/app/logger"
	appMiddleware "github.com/FACorreiaa/go-places-chat/app/middleware"
	"github.com/FACorreiaa/go-places-chat/app/observability/metrics"
	"github.com/FACorreiaa/go-places-chat/app/tracer"
	_ "github.com/FACorreiaa/go-places-chat/docs"
	"github.com/FACorreiaa/go-places-chat/internal/container"
	api "github.com/FACorreiaa/go-places-chat/internal/router"
)

const shutdownTimeout = 10 * time.Second

var allowedOrigins []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the metrics server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origin", nil, "CORS origin allowed to call the API (repeatable)")
	rootCmd.AddCommand(serveCmd)
}

// @title Places Chat API
// @version 1.0
// @description Conversational places search: chat messages in, ranked places and a streamed narration out.
// @BasePath /
func serve(ctx context.Context) error {
	providers, err := tracer.InitTracingAndMetrics("places-chat")
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
		}
	}()
	metrics.InitAppMetrics()

	c, err := container.NewContainer(ctx, &cfg, logger)
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	defer c.Close()

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(appLogger.StructuredLogger(logger))
	router.Use(appMiddleware.Tracing)
	router.Use(middleware.Recoverer)
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Compress(5, "application/json"))
	router.Mount("/", api.SetupRouter(&api.Config{
		ChatHandler:    c.ChatHandler,
		AllowedOrigins: allowedOrigins,
		RequestTimeout: cfg.Server.Timeout,
	}))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	metricsSrv := tracer.NewMetricsServer(cfg.Handlers.Prometheus.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting metrics server", slog.String("address", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, starting graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Application shut down complete")
	return nil
}
