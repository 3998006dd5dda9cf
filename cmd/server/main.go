package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pcstyle-auth/internal/api/routes"
	"pcstyle-auth/internal/config"
	"pcstyle-auth/internal/events"
	"pcstyle-auth/internal/identity"
	"pcstyle-auth/internal/logger"
	"pcstyle-auth/internal/models"
	"pcstyle-auth/internal/services"
	"pcstyle-auth/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up telemetry")
	}

	// Initialize database
	if err := models.InitDB(cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer models.Close()

	var publisher *events.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = events.NewPublisher(cfg.NATS.URL, cfg.NATS.Stream, cfg.Telemetry.ServiceName)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer publisher.Close()
	} else {
		log.Info().Msg("nats url not set, identity events disabled")
	}

	// Promote configured admins that already exist
	if err := services.NewSyncService(cfg, publisher).EnsureBootstrapAdmins(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to promote bootstrap admins")
	}

	if cfg.WorkOS.WebhookSecret == "" {
		log.Warn().Msg("webhook secret not set, accepting unsigned webhooks in debug mode")
	}

	// Set Gin mode
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	provider := identity.NewClient(cfg.WorkOS)
	defer provider.Close()

	r := gin.New()
	if err := routes.SetupRoutes(r, cfg, provider, publisher); err != nil {
		log.Fatal().Err(err).Msg("failed to set up routes")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("starting pcstyle auth server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}
}
