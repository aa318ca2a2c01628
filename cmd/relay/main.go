package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AndlerRL/stream-u-media/internal/config"
	"github.com/AndlerRL/stream-u-media/internal/handler"
	"github.com/AndlerRL/stream-u-media/internal/hub"
	"github.com/AndlerRL/stream-u-media/internal/kafka"
	"github.com/AndlerRL/stream-u-media/internal/registry"
	"github.com/AndlerRL/stream-u-media/internal/service"
	pkglog "github.com/AndlerRL/stream-u-media/pkg/log"
	"github.com/AndlerRL/stream-u-media/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, ServiceName: "relay"})
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting relay")

	// Initialize PubSub for room event fan-out to other services
	var publisher pubsub.Publisher
	if cfg.PubSub.Redis.Address != "" {
		ps, err := pubsub.NewPubSub(cfg.PubSub)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to connect to redis, room events disabled")
		} else {
			defer ps.Close()
			publisher = ps
			logger.Info().Str("address", cfg.PubSub.Redis.Address).Msg("connected to redis pubsub")
		}
	}

	// Initialize Kafka producer for stream lifecycle events
	var producer kafka.StreamEventProducer
	if cfg.Kafka.Enabled {
		p, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka producer, stream events disabled")
		} else {
			defer p.Close()
			producer = p
			logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
		}
	}

	// Initialize hub
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	// Initialize registry and service
	reg := registry.New()
	relaySvc := service.NewRelayService(wsHub, reg, producer, publisher)

	// Initialize handler
	wsHandler := handler.NewWSHandler(wsHub, relaySvc)

	// Setup HTTP server
	mux := http.NewServeMux()
	wsHandler.RegisterRoutes(mux)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     pkglog.HTTPMiddleware(logger)(mux),
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("relay listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down relay")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("relay stopped")
}
