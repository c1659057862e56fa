package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/points-economy/internal/config"
	"github.com/points-economy/internal/handler"
	"github.com/points-economy/internal/kafka"
	"github.com/points-economy/internal/postgres"
	"github.com/points-economy/internal/redis"
	"github.com/points-economy/internal/service"
	"github.com/points-economy/internal/social"
	"github.com/points-economy/internal/store"
	"github.com/points-economy/internal/websocket"
	"github.com/points-economy/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	cache, err := redis.NewCache(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer cache.Close()
	logger.Info("connected to Redis")

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Friendship oracle: external social-graph service when configured,
	// otherwise a static oracle with no friendships.
	var oracle store.FriendOracle
	if cfg.Social.BaseURL != "" {
		oracle = social.NewClient(cfg.Social.BaseURL, cfg.Social.Timeout, logger)
		logger.Info("using social-graph friendship oracle", "base_url", cfg.Social.BaseURL)
	} else {
		oracle = social.NewStaticOracle()
		logger.Warn("no social-graph service configured, all heists will require a hammer or token")
	}

	// Initialize services
	ledgerService := service.NewLedgerService(repo, logger)
	aggregator := service.NewAggregator(repo, cache, &cfg.Ranking, logger)
	evaluator := service.NewEvaluator(oracle, &cfg.Heist, logger)
	engine := service.NewEngine(repo, repo, evaluator, &cfg.Heist, wsHub, logger)
	inventoryService := service.NewInventoryService(repo, repo, logger)

	// Initialize snapshot refresh worker
	refreshWorker := worker.NewRefreshWorker(aggregator, wsHub, &cfg.Refresh, logger)
	if cfg.Refresh.Enabled {
		if err := refreshWorker.Start(ctx); err != nil {
			logger.Error("failed to start refresh worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for the point event feed
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, ledgerService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(
		ledgerService,
		aggregator,
		engine,
		inventoryService,
		repo,
		cache,
		wsHub,
		logger,
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop refresh worker
	if refreshWorker.IsRunning() {
		if err := refreshWorker.Stop(); err != nil {
			logger.Error("failed to stop refresh worker", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
