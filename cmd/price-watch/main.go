package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/lucasvmx/amazon-price-watch/internal/api"
	"github.com/lucasvmx/amazon-price-watch/internal/batch"
	"github.com/lucasvmx/amazon-price-watch/internal/browser"
	"github.com/lucasvmx/amazon-price-watch/internal/config"
	"github.com/lucasvmx/amazon-price-watch/internal/database"
	"github.com/lucasvmx/amazon-price-watch/internal/events"
	"github.com/lucasvmx/amazon-price-watch/internal/ratelimit"
	"github.com/lucasvmx/amazon-price-watch/internal/scraper"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	// Redis client for the outbox relay
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Start the relay that drains the transactional outbox into streams
	relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	// Browser session, launched lazily on first extraction
	session := browser.NewSession(browserOptions(cfg.Browser))
	defer func() {
		if err := session.Shutdown(); err != nil {
			logger.Error("browser shutdown failed", "error", err)
		}
	}()

	// Initialize services
	extractor := scraper.NewService(scraper.NewPlaywrightSession(session), scraper.Config{
		BaseURL:           cfg.Scraper.BaseURL,
		NavigationTimeout: cfg.Scraper.NavigationTimeout,
		SettleDelay:       cfg.Scraper.SettleDelay,
		MaxRetries:        cfg.Scraper.MaxRetries,
		RetryDelay:        cfg.Scraper.RetryDelay,
	}, logger)

	history := database.NewHistoryRepository(db)
	publisher := events.NewPublisher(db, logger)
	store := events.NewRecordingStore(history, publisher, logger)

	limiter := ratelimit.NewBackoff(cfg.Batch.DelayMin, cfg.Batch.DelayMax)
	runner := batch.NewRunner(extractor, store, limiter, logger)

	// Initialize API handlers
	handlers := api.NewHandlers(extractor, store, history, runner, logger)

	// Setup Chi router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		pendingCount, _ := relay.PendingCount(r.Context())

		health := map[string]interface{}{
			"status": "ok",
			"outbox": map[string]interface{}{
				"pending": pendingCount,
			},
			"batch_running": runner.Running(),
		}
		if pendingCount > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(health)
	})

	// API Routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Post("/{asin}/refresh", handlers.RefreshProduct)
			r.Get("/{asin}/history", handlers.GetHistory)
		})

		r.Post("/batch", handlers.StartBatch)
		r.Get("/batch/status", handlers.GetBatchStatus)
	})

	// Start server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr, "base_url", cfg.Scraper.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func browserOptions(cfg config.BrowserConfig) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Headless
	opts.Timeout = cfg.Timeout
	if cfg.UserAgent != "" {
		opts.UserAgent = cfg.UserAgent
	}
	if cfg.ViewportWidth > 0 {
		opts.ViewportWidth = cfg.ViewportWidth
	}
	if cfg.ViewportHeight > 0 {
		opts.ViewportHeight = cfg.ViewportHeight
	}
	if cfg.AcceptLanguage != "" {
		opts.AcceptLanguage = cfg.AcceptLanguage
	}
	if cfg.TimezoneID != "" {
		opts.TimezoneID = cfg.TimezoneID
	}
	if cfg.Locale != "" {
		opts.Locale = cfg.Locale
	}
	opts.ProxyServer = cfg.ProxyServer
	return opts
}
