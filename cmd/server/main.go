package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"url-shortener/internal/api"
	"url-shortener/internal/auth"
	"url-shortener/internal/cache"
	"url-shortener/internal/config"
	"url-shortener/internal/db"
	"url-shortener/internal/logger"
	"url-shortener/internal/memstore"
	"url-shortener/internal/shortener"
	"url-shortener/internal/tracker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load application configuration
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	sugar, err := logger.NewLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer sugar.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		links    shortener.Store
		accounts auth.AccountStore
		pinger   api.Pinger
	)
	if strings.HasPrefix(cfg.DatabaseURL, "memory://") {
		sugar.Warn("Using in-memory storage; data is lost on restart")
		mem := memstore.New()
		links, accounts = mem, mem
	} else {
		sugar.Infow("Connecting to database", "url", redactDBURL(cfg.DatabaseURL))
		conn, err := db.Open(cfg.DatabaseURL, sugar)
		if err != nil {
			sugar.Fatalw("Failed to connect to database", "error", err)
		}
		defer conn.Close()
		store := db.NewStore(conn)
		links, accounts, pinger = store, store, store
		sugar.Info("Database connection successful and schema migrated")
	}

	if cfg.RedisURL != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			sugar.Fatalw("Failed to connect to redis", "error", err)
		}
		defer closeRedis(rdb, sugar)
		links = cache.NewStore(links, rdb, cfg.CacheTTL, sugar)
		sugar.Infow("Link cache enabled", "ttl", cfg.CacheTTL)
	}

	authService := auth.NewService(accounts, auth.Config{
		JWTSecret:     cfg.JWTSecret,
		TokenTTL:      cfg.TokenTTL,
		ResetSecret:   cfg.ResetSecret,
		ResetTokenTTL: cfg.ResetTokenTTL,
	}, sugar)

	linkService := shortener.NewService(links, sugar)
	clicks := tracker.NewClickQueue(cfg.ClickWorkerCount, cfg.ClickQueueSize, linkService.RecordClick, sugar)
	linkService.SetClickQueue(clicks)

	handler := &api.Handler{
		Links:  linkService,
		Auth:   authService,
		Queue:  clicks,
		DB:     pinger,
		Config: cfg,
		Logger: sugar,
	}

	router := api.SetupRouter(handler, api.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst))
	server := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("Starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("HTTP server shutdown failed", "error", err)
	}
	if err := clicks.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("Click queue did not drain", "error", err)
	}
}

func closeRedis(rdb *redis.Client, logger *zap.SugaredLogger) {
	if err := rdb.Close(); err != nil {
		logger.Warnw("Failed to close redis client", "error", err)
	}
}

// redactDBURL masks the password of a database URL for logging.
func redactDBURL(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
