package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tieredcache/internal/cache"
	"tieredcache/internal/config"
	"tieredcache/internal/fetcher"
	"tieredcache/internal/http"
	"tieredcache/internal/logger"
	"tieredcache/internal/models"
	"tieredcache/internal/ratelimit"
)

// lifecycle is the part of the HTTP server main drives through startup and shutdown
type lifecycle interface {
	Start() error
	Shutdown(ctx context.Context) error
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run returns instead of exiting so deferred closes always happen
func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	appLogger, err := initializeLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	startupCtx := logger.WithLogEvent(context.Background(), logger.NewInternalLogEvent())

	appLogger.LogInfo(startupCtx, logger.OpServerStart, "Starting tiered cache", map[string]interface{}{
		"version": "1.0.0",
		"config": map[string]interface{}{
			"port":           cfg.Port,
			"disk_backend":   cfg.DiskBackend,
			"expiry_seconds": cfg.CacheExpiry.Seconds(),
			"maximum_size":   cfg.CacheMaximumSize,
			"three_tier":     cfg.ThreeTier(),
		},
	})

	disk, closeDisk, err := initializeDisk(startupCtx, cfg)
	if err != nil {
		appLogger.LogError(startupCtx, "cache_init", "", "Failed to initialize disk tier", err, models.LogSeverityHigh, nil)
		return fmt.Errorf("failed to initialize disk tier: %w", err)
	}
	defer closeDisk()

	networkLimiter := ratelimit.NewLimiter(
		int64(cfg.NetworkRateLimitPerSec),
		int64(cfg.NetworkRateLimitPerSec),
		int64(cfg.NetworkRateLimitPerSec),
		int64(cfg.NetworkRateLimitPerSec),
	)
	defer networkLimiter.Close()

	store, err := initializeCache(cfg, disk, networkLimiter, appLogger)
	if err != nil {
		appLogger.LogError(startupCtx, "cache_init", "", "Failed to initialize cache", err, models.LogSeverityHigh, nil)
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	purgeCtx, stopPurge := context.WithCancel(context.Background())
	defer stopPurge()
	go runPurger(purgeCtx, store, cfg.PurgeInterval, appLogger)

	clientLimiter := ratelimit.NewLimiter(
		int64(cfg.GlobalRateLimitPerSec),
		int64(cfg.GlobalRateLimitPerSec),
		int64(cfg.PerIPRateLimitPerSec),
		int64(cfg.PerIPRateLimitPerSec),
	)
	defer clientLimiter.Close()

	handler := http.NewHandler(store, appLogger)

	addr := ":" + cfg.Port
	server := http.NewServer(
		addr,
		handler,
		appLogger,
		clientLimiter,
		cfg.ServerReadTimeout,
		cfg.ServerWriteTimeout,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return serve(server, addr, quit, cfg.ServerShutdownTimeout, appLogger)
}

// serve runs server until a signal arrives on quit or the server stops by itself
func serve(server lifecycle, addr string, quit <-chan os.Signal, shutdownTimeout time.Duration, appLogger logger.Service) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	fmt.Printf("Tiered cache server started on %s\n", addr)

	select {
	case err := <-serverErr:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		appLogger.LogError(
			context.Background(),
			logger.OpServerStart,
			"",
			"Server failed to start",
			err,
			models.LogSeverityHigh,
			map[string]interface{}{"addr": addr},
		)
		return fmt.Errorf("server failed to start: %w", err)
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.LogError(ctx, logger.OpServerShutdown, "", "Server shutdown error", err, models.LogSeverityMedium, nil)
		return fmt.Errorf("server shutdown: %w", err)
	}
	appLogger.LogInfo(ctx, logger.OpServerShutdown, "Server shutdown completed successfully", nil)
	return nil
}

func initializeLogger(cfg *config.Config) (logger.Service, error) {
	if cfg.LogDatabaseURL == "" {
		return logger.NewConsoleLogger(os.Stderr, cfg.LogLevel), nil
	}

	db, err := logger.NewPostgresConnection(context.Background(), cfg.LogDatabaseURL)
	if err != nil {
		return nil, err
	}
	return logger.NewDatabaseLogger(db), nil
}

func initializeDisk(ctx context.Context, cfg *config.Config) (cache.Service[json.RawMessage], func(), error) {
	switch cfg.DiskBackend {
	case config.DiskBackendRedis:
		disk, err := cache.NewRedisCache[json.RawMessage](ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return disk, closer(disk), nil
	case config.DiskBackendPostgres:
		disk, err := cache.NewPostgresCache[json.RawMessage](ctx, cfg.DatabaseURL, cfg.CacheTable)
		if err != nil {
			return nil, nil, err
		}
		return disk, closer(disk), nil
	case config.DiskBackendMemory:
		return cache.NewMemoryCache[json.RawMessage](), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unsupported disk backend: %s", models.ErrInvalidConfig, cfg.DiskBackend)
	}
}

func initializeCache(
	cfg *config.Config,
	disk cache.Service[json.RawMessage],
	networkLimiter ratelimit.Service,
	appLogger logger.Service,
) (*cache.Volatile[json.RawMessage], error) {
	memory := cache.NewMemoryCache[json.RawMessage]()

	if !cfg.ThreeTier() {
		return cache.NewTwoTier[json.RawMessage](memory, disk, cfg.Policy(), cache.WithLogger(appLogger))
	}

	network, err := fetcher.NewHTTPCache[json.RawMessage](fetcher.Config{
		BaseURL: cfg.NetworkBaseURL,
		Timeout: cfg.NetworkTimeout,
		Limiter: networkLimiter,
		Logger:  appLogger,
	})
	if err != nil {
		return nil, err
	}
	return cache.NewThreeTier[json.RawMessage](memory, disk, network, cfg.Policy(), cache.WithLogger(appLogger))
}

// runPurger sweeps expired entries until ctx is cancelled
func runPurger(ctx context.Context, store *cache.Volatile[json.RawMessage], every time.Duration, appLogger logger.Service) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeCtx := logger.WithLogEvent(ctx, logger.NewInternalLogEvent())
			if _, err := store.Purge(purgeCtx); err != nil {
				appLogger.LogError(purgeCtx, logger.OpCachePurge, "", "Background purge failed", err, models.LogSeverityMedium, nil)
			}
		}
	}
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Printf("Failed to close disk tier: %v", err)
		}
	}
}
