package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"streamwire/internal/actions"
	"streamwire/internal/common/logging"
	"streamwire/internal/config"
	"streamwire/internal/detector"
	"streamwire/internal/dispatch"
	"streamwire/internal/locks"
	"streamwire/internal/providers"
	"streamwire/internal/providers/twitch"
	"streamwire/internal/redis"
	"streamwire/internal/server"
	"streamwire/internal/storage"
	_ "streamwire/internal/storage/postgres"
	_ "streamwire/internal/storage/sqlite"
)

func main() {
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize storage
	store, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Redis is optional; without it the detector falls back to in-process
	// coordination only.
	var tickLock detector.TickLocker
	redisDB, _ := strconv.Atoi(cfg.RedisDB)
	redisPool, _ := strconv.Atoi(cfg.RedisPoolSize)
	redisClient, err := redis.NewClient(&redis.Config{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       redisDB,
		PoolSize: redisPool,
	})
	if err != nil {
		logger.Warn("Redis unavailable, distributed tick lock disabled", logging.Err(err))
	} else {
		defer redisClient.Close()
		lockManager := locks.NewManager(redisClient)
		defer lockManager.Close()
		tickLock = lockManager
	}

	// Register providers
	providerRegistry := providers.NewRegistry()
	if cfg.TwitchClientID != "" {
		twitchClient, err := twitch.NewClient(&twitch.Config{
			ClientID: cfg.TwitchClientID,
			BaseURL:  cfg.TwitchAPIURL,
		})
		if err != nil {
			log.Fatalf("Failed to initialize twitch provider: %v", err)
		}
		providerRegistry.Register(twitchClient)
	} else {
		logger.Warn("TWITCH_CLIENT_ID not set, twitch provider disabled")
	}

	// Register response action executors
	executorRegistry := actions.NewRegistry()
	executorRegistry.Register(actions.NewDiscordExecutor(cfg.DiscordWebhookTimeout))
	executorRegistry.Register(actions.NewLogExecutor())

	// Wire the detection core
	dispatcher := dispatch.NewDispatcher(store, executorRegistry)
	runner := detector.NewRunner(store, providerRegistry, dispatcher, tickLock, detector.Options{
		Interval:     cfg.DetectorInterval,
		Workers:      cfg.DetectorWorkers,
		UseLock:      cfg.DetectorUseLock,
		FetchRetries: cfg.DetectorFetchRetries,
		TickTimeout:  cfg.DetectorTickTimeout,
	})
	if err := runner.Start(); err != nil {
		log.Fatalf("Failed to start detector: %v", err)
	}

	// Set up HTTP server
	srv := server.New(store, providerRegistry, executorRegistry).NewHTTPServer(cfg.Port)

	go func() {
		logger.Info("Server starting", logging.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	runner.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
