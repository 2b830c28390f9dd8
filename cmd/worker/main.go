/**
 * OCR Worker - Main Entry Point
 *
 * Go worker that recognizes text in images with on-host language models.
 *
 * Architecture:
 * - Gin HTTP API for synchronous recognition and job submission
 * - Asynq or plain Redis list consumer for queued jobs
 * - Single recognition worker; calls queue in FIFO order
 * - PostgreSQL job persistence with a Redis read-through cache
 *   (in-memory when DATABASE_URL is unset)
 *
 * Image sources: http(s) URLs, local paths, data: URIs and s3:// references.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adverant/nexus/ocr-worker/internal/api"
	"github.com/adverant/nexus/ocr-worker/internal/config"
	"github.com/adverant/nexus/ocr-worker/internal/imageloader"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
	"github.com/adverant/nexus/ocr-worker/internal/models"
	"github.com/adverant/nexus/ocr-worker/internal/processor"
	"github.com/adverant/nexus/ocr-worker/internal/queue"
	"github.com/adverant/nexus/ocr-worker/internal/recognizer"
	"github.com/adverant/nexus/ocr-worker/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load(".env", ".env.ocr")
	if err != nil {
		logging.NewLogger("main").Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	logger := logging.NewLogger("main")

	logger.Info("OCR worker starting",
		"httpAddr", cfg.HTTPAddr,
		"queueBackend", cfg.QueueBackend,
		"workers", cfg.WorkerConcurrency,
		"persistence", cfg.DatabaseURL != "",
		"tessdata", cfg.TessdataDir(),
	)

	// Image loader: data URIs always, S3 references when enabled
	resolvers := []imageloader.ContentResolver{imageloader.DataURIResolver{}}
	if cfg.S3Enabled {
		s3Resolver, err := imageloader.NewS3Resolver(context.Background(), cfg.AWSRegion, cfg.MaxImageSize)
		if err != nil {
			logger.Error("Failed to initialize S3 resolver", "error", err)
			os.Exit(1)
		}
		resolvers = append(resolvers, s3Resolver)
	}
	loader := imageloader.NewLoader(&imageloader.LoaderConfig{
		Timeout:      cfg.DownloadTimeout,
		MaxImageSize: cfg.MaxImageSize,
		Resolvers:    resolvers,
		Logger:       logging.NewLogger("imageloader"),
	})

	// Models linked into this build
	registry := recognizer.NewRegistry()
	models.Install(registry, cfg.TessdataDir())
	logger.Info("Recognizers registered", "languages", registry.AvailableLanguages())

	// Job storage
	storageManager, err := newStorage(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer storageManager.Close()

	proc, err := processor.NewTextProcessor(&processor.ProcessorConfig{
		Loader:   loader,
		Registry: registry,
		Store:    storageManager,
		Logger:   logging.NewLogger("processor"),
	})
	if err != nil {
		logger.Error("Failed to initialize text processor", "error", err)
		os.Exit(1)
	}
	defer proc.Close()

	// Queue backend
	var (
		enqueuer api.Enqueuer
		stopFns  []func()
	)
	switch cfg.QueueBackend {
	case config.QueueBackendAsynq:
		consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: cfg.ProcessingTimeout,
			Logger:            logging.NewLogger("queue"),
		})
		if err != nil {
			logger.Error("Failed to initialize queue consumer", "error", err)
			os.Exit(1)
		}
		producer, err := queue.NewProducer(&queue.ProducerConfig{
			RedisURL:  cfg.RedisURL,
			QueueName: cfg.QueueName,
			MaxRetry:  cfg.MaxRetries,
			Timeout:   cfg.ProcessingTimeout,
		})
		if err != nil {
			logger.Error("Failed to initialize queue producer", "error", err)
			os.Exit(1)
		}
		if err := consumer.Start(context.Background()); err != nil {
			logger.Error("Failed to start queue consumer", "error", err)
			os.Exit(1)
		}
		enqueuer = producer
		stopFns = append(stopFns, func() {
			consumer.Stop(context.Background())
			producer.Close()
		})

	case config.QueueBackendRedis:
		consumer, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			MaxRetries:        cfg.MaxRetries,
			Processor:         proc,
			ProcessingTimeout: cfg.ProcessingTimeout,
			Logger:            logging.NewLogger("redis-queue"),
		})
		if err != nil {
			logger.Error("Failed to initialize Redis queue consumer", "error", err)
			os.Exit(1)
		}
		if err := consumer.Start(); err != nil {
			logger.Error("Failed to start Redis queue consumer", "error", err)
			os.Exit(1)
		}
		enqueuer = consumer
		stopFns = append(stopFns, func() {
			if err := consumer.Stop(); err != nil {
				logger.Warn("Error stopping Redis queue consumer", "error", err)
			}
		})
	}

	// HTTP API
	gin.SetMode(cfg.GinMode)
	router := api.NewRouter(api.NewHandler(&api.HandlerConfig{
		Processor: proc,
		Jobs:      storageManager,
		Enqueuer:  enqueuer,
		Logger:    logging.NewLogger("api"),
	}))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("OCR worker is ready", "languages", registry.AvailableLanguages())

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", "error", err)
	}

	for _, stop := range stopFns {
		stop()
	}

	logger.Info("Shutdown complete")
}

// newStorage picks PostgreSQL when DATABASE_URL is set and the in-memory
// store otherwise. A Redis cache is added whenever a queue backend already
// requires Redis.
func newStorage(cfg *config.Config, logger *logging.Logger) (*storage.StorageManager, error) {
	var store storage.JobStore
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("Job storage: PostgreSQL")
		store = pg
	} else {
		logger.Info("Job storage: in-memory (DATABASE_URL not set)")
		store = storage.NewMemoryStore()
	}

	var cache *redis.Client
	if cfg.QueueBackend != config.QueueBackendNone {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		cache = redis.NewClient(opt)
	}

	return storage.NewStorageManager(&storage.StorageManagerConfig{
		Store: store,
		Cache: cache,
	})
}
