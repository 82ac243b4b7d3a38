package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/qbui/audio-processor/internal/asr"
	"github.com/qbui/audio-processor/internal/audio"
	"github.com/qbui/audio-processor/internal/audio/denoise"
	"github.com/qbui/audio-processor/internal/audio/vad"
	"github.com/qbui/audio-processor/internal/config"
	"github.com/qbui/audio-processor/internal/consumer"
	"github.com/qbui/audio-processor/internal/emotion"
	"github.com/qbui/audio-processor/internal/metrics"
	"github.com/qbui/audio-processor/internal/ops"
	"github.com/qbui/audio-processor/internal/pipeline"
	"github.com/qbui/audio-processor/internal/queue"
	"github.com/qbui/audio-processor/internal/storage"
	"github.com/qbui/audio-processor/shared/logger"
	"github.com/qbui/audio-processor/shared/postgresql"
	"github.com/qbui/audio-processor/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("PROCESSOR_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/processor/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateProcessorConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting audio processor",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize shared clients as the chosen providers require
	needRabbit := cfg.Queue.Transport == "rabbitmq" || cfg.Storage.Status.Provider == "postgres"
	needDB := cfg.Storage.Status.Provider == "postgres"

	var dbClient *postgresql.Client
	if needDB {
		dbClient, err = initPostgreSQL(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()
		appLogger.Info("Database connection established")
	}

	var rabbitClient *rabbitmq.Client
	if needRabbit {
		rabbitClient, err = initRabbitMQ(cfg, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		appLogger.Info("RabbitMQ connection established")
	}

	// Blob store
	blobs, err := storage.NewR2Store(storage.R2Config{
		Endpoint:        cfg.Storage.R2.Endpoint,
		Bucket:          cfg.Storage.R2.Bucket,
		AccessKeyID:     cfg.Storage.R2.AccessKeyID,
		SecretAccessKey: cfg.Storage.R2.SecretAccessKey,
		UseSSL:          cfg.Storage.R2.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	// Status store
	status, batches, err := initStatusStore(cfg, dbClient, rabbitClient, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize status store: %w", err)
	}

	// Queue transport
	queueConfig := queue.Config{
		APIURL:   cfg.Queue.APIURL,
		APIToken: cfg.Queue.APIToken,
		Logger:   appLogger.Logger,
	}
	if rabbitClient != nil {
		queueConfig.Rabbit = rabbitClient.GetChannel()
	}
	transport, err := queue.New(cfg.Queue.Transport, queueConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize queue transport: %w", err)
	}

	// Processing engines
	vadEngine, err := vad.NewEngine(cfg.Pipeline.VAD.Provider)
	if err != nil {
		return fmt.Errorf("failed to initialize VAD engine: %w", err)
	}

	denoiseEngine, err := denoise.NewEngine(cfg.Pipeline.Denoise.Provider)
	if err != nil {
		return fmt.Errorf("failed to initialize denoise engine: %w", err)
	}

	asrEngine, err := asr.NewEngine(cfg.Pipeline.ASR.Provider, asr.ProviderConfig{
		APIKey:  cfg.Pipeline.ASR.APIKey,
		BaseURL: cfg.Pipeline.ASR.BaseURL,
		Timeout: cfg.Pipeline.ASR.Timeout,
		Logger:  appLogger.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize ASR engine: %w", err)
	}

	emotionEngine, err := emotion.NewEngine(cfg.Pipeline.Emotion.Provider, cfg.Pipeline.Emotion.APIKey)
	if err != nil {
		return fmt.Errorf("failed to initialize emotion engine: %w", err)
	}

	// Pipeline
	pipe := pipeline.New(pipeline.Config{
		Blobs:      blobs,
		Status:     status,
		Transcoder: audio.NewFFmpegTranscoder(),
		VAD:        vadEngine,
		Denoise:    denoiseEngine,
		ASR:        asrEngine,
		Emotion:    emotion.NewRunner(emotionEngine, appLogger.Logger),
		Emitter:    metrics.NewEmitter(appLogger.Logger),
		Logger:     appLogger.Logger,
		Language:   cfg.Pipeline.Language,
		MaxRetries: cfg.Pipeline.MaxRetries,
		BaseDelay:  cfg.Pipeline.BaseDelay,
	})

	// Consumer
	queueConsumer := consumer.New(consumer.Config{
		Transport:         transport,
		Status:            status,
		Logger:            appLogger.Logger,
		PriorityQueue:     cfg.Queue.PriorityQueue,
		NormalQueue:       cfg.Queue.NormalQueue,
		PollInterval:      cfg.Queue.PollInterval,
		BatchSize:         cfg.Queue.BatchSize,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
	})

	dispatch := func(ctx context.Context, batchID, userID string) error {
		result := pipe.ProcessBatch(ctx, batchID, userID)
		if result.Error != nil {
			return fmt.Errorf("batch %s failed at stage %s: %s",
				batchID, result.Error.Stage, result.Error.Message)
		}
		return nil
	}

	// Ops HTTP server
	srv := initOpsServer(cfg, dbClient, rabbitClient, batches, appLogger.Logger)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Ops server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Ops server is running",
		slog.String("address", srv.Addr),
	)

	// Run the consumer loop
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		queueConsumer.Run(ctx, dispatch)
		close(done)
	}()

	appLogger.Info("Audio processor started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	// Let the in-flight poll cycle finish, bounded by the grace period
	queueConsumer.Stop()

	shutdownTimeout := cfg.Queue.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	select {
	case <-done:
		appLogger.Info("Consumer stopped gracefully")
	case <-time.After(shutdownTimeout):
		appLogger.Warn("Consumer shutdown timeout exceeded, forcing exit")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Ops server forced to shutdown",
			slog.Any("error", err),
		)
	}

	appLogger.Info("Audio processor shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.Config, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.RabbitMQ.Host,
		Port:               cfg.RabbitMQ.Port,
		User:               cfg.RabbitMQ.User,
		Password:           cfg.RabbitMQ.Password,
		VHost:              cfg.RabbitMQ.VHost,
		ExchangeName:       cfg.RabbitMQ.Exchange.Name,
		ExchangeType:       cfg.RabbitMQ.Exchange.Type,
		ExchangeDurable:    cfg.RabbitMQ.Exchange.Durable,
		ExchangeAutoDelete: cfg.RabbitMQ.Exchange.AutoDelete,
		RoutingKey:         cfg.RabbitMQ.RoutingKey,
		JobQueues:          []string{cfg.Queue.PriorityQueue, cfg.Queue.NormalQueue},
		RetryAttempts:      cfg.RabbitMQ.Connection.RetryAttempts,
		RetryInterval:      cfg.RabbitMQ.Connection.RetryInterval,
		Heartbeat:          cfg.RabbitMQ.Connection.Heartbeat,
		ConnectionTimeout:  cfg.RabbitMQ.Connection.ConnectionTimeout,
		PublishRetries:     cfg.RabbitMQ.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.RabbitMQ.Publish.RetryInterval,
		PublishBackoffMult: cfg.RabbitMQ.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initStatusStore builds the configured status store. The postgres provider
// also exposes the batch read side for the ops lookup endpoint.
func initStatusStore(cfg *config.Config, dbClient *postgresql.Client, rabbitClient *rabbitmq.Client, logger *slog.Logger) (storage.StatusStore, ops.BatchStatusReader, error) {
	switch cfg.Storage.Status.Provider {
	case "workerapi":
		store, err := storage.NewWorkerAPIStore(storage.WorkerAPIConfig{
			BaseURL:        cfg.Storage.Status.BaseURL,
			InternalSecret: cfg.Storage.Status.InternalSecret,
		})
		return store, nil, err
	case "postgres":
		store := storage.NewPostgresStore(dbClient.GetDB(), rabbitClient, logger)
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("invalid status provider: %q", cfg.Storage.Status.Provider)
	}
}

// initOpsServer builds the gin ops server with readiness wired to the
// shared clients actually in use
func initOpsServer(cfg *config.Config, dbClient *postgresql.Client, rabbitClient *rabbitmq.Client, batches ops.BatchStatusReader, logger *slog.Logger) *http.Server {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	ready := func(ctx context.Context) error {
		if dbClient != nil {
			if err := dbClient.HealthCheck(ctx); err != nil {
				return err
			}
		}
		if rabbitClient != nil && !rabbitClient.IsConnected() {
			return fmt.Errorf("rabbitmq connection is down")
		}
		return nil
	}

	router := ops.SetupRouter(&ops.Dependencies{
		Logger:  logger,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		Ready:   ready,
		Batches: batches,
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
