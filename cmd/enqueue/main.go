// Command enqueue publishes a test processing job to a RabbitMQ job queue.
// Intended for local development and smoke testing the processor.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/qbui/audio-processor/internal/config"
	"github.com/qbui/audio-processor/internal/consumer"
	"github.com/qbui/audio-processor/shared/logger"
	"github.com/qbui/audio-processor/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("PROCESSOR_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/processor/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	userID := flag.String("user", "dev-user", "User id the batch belongs to")
	priority := flag.String("priority", consumer.PriorityNormal, "Job priority: immediate or normal")
	batchID := flag.String("batch", "", "Batch id to enqueue (generated when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Queue.Transport != "rabbitmq" {
		return fmt.Errorf("enqueue supports the rabbitmq transport only, config uses %q", cfg.Queue.Transport)
	}

	appLogger := logger.NewDefault()

	rabbitClient, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:          cfg.RabbitMQ.Host,
		Port:          cfg.RabbitMQ.Port,
		User:          cfg.RabbitMQ.User,
		Password:      cfg.RabbitMQ.Password,
		VHost:         cfg.RabbitMQ.VHost,
		ExchangeName:  cfg.RabbitMQ.Exchange.Name,
		ExchangeType:  cfg.RabbitMQ.Exchange.Type,
		JobQueues:     []string{cfg.Queue.PriorityQueue, cfg.Queue.NormalQueue},
		RetryAttempts: 1,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	id := *batchID
	if id == "" {
		id = fmt.Sprintf("%s-GMT-%s", time.Now().UTC().Format("20060102150405"), uuid.NewString())
	}

	job := map[string]string{
		"batch_id":    id,
		"user_id":     *userID,
		"priority":    *priority,
		"enqueued_at": time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	queueName := cfg.Queue.NormalQueue
	if *priority == consumer.PriorityImmediate {
		queueName = cfg.Queue.PriorityQueue
	}
	if queueName == "" {
		return fmt.Errorf("no queue configured for priority %q", *priority)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rabbitClient.PublishToQueue(ctx, queueName, body, "application/json"); err != nil {
		return err
	}

	appLogger.Info("Job enqueued",
		slog.String("batch_id", id),
		slog.String("queue", queueName),
		slog.String("priority", *priority),
	)
	return nil
}
