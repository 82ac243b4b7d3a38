// Package consumer polls the priority and normal queues, validates job
// descriptors, and dispatches batches to the pipeline under at-least-once,
// lease-based delivery.
package consumer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/qbui/audio-processor/internal/queue"
	"github.com/qbui/audio-processor/internal/storage"
)

// MinVisibilityTimeout is the floor for the pull lease: it must exceed the
// longest expected end-to-end batch duration so a lease cannot expire and
// redeliver mid-processing.
const MinVisibilityTimeout = 5 * time.Minute

// DispatchFunc hands a validated batch to the pipeline.
type DispatchFunc func(ctx context.Context, batchID, userID string) error

// Config wires the consumer.
type Config struct {
	Transport         queue.Transport
	Status            storage.StatusStore
	Logger            *slog.Logger
	PriorityQueue     string
	NormalQueue       string
	PollInterval      time.Duration
	BatchSize         int
	VisibilityTimeout time.Duration
}

// Consumer is a single logical worker: one poll cycle at a time, messages
// processed sequentially. Multiple instances may share the same queues;
// duplicate delivery is tolerated downstream, not prevented here.
type Consumer struct {
	transport         queue.Transport
	status            storage.StatusStore
	logger            *slog.Logger
	priorityQueue     string
	normalQueue       string
	pollInterval      time.Duration
	batchSize         int
	visibilityTimeout time.Duration
	running           atomic.Bool
}

// New builds a Consumer from cfg, applying defaults for unset values.
func New(cfg Config) *Consumer {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	visibility := cfg.VisibilityTimeout
	if visibility < MinVisibilityTimeout {
		visibility = MinVisibilityTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		transport:         cfg.Transport,
		status:            cfg.Status,
		logger:            logger,
		priorityQueue:     cfg.PriorityQueue,
		normalQueue:       cfg.NormalQueue,
		pollInterval:      pollInterval,
		batchSize:         batchSize,
		visibilityTimeout: visibility,
	}
}

// PollOnce executes a single poll cycle: the priority queue is always
// pulled first, then the normal queue, regardless of prior cycles. The
// count of handled messages is returned.
func (c *Consumer) PollOnce(ctx context.Context, dispatch DispatchFunc) int {
	processed := 0

	for _, queueID := range []string{c.priorityQueue, c.normalQueue} {
		if queueID == "" {
			continue
		}

		messages, err := c.transport.Pull(ctx, queueID, c.batchSize, c.visibilityTimeout)
		if err != nil {
			c.logger.Error("Queue pull failed",
				slog.String("queue", queueID),
				slog.Any("error", err),
			)
			continue
		}

		for _, msg := range messages {
			c.processMessage(ctx, queueID, msg, dispatch)
			processed++
		}
	}

	return processed
}

// processMessage validates, dispatches, and settles one message. Invalid
// messages are nacked without dispatch. Valid messages are acked even when
// dispatch fails: the pipeline durably records its own failures, and
// redelivery would only duplicate costly vendor calls.
func (c *Consumer) processMessage(ctx context.Context, queueID string, msg queue.Message, dispatch DispatchFunc) {
	job, err := ParseJob(msg.Body)
	if err != nil {
		c.logger.Warn("Invalid queue message",
			slog.String("message_id", msg.ID),
			slog.Any("error", err),
		)
		if nackErr := c.transport.Nack(ctx, queueID, msg.LeaseID); nackErr != nil {
			c.logger.Error("Failed to nack invalid message",
				slog.String("message_id", msg.ID),
				slog.Any("error", nackErr),
			)
		}
		return
	}

	c.logger.Info("Processing job",
		slog.String("batch_id", job.BatchID),
		slog.String("user_id", job.UserID),
		slog.String("priority", job.Priority),
	)

	// Best-effort: a failed "processing" mark never blocks dispatch.
	if err := c.status.UpdateStatus(ctx, storage.StatusUpdate{
		BatchID: job.BatchID,
		Status:  "processing",
	}); err != nil {
		c.logger.Error("Failed to mark batch as processing",
			slog.String("batch_id", job.BatchID),
			slog.Any("error", err),
		)
	}

	if err := dispatch(ctx, job.BatchID, job.UserID); err != nil {
		c.logger.Error("Pipeline dispatch failed",
			slog.String("batch_id", job.BatchID),
			slog.Any("error", err),
		)
	}

	if ackErr := c.transport.Ack(ctx, queueID, msg.LeaseID); ackErr != nil {
		c.logger.Error("Failed to ack message",
			slog.String("message_id", msg.ID),
			slog.Any("error", ackErr),
		)
	}
}

// Run polls until Stop is called or ctx is canceled. Poll cycle errors are
// logged, never fatal; the in-flight cycle always completes before the
// loop observes a stop.
func (c *Consumer) Run(ctx context.Context, dispatch DispatchFunc) {
	c.running.Store(true)
	c.logger.Info("Queue consumer starting poll loop",
		slog.String("priority_queue", c.priorityQueue),
		slog.String("normal_queue", c.normalQueue),
		slog.Duration("poll_interval", c.pollInterval),
	)

	for c.running.Load() {
		count := c.PollOnce(ctx, dispatch)
		if count > 0 {
			c.logger.Info("Poll cycle complete", slog.Int("processed", count))
		}

		select {
		case <-ctx.Done():
			c.logger.Info("Queue consumer stopping, context canceled")
			return
		case <-time.After(c.pollInterval):
		}
	}

	c.logger.Info("Queue consumer stopped")
}

// Stop signals the polling loop to exit after the current cycle.
func (c *Consumer) Stop() {
	c.running.Store(false)
	c.logger.Info("Queue consumer stopping")
}
