// Package queue abstracts the pull-based, lease-oriented message transport
// feeding the consumer: pull a batch of leased messages, then ack or nack
// each lease before it expires.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Message is one leased message pulled from a queue. Body may be a native
// JSON object or an embedded JSON string; the consumer normalizes both.
type Message struct {
	ID      string          `json:"id"`
	LeaseID string          `json:"lease_id"`
	Body    json.RawMessage `json:"body"`
}

// Transport is an at-least-once pull transport. Pull leases up to batchSize
// messages for visibility; a lease not acked or nacked before expiry makes
// the message redeliverable.
type Transport interface {
	Pull(ctx context.Context, queue string, batchSize int, visibility time.Duration) ([]Message, error)
	Ack(ctx context.Context, queue, leaseID string) error
	Nack(ctx context.Context, queue, leaseID string) error
}

// Config carries construction settings for all registered transports.
type Config struct {
	// Cloudflare HTTP pull API settings.
	APIURL   string
	APIToken string

	// RabbitMQ channel operations for the amqp transport.
	Rabbit RabbitChannel

	Logger *slog.Logger
}

var transports = map[string]func(cfg Config) (Transport, error){
	"cloudflare": func(cfg Config) (Transport, error) {
		return NewCloudflareTransport(cfg)
	},
	"rabbitmq": func(cfg Config) (Transport, error) {
		return NewRabbitTransport(cfg)
	},
}

// New creates a queue transport by provider name, failing fast on
// unregistered names.
func New(provider string, cfg Config) (Transport, error) {
	create, ok := transports[provider]
	if !ok {
		available := make([]string, 0, len(transports))
		for name := range transports {
			available = append(available, name)
		}
		sort.Strings(available)
		return nil, fmt.Errorf("unknown queue transport: %q, available: %s",
			provider, strings.Join(available, ", "))
	}
	return create(cfg)
}
