package queue

import (
	"context"
	"errors"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitChannel is the slice of AMQP channel operations the pull transport
// needs. Satisfied by *amqp091.Channel.
type RabbitChannel interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple bool, requeue bool) error
}

// RabbitTransport adapts AMQP basic.get to the pull/lease model: delivery
// tags serve as lease ids, and an unacked delivery becomes redeliverable
// when the channel closes — the broker enforces the lease, so the
// visibility argument is not transmitted.
type RabbitTransport struct {
	channel RabbitChannel
}

// NewRabbitTransport wraps an open AMQP channel.
func NewRabbitTransport(cfg Config) (*RabbitTransport, error) {
	if cfg.Rabbit == nil {
		return nil, errors.New("rabbitmq transport: channel is required")
	}
	return &RabbitTransport{channel: cfg.Rabbit}, nil
}

func (t *RabbitTransport) Pull(ctx context.Context, queue string, batchSize int, visibility time.Duration) ([]Message, error) {
	var messages []Message
	for i := 0; i < batchSize; i++ {
		if err := ctx.Err(); err != nil {
			return messages, err
		}

		delivery, ok, err := t.channel.Get(queue, false)
		if err != nil {
			return messages, err
		}
		if !ok {
			break
		}

		messages = append(messages, Message{
			ID:      delivery.MessageId,
			LeaseID: strconv.FormatUint(delivery.DeliveryTag, 10),
			Body:    delivery.Body,
		})
	}
	return messages, nil
}

func (t *RabbitTransport) Ack(ctx context.Context, queue, leaseID string) error {
	tag, err := strconv.ParseUint(leaseID, 10, 64)
	if err != nil {
		return err
	}
	return t.channel.Ack(tag, false)
}

// Nack rejects without requeue so malformed messages dead-letter instead
// of looping back.
func (t *RabbitTransport) Nack(ctx context.Context, queue, leaseID string) error {
	tag, err := strconv.ParseUint(leaseID, 10, 64)
	if err != nil {
		return err
	}
	return t.channel.Nack(tag, false, false)
}
