package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer drains the notification queue into a Sender.
type Consumer struct {
	ch     *amqp.Channel
	queue  string
	sender Sender
	log    *zap.Logger
}

func NewConsumer(conn *amqp.Connection, queue string, prefetch int, sender Sender, log *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := DeclareQueue(ch, queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &Consumer{ch: ch, queue: queue, sender: sender, log: log}, nil
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.process(ctx, d)
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	err := Handle(ctx, c.sender, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			c.log.Error("ack failed", zap.Error(ackErr))
		}
	case errors.Is(err, ErrInvalidMessage):
		c.log.Warn("dropping invalid notification", zap.Error(err))
		_ = d.Nack(false, false)
	case d.Redelivered:
		c.log.Error("notification failed twice, dropping", zap.Error(err))
		_ = d.Nack(false, false)
	default:
		c.log.Warn("notification failed, requeueing", zap.Error(err))
		_ = d.Nack(false, true)
	}
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}

// Handle decodes one queued message and hands it to sender.
func Handle(ctx context.Context, sender Sender, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return sender.Send(ctx, msg)
}
