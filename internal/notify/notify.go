// Package notify delivers booking notifications. The API publishes messages to a
// durable AMQP queue; cmd/notification-worker consumes them and sends e-mail over SMTP.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var ErrInvalidMessage = errors.New("invalid notification message")

type Message struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

var validate = validator.New()

func (m Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

// Notifier dispatches a message. Callers treat failures as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Sender delivers a message to its final destination (e.g. an SMTP relay).
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier only logs messages. Used when no broker is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	n.log.Info("notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
