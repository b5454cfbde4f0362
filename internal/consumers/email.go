// Package consumers contains the downstream endpoints of the notification
// fan-out: the order email sender, the batched confirmation sender, the
// payment processor hook, and the dead-letter sink. Each consumer is
// subscribed independently and fails independently; a permanently failing
// message lands in the dead-letter area without affecting the others.
package consumers

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ndgaspar/go-commerce-backend/internal/bus"
	"github.com/ndgaspar/go-commerce-backend/internal/domain"
)

// EmailSender delivers a single email. Implementations must be safe for
// concurrent use.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogEmailSender is the default sender: it logs instead of delivering.
// Deployments plug a real provider behind the same interface.
type LogEmailSender struct {
	Log zerolog.Logger
}

// Send logs the outgoing email.
func (s *LogEmailSender) Send(_ context.Context, to, subject, body string) error {
	s.Log.Info().
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("email sent")
	return nil
}

// OrderEmailConsumer receives every order lifecycle notification (it is
// subscribed unfiltered) and decides relevance itself: only ORDER_CREATED
// results in an email.
type OrderEmailConsumer struct {
	Sender EmailSender
	Log    zerolog.Logger

	printer *message.Printer
}

// NewOrderEmailConsumer wires the consumer with a locale-aware formatter for
// the order total.
func NewOrderEmailConsumer(sender EmailSender, log zerolog.Logger) *OrderEmailConsumer {
	return &OrderEmailConsumer{
		Sender:  sender,
		Log:     log.With().Str("consumer", "order-emails").Logger(),
		printer: message.NewPrinter(language.English),
	}
}

// Handle processes one notification.
func (c *OrderEmailConsumer) Handle(ctx context.Context, env bus.Envelope) error {
	if env.EventType != domain.EventOrderCreated {
		c.Log.Debug().Str("event_type", env.EventType).Msg("ignoring event")
		return nil
	}
	var ev domain.OrderEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return err
	}
	body := c.printer.Sprintf(
		"We received your order %s, totaling %.2f. You will be notified when it ships.",
		ev.OrderID, ev.Billing.TotalPrice,
	)
	return c.Sender.Send(ctx, ev.Email, "Order received", body)
}

// HandleBatch processes a confirmation batch (the subscription is filtered
// to ORDER_CREATED, so no relevance check is needed). One failing email
// fails the batch, and the bus retries or dead-letters it as a whole.
func (c *OrderEmailConsumer) HandleBatch(ctx context.Context, batch []bus.Envelope) error {
	for _, env := range batch {
		var ev domain.OrderEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		body := c.printer.Sprintf(
			"Your order %s is confirmed. Total charged: %.2f.",
			ev.OrderID, ev.Billing.TotalPrice,
		)
		if err := c.Sender.Send(ctx, ev.Email, "Order confirmed", body); err != nil {
			return err
		}
	}
	c.Log.Debug().Int("batch_size", len(batch)).Msg("confirmation batch sent")
	return nil
}
