package consumers

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/ndgaspar/go-commerce-backend/internal/bus"
	"github.com/ndgaspar/go-commerce-backend/internal/domain"
)

// PaymentProcessor charges an order. Implementations must be safe for
// concurrent use and idempotent on orderID: the bus delivers at-least-once.
type PaymentProcessor interface {
	Charge(ctx context.Context, orderID, email string, billing domain.Billing) error
}

// LogPaymentProcessor is the default processor: it logs the charge instead
// of contacting a gateway.
type LogPaymentProcessor struct {
	Log zerolog.Logger
}

// Charge logs the payment intent.
func (p *LogPaymentProcessor) Charge(_ context.Context, orderID, email string, billing domain.Billing) error {
	p.Log.Info().
		Str("order_id", orderID).
		Str("email", email).
		Str("payment", billing.Payment).
		Float64("total_price", billing.TotalPrice).
		Msg("payment processed")
	return nil
}

// PaymentConsumer forwards ORDER_CREATED notifications to the payment
// processor. Its subscription is filtered, so it never sees deletions.
type PaymentConsumer struct {
	Processor PaymentProcessor
	Log       zerolog.Logger
}

// Handle processes one notification.
func (c *PaymentConsumer) Handle(ctx context.Context, env bus.Envelope) error {
	var ev domain.OrderEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return err
	}
	return c.Processor.Charge(ctx, ev.OrderID, ev.Email, ev.Billing)
}
