package consumers

import (
	"github.com/rs/zerolog"

	"github.com/ndgaspar/go-commerce-backend/internal/bus"
	"github.com/ndgaspar/go-commerce-backend/internal/config"
	"github.com/ndgaspar/go-commerce-backend/internal/domain"
	"github.com/ndgaspar/go-commerce-backend/internal/services"
)

// RegisterAll wires every downstream consumer onto the bus:
//
//   - the event correlator, unfiltered, on all three topics;
//   - the order email sender, unfiltered on order events (it decides
//     relevance itself);
//   - the payment processor, filtered to ORDER_CREATED;
//   - the batched confirmation sender, filtered to ORDER_CREATED, flushing
//     on batch size or window.
//
// Must run before the HTTP server starts accepting traffic so no
// notification is published without its subscribers.
func RegisterAll(b *bus.Bus, cfg config.BusConfig, events *services.EventService, sender EmailSender, processor PaymentProcessor, log zerolog.Logger) error {
	emails := NewOrderEmailConsumer(sender, log)
	payments := &PaymentConsumer{
		Processor: processor,
		Log:       log.With().Str("consumer", "payments").Logger(),
	}

	if err := b.Subscribe(domain.TopicOrderEvents, bus.SubscriberConfig{
		Name:        "event-correlator",
		MaxAttempts: cfg.MaxAttempts,
	}, events.HandleOrderEvent); err != nil {
		return err
	}
	if err := b.Subscribe(domain.TopicProductEvents, bus.SubscriberConfig{
		Name:        "event-correlator",
		MaxAttempts: cfg.MaxAttempts,
	}, events.HandleProductEvent); err != nil {
		return err
	}
	if err := b.Subscribe(domain.TopicInvoiceEvents, bus.SubscriberConfig{
		Name:        "event-correlator",
		MaxAttempts: cfg.MaxAttempts,
	}, events.HandleInvoiceEvent); err != nil {
		return err
	}

	if err := b.Subscribe(domain.TopicOrderEvents, bus.SubscriberConfig{
		Name:        "order-emails",
		MaxAttempts: cfg.MaxAttempts,
	}, emails.Handle); err != nil {
		return err
	}

	if err := b.Subscribe(domain.TopicOrderEvents, bus.SubscriberConfig{
		Name:        "payments",
		EventTypes:  []string{domain.EventOrderCreated},
		MaxAttempts: cfg.MaxAttempts,
	}, payments.Handle); err != nil {
		return err
	}

	return b.SubscribeBatch(domain.TopicOrderEvents, bus.SubscriberConfig{
		Name:        "order-confirmations",
		EventTypes:  []string{domain.EventOrderCreated},
		MaxAttempts: cfg.MaxAttempts,
		BatchSize:   cfg.EmailBatchSize,
		BatchWindow: cfg.EmailBatchWindow,
	}, emails.HandleBatch)
}
