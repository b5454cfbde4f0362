// Package services – EventService
//
// This file implements the event correlator: a passive consumer that appends
// one event-log row per lifecycle notification and answers the per-customer
// event query. It tolerates redelivery — writing the same logical event twice
// is acceptable (the natural key dedups same-millisecond replays; later
// replays produce a duplicate row, which is allowed but must never corrupt
// query ordering).
package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ndgaspar/go-commerce-backend/internal/bus"
	"github.com/ndgaspar/go-commerce-backend/internal/domain"
	"github.com/ndgaspar/go-commerce-backend/internal/repo"
)

// CustomerEvent is the flattened read model returned by QueryByCustomer.
// Only the fields relevant to the event type are populated.
type CustomerEvent struct {
	Email        string   `json:"email"`
	CreatedAt    int64    `json:"createdAt"`
	EventType    string   `json:"eventType"`
	RequestID    string   `json:"requestId"`
	OrderID      string   `json:"orderId,omitempty"`
	ProductCodes []string `json:"productCodes,omitempty"`
	ProductID    string   `json:"productId,omitempty"`
	Price        float64  `json:"price,omitempty"`
}

// EventService owns the append-only lifecycle event log.
type EventService struct {
	DB              *gorm.DB
	EventTTL        time.Duration // order/product events
	InvoiceEventTTL time.Duration // invoice events
	Log             zerolog.Logger
}

// HandleOrderEvent appends one row for an ORDER_* notification.
func (s *EventService) HandleOrderEvent(ctx context.Context, env bus.Envelope) error {
	var ev domain.OrderEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return err
	}
	now := time.Now()
	row := &domain.LifecycleEvent{
		PK:        domain.OrderPartition(ev.OrderID),
		SK:        domain.SortKey(env.EventType, now.UnixMilli()),
		TTL:       now.Add(s.EventTTL).Unix(),
		Email:     ev.Email,
		CreatedAt: now.UnixMilli(),
		RequestID: ev.RequestID,
		EventType: env.EventType,
		Info: domain.EventInfo{
			OrderID:      ev.OrderID,
			ProductCodes: ev.ProductCodes,
			MessageID:    env.MessageID,
		},
	}
	s.Log.Debug().
		Str("pk", row.PK).
		Str("message_id", env.MessageID).
		Msg("recording order event")
	return repo.PutEvent(ctx, s.DB, row)
}

// HandleProductEvent appends one row for a PRODUCT_* notification.
func (s *EventService) HandleProductEvent(ctx context.Context, env bus.Envelope) error {
	var ev domain.ProductEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return err
	}
	now := time.Now()
	row := &domain.LifecycleEvent{
		PK:        domain.ProductPartition(ev.ProductCode),
		SK:        domain.SortKey(env.EventType, now.UnixMilli()),
		TTL:       now.Add(s.EventTTL).Unix(),
		Email:     ev.Email,
		CreatedAt: now.UnixMilli(),
		RequestID: ev.RequestID,
		EventType: env.EventType,
		Info: domain.EventInfo{
			ProductID: ev.ProductID,
			Price:     ev.ProductPrice,
			MessageID: env.MessageID,
		},
	}
	return repo.PutEvent(ctx, s.DB, row)
}

// HandleInvoiceEvent appends one row for an INVOICE_* notification. Invoice
// events use their own (shorter) expiry window.
func (s *EventService) HandleInvoiceEvent(ctx context.Context, env bus.Envelope) error {
	var ev domain.InvoiceEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return err
	}
	now := time.Now()
	row := &domain.LifecycleEvent{
		PK:        domain.InvoicePartition(ev.InvoiceNumber),
		SK:        domain.SortKey(env.EventType, now.UnixMilli()),
		TTL:       now.Add(s.InvoiceEventTTL).Unix(),
		Email:     ev.Customer,
		CreatedAt: now.UnixMilli(),
		RequestID: ev.RequestID,
		EventType: env.EventType,
		Info: domain.EventInfo{
			TransactionID: ev.TransactionID,
			ProductID:     ev.ProductID,
			MessageID:     env.MessageID,
		},
	}
	return repo.PutEvent(ctx, s.DB, row)
}

// QueryByCustomer returns the live events recorded for one customer in
// ascending timestamp order, optionally filtered to event types beginning
// with prefix (e.g. "ORDER_" or one full type).
func (s *EventService) QueryByCustomer(ctx context.Context, email, prefix string) ([]CustomerEvent, error) {
	rows, err := repo.ListEventsByEmail(ctx, s.DB, email, prefix, time.Now().Unix())
	if err != nil {
		return nil, err
	}
	out := make([]CustomerEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, CustomerEvent{
			Email:        r.Email,
			CreatedAt:    r.CreatedAt,
			EventType:    r.EventType,
			RequestID:    r.RequestID,
			OrderID:      r.Info.OrderID,
			ProductCodes: r.Info.ProductCodes,
			ProductID:    r.Info.ProductID,
			Price:        r.Info.Price,
		})
	}
	return out, nil
}
