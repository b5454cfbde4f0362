package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndgaspar/go-commerce-backend/internal/bus"
	"github.com/ndgaspar/go-commerce-backend/internal/domain"
)

func newEventService(t *testing.T) *EventService {
	t.Helper()
	return &EventService{
		DB:              newServiceDB(t, &domain.LifecycleEvent{}),
		EventTTL:        2 * time.Hour,
		InvoiceEventTTL: time.Hour,
		Log:             zerolog.Nop(),
	}
}

func orderEnvelope(t *testing.T, eventType, email, orderID string) bus.Envelope {
	t.Helper()
	data, err := json.Marshal(domain.OrderEvent{
		Email:        email,
		OrderID:      orderID,
		Billing:      domain.Billing{Payment: domain.PaymentCash, TotalPrice: 10},
		RequestID:    "req-1",
		ProductCodes: []string{"C1"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bus.Envelope{MessageID: "m-1", EventType: eventType, Data: data}
}

func TestHandleOrderEvent_AppendsRow(t *testing.T) {
	svc := newEventService(t)
	ctx := context.Background()

	if err := svc.HandleOrderEvent(ctx, orderEnvelope(t, domain.EventOrderCreated, "a@b.com", "o1")); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}

	var rows []domain.LifecycleEvent
	if err := svc.DB.Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.PK != "#order_o1" || r.EventType != domain.EventOrderCreated || r.Email != "a@b.com" {
		t.Fatalf("unexpected row: %+v", r)
	}
	if r.Info.OrderID != "o1" || len(r.Info.ProductCodes) != 1 || r.Info.MessageID != "m-1" {
		t.Fatalf("unexpected info payload: %+v", r.Info)
	}
	// TTL roughly now+2h (epoch seconds)
	want := time.Now().Add(2 * time.Hour).Unix()
	if r.TTL < want-5 || r.TTL > want+5 {
		t.Fatalf("TTL out of range: %d (want ~%d)", r.TTL, want)
	}
}

func TestHandleProductEvent_AppendsRow(t *testing.T) {
	svc := newEventService(t)
	ctx := context.Background()

	data, _ := json.Marshal(domain.ProductEvent{
		RequestID:    "req-2",
		ProductID:    "p1",
		ProductCode:  "C1",
		ProductPrice: 42,
		Email:        "admin@b.com",
	})
	env := bus.Envelope{MessageID: "m-2", EventType: domain.EventProductUpdated, Data: data}
	if err := svc.HandleProductEvent(ctx, env); err != nil {
		t.Fatalf("HandleProductEvent: %v", err)
	}

	var r domain.LifecycleEvent
	if err := svc.DB.First(&r).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if r.PK != "#product_C1" || r.Info.ProductID != "p1" || r.Info.Price != 42 {
		t.Fatalf("unexpected row: %+v / %+v", r, r.Info)
	}
}

func TestHandleInvoiceEvent_ShorterTTL(t *testing.T) {
	svc := newEventService(t)
	ctx := context.Background()

	data, _ := json.Marshal(domain.InvoiceEvent{
		RequestID:     "req-3",
		InvoiceNumber: "INV-1",
		TransactionID: "tx-1",
		ProductID:     "p1",
		Customer:      "ACME",
	})
	env := bus.Envelope{MessageID: "m-3", EventType: domain.EventInvoiceCreated, Data: data}
	if err := svc.HandleInvoiceEvent(ctx, env); err != nil {
		t.Fatalf("HandleInvoiceEvent: %v", err)
	}

	var r domain.LifecycleEvent
	if err := svc.DB.First(&r).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if r.PK != "#invoice_INV-1" || r.Email != "ACME" || r.Info.TransactionID != "tx-1" {
		t.Fatalf("unexpected row: %+v / %+v", r, r.Info)
	}
	want := time.Now().Add(time.Hour).Unix()
	if r.TTL < want-5 || r.TTL > want+5 {
		t.Fatalf("TTL out of range: %d (want ~%d)", r.TTL, want)
	}
}

func TestHandleOrderEvent_ToleratesRedelivery(t *testing.T) {
	svc := newEventService(t)
	ctx := context.Background()

	env := orderEnvelope(t, domain.EventOrderCreated, "a@b.com", "o1")
	if err := svc.HandleOrderEvent(ctx, env); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	// Redelivery must not error; at most a duplicate row appears.
	if err := svc.HandleOrderEvent(ctx, env); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	events, err := svc.QueryByCustomer(ctx, "a@b.com", "")
	if err != nil {
		t.Fatalf("QueryByCustomer: %v", err)
	}
	if len(events) < 1 || len(events) > 2 {
		t.Fatalf("expected 1 or 2 rows after redelivery, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].CreatedAt < events[i-1].CreatedAt {
			t.Fatalf("ordering corrupted by redelivery: %+v", events)
		}
	}
}

func TestQueryByCustomer_PrefixAndOrdering(t *testing.T) {
	svc := newEventService(t)
	ctx := context.Background()

	if err := svc.HandleOrderEvent(ctx, orderEnvelope(t, domain.EventOrderCreated, "a@b.com", "o1")); err != nil {
		t.Fatalf("created: %v", err)
	}
	time.Sleep(2 * time.Millisecond) // distinct millisecond timestamps
	if err := svc.HandleOrderEvent(ctx, orderEnvelope(t, domain.EventOrderDeleted, "a@b.com", "o1")); err != nil {
		t.Fatalf("deleted: %v", err)
	}
	data, _ := json.Marshal(domain.ProductEvent{ProductCode: "C1", Email: "a@b.com"})
	if err := svc.HandleProductEvent(ctx, bus.Envelope{MessageID: "m-9", EventType: domain.EventProductCreated, Data: data}); err != nil {
		t.Fatalf("product: %v", err)
	}

	// ORDER_ prefix only, ascending
	events, err := svc.QueryByCustomer(ctx, "a@b.com", "ORDER_")
	if err != nil {
		t.Fatalf("QueryByCustomer: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 ORDER_ events, got %d", len(events))
	}
	if events[0].EventType != domain.EventOrderCreated || events[1].EventType != domain.EventOrderDeleted {
		t.Fatalf("unexpected order: %s then %s", events[0].EventType, events[1].EventType)
	}
	if events[0].OrderID != "o1" || len(events[0].ProductCodes) != 1 {
		t.Fatalf("flattened payload missing fields: %+v", events[0])
	}

	// Other customers see nothing
	none, err := svc.QueryByCustomer(ctx, "z@b.com", "")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty result for other customer, got %v / %v", none, err)
	}
}
