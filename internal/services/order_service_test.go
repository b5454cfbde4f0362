package services

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ndgaspar/go-commerce-backend/internal/domain"
	"github.com/ndgaspar/go-commerce-backend/internal/repo"
)

func newOrderService(t *testing.T) (*OrderService, *fakeBus, *gorm.DB) {
	t.Helper()
	db := newServiceDB(t, &domain.Product{}, &domain.Order{})
	bus := &fakeBus{}
	return &OrderService{DB: db, Bus: bus, Log: zerolog.Nop()}, bus, db
}

func seedCatalog(t *testing.T, db *gorm.DB, id, code string, price float64) {
	t.Helper()
	if err := repo.CreateProduct(context.Background(), db, &domain.Product{
		ID: id, Name: "P " + id, Code: code, Price: price,
	}); err != nil {
		t.Fatalf("seed product %s: %v", id, err)
	}
}

func validRequest() OrderRequest {
	return OrderRequest{
		Email:      "a@b.com",
		ProductIDs: []string{"p1", "p2"},
		Payment:    domain.PaymentCreditCard,
		Shipping:   domain.Shipping{Type: "EXPRESS", Carrier: "DHL"},
	}
}

func TestSubmit_TotalPriceAndSnapshot(t *testing.T) {
	svc, bus, db := newOrderService(t)
	ctx := context.Background()

	seedCatalog(t, db, "p1", "C1", 10)
	seedCatalog(t, db, "p2", "C2", 15)

	o, err := svc.Submit(ctx, "req-1", validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if o.Billing.TotalPrice != 25 {
		t.Fatalf("expected total 25, got %v", o.Billing.TotalPrice)
	}
	if len(o.Products) != 2 {
		t.Fatalf("expected snapshot of 2 products, got %+v", o.Products)
	}
	if o.ID == "" || o.CreatedAt == 0 {
		t.Fatalf("expected generated id and timestamp: %+v", o)
	}

	msg := bus.last(t)
	if msg.Topic != domain.TopicOrderEvents || msg.EventType != domain.EventOrderCreated {
		t.Fatalf("unexpected publish: %+v", msg)
	}
	ev, ok := msg.Payload.(domain.OrderEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", msg.Payload)
	}
	if ev.OrderID != o.ID || ev.Email != "a@b.com" || ev.RequestID != "req-1" || len(ev.ProductCodes) != 2 {
		t.Fatalf("unexpected event payload: %+v", ev)
	}
}

func TestSubmit_SnapshotSurvivesCatalogChanges(t *testing.T) {
	svc, _, db := newOrderService(t)
	ctx := context.Background()

	seedCatalog(t, db, "p1", "C1", 10)
	seedCatalog(t, db, "p2", "C2", 15)

	o, err := svc.Submit(ctx, "req-1", validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Reprice the catalog; the stored order keeps its snapshot.
	if err := repo.UpdateProduct(ctx, db, &domain.Product{ID: "p1", Name: "P p1", Code: "C1", Price: 999}); err != nil {
		t.Fatalf("reprice: %v", err)
	}
	got, err := svc.Get(ctx, "a@b.com", o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Billing.TotalPrice != 25 {
		t.Fatalf("snapshot total changed: %v", got.Billing.TotalPrice)
	}
}

func TestSubmit_NoIdempotencyKey_TwoOrders(t *testing.T) {
	svc, _, db := newOrderService(t)
	ctx := context.Background()

	seedCatalog(t, db, "p1", "C1", 10)
	seedCatalog(t, db, "p2", "C2", 15)

	o1, err := svc.Submit(ctx, "req-1", validRequest())
	if err != nil {
		t.Fatalf("Submit 1: %v", err)
	}
	o2, err := svc.Submit(ctx, "req-1", validRequest())
	if err != nil {
		t.Fatalf("Submit 2: %v", err)
	}
	if o1.ID == o2.ID {
		t.Fatalf("expected distinct order ids, both %s", o1.ID)
	}
}

func TestSubmit_PartialResolutionFails(t *testing.T) {
	svc, bus, db := newOrderService(t)
	ctx := context.Background()

	seedCatalog(t, db, "p1", "C1", 10)

	req := validRequest() // references p2 which does not exist
	_, err := svc.Submit(ctx, "req-1", req)
	if !errors.Is(err, ErrProductsNotFound) {
		t.Fatalf("expected ErrProductsNotFound, got %v", err)
	}

	// Nothing persisted, nothing published
	orders, err := svc.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected no orders persisted, got %d", len(orders))
	}
	if len(bus.Messages) != 0 {
		t.Fatalf("expected no publishes, got %d", len(bus.Messages))
	}
}

func TestSubmit_Validation(t *testing.T) {
	svc, _, _ := newOrderService(t)
	ctx := context.Background()

	req := validRequest()
	req.ProductIDs = nil
	if _, err := svc.Submit(ctx, "req-1", req); !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("expected ErrEmptyOrder, got %v", err)
	}

	req = validRequest()
	req.Payment = "BITCOIN"
	if _, err := svc.Submit(ctx, "req-1", req); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment, got %v", err)
	}
}

func TestSubmit_PublishFailureSurfaces(t *testing.T) {
	svc, bus, db := newOrderService(t)
	ctx := context.Background()

	seedCatalog(t, db, "p1", "C1", 10)
	seedCatalog(t, db, "p2", "C2", 15)
	bus.Err = errBusDown

	// The mutation is durable but the caller sees the failure (no
	// compensating transaction).
	if _, err := svc.Submit(ctx, "req-1", validRequest()); !errors.Is(err, errBusDown) {
		t.Fatalf("expected publish error to surface, got %v", err)
	}
	orders, err := svc.List(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected the order to remain persisted, got %d", len(orders))
	}
}

func TestOrderList_AllAndByEmail(t *testing.T) {
	svc, _, db := newOrderService(t)
	ctx := context.Background()

	seedCatalog(t, db, "p1", "C1", 10)
	seedCatalog(t, db, "p2", "C2", 15)

	if _, err := svc.Submit(ctx, "r1", validRequest()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	other := validRequest()
	other.Email = "z@b.com"
	if _, err := svc.Submit(ctx, "r2", other); err != nil {
		t.Fatalf("Submit other: %v", err)
	}

	all, err := svc.List(ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("List all: %v / %d", err, len(all))
	}
	mine, err := svc.List(ctx, "a@b.com")
	if err != nil || len(mine) != 1 || mine[0].Email != "a@b.com" {
		t.Fatalf("List by email: %v / %+v", err, mine)
	}
}

func TestOrderDelete_ReturnsPriorAndPublishes(t *testing.T) {
	svc, bus, db := newOrderService(t)
	ctx := context.Background()

	seedCatalog(t, db, "p1", "C1", 10)
	seedCatalog(t, db, "p2", "C2", 15)

	o, err := svc.Submit(ctx, "req-1", validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	prior, err := svc.Delete(ctx, "req-2", "a@b.com", o.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if prior.ID != o.ID || prior.Billing.TotalPrice != 25 {
		t.Fatalf("unexpected prior record: %+v", prior)
	}

	msg := bus.last(t)
	if msg.EventType != domain.EventOrderDeleted {
		t.Fatalf("expected ORDER_DELETED, got %s", msg.EventType)
	}
	ev := msg.Payload.(domain.OrderEvent)
	if ev.OrderID != o.ID || ev.RequestID != "req-2" {
		t.Fatalf("unexpected deletion payload: %+v", ev)
	}
}

func TestOrderDelete_NotFound(t *testing.T) {
	svc, _, _ := newOrderService(t)

	_, err := svc.Delete(context.Background(), "req-1", "a@b.com", "ghost")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderGet_NotFound(t *testing.T) {
	svc, _, _ := newOrderService(t)

	_, err := svc.Get(context.Background(), "a@b.com", "ghost")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
