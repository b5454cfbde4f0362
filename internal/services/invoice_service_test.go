package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ndgaspar/go-commerce-backend/internal/domain"
	"github.com/ndgaspar/go-commerce-backend/internal/repo"
	"github.com/ndgaspar/go-commerce-backend/internal/storage"
)

type pushRecord struct {
	ConnectionID string
	Payload      any
}

// fakeGateway implements ConnectionGateway and records pushes/disconnects.
type fakeGateway struct {
	mu           sync.Mutex
	Pushes       []pushRecord
	Disconnected []string
	PushErr      error
}

func (f *fakeGateway) Push(_ context.Context, connectionID string, payload any) error {
	if f.PushErr != nil {
		return f.PushErr
	}
	f.mu.Lock()
	f.Pushes = append(f.Pushes, pushRecord{ConnectionID: connectionID, Payload: payload})
	f.mu.Unlock()
	return nil
}

func (f *fakeGateway) Disconnect(connectionID string) error {
	f.mu.Lock()
	f.Disconnected = append(f.Disconnected, connectionID)
	f.mu.Unlock()
	return nil
}

func (f *fakeGateway) statuses() []StatusPush {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []StatusPush
	for _, p := range f.Pushes {
		if s, ok := p.Payload.(StatusPush); ok {
			out = append(out, s)
		}
	}
	return out
}

func newInvoiceService(t *testing.T) (*InvoiceService, *fakeGateway, *fakeBus, *gorm.DB) {
	t.Helper()
	db := newServiceDB(t, &domain.InvoiceTransaction{}, &domain.Invoice{})
	store, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	gw := &fakeGateway{}
	bus := &fakeBus{}
	svc := &InvoiceService{
		DB:             db,
		Store:          store,
		Conns:          gw,
		Bus:            bus,
		Log:            zerolog.Nop(),
		UploadBaseURL:  "http://localhost:8080",
		UploadExpiry:   300 * time.Second,
		TransactionTTL: 2 * time.Minute,
	}
	return svc, gw, bus, db
}

func TestGetUploadTarget_PersistsAndPushes(t *testing.T) {
	svc, gw, _, db := newInvoiceService(t)
	ctx := context.Background()

	target, err := svc.GetUploadTarget(ctx, "conn-1", "req-1")
	if err != nil {
		t.Fatalf("GetUploadTarget: %v", err)
	}
	if target.TransactionID == "" || target.Expires != 300 {
		t.Fatalf("unexpected target: %+v", target)
	}
	wantURL := "http://localhost:8080/invoices/upload/" + target.TransactionID
	if target.URL != wantURL {
		t.Fatalf("URL = %q; want %q", target.URL, wantURL)
	}

	// Persisted URL_GENERATED with a live TTL
	tx, err := repo.GetTransaction(ctx, db, target.TransactionID, time.Now().Unix())
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx.Status != domain.TransactionURLGenerated || tx.ConnectionID != "conn-1" || tx.RequestID != "req-1" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	// Target pushed over the connection
	if len(gw.Pushes) != 1 || gw.Pushes[0].ConnectionID != "conn-1" {
		t.Fatalf("expected one push to conn-1, got %+v", gw.Pushes)
	}
	if got, ok := gw.Pushes[0].Payload.(*UploadTarget); !ok || got.TransactionID != target.TransactionID {
		t.Fatalf("unexpected push payload: %+v", gw.Pushes[0].Payload)
	}
}

func TestOnUploadReceived_HappyPath(t *testing.T) {
	svc, gw, bus, db := newInvoiceService(t)
	ctx := context.Background()

	target, err := svc.GetUploadTarget(ctx, "conn-1", "req-1")
	if err != nil {
		t.Fatalf("GetUploadTarget: %v", err)
	}
	key := target.TransactionID

	payload := `{"invoiceNumber":"INV-1","customerName":"ACME","totalValue":100.5,"productId":"p1","quantity":2}`
	if err := svc.Store.Put(ctx, key, []byte(payload)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := svc.OnUploadReceived(ctx, key); err != nil {
		t.Fatalf("OnUploadReceived: %v", err)
	}

	// Status pushes in order: INVOICE_RECEIVED then INVOICE_PROCESSED
	statuses := gw.statuses()
	if len(statuses) != 2 ||
		statuses[0].Status != domain.TransactionInvoiceReceived ||
		statuses[1].Status != domain.TransactionInvoiceProcessed {
		t.Fatalf("unexpected status sequence: %+v", statuses)
	}
	for _, s := range statuses {
		if s.Key != key {
			t.Fatalf("status push key mismatch: %+v", s)
		}
	}

	// Invoice persisted
	inv, err := repo.GetInvoice(ctx, db, "ACME", "INV-1")
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if inv.TotalValue != 100.5 || inv.Quantity != 2 || inv.TransactionID != key {
		t.Fatalf("unexpected invoice: %+v", inv)
	}

	// Object removed
	if _, err := svc.Store.Get(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected object deleted, got %v", err)
	}

	// INVOICE_CREATED published
	msg := bus.last(t)
	if msg.Topic != domain.TopicInvoiceEvents || msg.EventType != domain.EventInvoiceCreated {
		t.Fatalf("unexpected publish: %+v", msg)
	}
	ev := msg.Payload.(domain.InvoiceEvent)
	if ev.InvoiceNumber != "INV-1" || ev.Customer != "ACME" || ev.RequestID != "req-1" {
		t.Fatalf("unexpected event payload: %+v", ev)
	}

	// Connection closed: single round-trip
	if len(gw.Disconnected) != 1 || gw.Disconnected[0] != "conn-1" {
		t.Fatalf("expected disconnect of conn-1, got %v", gw.Disconnected)
	}
}

func TestOnUploadReceived_MissingInvoiceNumber(t *testing.T) {
	svc, gw, _, db := newInvoiceService(t)
	ctx := context.Background()

	target, err := svc.GetUploadTarget(ctx, "conn-1", "req-1")
	if err != nil {
		t.Fatalf("GetUploadTarget: %v", err)
	}
	key := target.TransactionID

	if err := svc.Store.Put(ctx, key, []byte(`{"customerName":"ACME"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := svc.OnUploadReceived(ctx, key); !errors.Is(err, ErrMissingInvoiceNumber) {
		t.Fatalf("expected ErrMissingInvoiceNumber, got %v", err)
	}

	// Error status reported, connection closed, no record persisted
	statuses := gw.statuses()
	last := statuses[len(statuses)-1]
	if last.Status != "ERROR: NO INVOICE NUMBER IN FILE" {
		t.Fatalf("expected error status push, got %+v", statuses)
	}
	if len(gw.Disconnected) != 1 {
		t.Fatalf("expected disconnect, got %v", gw.Disconnected)
	}
	var count int64
	if err := db.Model(&domain.Invoice{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no invoice records, got %d", count)
	}
}

func TestOnUploadReceived_OutOfOrderUploadIgnored(t *testing.T) {
	svc, gw, _, db := newInvoiceService(t)
	ctx := context.Background()

	target, err := svc.GetUploadTarget(ctx, "conn-1", "req-1")
	if err != nil {
		t.Fatalf("GetUploadTarget: %v", err)
	}
	key := target.TransactionID
	if err := repo.UpdateTransactionStatus(ctx, db, key, domain.TransactionInvoiceProcessed); err != nil {
		t.Fatalf("advance status: %v", err)
	}

	if err := svc.OnUploadReceived(ctx, key); err != nil {
		t.Fatalf("OnUploadReceived: %v", err)
	}

	// Current status re-pushed, nothing else happens
	statuses := gw.statuses()
	if len(statuses) != 1 || statuses[0].Status != domain.TransactionInvoiceProcessed {
		t.Fatalf("expected current-status push, got %+v", statuses)
	}
	if len(gw.Disconnected) != 0 {
		t.Fatalf("expected no disconnect for duplicate upload, got %v", gw.Disconnected)
	}
}

func TestOnUploadReceived_AbsentTransaction_BestEffort(t *testing.T) {
	svc, gw, _, db := newInvoiceService(t)
	ctx := context.Background()

	payload := `{"invoiceNumber":"INV-9","customerName":"ACME","totalValue":1,"productId":"p1","quantity":1}`
	if err := svc.Store.Put(ctx, "orphan-key", []byte(payload)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := svc.OnUploadReceived(ctx, "orphan-key"); err != nil {
		t.Fatalf("OnUploadReceived: %v", err)
	}

	// Invoice persisted without any pushes
	if _, err := repo.GetInvoice(ctx, db, "ACME", "INV-9"); err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if len(gw.Pushes) != 0 || len(gw.Disconnected) != 0 {
		t.Fatalf("expected no connection traffic, got %+v / %v", gw.Pushes, gw.Disconnected)
	}
}

func TestExpireTransactions_TimeoutReported(t *testing.T) {
	svc, gw, _, db := newInvoiceService(t)
	ctx := context.Background()
	now := time.Now()

	// Expired, never processed -> TIMEOUT + disconnect
	stale := &domain.InvoiceTransaction{
		ID:           "tx-stale",
		Status:       domain.TransactionURLGenerated,
		TTL:          now.Add(-time.Minute).Unix(),
		CreatedAt:    now.Add(-3 * time.Minute).UnixMilli(),
		ConnectionID: "conn-stale",
	}
	if err := repo.CreateTransaction(ctx, db, stale); err != nil {
		t.Fatalf("seed stale: %v", err)
	}
	// Expired but processed -> silent removal, still disconnected
	done := &domain.InvoiceTransaction{
		ID:           "tx-done",
		Status:       domain.TransactionInvoiceProcessed,
		TTL:          now.Add(-time.Minute).Unix(),
		CreatedAt:    now.Add(-3 * time.Minute).UnixMilli(),
		ConnectionID: "conn-done",
	}
	if err := repo.CreateTransaction(ctx, db, done); err != nil {
		t.Fatalf("seed done: %v", err)
	}
	// Live -> untouched
	live := &domain.InvoiceTransaction{
		ID:           "tx-live",
		Status:       domain.TransactionURLGenerated,
		TTL:          now.Add(time.Minute).Unix(),
		CreatedAt:    now.UnixMilli(),
		ConnectionID: "conn-live",
	}
	if err := repo.CreateTransaction(ctx, db, live); err != nil {
		t.Fatalf("seed live: %v", err)
	}

	n, err := svc.ExpireTransactions(ctx, now)
	if err != nil {
		t.Fatalf("ExpireTransactions: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 swept, got %d", n)
	}

	statuses := gw.statuses()
	if len(statuses) != 1 || statuses[0].Key != "tx-stale" || statuses[0].Status != domain.TransactionTimeout {
		t.Fatalf("expected one TIMEOUT push for tx-stale, got %+v", statuses)
	}
	if len(gw.Disconnected) != 2 {
		t.Fatalf("expected both expired connections closed, got %v", gw.Disconnected)
	}

	// Live transaction survives
	if _, err := repo.GetTransaction(ctx, db, "tx-live", now.Unix()); err != nil {
		t.Fatalf("live transaction gone: %v", err)
	}
}

func TestPush_BestEffortWhenConnectionGone(t *testing.T) {
	svc, gw, _, _ := newInvoiceService(t)
	gw.PushErr = errors.New("connection closed")
	ctx := context.Background()

	// Issuance fails hard (the caller never saw a target)...
	if _, err := svc.GetUploadTarget(ctx, "conn-ghost", "req-1"); err == nil {
		t.Fatalf("expected error when target push fails")
	}
}
