package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ndgaspar/go-commerce-backend/internal/services"
)

// fakeIssuer records issuance calls and optionally pushes a target back,
// mimicking the workflow's behavior.
type fakeIssuer struct {
	gw  *Gateway
	err error

	mu    sync.Mutex
	calls []string // connection ids
}

func (f *fakeIssuer) GetUploadTarget(ctx context.Context, connectionID, requestID string) (*services.UploadTarget, error) {
	f.mu.Lock()
	f.calls = append(f.calls, connectionID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	target := &services.UploadTarget{
		URL:           "http://localhost:8080/invoices/upload/tx-1",
		Expires:       300,
		TransactionID: "tx-1",
	}
	if err := f.gw.Push(ctx, connectionID, target); err != nil {
		return nil, err
	}
	return target, nil
}

func (f *fakeIssuer) connections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newWSServer(t *testing.T) (*Gateway, *fakeIssuer, *websocket.Conn) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gw := NewGateway(nil, zerolog.Nop())
	issuer := &fakeIssuer{gw: gw}
	gw.Issuer = issuer

	r := gin.New()
	r.GET("/ws", gw.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	sock, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = sock.Close() })
	return gw, issuer, sock
}

func TestGateway_GetUploadUrl(t *testing.T) {
	_, issuer, sock := newWSServer(t)

	if err := sock.WriteJSON(map[string]string{"action": "getUploadUrl"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = sock.SetReadDeadline(time.Now().Add(2 * time.Second))
	var target services.UploadTarget
	if err := sock.ReadJSON(&target); err != nil {
		t.Fatalf("read: %v", err)
	}
	if target.TransactionID != "tx-1" || target.Expires != 300 {
		t.Fatalf("unexpected target: %+v", target)
	}
	if len(issuer.connections()) != 1 {
		t.Fatalf("expected one issuance, got %v", issuer.connections())
	}
}

func TestGateway_UnknownAction(t *testing.T) {
	_, _, sock := newWSServer(t)

	if err := sock.WriteJSON(map[string]string{"action": "nope"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = sock.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp map[string]string
	if err := sock.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(resp["status"], "ERROR") {
		t.Fatalf("expected error status, got %+v", resp)
	}
}

func TestGateway_IssuerErrorReported(t *testing.T) {
	_, issuer, sock := newWSServer(t)
	issuer.err = errors.New("db down")

	if err := sock.WriteJSON(map[string]string{"action": "getUploadUrl"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = sock.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp map[string]string
	if err := sock.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(resp["status"], "ERROR") {
		t.Fatalf("expected error status, got %+v", resp)
	}
}

func TestGateway_PushAndDisconnect(t *testing.T) {
	gw, issuer, sock := newWSServer(t)

	// Learn the server-side connection id through an issuance.
	if err := sock.WriteJSON(map[string]string{"action": "getUploadUrl"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = sock.SetReadDeadline(time.Now().Add(2 * time.Second))
	var target services.UploadTarget
	if err := sock.ReadJSON(&target); err != nil {
		t.Fatalf("read target: %v", err)
	}
	connID := issuer.connections()[0]

	// Push a status by connection id.
	push := services.StatusPush{Key: "tx-1", Status: "INVOICE_RECEIVED"}
	if err := gw.Push(context.Background(), connID, push); err != nil {
		t.Fatalf("push: %v", err)
	}
	var got services.StatusPush
	if err := sock.ReadJSON(&got); err != nil {
		t.Fatalf("read push: %v", err)
	}
	if got != push {
		t.Fatalf("push round-trip mismatch: %+v", got)
	}

	// Disconnect closes the socket server-side; the next read fails.
	if err := gw.Disconnect(connID); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	var after services.StatusPush
	if err := sock.ReadJSON(&after); err == nil {
		t.Fatalf("expected closed connection, read %+v", after)
	}

	// Connection id is forgotten.
	if err := gw.Push(context.Background(), connID, push); !errors.Is(err, ErrConnectionNotFound) {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}
	// Disconnecting again is not an error.
	if err := gw.Disconnect(connID); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
}

func TestGateway_PushUnknownConnection(t *testing.T) {
	gw := NewGateway(nil, zerolog.Nop())
	if err := gw.Push(context.Background(), "ghost", "x"); !errors.Is(err, ErrConnectionNotFound) {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}
}
