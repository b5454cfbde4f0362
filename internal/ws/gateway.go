// Package ws implements the bidirectional channel of the invoice upload
// handshake. The gateway upgrades HTTP requests to WebSocket connections,
// assigns each a server-side connection id, routes client messages to the
// invoice workflow, and exposes Push/Disconnect so the workflow can reach
// clients by connection id long after the originating request returned.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ndgaspar/go-commerce-backend/internal/services"
)

// ErrConnectionNotFound is returned by Push for unknown or already closed
// connection ids.
var ErrConnectionNotFound = errors.New("ws: connection not found")

// UploadIssuer is the slice of the invoice workflow the gateway routes to.
type UploadIssuer interface {
	GetUploadTarget(ctx context.Context, connectionID, requestID string) (*services.UploadTarget, error)
}

// clientMessage is the envelope read from clients. One application route is
// supported: {"action": "getUploadUrl"}.
type clientMessage struct {
	Action string `json:"action"`
}

type connection struct {
	id   string
	sock *websocket.Conn
	mu   sync.Mutex // serializes writes; gorilla allows one writer at a time
}

func (c *connection) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock.WriteJSON(v)
}

// Gateway manages live connections. Safe for concurrent use; it implements
// services.ConnectionGateway.
type Gateway struct {
	Issuer UploadIssuer
	Log    zerolog.Logger

	upgrader websocket.Upgrader
	mu       sync.RWMutex
	conns    map[string]*connection
}

// NewGateway constructs a Gateway routing to the given issuer.
func NewGateway(issuer UploadIssuer, log zerolog.Logger) *Gateway {
	return &Gateway{
		Issuer: issuer,
		Log:    log.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 10,
			WriteBufferSize: 1 << 10,
			// The REST layer already enforces CORS; the WS handshake accepts
			// any origin and relies on connection ids being unguessable.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*connection),
	}
}

// Handle upgrades the request and serves the connection's read loop until
// the client goes away or the workflow disconnects it.
func (g *Gateway) Handle(c *gin.Context) {
	sock, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.Log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	conn := &connection{id: uuid.NewString(), sock: sock}
	g.mu.Lock()
	g.conns[conn.id] = conn
	g.mu.Unlock()
	g.Log.Info().Str("connection_id", conn.id).Msg("client connected")

	defer g.drop(conn.id)

	for {
		var msg clientMessage
		if err := sock.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.Log.Debug().Err(err).Str("connection_id", conn.id).Msg("read loop ended")
			}
			return
		}
		g.route(c.Request.Context(), conn, msg)
	}
}

// Push writes payload to the identified connection.
func (g *Gateway) Push(_ context.Context, connectionID string, payload any) error {
	g.mu.RLock()
	conn, ok := g.conns[connectionID]
	g.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}
	return conn.writeJSON(payload)
}

// Disconnect closes the identified connection and forgets it. Disconnecting
// an unknown id is not an error — the client may have dropped first.
func (g *Gateway) Disconnect(connectionID string) error {
	g.mu.Lock()
	conn, ok := g.conns[connectionID]
	delete(g.conns, connectionID)
	g.mu.Unlock()
	if !ok {
		return nil
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	_ = conn.sock.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.sock.Close()
}

// Close tears down every live connection (server shutdown).
func (g *Gateway) Close() {
	g.mu.Lock()
	ids := make([]string, 0, len(g.conns))
	for id := range g.conns {
		ids = append(ids, id)
	}
	g.mu.Unlock()
	for _, id := range ids {
		_ = g.Disconnect(id)
	}
}

func (g *Gateway) route(ctx context.Context, conn *connection, msg clientMessage) {
	switch msg.Action {
	case "getUploadUrl":
		requestID := uuid.NewString()
		if _, err := g.Issuer.GetUploadTarget(ctx, conn.id, requestID); err != nil {
			g.Log.Error().Err(err).Str("connection_id", conn.id).Msg("upload target failed")
			_ = conn.writeJSON(map[string]string{"status": "ERROR: COULD NOT ISSUE UPLOAD URL"})
		}
	default:
		g.Log.Warn().Str("action", msg.Action).Str("connection_id", conn.id).Msg("unknown action")
		_ = conn.writeJSON(map[string]string{"status": "ERROR: UNKNOWN ACTION"})
	}
}

func (g *Gateway) drop(connectionID string) {
	g.mu.Lock()
	conn, ok := g.conns[connectionID]
	delete(g.conns, connectionID)
	g.mu.Unlock()
	if ok {
		_ = conn.sock.Close()
		g.Log.Info().Str("connection_id", connectionID).Msg("client disconnected")
	}
}
