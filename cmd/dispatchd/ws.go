package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/events"
)

// writeTimeout bounds each WebSocket send so one stalled client can't
// block the broadcast fan-out.
const writeTimeout = 5 * time.Second

// wsEvent is the wire shape of a bridged core event.
type wsEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Seq       uint64 `json:"seq"`
	Payload   any    `json:"payload,omitempty"`
}

// wsConn is one connected WebSocket client.
type wsConn struct {
	id     string
	conn   *websocket.Conn
	cancel context.CancelFunc
}

// wsHub bridges the core's in-process event bus onto WebSocket
// connections: every published core event is fanned out, as JSON, to every
// connected client. It is a one-way observation feed — clients drive the
// engine through the HTTP API, not through the socket.
type wsHub struct {
	log *zap.Logger

	mu          sync.RWMutex
	connections map[string]*wsConn

	unsubscribe func()
}

func newWSHub(log *zap.Logger) *wsHub {
	return &wsHub{
		log:         log,
		connections: make(map[string]*wsConn),
	}
}

// Attach subscribes the hub to bus, broadcasting every event until Detach.
func (h *wsHub) Attach(bus *events.Bus) {
	h.unsubscribe = bus.Subscribe(func(ev events.Event) {
		h.broadcast(wsEvent{
			Type:      string(ev.Type),
			SessionID: ev.SessionID,
			Seq:       ev.Seq,
			Payload:   ev.Payload,
		})
	})
}

// Detach drops the bus subscription and closes every connection.
func (h *wsHub) Detach() {
	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}
	h.mu.Lock()
	for _, c := range h.connections {
		c.cancel()
	}
	h.connections = make(map[string]*wsConn)
	h.mu.Unlock()
}

func (h *wsHub) broadcast(ev wsEvent) {
	h.mu.RLock()
	conns := make([]*wsConn, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := wsjson.Write(ctx, c.conn, ev)
		cancel()
		if err != nil {
			h.log.Debug("dropping websocket client on write failure",
				zap.String("connection_id", c.id), zap.Error(err))
			h.remove(c.id)
			c.cancel()
		}
	}
}

func (h *wsHub) remove(id string) {
	h.mu.Lock()
	delete(h.connections, id)
	h.mu.Unlock()
}

// HandleConnection upgrades the request and streams events until the
// client disconnects. Blocks for the connection's lifetime.
func (h *wsHub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin allow-listing is the deployment proxy's concern
	})
	if err != nil {
		h.log.Debug("websocket accept failed", zap.Error(err))
		return
	}

	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.mu.Lock()
	h.connections[connID] = &wsConn{id: connID, conn: conn, cancel: cancel}
	h.mu.Unlock()
	defer h.remove(connID)

	_ = wsjson.Write(ctx, conn, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})

	// Read loop: the feed is one-way, but reading drains client pings and
	// detects disconnects.
	for {
		var msg map[string]any
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		if t, ok := msg["type"].(string); ok && t == "ping" {
			_ = wsjson.Write(ctx, conn, map[string]string{"type": "pong"})
		}
	}
}
