// Package websocket streams newly ingested flows to connected
// dashboard clients. Each connection gets its own buffered queue; a
// slow client drops frames rather than stalling the ingest path.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"flowmon/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, configure this properly
	},
}

const viewerQueueSize = 256

type Handler struct {
	log *logrus.Logger

	// Per-connection flow queue plus the client's selected view mode.
	viewers map[*websocket.Conn]chan models.FlowRecord
	modes   map[*websocket.Conn]string
	mu      sync.RWMutex
}

func NewHandler(log *logrus.Logger) *Handler {
	return &Handler{
		log:     log,
		viewers: make(map[*websocket.Conn]chan models.FlowRecord),
		modes:   make(map[*websocket.Conn]string),
	}
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Publish fans one stored flow out to every connected client. Clients
// in "alerts" mode only receive malicious flows.
func (h *Handler) Publish(flow models.FlowRecord) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, queue := range h.viewers {
		if h.modes[conn] == "alerts" && flow.Label == "Good" {
			continue
		}
		select {
		case queue <- flow:
		default:
			// Queue full. The client is too slow, skip this frame.
		}
	}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	queue := make(chan models.FlowRecord, viewerQueueSize)
	h.mu.Lock()
	h.viewers[conn] = queue
	h.modes[conn] = "all"
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		h.mu.Lock()
		delete(h.viewers, conn)
		delete(h.modes, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	go h.readPump(ctx, conn)
	h.writePump(ctx, conn, queue)
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg wsMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Debug("websocket read error")
			}
			return
		}

		switch msg.Type {
		case "view_mode":
			var mode string
			if err := json.Unmarshal(msg.Payload, &mode); err != nil {
				continue
			}
			if mode != "all" && mode != "alerts" {
				continue
			}
			h.mu.Lock()
			h.modes[conn] = mode
			h.mu.Unlock()
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, queue <-chan models.FlowRecord) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case flow := <-queue:
			err := conn.WriteJSON(wsMessage{
				Type:    "flow",
				Payload: json.RawMessage(mustMarshal(flow)),
			})
			if err != nil {
				return
			}

		case <-ticker.C:
			// Keepalive so idle connections survive proxies.
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
