package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/servicedeck/servicedeck/internal/inventory"
	"github.com/servicedeck/servicedeck/pkg/models"
	"github.com/servicedeck/servicedeck/pkg/plugin"
	"go.uber.org/zap"
)

// SnapshotSource provides the current service list for resync requests.
// The inventory plugin satisfies this.
type SnapshotSource interface {
	Snapshot() []*models.Service
}

// Handler provides WebSocket endpoints for real-time inventory updates.
type Handler struct {
	hub      *Hub
	bus      plugin.EventBus
	snapshot SnapshotSource
	logger   *zap.Logger
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a WebSocket handler and subscribes to inventory events.
func NewHandler(bus plugin.EventBus, snapshot SnapshotSource, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:      NewHub(logger),
		bus:      bus,
		snapshot: snapshot,
		logger:   logger,
	}
	h.subscribeToEvents()
	return h
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/services", h.handleServiceStream)
}

// handleServiceStream upgrades the connection to WebSocket and streams
// inventory events. A snapshot of the current state is sent first so the
// client starts consistent; later gaps (dropped messages under backpressure)
// are repaired by the client sending a resync request.
func (h *Handler) handleServiceStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Local single-host tool; no cross-origin restrictions.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		id:     uuid.NewString(),
		send:   make(chan Message, 256),
		logger: h.logger,
	}

	h.hub.Register(client)
	h.sendSnapshot(client)

	// Run read and write pumps. When either exits, clean up.
	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// readPump blocks until client disconnects.
	h.readPump(ctx, client)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

// readPump reads client requests until disconnect. The only supported
// request is a resync, which re-sends the full snapshot.
func (h *Handler) readPump(ctx context.Context, c *Client) {
	for {
		var req clientRequest
		if err := wsjson.Read(ctx, c.conn, &req); err != nil {
			return
		}
		if req.Type == "resync" {
			h.sendSnapshot(c)
		}
	}
}

// sendSnapshot delivers the full current service list to one client.
func (h *Handler) sendSnapshot(c *Client) {
	if h.snapshot == nil {
		return
	}
	msg := Message{
		Type:      MessageSnapshot,
		Timestamp: time.Now(),
		Data:      SnapshotData{Services: h.snapshot.Snapshot()},
	}
	if !c.Send(msg) {
		h.logger.Warn("snapshot dropped, client buffer full", zap.String("client_id", c.id))
	}
}

// subscribeToEvents forwards inventory change events to all connected clients.
func (h *Handler) subscribeToEvents() {
	if h.bus == nil {
		return
	}

	h.bus.Subscribe(inventory.TopicServiceEvent, func(_ context.Context, event plugin.Event) {
		svcEvent, ok := event.Payload.(*inventory.ServiceEvent)
		if !ok {
			return
		}
		h.hub.Broadcast(Message{
			Type:      MessageServiceEvent,
			Timestamp: event.Timestamp,
			Data:      ServiceEventData{Event: svcEvent},
		})
	})

	h.logger.Info("subscribed to inventory events for WebSocket broadcasting")
}

// BroadcastError sends an error message to all connected clients.
func (h *Handler) BroadcastError(errMsg string) {
	h.hub.Broadcast(Message{
		Type:      MessageError,
		Timestamp: time.Now(),
		Data:      ErrorData{Error: errMsg},
	})
}
