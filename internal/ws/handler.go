package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"talkio/internal/chat"
	"talkio/internal/models"
	"talkio/internal/observability"
)

// ChatWebSocketHandler accepts websocket connections and feeds their events
// through the coordination engine. Authentication happens in-band via the
// authenticate event, so the upgrade itself is open to guests.
type ChatWebSocketHandler struct {
	hub    *Hub
	engine *chat.Engine
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, engine *chat.Engine) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{hub: hub, engine: engine}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers it, and starts its read loop.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("talkio/ws").Start(c.Request.Context(), "ws.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := newConnInfo(c.Request, span.SpanContext().TraceID().String())
	h.hub.Add(info.ConnID, conn, info)
	h.engine.Connect(info.ConnID)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycle(ctx, info, "ws_connect", "")

	go h.readLoop(context.WithoutCancel(ctx), conn, info)
}

func (h *ChatWebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.engine.Disconnect(info.ConnID)
		h.hub.Remove(info.ConnID)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycle(ctx, info, "ws_disconnect", closeReason)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishLifecycle(ctx, info, "ws_error", closeReason)
			}
			return
		}

		ev, err := decodeEvent(raw)
		if err != nil {
			log.Printf("dropping frame from %s: %v", info.ConnID, err)
			continue
		}

		// Dispatch is synchronous, so this connection's events are handled
		// strictly in arrival order.
		if err := h.engine.Dispatch(ctx, info.ConnID, ev); err != nil {
			h.hub.ToConn(info.ConnID, models.EventError, models.ErrorEvent{Message: err.Error()})
		}
	}
}

func (h *ChatWebSocketHandler) publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	observability.PublishConnEvent(ctx, observability.ConnEvent{
		Name:     event,
		ConnID:   info.ConnID,
		ClientID: info.ClientID,
		IP:       info.IP,
		UptimeMs: time.Since(info.ConnectedAt).Milliseconds(),
		Reason:   reason,
	}, observability.TraceHeaders(info.RequestID, info.TraceID))
}
