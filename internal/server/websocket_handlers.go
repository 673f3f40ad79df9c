package server

import (
	"context"
	"encoding/json"

	"animegram/internal/middleware"
	"animegram/internal/notifications"
	"animegram/internal/observability"
	"animegram/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.opentelemetry.io/otel/attribute"
)

// Inbound frame types accepted on /api/ws.
const (
	wsSetActive   = "set_active"
	wsClearActive = "clear_active"
	wsPing        = "ping"
)

type wsInbound struct {
	Type   string `json:"type"`
	UserID string `json:"user_id,omitempty"`
}

// WebSocketUpgrade rejects plain HTTP requests to the WebSocket endpoint.
func (s *Server) WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// WebSocketHandler handles GET /api/ws. The connection first receives a
// snapshot of the viewer's store, then one state_change per applied
// transition, plus every message and notification delivered to the viewer.
// @Summary Realtime stream
// @Description Authenticate with ?ticket= from POST /ws/ticket or a bearer header
// @Tags realtime
// @Param ticket query string false "Single-use ticket"
// @Success 101
// @Failure 401 {object} models.ErrorResponse
// @Failure 426 {object} models.ErrorResponse
// @Router /ws [get]
func (s *Server) WebSocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		st, ok := conn.Locals("store").(*store.Store)
		if !ok || st == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":{"error":"unauthorized"}}`))
			_ = conn.Close()
			return
		}
		userID := st.ViewerID()

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("websocket register failed", "user_id", userID, "error", err)
			if env, eerr := notifications.NewEnvelope(notifications.EventError, fiber.Map{"error": err.Error()}); eerr == nil {
				if data, merr := json.Marshal(env); merr == nil {
					_ = conn.WriteMessage(websocket.TextMessage, data)
				}
			}
			_ = conn.Close()
			return
		}
		defer s.hub.UnregisterClient(client)

		unsubscribe := st.Watch(func(snap store.Snapshot) {
			if env, err := notifications.NewEnvelope(notifications.EventSnapshot, snap); err == nil {
				client.SendEnvelope(env)
			}
		}, func(ch store.Change) {
			env, err := notifications.NewEnvelope(notifications.EventStateChange, ch)
			if err != nil {
				return
			}
			client.SendEnvelope(env)
			if ch.Slice == store.SliceAuth && ch.Op == "logout" {
				s.hub.UnregisterClient(client)
			}
		})
		defer unsubscribe()

		client.IncomingHandler = func(cl *notifications.Client, message []byte) {
			s.handleInbound(st, cl, message)
		}

		go client.WritePump()
		client.ReadPump()
	})
}

// handleInbound applies one client frame. Malformed or unknown frames are
// answered with an error envelope.
func (s *Server) handleInbound(st *store.Store, cl *notifications.Client, message []byte) {
	ctx := context.WithValue(context.Background(), middleware.UserIDKey, st.ViewerID())

	var in wsInbound
	if err := json.Unmarshal(message, &in); err != nil {
		sendWSError(cl, "invalid message format")
		return
	}

	span, ctx := observability.NewSpan(ctx, "websocket."+in.Type)
	span.AddAttributes(
		attribute.String("websocket.hub", cl.Hub.Name()),
		attribute.String("user.id", st.ViewerID()),
	)
	defer span.End()

	switch in.Type {
	case wsSetActive:
		if _, err := s.chatService.SetActive(ctx, st, in.UserID); err != nil {
			span.SetError(err)
			sendWSError(cl, err.Error())
		}
	case wsClearActive:
		s.chatService.ClearActive(st)
	case wsPing:
		if env, err := notifications.NewEnvelope(notifications.EventPong, fiber.Map{"version": st.Snapshot().Version}); err == nil {
			cl.SendEnvelope(env)
		}
	default:
		sendWSError(cl, "unknown message type")
	}
}

func sendWSError(cl *notifications.Client, msg string) {
	if env, err := notifications.NewEnvelope(notifications.EventError, fiber.Map{"error": msg}); err == nil {
		cl.SendEnvelope(env)
	}
}
