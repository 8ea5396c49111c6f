package server

import (
	"animelight/internal/notifications"
	"animelight/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RequireUpgrade rejects plain HTTP requests to the websocket route.
func (s *Server) RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// WebsocketHandler attaches a UI connection to the hub. The connection first receives
// the current counter and feed version, then every change.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		client, err := s.hub.Register(conn)
		if err != nil {
			observability.GlobalLogger.Warn("ui websocket rejected", "error", err.Error())
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		newPosts := 0
		if s.signal != nil {
			newPosts = s.signal.Value()
		}
		s.hub.SendTo(client, notifications.FrameNewPosts, fiber.Map{"count": newPosts})
		s.hub.SendTo(client, notifications.FrameFeedChanged, fiber.Map{"version": s.session.Store().Version()})

		go client.WritePump()
		client.ReadPump()
	})
}
