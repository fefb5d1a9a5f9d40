package websocket

import (
	"backoffice-notify/internal/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs runs one push-channel connection until the peer goes away.
func ServeWs(hub *Hub, c *websocket.Conn, userID uuid.UUID, log logger.ILogger) {
	client := NewClient(hub, c, userID, log)
	if !hub.Register(client) {
		c.Close()
		return
	}

	go client.writePump()
	client.readPump() // fiber/websocket closes the conn when the handler returns
}
