package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs registers c on channel and pumps envelopes until the peer leaves.
func ServeWs(hub *Hub, c *websocket.Conn, userID, channel string) {
	client := &Client{Hub: hub, Conn: c, UserID: userID, Channel: channel, Send: make(chan []byte, 256)}
	if !hub.join(client) {
		_ = c.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
