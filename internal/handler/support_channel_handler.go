package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/internal/pkg/serverutils"
	internalWS "tourbook-chat/internal/websocket"
	"tourbook-chat/pkg/supportchat"
)

// SupportChannelHandler upgrades browser connections onto the caller's
// support channel.
type SupportChannelHandler struct {
	hub           *internalWS.Hub
	jwtSecret     string
	channelPrefix string
	logger        logger.ILogger
}

func NewSupportChannelHandler(hub *internalWS.Hub, jwtSecret, channelPrefix string, log logger.ILogger) *SupportChannelHandler {
	return &SupportChannelHandler{
		hub:           hub,
		jwtSecret:     jwtSecret,
		channelPrefix: channelPrefix,
		logger:        log,
	}
}

// ServeWs authenticates the handshake and streams channel envelopes.
func (h *SupportChannelHandler) ServeWs(c *fiber.Ctx) error {
	// Browsers cannot set headers on a websocket handshake, so the query
	// parameter comes first.
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr = serverutils.BearerToken(c.Get(fiber.HeaderAuthorization))
	}
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')"))
	}

	claims, err := serverutils.ParseToken(h.jwtSecret, tokenStr)
	if err != nil {
		h.logger.Warn("SupportChannelHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userID := claims.UserID.String()
	channel := supportchat.ChannelName(h.channelPrefix, userID)
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("SupportChannelHandler", "Starting WebSocket session", map[string]interface{}{"user_id": userID, "channel": channel})
		internalWS.ServeWs(h.hub, conn, userID, channel)
		h.logger.Info("SupportChannelHandler", "WebSocket session ended", map[string]interface{}{"user_id": userID})
	})(c)
}

// RegisterRoutes mounts the socket outside the bearer-protected /support/v1
// group.
func (h *SupportChannelHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/support/ws", h.ServeWs)
}
