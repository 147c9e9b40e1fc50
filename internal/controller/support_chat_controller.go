package controller

import (
	"github.com/gofiber/fiber/v2"

	"tourbook-chat/internal/dto"
	"tourbook-chat/internal/pkg/serverutils"
	"tourbook-chat/internal/service"
	"tourbook-chat/pkg/supportchat"
)

type ISupportChatController interface {
	RegisterRoutes(r fiber.Router)
	History(ctx *fiber.Ctx) error
	Send(ctx *fiber.Ctx) error
	ClearHistory(ctx *fiber.Ctx) error
	SessionStatus(ctx *fiber.Ctx) error
	StartSession(ctx *fiber.Ctx) error
}

type supportChatController struct {
	supportChatService service.ISupportChatService
	jwtSecret          string
	sendLimiter        *serverutils.UserRateLimiter
}

// NewSupportChatController serves the traveller side. A nil sendLimiter
// leaves sends unthrottled.
func NewSupportChatController(supportChatService service.ISupportChatService, jwtSecret string, sendLimiter *serverutils.UserRateLimiter) ISupportChatController {
	return &supportChatController{
		supportChatService: supportChatService,
		jwtSecret:          jwtSecret,
		sendLimiter:        sendLimiter,
	}
}

func (c *supportChatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/support/v1")
	h.Use(serverutils.JwtMiddleware(c.jwtSecret))
	h.Get("messages", c.History)
	h.Post("messages", serverutils.RateLimitByUser(c.sendLimiter), c.Send)
	h.Delete("messages", c.ClearHistory)
	h.Get("session", c.SessionStatus)
	h.Post("session", c.StartSession)
}

func (c *supportChatController) History(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var q dto.HistoryQuery
	if err := ctx.QueryParser(&q); err != nil {
		return fiber.ErrBadRequest
	}
	if err := serverutils.ValidateRequest(q); err != nil {
		return err
	}

	msgs, err := c.supportChatService.History(ctx.UserContext(), userId, q.Mode)
	if err != nil {
		return err
	}
	return ctx.JSON(supportchat.HistoryResponse{Success: true, Messages: msgs})
}

func (c *supportChatController) Send(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req supportchat.SendRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.supportChatService.Send(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

func (c *supportChatController) ClearHistory(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var q dto.HistoryQuery
	if err := ctx.QueryParser(&q); err != nil {
		return fiber.ErrBadRequest
	}
	if err := serverutils.ValidateRequest(q); err != nil {
		return err
	}

	if err := c.supportChatService.ClearHistory(ctx.UserContext(), userId, q.Mode); err != nil {
		return err
	}
	return ctx.JSON(supportchat.SuccessResponse{Success: true})
}

func (c *supportChatController) SessionStatus(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	info, err := c.supportChatService.SessionStatus(ctx.UserContext(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(supportchat.SessionStatusResponse{Session: info})
}

func (c *supportChatController) StartSession(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	if err := c.supportChatService.StartSession(ctx.UserContext(), userId); err != nil {
		return err
	}
	return ctx.JSON(supportchat.SuccessResponse{Success: true})
}
