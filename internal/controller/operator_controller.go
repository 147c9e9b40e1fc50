package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"tourbook-chat/internal/dto"
	"tourbook-chat/internal/pkg/serverutils"
	"tourbook-chat/internal/service"
)

// IOperatorController is the moderation feed support staff use to answer
// travellers and manage their sessions.
type IOperatorController interface {
	RegisterRoutes(r fiber.Router)
	Reply(ctx *fiber.Ctx) error
	CloseSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	DeleteMessage(ctx *fiber.Ctx) error
	DeleteMessages(ctx *fiber.Ctx) error
	ClearMessages(ctx *fiber.Ctx) error
}

type operatorController struct {
	supportChatService service.ISupportChatService
	jwtSecret          string
}

func NewOperatorController(supportChatService service.ISupportChatService, jwtSecret string) IOperatorController {
	return &operatorController{
		supportChatService: supportChatService,
		jwtSecret:          jwtSecret,
	}
}

func (c *operatorController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/support/v1/operator")
	h.Use(serverutils.JwtMiddleware(c.jwtSecret), serverutils.RequireRole(serverutils.RoleOperator))
	h.Post("users/:userId/messages", c.Reply)
	h.Delete("users/:userId/messages", c.ClearMessages)
	h.Post("users/:userId/messages/delete", c.DeleteMessages)
	h.Delete("users/:userId/messages/:messageId", c.DeleteMessage)
	h.Post("users/:userId/session/close", c.CloseSession)
	h.Delete("users/:userId/session", c.DeleteSession)
}

func uuidParam(ctx *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

func (c *operatorController) Reply(ctx *fiber.Ctx) error {
	userId, err := uuidParam(ctx, "userId")
	if err != nil {
		return err
	}

	var req dto.OperatorReplyRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	msg, err := c.supportChatService.Reply(ctx.UserContext(), userId, req.Text)
	if err != nil {
		return err
	}
	return ctx.JSON(dto.OperatorMessageResponse{Success: true, Message: *msg})
}

func (c *operatorController) CloseSession(ctx *fiber.Ctx) error {
	userId, err := uuidParam(ctx, "userId")
	if err != nil {
		return err
	}

	info, err := c.supportChatService.CloseSession(ctx.UserContext(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session closed", info))
}

func (c *operatorController) DeleteSession(ctx *fiber.Ctx) error {
	userId, err := uuidParam(ctx, "userId")
	if err != nil {
		return err
	}

	var req dto.DeleteSessionRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.ErrBadRequest
		}
	}
	clearMessages := true
	if req.ClearMessages != nil {
		clearMessages = *req.ClearMessages
	}

	if err := c.supportChatService.DeleteSession(ctx.UserContext(), userId, clearMessages); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Session deleted", nil))
}

func (c *operatorController) DeleteMessage(ctx *fiber.Ctx) error {
	userId, err := uuidParam(ctx, "userId")
	if err != nil {
		return err
	}
	messageId, err := uuidParam(ctx, "messageId")
	if err != nil {
		return err
	}

	if err := c.supportChatService.DeleteMessage(ctx.UserContext(), userId, messageId); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Message deleted", nil))
}

func (c *operatorController) DeleteMessages(ctx *fiber.Ctx) error {
	userId, err := uuidParam(ctx, "userId")
	if err != nil {
		return err
	}

	var req dto.DeleteMessagesRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	ids := make([]uuid.UUID, len(req.MessageIDs))
	for i, raw := range req.MessageIDs {
		ids[i] = uuid.MustParse(raw)
	}

	deleted, err := c.supportChatService.DeleteMessages(ctx.UserContext(), userId, ids)
	if err != nil {
		return err
	}
	res := dto.DeleteMessagesResponse{Success: true, Deleted: make([]string, len(deleted))}
	for i, id := range deleted {
		res.Deleted[i] = id.String()
	}
	return ctx.JSON(res)
}

func (c *operatorController) ClearMessages(ctx *fiber.Ctx) error {
	userId, err := uuidParam(ctx, "userId")
	if err != nil {
		return err
	}

	if err := c.supportChatService.ClearSupportMessages(ctx.UserContext(), userId); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Messages cleared", nil))
}
