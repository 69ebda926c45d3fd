package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Abdin71/supportflow-ai/internal/api/dto"
	"github.com/Abdin71/supportflow-ai/internal/service"
	apperrors "github.com/Abdin71/supportflow-ai/pkg/util"
)

// MessagesHandler manages ticket thread endpoints.
type MessagesHandler struct {
	service *service.TicketService
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(ticketService *service.TicketService) *MessagesHandler {
	return &MessagesHandler{service: ticketService}
}

// List GET /tickets/:id/messages.
func (h *MessagesHandler) List(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	messages, err := h.service.ListMessages(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMessageList(messages)})
}

// Create POST /tickets/:id/messages.
func (h *MessagesHandler) Create(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.service.AddMessage(c.UserContext(), caller, c.Params("id"), service.MessageCreateInput{
		Text:           req.Text,
		IsAISuggestion: req.IsAISuggestion,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}

// Update PATCH /tickets/:id/messages/:messageId.
func (h *MessagesHandler) Update(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	var req dto.UpdateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.service.UpdateMessage(c.UserContext(), caller, c.Params("id"), c.Params("messageId"), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}

// Delete DELETE /tickets/:id/messages/:messageId.
func (h *MessagesHandler) Delete(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteMessage(c.UserContext(), caller, c.Params("id"), c.Params("messageId")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
