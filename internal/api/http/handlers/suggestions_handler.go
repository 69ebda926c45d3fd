package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Abdin71/supportflow-ai/internal/auth"
	"github.com/Abdin71/supportflow-ai/internal/service"
)

// SuggestionsHandler exposes reply drafting.
type SuggestionsHandler struct {
	service *service.SuggestionService
}

// NewSuggestionsHandler constructs handler.
func NewSuggestionsHandler(suggestions *service.SuggestionService) *SuggestionsHandler {
	return &SuggestionsHandler{service: suggestions}
}

// Generate POST /tickets/:id/suggestions. The result is returned as the
// body itself, without the data envelope.
func (h *SuggestionsHandler) Generate(c *fiber.Ctx) error {
	caller, _ := auth.IdentityFromContext(c)
	result, err := h.service.GenerateReplySuggestions(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(result)
}
