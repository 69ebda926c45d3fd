package dto

import (
	"time"

	"github.com/Abdin71/supportflow-ai/internal/domain"
)

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Text           string `json:"text"`
	IsAISuggestion bool   `json:"isAiSuggestion"`
}

// UpdateMessageRequest payload.
type UpdateMessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse is the public view of a thread message.
type MessageResponse struct {
	ID             string             `json:"id"`
	TicketID       string             `json:"ticketId"`
	Text           string             `json:"text"`
	UserID         string             `json:"userId"`
	UserName       string             `json:"userName,omitempty"`
	Role           domain.MessageRole `json:"role"`
	IsAISuggestion bool               `json:"isAiSuggestion"`
	IsEdited       bool               `json:"isEdited"`
	EditedAt       *time.Time         `json:"editedAt,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// NewMessageResponse maps a message.
func NewMessageResponse(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		TicketID:       m.TicketID,
		Text:           m.Text,
		UserID:         m.AuthorID,
		UserName:       m.AuthorName,
		Role:           m.Role,
		IsAISuggestion: m.IsAISuggestion,
		IsEdited:       m.IsEdited,
		EditedAt:       m.EditedAt,
		CreatedAt:      m.CreatedAt,
	}
}

// NewMessageList maps messages.
func NewMessageList(messages []domain.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, NewMessageResponse(&messages[i]))
	}
	return out
}
