package dto

import (
	"time"

	"github.com/Abdin71/supportflow-ai/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
}

// AIMetadataResponse mirrors the analysis bookkeeping of a ticket.
type AIMetadataResponse struct {
	ProcessingStatus domain.ProcessingStatus `json:"processingStatus"`
	StartedAt        *time.Time              `json:"startedAt,omitempty"`
	CompletedAt      *time.Time              `json:"completedAt,omitempty"`
	Confidence       *float64                `json:"confidence,omitempty"`
	ModelVersion     *string                 `json:"modelVersion,omitempty"`
	UsedFallback     bool                    `json:"usedFallback,omitempty"`
	Error            *string                 `json:"error,omitempty"`
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID                string                 `json:"id"`
	Subject           string                 `json:"subject"`
	Description       string                 `json:"description"`
	UserID            string                 `json:"userId"`
	UserEmail         string                 `json:"userEmail,omitempty"`
	UserName          string                 `json:"userName,omitempty"`
	Status            domain.TicketStatus    `json:"status"`
	Priority          *domain.TicketPriority `json:"priority,omitempty"`
	Category          *string                `json:"category,omitempty"`
	Tags              []string               `json:"tags"`
	AssignedAgentID   *string                `json:"assignedAgentId,omitempty"`
	AssignedAgentName *string                `json:"assignedAgentName,omitempty"`
	MessageCount      int                    `json:"messageCount"`
	HasUnreadMessages bool                   `json:"hasUnreadMessages"`
	LastMessageAt     *time.Time             `json:"lastMessageAt,omitempty"`
	AIMetadata        AIMetadataResponse     `json:"aiMetadata"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return TicketResponse{
		ID:                t.ID,
		Subject:           t.Subject,
		Description:       t.Description,
		UserID:            t.RequesterID,
		UserEmail:         t.RequesterEmail,
		UserName:          t.RequesterName,
		Status:            t.Status,
		Priority:          t.Priority,
		Category:          t.Category,
		Tags:              tags,
		AssignedAgentID:   t.AssignedAgentID,
		AssignedAgentName: t.AssignedAgentName,
		MessageCount:      t.MessageCount,
		HasUnreadMessages: t.HasUnreadMessages,
		LastMessageAt:     t.LastMessageAt,
		AIMetadata: AIMetadataResponse{
			ProcessingStatus: t.AIMetadata.ProcessingStatus,
			StartedAt:        t.AIMetadata.StartedAt,
			CompletedAt:      t.AIMetadata.CompletedAt,
			Confidence:       t.AIMetadata.Confidence,
			ModelVersion:     t.AIMetadata.ModelVersion,
			UsedFallback:     t.AIMetadata.UsedFallback,
			Error:            t.AIMetadata.Error,
		},
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// NewTicketList maps tickets.
func NewTicketList(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketResponse(&tickets[i]))
	}
	return out
}
