package events

import (
	"time"

	"github.com/Abdin71/supportflow-ai/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket_created"
	EventTicketAnalyzed EventType = "ticket_analyzed"
	EventMessageAdded   EventType = "message_added"
	EventMessageDeleted EventType = "message_deleted"
)

// Event represents a domain event emitted by the change feed or services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	RequesterID string `json:"requester_id"`
}

// TicketAnalyzedPayload payload.
type TicketAnalyzedPayload struct {
	Category     string                `json:"category"`
	Priority     domain.TicketPriority `json:"priority"`
	Tags         []string              `json:"tags"`
	UsedFallback bool                  `json:"used_fallback"`
}

// MessagePayload payload for message added and deleted events.
type MessagePayload struct {
	MessageID string             `json:"message_id"`
	AuthorID  string             `json:"author_id"`
	Role      domain.MessageRole `json:"role"`
	Preview   string             `json:"preview"`
}
