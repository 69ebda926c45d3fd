package domain

import "time"

// MessageRole indicates which side of the conversation authored a message.
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleAgent MessageRole = "agent"
)

// Valid reports whether r is a known role.
func (r MessageRole) Valid() bool {
	return r == MessageRoleUser || r == MessageRoleAgent
}

// MessageEditWindow bounds how long a non-privileged author may edit.
const MessageEditWindow = 5 * time.Minute

// Message captures communications in a ticket thread.
type Message struct {
	ID             string
	TicketID       string
	Text           string
	AuthorID       string
	AuthorName     string
	Role           MessageRole
	IsAISuggestion bool
	IsEdited       bool
	EditedAt       *time.Time
	CreatedAt      time.Time
}

// Editable reports whether the message may still be edited at now.
// Privileged callers are not bound by the edit window.
func (m *Message) Editable(now time.Time, privileged bool) bool {
	if privileged {
		return true
	}
	return now.Sub(m.CreatedAt) < MessageEditWindow
}
