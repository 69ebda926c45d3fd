package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Abdin71/supportflow-ai/internal/domain"
	"github.com/Abdin71/supportflow-ai/internal/repository"
	apperrors "github.com/Abdin71/supportflow-ai/pkg/util"
)

// Listing limits.
const (
	DefaultAllTicketsLimit = 100
	MaxTicketsLimit        = 500
)

// TicketService coordinates ticket and message workflows.
type TicketService struct {
	tickets  repository.TicketRepository
	messages repository.MessageRepository
	users    repository.UserRepository
	logger   *zap.Logger
	now      func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.MessageRepository
	UserRepo    repository.UserRepository
	Logger      *zap.Logger
	Clock       func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject     string
	Description string
}

// TicketListFilter narrows ticket listings.
type TicketListFilter struct {
	domain.TicketCriteria
	Limit int
}

// MessageCreateInput describes a reply on a ticket.
type MessageCreateInput struct {
	Text           string
	IsAISuggestion bool
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketService{
		tickets:  deps.TicketRepo,
		messages: deps.MessageRepo,
		users:    deps.UserRepo,
		logger:   logger,
		now:      clock,
	}
}

// CreateTicket creates a ticket for the caller. Status starts open and
// analysis pending regardless of input.
func (s *TicketService) CreateTicket(ctx context.Context, identity *domain.Identity, input TicketCreateInput) (*domain.Ticket, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(input.Subject)
	description := strings.TrimSpace(input.Description)
	details := map[string]any{}
	if subject == "" {
		details["subject"] = "required"
	}
	if description == "" {
		details["description"] = "required"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}

	ticket := &domain.Ticket{
		Subject:        subject,
		Description:    description,
		RequesterID:    identity.ID,
		RequesterEmail: identity.Email,
		RequesterName:  identity.DisplayName,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.logger.Info("ticket created", zap.String("ticket_id", ticket.ID), zap.String("user_id", identity.ID))
	return s.tickets.GetByID(ctx, ticket.ID)
}

// ListTickets returns the caller's own tickets, or all tickets for agents
// and admins, newest first. Only the caller scope and the assignee are
// pushed to the store; the remaining criteria are applied in memory.
func (s *TicketService) ListTickets(ctx context.Context, identity *domain.Identity, filter TicketListFilter) ([]domain.Ticket, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	query := repository.TicketFilter{Limit: filter.Limit}
	if identity.Role.Privileged() {
		if query.Limit <= 0 {
			query.Limit = DefaultAllTicketsLimit
		}
		query.AssignedAgentID = filter.AssignedAgentID
	} else {
		if query.Limit <= 0 {
			query.Limit = repository.DefaultUserTicketLimit
		}
		query.RequesterID = &identity.ID
	}
	if query.Limit > MaxTicketsLimit {
		query.Limit = MaxTicketsLimit
	}
	tickets, err := s.tickets.List(ctx, query)
	if err != nil {
		return nil, err
	}
	return filter.TicketCriteria.Apply(tickets), nil
}

// Stats counts the tickets visible to the caller.
func (s *TicketService) Stats(ctx context.Context, identity *domain.Identity) (domain.TicketStats, error) {
	tickets, err := s.ListTickets(ctx, identity, TicketListFilter{Limit: MaxTicketsLimit})
	if err != nil {
		return domain.TicketStats{}, err
	}
	return domain.ComputeStats(tickets), nil
}

// GetTicket loads a ticket the caller may see.
func (s *TicketService) GetTicket(ctx context.Context, identity *domain.Identity, id string) (*domain.Ticket, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "ticket", id)
	}
	if !canAccessTicket(identity, ticket) {
		return nil, apperrors.NewForbidden("ticket belongs to another user")
	}
	return ticket, nil
}

// UpdateStatus changes a ticket's lifecycle status. Analysis state does
// not constrain it.
func (s *TicketService) UpdateStatus(ctx context.Context, identity *domain.Identity, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": status})
	}
	if _, err := s.GetTicket(ctx, identity, id); err != nil {
		return nil, err
	}
	if err := s.tickets.UpdateStatus(ctx, id, status); err != nil {
		return nil, mapNotFound(err, "ticket", id)
	}
	return s.tickets.GetByID(ctx, id)
}

// AssignTicket hands a ticket to an agent and moves it in progress.
func (s *TicketService) AssignTicket(ctx context.Context, identity *domain.Identity, id, agentID, agentName string) (*domain.Ticket, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	if identity.Role != domain.UserRoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, apperrors.NewValidationError("agentId is required", nil)
	}
	agent, err := s.users.GetByID(ctx, agentID)
	if err != nil {
		return nil, mapNotFound(err, "agent", agentID)
	}
	if !agent.Role.Privileged() {
		return nil, apperrors.NewValidationError("assignee must be an agent or admin", map[string]any{"agentId": agentID})
	}
	if strings.TrimSpace(agentName) == "" {
		agentName = agent.DisplayName
	}
	if err := s.tickets.Assign(ctx, id, agentID, agentName); err != nil {
		return nil, mapNotFound(err, "ticket", id)
	}
	return s.tickets.GetByID(ctx, id)
}

// MarkRead clears the unread flag.
func (s *TicketService) MarkRead(ctx context.Context, identity *domain.Identity, id string) error {
	if _, err := s.GetTicket(ctx, identity, id); err != nil {
		return err
	}
	return mapNotFound(s.tickets.MarkRead(ctx, id), "ticket", id)
}

// ListMessages returns the ticket thread, oldest first.
func (s *TicketService) ListMessages(ctx context.Context, identity *domain.Identity, ticketID string) ([]domain.Message, error) {
	if _, err := s.GetTicket(ctx, identity, ticketID); err != nil {
		return nil, err
	}
	return s.messages.ListByTicket(ctx, ticketID, 0)
}

// AddMessage appends a reply. The author role follows the caller's role;
// only agents and admins may post accepted AI drafts.
func (s *TicketService) AddMessage(ctx context.Context, identity *domain.Identity, ticketID string, input MessageCreateInput) (*domain.Message, error) {
	if _, err := s.GetTicket(ctx, identity, ticketID); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, apperrors.NewValidationError("text is required", nil)
	}
	role := domain.MessageRoleUser
	if identity.Role.Privileged() {
		role = domain.MessageRoleAgent
	} else if input.IsAISuggestion {
		return nil, apperrors.NewForbidden("only agents may post suggested replies")
	}

	msg := &domain.Message{
		TicketID:       ticketID,
		Text:           text,
		AuthorID:       identity.ID,
		AuthorName:     identity.DisplayName,
		Role:           role,
		IsAISuggestion: input.IsAISuggestion,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return s.messages.GetByID(ctx, msg.ID)
}

// UpdateMessage edits a message's text. Non-privileged authors may only
// edit their own messages inside the edit window.
func (s *TicketService) UpdateMessage(ctx context.Context, identity *domain.Identity, ticketID, messageID, text string) (*domain.Message, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("text is required", nil)
	}
	msg, err := s.loadMessage(ctx, ticketID, messageID)
	if err != nil {
		return nil, err
	}
	privileged := identity.Role.Privileged()
	if !privileged && msg.AuthorID != identity.ID {
		return nil, apperrors.NewForbidden("message belongs to another user")
	}
	if !msg.Editable(s.now(), privileged) {
		return nil, apperrors.NewForbidden("edit window has elapsed")
	}
	if err := s.messages.UpdateText(ctx, messageID, text); err != nil {
		return nil, mapNotFound(err, "message", messageID)
	}
	return s.messages.GetByID(ctx, messageID)
}

// DeleteMessage removes a message. Admin only.
func (s *TicketService) DeleteMessage(ctx context.Context, identity *domain.Identity, ticketID, messageID string) error {
	if err := requireIdentity(identity); err != nil {
		return err
	}
	if identity.Role != domain.UserRoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	if _, err := s.loadMessage(ctx, ticketID, messageID); err != nil {
		return err
	}
	return mapNotFound(s.messages.Delete(ctx, messageID), "message", messageID)
}

func (s *TicketService) loadMessage(ctx context.Context, ticketID, messageID string) (*domain.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, mapNotFound(err, "message", messageID)
	}
	if msg.TicketID != ticketID {
		return nil, apperrors.NewNotFound("message", map[string]any{"id": messageID})
	}
	return msg, nil
}

// ApplyMessageCreated records a new message on its ticket: the count is
// recomputed, lastMessageAt moves and the ticket is flagged unread.
// Applying the same message twice leaves the same result.
func (s *TicketService) ApplyMessageCreated(ctx context.Context, msg *domain.Message) error {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}
	return s.syncMessageCount(ctx, msg.TicketID, &createdAt)
}

// ApplyMessageDeleted keeps the ticket message count in step with a
// removed message.
func (s *TicketService) ApplyMessageDeleted(ctx context.Context, msg *domain.Message) error {
	return s.syncMessageCount(ctx, msg.TicketID, nil)
}

func (s *TicketService) syncMessageCount(ctx context.Context, ticketID string, lastMessageAt *time.Time) error {
	if ticketID == "" {
		return nil
	}
	count, err := s.messages.CountByTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	err = s.tickets.SetMessageCount(ctx, ticketID, count, lastMessageAt)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("message references missing ticket", zap.String("ticket_id", ticketID))
		return nil
	}
	return err
}
