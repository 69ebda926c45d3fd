package syncstore

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Abdin71/supportflow-ai/internal/docstore"
	"github.com/Abdin71/supportflow-ai/internal/domain"
	"github.com/Abdin71/supportflow-ai/internal/repository"
	apperrors "github.com/Abdin71/supportflow-ai/pkg/util"
)

// TicketDraft is the caller-supplied part of a new ticket.
type TicketDraft struct {
	Subject     string
	Description string
}

// TicketState is a consistent copy of the ticket mirror.
type TicketState struct {
	Tickets []domain.Ticket
	Loading bool
	Err     error
}

// TicketStore mirrors the signed-in user's tickets, newest first.
type TicketStore struct {
	repo repository.TicketRepository
	opts options
	ids  tempIDs

	mu          sync.Mutex
	identity    *domain.Identity
	generation  uint64
	unsubscribe docstore.Unsubscribe
	live        []domain.Ticket
	pending     []domain.Ticket
	loading     bool
	err         error
	listeners   map[uint64]func(TicketState)
	nextListen  uint64
}

// NewTicketStore builds an unsubscribed store.
func NewTicketStore(repo repository.TicketRepository, opts ...Option) *TicketStore {
	return &TicketStore{
		repo:      repo,
		opts:      buildOptions(opts),
		listeners: make(map[uint64]func(TicketState)),
	}
}

// Initialize subscribes to identity's tickets. Calling it again for the
// same identity is a no-op; a different identity replaces the scope.
func (s *TicketStore) Initialize(identity domain.Identity) error {
	s.mu.Lock()
	if s.identity != nil && s.identity.ID == identity.ID {
		s.mu.Unlock()
		return nil
	}
	previous := s.resetLocked()
	s.identity = &identity
	s.generation++
	gen := s.generation
	s.loading = true
	s.mu.Unlock()

	if previous != nil {
		previous()
	}
	s.notify()

	unsubscribe, err := s.repo.SubscribeByUser(identity.ID, s.opts.limit, func(tickets []domain.Ticket, err error) {
		s.onSnapshot(gen, tickets, err)
	})
	if err != nil {
		s.mu.Lock()
		if s.generation == gen {
			s.identity = nil
			s.loading = false
			s.err = err
		}
		s.mu.Unlock()
		s.notify()
		return err
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		unsubscribe()
		return nil
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	s.opts.logger.Debug("ticket scope live", zap.String("user_id", identity.ID))
	return nil
}

func (s *TicketStore) onSnapshot(gen uint64, tickets []domain.Ticket, err error) {
	s.mu.Lock()
	if s.generation != gen || s.identity == nil {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.err = err
		s.loading = false
	} else {
		s.live = tickets
		s.loading = false
		s.err = nil
	}
	s.mu.Unlock()
	if err != nil {
		s.opts.logger.Warn("ticket subscription error", zap.Error(err))
	}
	s.notify()
}

// Cleanup cancels the subscription and purges the mirror.
func (s *TicketStore) Cleanup() {
	s.mu.Lock()
	unsubscribe := s.resetLocked()
	s.generation++
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	s.notify()
}

func (s *TicketStore) resetLocked() docstore.Unsubscribe {
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.identity = nil
	s.live = nil
	s.pending = nil
	s.loading = false
	return unsubscribe
}

// Live reports whether a subscription is active.
func (s *TicketStore) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribe != nil
}

// State returns a copy of the mirror.
func (s *TicketStore) State() TicketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *TicketStore) stateLocked() TicketState {
	tickets := make([]domain.Ticket, 0, len(s.pending)+len(s.live))
	tickets = append(tickets, s.pending...)
	tickets = append(tickets, s.live...)
	return TicketState{Tickets: tickets, Loading: s.loading, Err: s.err}
}

// Tickets returns the mirrored tickets, optimistic ones first.
func (s *TicketStore) Tickets() []domain.Ticket {
	return s.State().Tickets
}

// Loading reports whether the first snapshot is outstanding.
func (s *TicketStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the last recorded error.
func (s *TicketStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SetError records or clears the shared error.
func (s *TicketStore) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.notify()
}

// Listen registers fn for every state change and returns a cancel func.
func (s *TicketStore) Listen(fn func(TicketState)) func() {
	s.mu.Lock()
	s.nextListen++
	id := s.nextListen
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *TicketStore) notify() {
	s.mu.Lock()
	state := s.stateLocked()
	listeners := make([]func(TicketState), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}

// ByStatus filters the mirror by status.
func (s *TicketStore) ByStatus(status domain.TicketStatus) []domain.Ticket {
	return domain.TicketCriteria{Status: &status}.Apply(s.Tickets())
}

// ByPriority filters the mirror by priority.
func (s *TicketStore) ByPriority(priority domain.TicketPriority) []domain.Ticket {
	return domain.TicketCriteria{Priority: &priority}.Apply(s.Tickets())
}

// ByCategory filters the mirror by category.
func (s *TicketStore) ByCategory(category string) []domain.Ticket {
	return domain.TicketCriteria{Category: &category}.Apply(s.Tickets())
}

// Search matches term against subject, description, category and tags.
func (s *TicketStore) Search(term string) []domain.Ticket {
	return domain.TicketCriteria{Search: term}.Apply(s.Tickets())
}

// Stats counts the mirrored tickets.
func (s *TicketStore) Stats() domain.TicketStats {
	return domain.ComputeStats(s.Tickets())
}

// CreateTicket shows a placeholder ticket immediately, then writes the
// real one. The placeholder is dropped either way; on success the
// subscription delivers the stored ticket.
func (s *TicketStore) CreateTicket(ctx context.Context, draft TicketDraft) (string, error) {
	subject := strings.TrimSpace(draft.Subject)
	description := strings.TrimSpace(draft.Description)
	if subject == "" || description == "" {
		return "", apperrors.NewValidationError("subject and description are required", nil)
	}

	s.mu.Lock()
	if s.identity == nil {
		s.mu.Unlock()
		return "", ErrNotInitialized
	}
	identity := *s.identity
	gen := s.generation
	now := s.opts.clock().UTC()
	temp := domain.Ticket{
		ID:             s.ids.next(),
		Subject:        subject,
		Description:    description,
		RequesterID:    identity.ID,
		RequesterEmail: identity.Email,
		RequesterName:  identity.DisplayName,
		Status:         domain.TicketStatusOpen,
		Tags:           []string{},
		AIMetadata:     domain.AIMetadata{ProcessingStatus: domain.ProcessingPending, StartedAt: &now},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.pending = append([]domain.Ticket{temp}, s.pending...)
	s.mu.Unlock()
	s.notify()

	ticket := &domain.Ticket{
		Subject:        subject,
		Description:    description,
		RequesterID:    identity.ID,
		RequesterEmail: identity.Email,
		RequesterName:  identity.DisplayName,
	}
	err := s.repo.Create(ctx, ticket)

	s.mu.Lock()
	if s.generation == gen {
		s.pending = removeTicket(s.pending, temp.ID)
		if err != nil {
			s.err = err
		}
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.opts.logger.Warn("create ticket rolled back", zap.String("temp_id", temp.ID), zap.Error(err))
		return "", err
	}
	return ticket.ID, nil
}

// UpdateStatus applies status to the mirrored ticket at once and restores
// its previous version if the write fails.
func (s *TicketStore) UpdateStatus(ctx context.Context, ticketID string, status domain.TicketStatus) error {
	if !status.Valid() {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": status})
	}

	s.mu.Lock()
	if s.identity == nil {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	idx := indexOfTicket(s.live, ticketID)
	if idx < 0 {
		s.mu.Unlock()
		return apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	gen := s.generation
	previous := s.live[idx]
	optimistic := previous
	optimistic.Status = status
	optimistic.UpdatedAt = s.opts.clock().UTC()
	s.live = replaceTicket(s.live, idx, optimistic)
	s.mu.Unlock()
	s.notify()

	err := s.repo.UpdateStatus(ctx, ticketID, status)
	if err == nil {
		return nil
	}

	s.mu.Lock()
	if s.generation == gen {
		if i := indexOfTicket(s.live, ticketID); i >= 0 && s.live[i].Status == status {
			s.live = replaceTicket(s.live, i, previous)
		}
		s.err = err
	}
	s.mu.Unlock()
	s.notify()
	s.opts.logger.Warn("status update rolled back", zap.String("ticket_id", ticketID), zap.Error(err))
	return err
}

func indexOfTicket(tickets []domain.Ticket, id string) int {
	for i := range tickets {
		if tickets[i].ID == id {
			return i
		}
	}
	return -1
}

// replaceTicket returns a copy of tickets with position idx replaced, so
// states already handed out stay unchanged.
func replaceTicket(tickets []domain.Ticket, idx int, t domain.Ticket) []domain.Ticket {
	out := append([]domain.Ticket(nil), tickets...)
	out[idx] = t
	return out
}

func removeTicket(tickets []domain.Ticket, id string) []domain.Ticket {
	out := make([]domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
