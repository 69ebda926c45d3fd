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

// MessageDraft is the caller-supplied part of a new message.
type MessageDraft struct {
	TicketID       string
	Text           string
	IsAISuggestion bool
}

type threadScope struct {
	generation  uint64
	unsubscribe docstore.Unsubscribe
	live        []domain.Message
	pending     []domain.Message
	loading     bool
}

// MessageStore mirrors the threads of any number of tickets for one
// identity, each thread oldest first.
type MessageStore struct {
	repo     repository.MessageRepository
	identity domain.Identity
	opts     options
	ids      tempIDs

	mu         sync.Mutex
	generation uint64
	threads    map[string]*threadScope
	err        error
	listeners  map[uint64]func(ticketID string)
	nextListen uint64
}

// NewMessageStore builds a store acting as identity.
func NewMessageStore(repo repository.MessageRepository, identity domain.Identity, opts ...Option) *MessageStore {
	return &MessageStore{
		repo:      repo,
		identity:  identity,
		opts:      buildOptions(opts),
		threads:   make(map[string]*threadScope),
		listeners: make(map[uint64]func(string)),
	}
}

// InitializeTicket subscribes to the thread of ticketID. A ticket that is
// already subscribed is left alone.
func (s *MessageStore) InitializeTicket(ticketID string) error {
	s.mu.Lock()
	if _, ok := s.threads[ticketID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.generation++
	scope := &threadScope{generation: s.generation, loading: true}
	s.threads[ticketID] = scope
	gen := scope.generation
	s.mu.Unlock()
	s.notify(ticketID)

	unsubscribe, err := s.repo.SubscribeByTicket(ticketID, func(messages []domain.Message, err error) {
		s.onSnapshot(ticketID, gen, messages, err)
	})
	if err != nil {
		s.mu.Lock()
		if current, ok := s.threads[ticketID]; ok && current.generation == gen {
			delete(s.threads, ticketID)
		}
		s.err = err
		s.mu.Unlock()
		s.notify(ticketID)
		return err
	}

	s.mu.Lock()
	current, ok := s.threads[ticketID]
	if !ok || current.generation != gen {
		s.mu.Unlock()
		unsubscribe()
		return nil
	}
	current.unsubscribe = unsubscribe
	s.mu.Unlock()
	return nil
}

func (s *MessageStore) onSnapshot(ticketID string, gen uint64, messages []domain.Message, err error) {
	s.mu.Lock()
	scope, ok := s.threads[ticketID]
	if !ok || scope.generation != gen {
		s.mu.Unlock()
		return
	}
	scope.loading = false
	if err != nil {
		s.err = err
	} else {
		scope.live = messages
	}
	s.mu.Unlock()
	if err != nil {
		s.opts.logger.Warn("message subscription error", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	s.notify(ticketID)
}

// CleanupTicket cancels the subscription of ticketID and drops its thread.
func (s *MessageStore) CleanupTicket(ticketID string) {
	s.mu.Lock()
	scope, ok := s.threads[ticketID]
	delete(s.threads, ticketID)
	s.mu.Unlock()
	if !ok {
		return
	}
	if scope.unsubscribe != nil {
		scope.unsubscribe()
	}
	s.notify(ticketID)
}

// CleanupAll cancels every subscription.
func (s *MessageStore) CleanupAll() {
	s.mu.Lock()
	threads := s.threads
	s.threads = make(map[string]*threadScope)
	s.mu.Unlock()
	for ticketID, scope := range threads {
		if scope.unsubscribe != nil {
			scope.unsubscribe()
		}
		s.notify(ticketID)
	}
}

// Subscribed reports whether ticketID has a live thread.
func (s *MessageStore) Subscribed(ticketID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope, ok := s.threads[ticketID]
	return ok && scope.unsubscribe != nil
}

// Messages returns the thread of ticketID with optimistic messages last.
func (s *MessageStore) Messages(ticketID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope, ok := s.threads[ticketID]
	if !ok {
		return []domain.Message{}
	}
	out := make([]domain.Message, 0, len(scope.live)+len(scope.pending))
	out = append(out, scope.live...)
	return append(out, scope.pending...)
}

// Loading reports whether the first snapshot of ticketID is outstanding.
func (s *MessageStore) Loading(ticketID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope, ok := s.threads[ticketID]
	return ok && scope.loading
}

// Err returns the last recorded error.
func (s *MessageStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SetError records or clears the shared error.
func (s *MessageStore) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Listen registers fn, called with the ticket id of every changed thread.
func (s *MessageStore) Listen(fn func(ticketID string)) func() {
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

func (s *MessageStore) notify(ticketID string) {
	s.mu.Lock()
	listeners := make([]func(string), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(ticketID)
	}
}

// CanEdit reports whether the identity may still edit msg.
func (s *MessageStore) CanEdit(msg domain.Message) bool {
	privileged := s.identity.Role.Privileged()
	if !privileged && msg.AuthorID != s.identity.ID {
		return false
	}
	if IsTempID(msg.ID) {
		return false
	}
	return msg.Editable(s.opts.clock(), privileged)
}

// AddMessage appends a placeholder message, then writes the real one. The
// placeholder is dropped either way.
func (s *MessageStore) AddMessage(ctx context.Context, draft MessageDraft) (string, error) {
	text := strings.TrimSpace(draft.Text)
	if draft.TicketID == "" || text == "" {
		return "", apperrors.NewValidationError("ticket id and text are required", nil)
	}
	role := domain.MessageRoleUser
	if s.identity.Role.Privileged() {
		role = domain.MessageRoleAgent
	}
	if draft.IsAISuggestion && role != domain.MessageRoleAgent {
		return "", apperrors.NewForbidden("only agents can send suggested replies")
	}

	temp := domain.Message{
		ID:             s.ids.next(),
		TicketID:       draft.TicketID,
		Text:           text,
		AuthorID:       s.identity.ID,
		AuthorName:     s.identity.DisplayName,
		Role:           role,
		IsAISuggestion: draft.IsAISuggestion,
		CreatedAt:      s.opts.clock().UTC(),
	}
	s.mu.Lock()
	scope, tracked := s.threads[draft.TicketID]
	if tracked {
		scope.pending = append(append([]domain.Message(nil), scope.pending...), temp)
	}
	s.mu.Unlock()
	if tracked {
		s.notify(draft.TicketID)
	}

	msg := temp
	msg.ID = ""
	err := s.repo.Create(ctx, &msg)

	s.mu.Lock()
	if current, ok := s.threads[draft.TicketID]; ok {
		current.pending = removeMessage(current.pending, temp.ID)
	}
	if err != nil {
		s.err = err
	}
	s.mu.Unlock()
	s.notify(draft.TicketID)

	if err != nil {
		s.opts.logger.Warn("add message rolled back", zap.String("temp_id", temp.ID), zap.Error(err))
		return "", err
	}
	return msg.ID, nil
}

// UpdateMessage edits a mirrored message in place and restores its
// previous version if the write fails.
func (s *MessageStore) UpdateMessage(ctx context.Context, ticketID, messageID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.NewValidationError("text is required", nil)
	}

	s.mu.Lock()
	scope, ok := s.threads[ticketID]
	if !ok {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	idx := indexOfMessage(scope.live, messageID)
	if idx < 0 {
		s.mu.Unlock()
		return apperrors.NewNotFound("message", map[string]any{"id": messageID})
	}
	previous := scope.live[idx]
	s.mu.Unlock()

	if !s.CanEdit(previous) {
		return apperrors.NewForbidden("message can no longer be edited")
	}

	s.mu.Lock()
	scope, ok = s.threads[ticketID]
	if ok {
		if i := indexOfMessage(scope.live, messageID); i >= 0 {
			editedAt := s.opts.clock().UTC()
			optimistic := scope.live[i]
			optimistic.Text = text
			optimistic.IsEdited = true
			optimistic.EditedAt = &editedAt
			scope.live = replaceMessage(scope.live, i, optimistic)
		}
	}
	s.mu.Unlock()
	s.notify(ticketID)

	err := s.repo.UpdateText(ctx, messageID, text)
	if err == nil {
		return nil
	}

	s.mu.Lock()
	if scope, ok := s.threads[ticketID]; ok {
		if i := indexOfMessage(scope.live, messageID); i >= 0 && scope.live[i].Text == text {
			scope.live = replaceMessage(scope.live, i, previous)
		}
	}
	s.err = err
	s.mu.Unlock()
	s.notify(ticketID)
	s.opts.logger.Warn("message edit rolled back", zap.String("message_id", messageID), zap.Error(err))
	return err
}

func indexOfMessage(messages []domain.Message, id string) int {
	for i := range messages {
		if messages[i].ID == id {
			return i
		}
	}
	return -1
}

func replaceMessage(messages []domain.Message, idx int, m domain.Message) []domain.Message {
	out := append([]domain.Message(nil), messages...)
	out[idx] = m
	return out
}

func removeMessage(messages []domain.Message, id string) []domain.Message {
	out := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
