package syncstore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abdin71/supportflow-ai/internal/docstore"
	"github.com/Abdin71/supportflow-ai/internal/domain"
	"github.com/Abdin71/supportflow-ai/internal/repository"
)

var errWrite = errors.New("write rejected")

// flakyStore fails writes on demand and counts query subscriptions.
type flakyStore struct {
	docstore.Store
	failWrites    atomic.Bool
	subscriptions atomic.Int64
	onWrite       func()
}

func (s *flakyStore) Create(ctx context.Context, collection string, data docstore.Fields) (string, error) {
	if s.onWrite != nil {
		s.onWrite()
	}
	if s.failWrites.Load() {
		return "", errWrite
	}
	return s.Store.Create(ctx, collection, data)
}

func (s *flakyStore) Update(ctx context.Context, collection, id string, data docstore.Fields) error {
	if s.onWrite != nil {
		s.onWrite()
	}
	if s.failWrites.Load() {
		return errWrite
	}
	return s.Store.Update(ctx, collection, id, data)
}

func (s *flakyStore) SubscribeQuery(q docstore.Query, fn docstore.QueryHandler) (docstore.Unsubscribe, error) {
	s.subscriptions.Add(1)
	return s.Store.SubscribeQuery(q, fn)
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type harness struct {
	store    *flakyStore
	clock    *clock
	tickets  repository.TicketRepository
	messages repository.MessageRepository
}

func newHarness() *harness {
	c := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := &flakyStore{Store: docstore.NewMemoryStore(docstore.WithClock(c.Now))}
	return &harness{
		store:    store,
		clock:    c,
		tickets:  repository.NewTicketRepository(store),
		messages: repository.NewMessageRepository(store),
	}
}

var (
	alice = domain.Identity{ID: "u-alice", Email: "alice@example.com", DisplayName: "Alice", Role: domain.UserRoleUser}
	bob   = domain.Identity{ID: "u-bob", Email: "bob@example.com", DisplayName: "Bob", Role: domain.UserRoleUser}
	agent = domain.Identity{ID: "u-agent", Email: "agent@example.com", DisplayName: "Agent", Role: domain.UserRoleAgent}
)

func TestTicketStore_InitializeOnce(t *testing.T) {
	h := newHarness()
	s := NewTicketStore(h.tickets)

	if err := s.Initialize(alice); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := s.Initialize(alice); err != nil {
		t.Fatalf("initialize again: %v", err)
	}
	if got := h.store.subscriptions.Load(); got != 1 {
		t.Fatalf("expected one subscription, got %d", got)
	}
	if !s.Live() || s.Loading() {
		t.Fatalf("expected live, not loading")
	}

	if err := s.Initialize(bob); err != nil {
		t.Fatalf("switch identity: %v", err)
	}
	if got := h.store.subscriptions.Load(); got != 2 {
		t.Fatalf("expected identity switch to resubscribe, got %d", got)
	}
}

func TestTicketStore_CreateTicketOptimistic(t *testing.T) {
	h := newHarness()
	s := NewTicketStore(h.tickets, WithClock(h.clock.Now))
	if err := s.Initialize(alice); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	var sawTemp bool
	h.store.onWrite = func() {
		tickets := s.Tickets()
		if len(tickets) == 1 && IsTempID(tickets[0].ID) {
			sawTemp = tickets[0].Status == domain.TicketStatusOpen &&
				tickets[0].AIMetadata.ProcessingStatus == domain.ProcessingPending &&
				tickets[0].MessageCount == 0
		}
	}

	id, err := s.CreateTicket(context.Background(), TicketDraft{Subject: "Cannot login", Description: "password reset fails"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !sawTemp {
		t.Fatalf("expected placeholder ticket during the write")
	}
	tickets := s.Tickets()
	if len(tickets) != 1 || tickets[0].ID != id {
		t.Fatalf("expected only the stored ticket, got %+v", tickets)
	}
	if tickets[0].RequesterID != alice.ID {
		t.Fatalf("requester = %q", tickets[0].RequesterID)
	}
}

func TestTicketStore_CreateTicketFailure(t *testing.T) {
	h := newHarness()
	s := NewTicketStore(h.tickets)
	if err := s.Initialize(alice); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	h.store.failWrites.Store(true)

	var states []TicketState
	cancel := s.Listen(func(st TicketState) { states = append(states, st) })
	defer cancel()

	_, err := s.CreateTicket(context.Background(), TicketDraft{Subject: "Refund", Description: "charged twice"})
	if !errors.Is(err, errWrite) {
		t.Fatalf("expected write error, got %v", err)
	}
	if len(s.Tickets()) != 0 {
		t.Fatalf("placeholder not removed: %+v", s.Tickets())
	}
	if !errors.Is(s.Err(), errWrite) {
		t.Fatalf("error not recorded: %v", s.Err())
	}
	if len(states) < 2 || len(states[0].Tickets) != 1 {
		t.Fatalf("expected placeholder then removal, got %d states", len(states))
	}

	s.SetError(nil)
	if s.Err() != nil {
		t.Fatalf("SetError(nil) did not clear")
	}
}

func TestTicketStore_CreateRequiresScope(t *testing.T) {
	s := NewTicketStore(newHarness().tickets)
	if _, err := s.CreateTicket(context.Background(), TicketDraft{Subject: "a", Description: "b"}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestTicketStore_UpdateStatusRollback(t *testing.T) {
	h := newHarness()
	s := NewTicketStore(h.tickets, WithClock(h.clock.Now))
	if err := s.Initialize(alice); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	first, err := s.CreateTicket(context.Background(), TicketDraft{Subject: "one", Description: "first"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.clock.now = h.clock.now.Add(time.Minute)
	second, err := s.CreateTicket(context.Background(), TicketDraft{Subject: "two", Description: "second"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.UpdateStatus(context.Background(), first, domain.TicketStatusResolved); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := s.ByStatus(domain.TicketStatusResolved); len(got) != 1 || got[0].ID != first {
		t.Fatalf("resolved = %+v", got)
	}

	h.store.failWrites.Store(true)
	var sawOptimistic bool
	h.store.onWrite = func() {
		sawOptimistic = len(s.ByStatus(domain.TicketStatusClosed)) == 1
	}
	err = s.UpdateStatus(context.Background(), second, domain.TicketStatusClosed)
	if !errors.Is(err, errWrite) {
		t.Fatalf("expected write error, got %v", err)
	}
	if !sawOptimistic {
		t.Fatalf("expected optimistic status during the write")
	}
	if got := s.ByStatus(domain.TicketStatusOpen); len(got) != 1 || got[0].ID != second {
		t.Fatalf("second ticket not restored: %+v", got)
	}
	if got := s.ByStatus(domain.TicketStatusResolved); len(got) != 1 || got[0].ID != first {
		t.Fatalf("first ticket disturbed by rollback: %+v", got)
	}
	stats := s.Stats()
	if stats.Total != 2 || stats.Open != 1 || stats.Resolved != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestTicketStore_SearchAndCleanup(t *testing.T) {
	h := newHarness()
	s := NewTicketStore(h.tickets)
	if err := s.Initialize(alice); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for _, d := range []TicketDraft{
		{Subject: "Invoice question", Description: "billing period"},
		{Subject: "App crash", Description: "crashes on start"},
	} {
		if _, err := s.CreateTicket(context.Background(), d); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if got := s.Search("INVOICE"); len(got) != 1 || got[0].Subject != "Invoice question" {
		t.Fatalf("search = %+v", got)
	}

	s.Cleanup()
	if s.Live() || len(s.Tickets()) != 0 || s.Loading() {
		t.Fatalf("cleanup left state behind")
	}
	// Writes after cleanup must not revive the mirror.
	if _, err := h.tickets.List(context.Background(), repository.TicketFilter{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(s.Tickets()) != 0 {
		t.Fatalf("mirror updated after cleanup")
	}
}

func TestMessageStore_AddAndEdit(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	ticket := &domain.Ticket{Subject: "s", Description: "d", RequesterID: alice.ID}
	if err := h.tickets.Create(ctx, ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	s := NewMessageStore(h.messages, alice, WithClock(h.clock.Now))
	if err := s.InitializeTicket(ticket.ID); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := s.InitializeTicket(ticket.ID); err != nil {
		t.Fatalf("initialize again: %v", err)
	}
	if !s.Subscribed(ticket.ID) || s.Loading(ticket.ID) {
		t.Fatalf("expected live thread")
	}

	var sawTemp bool
	h.store.onWrite = func() {
		msgs := s.Messages(ticket.ID)
		sawTemp = len(msgs) == 1 && IsTempID(msgs[0].ID) && msgs[0].Role == domain.MessageRoleUser
	}
	id, err := s.AddMessage(ctx, MessageDraft{TicketID: ticket.ID, Text: "hello"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	h.store.onWrite = nil
	if !sawTemp {
		t.Fatalf("expected placeholder message during the write")
	}
	msgs := s.Messages(ticket.ID)
	if len(msgs) != 1 || msgs[0].ID != id {
		t.Fatalf("messages = %+v", msgs)
	}
	if !s.CanEdit(msgs[0]) {
		t.Fatalf("fresh message should be editable")
	}

	h.clock.now = h.clock.now.Add(2 * time.Minute)
	if err := s.UpdateMessage(ctx, ticket.ID, id, "hello again"); err != nil {
		t.Fatalf("update: %v", err)
	}
	msgs = s.Messages(ticket.ID)
	if msgs[0].Text != "hello again" || !msgs[0].IsEdited || msgs[0].EditedAt == nil {
		t.Fatalf("edit not applied: %+v", msgs[0])
	}

	h.store.failWrites.Store(true)
	if err := s.UpdateMessage(ctx, ticket.ID, id, "third"); !errors.Is(err, errWrite) {
		t.Fatalf("expected write error, got %v", err)
	}
	if got := s.Messages(ticket.ID)[0].Text; got != "hello again" {
		t.Fatalf("rollback text = %q", got)
	}
	h.store.failWrites.Store(false)

	h.clock.now = h.clock.now.Add(5 * time.Minute)
	if s.CanEdit(s.Messages(ticket.ID)[0]) {
		t.Fatalf("message past the edit window should not be editable")
	}
	if err := s.UpdateMessage(ctx, ticket.ID, id, "late"); err == nil {
		t.Fatalf("expected late edit to be refused")
	}

	other := NewMessageStore(h.messages, bob, WithClock(h.clock.Now))
	if other.CanEdit(s.Messages(ticket.ID)[0]) {
		t.Fatalf("non-author should not edit")
	}
	staff := NewMessageStore(h.messages, agent, WithClock(h.clock.Now))
	if !staff.CanEdit(s.Messages(ticket.ID)[0]) {
		t.Fatalf("agent should edit regardless of age")
	}
}

func TestMessageStore_AddFailureAndCleanup(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	s := NewMessageStore(h.messages, alice)
	for _, id := range []string{"t-1", "t-2"} {
		if err := s.InitializeTicket(id); err != nil {
			t.Fatalf("initialize %s: %v", id, err)
		}
	}

	if _, err := s.AddMessage(ctx, MessageDraft{TicketID: "t-1", Text: "ok", IsAISuggestion: true}); err == nil {
		t.Fatalf("expected users to be refused AI drafts")
	}

	h.store.failWrites.Store(true)
	if _, err := s.AddMessage(ctx, MessageDraft{TicketID: "t-1", Text: "lost"}); !errors.Is(err, errWrite) {
		t.Fatalf("expected write error, got %v", err)
	}
	if len(s.Messages("t-1")) != 0 {
		t.Fatalf("placeholder not removed")
	}
	if !errors.Is(s.Err(), errWrite) {
		t.Fatalf("error not recorded")
	}

	s.CleanupTicket("t-1")
	if s.Subscribed("t-1") || !s.Subscribed("t-2") {
		t.Fatalf("cleanup of one ticket touched the other")
	}
	s.CleanupAll()
	if s.Subscribed("t-2") {
		t.Fatalf("cleanup all left a subscription")
	}
}
