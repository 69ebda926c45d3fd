package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Abdin71/supportflow-ai/internal/docstore"
	"github.com/Abdin71/supportflow-ai/internal/domain"
	"github.com/Abdin71/supportflow-ai/internal/repository"
	apperrors "github.com/Abdin71/supportflow-ai/pkg/util"
)

// countingStore records reads so tests can assert none happened.
type countingStore struct {
	docstore.Store
	reads atomic.Int64
}

func (s *countingStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	s.reads.Add(1)
	return s.Store.Get(ctx, collection, id)
}

func (s *countingStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.reads.Add(1)
	return s.Store.Query(ctx, q)
}

type fixture struct {
	store    *countingStore
	tickets  repository.TicketRepository
	messages repository.MessageRepository
	users    repository.UserRepository
}

func newFixture(opts ...docstore.MemoryOption) *fixture {
	store := &countingStore{Store: docstore.NewMemoryStore(append(repository.MemoryStoreOptions(), opts...)...)}
	return &fixture{
		store:    store,
		tickets:  repository.NewTicketRepository(store),
		messages: repository.NewMessageRepository(store),
		users:    repository.NewUserRepository(store),
	}
}

func (f *fixture) user(t *testing.T, name string, role domain.UserRole) *domain.Identity {
	t.Helper()
	u := &domain.User{Email: name + "@example.com", DisplayName: name, Role: role}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	id := domain.IdentityOf(u)
	return &id
}

func (f *fixture) ticket(t *testing.T, owner *domain.Identity, subject, description string) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{Subject: subject, Description: description, RequesterID: owner.ID, RequesterName: owner.DisplayName}
	if err := f.tickets.Create(context.Background(), ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	return apperrors.ToDomainError(err).Code
}

type stubClassifier struct {
	mu     sync.Mutex
	calls  int
	result domain.AnalysisResult
	err    error
	during func()
}

func (s *stubClassifier) Classify(ctx context.Context, subject, description string) (domain.AnalysisResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.during != nil {
		s.during()
	}
	return s.result, s.err
}

type stubDrafter struct {
	calls    int
	drafts   []string
	err      error
	messages []domain.Message
}

func (s *stubDrafter) Generate(_ context.Context, _ *domain.Ticket, messages []domain.Message) ([]string, float64, error) {
	s.calls++
	s.messages = messages
	return s.drafts, 0.9, s.err
}
