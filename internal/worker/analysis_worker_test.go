package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Abdin71/supportflow-ai/internal/docstore"
	"github.com/Abdin71/supportflow-ai/internal/domain"
	"github.com/Abdin71/supportflow-ai/internal/events"
	"github.com/Abdin71/supportflow-ai/internal/repository"
	"github.com/Abdin71/supportflow-ai/internal/service"
)

type failingClassifier struct {
	mu    sync.Mutex
	calls int
}

func (c *failingClassifier) Classify(context.Context, string, string) (domain.AnalysisResult, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return domain.AnalysisResult{}, errors.New("model offline")
}

func TestAnalysisWorker_RunsPipelineOnCreate(t *testing.T) {
	store := docstore.NewMemoryStore()
	tickets := repository.NewTicketRepository(store)
	messages := repository.NewMessageRepository(store)
	classifier := &failingClassifier{}
	dispatcher := events.NewInMemoryDispatcher()

	var analyzed []events.Event
	var mu sync.Mutex
	dispatcher.Subscribe(events.EventTicketAnalyzed, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		analyzed = append(analyzed, e)
		return nil
	})

	pipeline := service.NewAnalysisPipeline(service.AnalysisDependencies{
		TicketRepo: tickets,
		Classifier: classifier,
		Dispatcher: dispatcher,
	})
	ticketSvc := service.NewTicketService(service.TicketDependencies{TicketRepo: tickets, MessageRepo: messages})
	w := NewAnalysisWorker(AnalysisWorkerDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Analyzer:   pipeline,
		Counter:    ticketSvc,
		Workers:    2,
	})
	w.Start(context.Background())
	defer w.Stop()

	ids := make([]string, 0, 3)
	for _, subject := range []string{"App crash", "Invoice wrong", "Hello"} {
		ticket := &domain.Ticket{Subject: subject, Description: "please help", RequesterID: "u1"}
		if err := tickets.Create(context.Background(), ticket); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, ticket.ID)
	}
	w.Wait()

	if classifier.calls != 3 {
		t.Errorf("expected 3 model calls, got %d", classifier.calls)
	}
	wantCategory := map[string]string{
		ids[0]: domain.CategoryBugReport,
		ids[1]: domain.CategoryBilling,
		ids[2]: domain.CategoryGeneralInquiry,
	}
	for id, category := range wantCategory {
		got, err := tickets.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.AIMetadata.ProcessingStatus != domain.ProcessingFailed || !got.AIMetadata.UsedFallback {
			t.Errorf("%s: unexpected metadata %+v", id, got.AIMetadata)
		}
		if got.Category == nil || *got.Category != category {
			t.Errorf("%s: expected %q, got %v", id, category, got.Category)
		}
	}
	mu.Lock()
	if len(analyzed) != 3 {
		t.Errorf("expected 3 analyzed events, got %d", len(analyzed))
	}
	mu.Unlock()
}

func TestAnalysisWorker_MessageCount(t *testing.T) {
	store := docstore.NewMemoryStore()
	tickets := repository.NewTicketRepository(store)
	messages := repository.NewMessageRepository(store)
	ticketSvc := service.NewTicketService(service.TicketDependencies{TicketRepo: tickets, MessageRepo: messages})

	w := NewAnalysisWorker(AnalysisWorkerDependencies{
		Store:    store,
		Analyzer: service.NewAnalysisPipeline(service.AnalysisDependencies{TicketRepo: tickets, Classifier: &failingClassifier{}}),
		Counter:  ticketSvc,
	})
	w.Start(context.Background())

	ticket := &domain.Ticket{Subject: "s", Description: "d", RequesterID: "u1"}
	if err := tickets.Create(context.Background(), ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	first := &domain.Message{TicketID: ticket.ID, Text: "one", Role: domain.MessageRoleUser}
	second := &domain.Message{TicketID: ticket.ID, Text: "two", Role: domain.MessageRoleAgent}
	for _, m := range []*domain.Message{first, second} {
		if err := messages.Create(context.Background(), m); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	got, _ := tickets.GetByID(context.Background(), ticket.ID)
	if got.MessageCount != 2 || !got.HasUnreadMessages || got.LastMessageAt == nil {
		t.Errorf("unexpected ticket after messages: %+v", got)
	}

	if err := messages.Delete(context.Background(), first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ = tickets.GetByID(context.Background(), ticket.ID)
	if got.MessageCount != 1 {
		t.Errorf("expected 1 message after delete, got %d", got.MessageCount)
	}

	w.Stop()
	third := &domain.Message{TicketID: ticket.ID, Text: "three", Role: domain.MessageRoleUser}
	if err := messages.Create(context.Background(), third); err != nil {
		t.Fatalf("create message: %v", err)
	}
	got, _ = tickets.GetByID(context.Background(), ticket.ID)
	if got.MessageCount != 1 {
		t.Errorf("expected stopped worker to ignore changes, got %d", got.MessageCount)
	}
}

func TestAnalysisWorker_DispatchesBacklogOnStart(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	tickets := repository.NewTicketRepository(store)
	classifier := &failingClassifier{}

	waiting := &domain.Ticket{Subject: "Cannot login", Description: "password reset is broken", RequesterID: "u1"}
	done := &domain.Ticket{Subject: "Hello", Description: "just saying hi", RequesterID: "u1"}
	for _, ticket := range []*domain.Ticket{waiting, done} {
		if err := tickets.Create(ctx, ticket); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := tickets.BeginAnalysis(ctx, done.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}

	w := NewAnalysisWorker(AnalysisWorkerDependencies{
		Store:    store,
		Analyzer: service.NewAnalysisPipeline(service.AnalysisDependencies{TicketRepo: tickets, Classifier: classifier}),
	})
	w.Start(ctx)
	w.Wait()
	defer w.Stop()

	got, err := tickets.GetByID(ctx, waiting.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AIMetadata.ProcessingStatus != domain.ProcessingFailed || got.Category == nil || *got.Category != domain.CategoryAccountLogin {
		t.Errorf("backlog ticket not analyzed: status=%s category=%v", got.AIMetadata.ProcessingStatus, got.Category)
	}
	if classifier.calls != 1 {
		t.Errorf("expected 1 model call, got %d", classifier.calls)
	}
}

// deafStore never delivers change notices, as when a notice is lost.
type deafStore struct {
	docstore.Store
}

func (deafStore) Watch(string, docstore.ChangeHandler) docstore.Unsubscribe {
	return func() {}
}

func TestAnalysisWorker_SweepPicksUpMissedTickets(t *testing.T) {
	ctx := context.Background()
	store := deafStore{Store: docstore.NewMemoryStore()}
	tickets := repository.NewTicketRepository(store)

	w := NewAnalysisWorker(AnalysisWorkerDependencies{
		Store:         store,
		Analyzer:      service.NewAnalysisPipeline(service.AnalysisDependencies{TicketRepo: tickets, Classifier: &failingClassifier{}}),
		SweepInterval: 10 * time.Millisecond,
	})
	w.Start(ctx)
	defer w.Stop()

	ticket := &domain.Ticket{Subject: "Refund", Description: "charged twice on my invoice", RequesterID: "u1"}
	if err := tickets.Create(ctx, ticket); err != nil {
		t.Fatalf("create: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := tickets.GetByID(ctx, ticket.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.AIMetadata.ProcessingStatus.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ticket still %s after sweeps", got.AIMetadata.ProcessingStatus)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type countingAnalyzer struct {
	mu    sync.Mutex
	calls int
}

func (a *countingAnalyzer) OnTicketCreated(context.Context, *domain.Ticket) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
}

func TestAnalysisWorker_IgnoresEventsAfterStop(t *testing.T) {
	analyzer := &countingAnalyzer{}
	w := NewAnalysisWorker(AnalysisWorkerDependencies{Store: docstore.NewMemoryStore(), Analyzer: analyzer})
	w.Start(context.Background())
	w.Stop()
	w.Stop()

	err := w.handleTicketCreated(context.Background(), events.Event{
		Type:     events.EventTicketCreated,
		TicketID: "t1",
		Payload:  events.TicketCreatedPayload{Subject: "s", Description: "d"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	w.Wait()
	if analyzer.calls != 0 {
		t.Fatalf("expected no runs after stop, got %d", analyzer.calls)
	}
}

func TestAnalysisWorker_PreviewKeepsRunesWhole(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	tickets := repository.NewTicketRepository(store)
	messages := repository.NewMessageRepository(store)
	dispatcher := events.NewInMemoryDispatcher()

	var previews []string
	dispatcher.Subscribe(events.EventMessageAdded, func(_ context.Context, e events.Event) error {
		previews = append(previews, e.Payload.(events.MessagePayload).Preview)
		return nil
	})

	w := NewAnalysisWorker(AnalysisWorkerDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Analyzer:   &countingAnalyzer{},
		Counter:    service.NewTicketService(service.TicketDependencies{TicketRepo: tickets, MessageRepo: messages}),
	})
	w.Start(ctx)
	defer w.Stop()

	ticket := &domain.Ticket{Subject: "s", Description: "d", RequesterID: "u1"}
	if err := tickets.Create(ctx, ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	text := "a" + strings.Repeat("é", previewLength)
	if err := messages.Create(ctx, &domain.Message{TicketID: ticket.ID, Text: text, Role: domain.MessageRoleUser}); err != nil {
		t.Fatalf("create message: %v", err)
	}

	if len(previews) != 1 {
		t.Fatalf("expected 1 preview, got %d", len(previews))
	}
	preview := previews[0]
	if !utf8.ValidString(preview) || utf8.RuneCountInString(preview) != previewLength {
		t.Fatalf("preview %q has %d runes, valid=%v", preview, utf8.RuneCountInString(preview), utf8.ValidString(preview))
	}
	if short := truncateRunes("héllo", previewLength); short != "héllo" {
		t.Errorf("short text changed to %q", short)
	}
}
