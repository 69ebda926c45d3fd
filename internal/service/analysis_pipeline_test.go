package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Abdin71/supportflow-ai/internal/ai"
	"github.com/Abdin71/supportflow-ai/internal/domain"
	"github.com/Abdin71/supportflow-ai/internal/observability"
)

func TestAnalysisPipeline_ModelSuccess(t *testing.T) {
	f := newFixture()
	owner := f.user(t, "ann", domain.UserRoleUser)
	ticket := f.ticket(t, owner, "Refund", "I was charged twice")

	confidence := 0.91
	stub := &stubClassifier{result: domain.AnalysisResult{
		Category:   domain.CategoryBilling,
		Priority:   domain.TicketPriorityHigh,
		Tags:       []string{"refund"},
		Confidence: &confidence,
		Source:     domain.SourceModel,
	}}
	metrics := observability.NewMetrics()
	pipeline := NewAnalysisPipeline(AnalysisDependencies{
		TicketRepo:   f.tickets,
		Classifier:   stub,
		ModelVersion: "gpt-test",
		Metrics:      metrics,
	})

	stub.during = func() {
		got, err := f.tickets.GetByID(context.Background(), ticket.ID)
		if err != nil {
			t.Errorf("get during call: %v", err)
			return
		}
		if got.AIMetadata.ProcessingStatus != domain.ProcessingProcessing {
			t.Errorf("expected processing during model call, got %s", got.AIMetadata.ProcessingStatus)
		}
		if got.AIMetadata.StartedAt == nil {
			t.Error("expected startedAt during model call")
		}
	}

	pipeline.OnTicketCreated(context.Background(), ticket)

	got, err := f.tickets.GetByID(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	meta := got.AIMetadata
	if meta.ProcessingStatus != domain.ProcessingCompleted || meta.UsedFallback {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if got.Category == nil || *got.Category != domain.CategoryBilling {
		t.Errorf("unexpected category: %v", got.Category)
	}
	if got.CategoryIndex == nil || *got.CategoryIndex != domain.CategoryBilling {
		t.Errorf("unexpected category index: %v", got.CategoryIndex)
	}
	if got.Priority == nil || *got.Priority != domain.TicketPriorityHigh || got.PriorityIndex != 3 {
		t.Errorf("unexpected priority: %v %d", got.Priority, got.PriorityIndex)
	}
	if meta.Confidence == nil || *meta.Confidence != 0.91 {
		t.Errorf("unexpected confidence: %v", meta.Confidence)
	}
	if meta.ModelVersion == nil || *meta.ModelVersion != "gpt-test" {
		t.Errorf("unexpected model version: %v", meta.ModelVersion)
	}
	if meta.CompletedAt == nil || meta.Error != nil {
		t.Errorf("unexpected completion fields: %+v", meta)
	}
	if metrics.Snapshot().Analyses[observability.AnalysisModel] != 1 {
		t.Errorf("expected model outcome recorded: %v", metrics.Snapshot().Analyses)
	}
}

func TestAnalysisPipeline_FallbackOnModelError(t *testing.T) {
	f := newFixture()
	owner := f.user(t, "ann", domain.UserRoleUser)
	ticket := f.ticket(t, owner, "Cannot login", "I forgot my password and urgent help needed")

	stub := &stubClassifier{err: errors.New("connection refused")}
	pipeline := NewAnalysisPipeline(AnalysisDependencies{TicketRepo: f.tickets, Classifier: stub, ModelVersion: "gpt-test"})
	pipeline.OnTicketCreated(context.Background(), ticket)

	got, err := f.tickets.GetByID(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := ai.FallbackClassify(ticket.Subject, ticket.Description)
	if got.Category == nil || *got.Category != want.Category || *got.Category != domain.CategoryAccountLogin {
		t.Errorf("unexpected category: %v", got.Category)
	}
	if got.Priority == nil || *got.Priority != domain.TicketPriorityUrgent || got.PriorityIndex != 4 {
		t.Errorf("unexpected priority: %v %d", got.Priority, got.PriorityIndex)
	}
	if !reflect.DeepEqual(got.Tags, []string{"authentication"}) {
		t.Errorf("unexpected tags: %v", got.Tags)
	}
	meta := got.AIMetadata
	if meta.ProcessingStatus != domain.ProcessingFailed || !meta.UsedFallback {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.Error == nil || *meta.Error != "connection refused" {
		t.Errorf("unexpected error field: %v", meta.Error)
	}
	if meta.Confidence != nil || meta.ModelVersion != nil {
		t.Errorf("fallback must not set confidence or model version: %+v", meta)
	}
	if meta.CompletedAt == nil {
		t.Error("expected completedAt")
	}
}

func TestAnalysisPipeline_DuplicateTrigger(t *testing.T) {
	f := newFixture()
	owner := f.user(t, "ann", domain.UserRoleUser)
	ticket := f.ticket(t, owner, "Hello", "General question")

	stub := &stubClassifier{result: domain.AnalysisResult{Category: domain.CategoryGeneralInquiry, Priority: domain.TicketPriorityLow, Source: domain.SourceModel}}
	metrics := observability.NewMetrics()
	pipeline := NewAnalysisPipeline(AnalysisDependencies{TicketRepo: f.tickets, Classifier: stub, Metrics: metrics})

	pipeline.OnTicketCreated(context.Background(), ticket)
	pipeline.OnTicketCreated(context.Background(), ticket)

	if stub.calls != 1 {
		t.Fatalf("expected one model call, got %d", stub.calls)
	}
	got, _ := f.tickets.GetByID(context.Background(), ticket.ID)
	if got.AIMetadata.ProcessingStatus != domain.ProcessingCompleted {
		t.Errorf("terminal status regressed: %s", got.AIMetadata.ProcessingStatus)
	}
	if metrics.Snapshot().Analyses[observability.AnalysisDuplicate] != 1 {
		t.Errorf("expected duplicate recorded: %v", metrics.Snapshot().Analyses)
	}
}

func TestAnalysisPipeline_MissingTicket(t *testing.T) {
	f := newFixture()
	stub := &stubClassifier{}
	pipeline := NewAnalysisPipeline(AnalysisDependencies{TicketRepo: f.tickets, Classifier: stub})

	pipeline.OnTicketCreated(context.Background(), &domain.Ticket{ID: "missing"})
	if stub.calls != 0 {
		t.Errorf("expected no model call, got %d", stub.calls)
	}
}
