package repository

import (
	"context"
	"testing"

	"github.com/Abdin71/supportflow-ai/internal/docstore"
	"github.com/Abdin71/supportflow-ai/internal/domain"
)

func TestTicketRepository_AnalysisStatusOnlyAdvances(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository(docstore.NewMemoryStore())
	ticket := &domain.Ticket{Subject: "Printer", Description: "Paper jam", RequesterID: "u1"}
	if err := repo.Create(ctx, ticket); err != nil {
		t.Fatalf("create: %v", err)
	}
	record := AnalysisRecord{
		Result: domain.AnalysisResult{Category: domain.CategoryGeneralInquiry, Priority: domain.TicketPriorityMedium, Source: domain.SourceFallback},
		Status: domain.ProcessingFailed,
	}

	if applied, err := repo.CompleteAnalysis(ctx, ticket.ID, record); err != nil || applied {
		t.Fatalf("complete before begin = %v, %v; want not applied", applied, err)
	}
	if applied, err := repo.BeginAnalysis(ctx, ticket.ID); err != nil || !applied {
		t.Fatalf("begin = %v, %v; want applied", applied, err)
	}
	if applied, err := repo.BeginAnalysis(ctx, ticket.ID); err != nil || applied {
		t.Fatalf("second begin = %v, %v; want not applied", applied, err)
	}
	if applied, err := repo.CompleteAnalysis(ctx, ticket.ID, record); err != nil || !applied {
		t.Fatalf("complete = %v, %v; want applied", applied, err)
	}

	record.Status = domain.ProcessingCompleted
	if applied, err := repo.CompleteAnalysis(ctx, ticket.ID, record); err != nil || applied {
		t.Fatalf("complete after terminal = %v, %v; want not applied", applied, err)
	}
	if applied, err := repo.BeginAnalysis(ctx, ticket.ID); err != nil || applied {
		t.Fatalf("begin after terminal = %v, %v; want not applied", applied, err)
	}

	record.Status = domain.ProcessingPending
	if _, err := repo.CompleteAnalysis(ctx, ticket.ID, record); err == nil {
		t.Fatal("complete with non-terminal status succeeded")
	}

	got, err := repo.GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AIMetadata.ProcessingStatus != domain.ProcessingFailed || !got.AIMetadata.UsedFallback {
		t.Fatalf("ai metadata = %+v", got.AIMetadata)
	}
}
