package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Abdin71/supportflow-ai/internal/ai"
	"github.com/Abdin71/supportflow-ai/internal/domain"
	"github.com/Abdin71/supportflow-ai/internal/events"
	"github.com/Abdin71/supportflow-ai/internal/observability"
	"github.com/Abdin71/supportflow-ai/internal/repository"
)

// TicketClassifier classifies ticket text through a model.
type TicketClassifier interface {
	Classify(ctx context.Context, subject, description string) (domain.AnalysisResult, error)
}

// AnalysisPipeline classifies newly created tickets and records the result.
type AnalysisPipeline struct {
	tickets      repository.TicketRepository
	classifier   TicketClassifier
	modelVersion string
	timeout      time.Duration
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// AnalysisDependencies bundles collaborators for the pipeline.
type AnalysisDependencies struct {
	TicketRepo   repository.TicketRepository
	Classifier   TicketClassifier
	ModelVersion string
	// Timeout bounds the model call. Zero leaves it unbounded.
	Timeout    time.Duration
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewAnalysisPipeline constructs the pipeline.
func NewAnalysisPipeline(deps AnalysisDependencies) *AnalysisPipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisPipeline{
		tickets:      deps.TicketRepo,
		classifier:   deps.Classifier,
		modelVersion: deps.ModelVersion,
		timeout:      deps.Timeout,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// OnTicketCreated runs analysis for a ticket that was just created. It never
// fails: model errors resolve through the keyword fallback and bookkeeping
// errors are logged.
func (p *AnalysisPipeline) OnTicketCreated(ctx context.Context, ticket *domain.Ticket) {
	start := p.now()
	log := p.logger.With(zap.String("ticket_id", ticket.ID))

	started, err := p.tickets.BeginAnalysis(ctx, ticket.ID)
	if err != nil {
		log.Error("mark ticket processing", zap.Error(err))
		p.metrics.RecordAnalysis(observability.AnalysisAborted, p.now().Sub(start))
		return
	}
	if !started {
		log.Info("analysis already claimed; skipping duplicate trigger")
		p.metrics.RecordAnalysis(observability.AnalysisDuplicate, p.now().Sub(start))
		return
	}
	log.Info("analysis started")

	record := p.classify(ctx, log, ticket)

	applied, err := p.tickets.CompleteAnalysis(ctx, ticket.ID, record)
	outcome := observability.AnalysisModel
	if record.Result.Source == domain.SourceFallback {
		outcome = observability.AnalysisFallback
	}
	switch {
	case err != nil:
		log.Error("persist analysis result", zap.Error(err))
		outcome = observability.AnalysisAborted
	case !applied:
		log.Warn("analysis result not applied; ticket left processing state")
		outcome = observability.AnalysisAborted
	default:
		p.publishAnalyzed(ctx, ticket.ID, record)
	}
	p.metrics.RecordAnalysis(outcome, p.now().Sub(start))
}

func (p *AnalysisPipeline) classify(ctx context.Context, log *zap.Logger, ticket *domain.Ticket) repository.AnalysisRecord {
	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := p.classifier.Classify(callCtx, ticket.Subject, ticket.Description)
	if err == nil {
		log.Info("ai analysis completed",
			zap.String("category", result.Category),
			zap.String("priority", string(result.Priority)),
			zap.Float64p("confidence", result.Confidence))
		version := p.modelVersion
		return repository.AnalysisRecord{
			Result:       result,
			Status:       domain.ProcessingCompleted,
			ModelVersion: &version,
		}
	}

	fallback := ai.FallbackClassify(ticket.Subject, ticket.Description)
	cause := err.Error()
	log.Warn("ai analysis failed; using keyword fallback",
		zap.Error(err),
		zap.String("category", fallback.Category),
		zap.String("priority", string(fallback.Priority)))
	return repository.AnalysisRecord{
		Result: fallback,
		Status: domain.ProcessingFailed,
		Error:  &cause,
	}
}

func (p *AnalysisPipeline) publishAnalyzed(ctx context.Context, ticketID string, record repository.AnalysisRecord) {
	if p.dispatcher == nil {
		return
	}
	err := p.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketAnalyzed,
		TicketID:  ticketID,
		Timestamp: p.now().UTC(),
		Payload: events.TicketAnalyzedPayload{
			Category:     record.Result.Category,
			Priority:     record.Result.Priority,
			Tags:         record.Result.Tags,
			UsedFallback: record.Result.Source == domain.SourceFallback,
		},
	})
	if err != nil {
		p.logger.Warn("ticket analyzed handlers failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}
