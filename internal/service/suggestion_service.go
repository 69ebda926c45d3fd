package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Abdin71/supportflow-ai/internal/ai"
	"github.com/Abdin71/supportflow-ai/internal/domain"
	"github.com/Abdin71/supportflow-ai/internal/observability"
	"github.com/Abdin71/supportflow-ai/internal/repository"
	apperrors "github.com/Abdin71/supportflow-ai/pkg/util"
)

// ReplyDrafter produces reply drafts through a model.
type ReplyDrafter interface {
	Generate(ctx context.Context, ticket *domain.Ticket, messages []domain.Message) ([]string, float64, error)
}

// SuggestionResult is returned to agents asking for reply drafts.
type SuggestionResult struct {
	Success      bool     `json:"success"`
	Suggestions  []string `json:"suggestions"`
	Confidence   float64  `json:"confidence"`
	UsedFallback bool     `json:"usedFallback,omitempty"`
}

// SuggestionService generates reply drafts for administrators.
type SuggestionService struct {
	users    repository.UserRepository
	tickets  repository.TicketRepository
	messages repository.MessageRepository
	drafter  ReplyDrafter
	canned   ai.SuggestionTable
	timeout  time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// SuggestionDependencies bundles collaborators for the suggestion service.
type SuggestionDependencies struct {
	UserRepo    repository.UserRepository
	TicketRepo  repository.TicketRepository
	MessageRepo repository.MessageRepository
	Drafter     ReplyDrafter
	Canned      ai.SuggestionTable
	Timeout     time.Duration
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// NewSuggestionService constructs the service.
func NewSuggestionService(deps SuggestionDependencies) *SuggestionService {
	canned := deps.Canned
	if canned == nil {
		canned = ai.DefaultSuggestionTable()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SuggestionService{
		users:    deps.UserRepo,
		tickets:  deps.TicketRepo,
		messages: deps.MessageRepo,
		drafter:  deps.Drafter,
		canned:   canned,
		timeout:  deps.Timeout,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// GenerateReplySuggestions returns three reply drafts for a ticket. Only
// administrators may call it. Model failures fall back to canned drafts
// keyed by the ticket category.
func (s *SuggestionService) GenerateReplySuggestions(ctx context.Context, identity *domain.Identity, ticketID string) (*SuggestionResult, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, apperrors.NewValidationError("ticketId is required", nil)
	}

	caller, err := s.users.GetByID(ctx, identity.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if caller == nil || caller.Role != domain.UserRoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapNotFound(err, "ticket", ticketID)
	}

	log := s.logger.With(zap.String("ticket_id", ticketID))
	thread, err := s.messages.ListByTicket(ctx, ticketID, ai.ContextMessageLimit)
	if err != nil {
		log.Warn("load thread for suggestions", zap.Error(err))
		return s.fallback(log, ticket, err), nil
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	drafts, confidence, err := s.drafter.Generate(callCtx, ticket, thread)
	if err != nil {
		return s.fallback(log, ticket, err), nil
	}

	s.metrics.RecordSuggestion(observability.SuggestionModel)
	log.Info("reply suggestions generated", zap.Int("count", len(drafts)))
	return &SuggestionResult{Success: true, Suggestions: drafts, Confidence: confidence}, nil
}

func (s *SuggestionService) fallback(log *zap.Logger, ticket *domain.Ticket, cause error) *SuggestionResult {
	log.Warn("reply suggestions failed; using canned drafts", zap.Error(cause))
	s.metrics.RecordSuggestion(observability.SuggestionFallback)
	return &SuggestionResult{
		Success:      true,
		Suggestions:  s.canned.For(ticket.Category),
		Confidence:   ai.FallbackSuggestionConfidence,
		UsedFallback: true,
	}
}
