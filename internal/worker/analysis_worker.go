package worker

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Abdin71/supportflow-ai/internal/docstore"
	"github.com/Abdin71/supportflow-ai/internal/domain"
	"github.com/Abdin71/supportflow-ai/internal/events"
	"github.com/Abdin71/supportflow-ai/internal/repository"
	"github.com/Abdin71/supportflow-ai/internal/service"
)

const previewLength = 80

// TicketAnalyzer runs analysis for a newly created ticket.
type TicketAnalyzer interface {
	OnTicketCreated(ctx context.Context, ticket *domain.Ticket)
}

// MessageCounter applies the message side effects to tickets.
type MessageCounter interface {
	ApplyMessageCreated(ctx context.Context, msg *domain.Message) error
	ApplyMessageDeleted(ctx context.Context, msg *domain.Message) error
}

// AnalysisWorker turns store changes into pipeline runs and ticket
// bookkeeping.
type AnalysisWorker struct {
	store      docstore.Store
	dispatcher events.Dispatcher
	analyzer   TicketAnalyzer
	counter    MessageCounter
	logger     *zap.Logger

	sweepEvery time.Duration

	sem    chan struct{}
	wg     sync.WaitGroup
	sweeps sync.WaitGroup
	quit   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	unwatch []docstore.Unsubscribe
}

// AnalysisWorkerDependencies bundles collaborators for the worker.
type AnalysisWorkerDependencies struct {
	Store      docstore.Store
	Dispatcher events.Dispatcher
	Analyzer   TicketAnalyzer
	Counter    MessageCounter
	Logger     *zap.Logger
	// Workers bounds concurrent pipeline runs.
	Workers int
	// SweepInterval re-dispatches tickets still pending analysis, covering
	// change notices that never arrived. Zero sweeps only at start.
	SweepInterval time.Duration
}

// NewAnalysisWorker builds a worker. Start must be called to begin.
func NewAnalysisWorker(deps AnalysisWorkerDependencies) *AnalysisWorker {
	workers := deps.Workers
	if workers <= 0 {
		workers = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	return &AnalysisWorker{
		store:      deps.Store,
		dispatcher: dispatcher,
		analyzer:   deps.Analyzer,
		counter:    deps.Counter,
		logger:     logger,
		sweepEvery: deps.SweepInterval,
		sem:        make(chan struct{}, workers),
		quit:       make(chan struct{}),
	}
}

// Start registers the ticket-created handler, begins watching and
// dispatches every ticket already waiting for analysis.
func (w *AnalysisWorker) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))
	w.dispatcher.Subscribe(events.EventTicketCreated, w.handleTicketCreated)

	w.mu.Lock()
	w.unwatch = append(w.unwatch,
		w.store.Watch(repository.CollectionTickets, w.onTicketChange),
		w.store.Watch(repository.CollectionMessages, w.onMessageChange),
	)
	if w.sweepEvery > 0 {
		w.sweeps.Add(1)
		go w.sweepLoop()
	}
	w.mu.Unlock()
	w.logger.Info("analysis worker started", zap.Int("workers", cap(w.sem)))

	w.sweep(w.ctx)
}

func (w *AnalysisWorker) sweepLoop() {
	defer w.sweeps.Done()
	ticker := time.NewTicker(w.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.sweep(w.ctx)
		case <-w.quit:
			return
		}
	}
}

// sweep publishes a created event for each pending ticket. Tickets that
// are already being analyzed are skipped by the pipeline's status guard.
func (w *AnalysisWorker) sweep(ctx context.Context) {
	docs, err := w.store.Query(ctx, repository.PendingAnalysisQuery())
	if err != nil {
		w.logger.Error("query pending tickets", zap.Error(err))
		return
	}
	for i := range docs {
		w.publishCreated(ctx, repository.DecodeTicket(&docs[i]))
	}
	if len(docs) > 0 {
		w.logger.Info("dispatched pending tickets", zap.Int("count", len(docs)))
	}
}

// Stop cancels the watchers and waits for in-flight runs.
func (w *AnalysisWorker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	unwatch := w.unwatch
	w.unwatch = nil
	close(w.quit)
	w.mu.Unlock()
	for _, fn := range unwatch {
		fn()
	}
	w.sweeps.Wait()
	w.wg.Wait()
	if w.cancel != nil {
		w.cancel()
	}
	w.logger.Info("analysis worker stopped")
}

// Wait blocks until every scheduled pipeline run has finished.
func (w *AnalysisWorker) Wait() {
	w.wg.Wait()
}

func (w *AnalysisWorker) onTicketChange(ctx context.Context, change docstore.Change) {
	if change.Type != docstore.ChangeCreated || change.Document == nil {
		return
	}
	w.publishCreated(ctx, repository.DecodeTicket(change.Document))
}

func (w *AnalysisWorker) publishCreated(ctx context.Context, ticket domain.Ticket) {
	if ticket.AIMetadata.ProcessingStatus != domain.ProcessingPending {
		return
	}
	err := w.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketCreated,
		TicketID:  ticket.ID,
		Timestamp: time.Now().UTC(),
		Payload: events.TicketCreatedPayload{
			Subject:     ticket.Subject,
			Description: ticket.Description,
			RequesterID: ticket.RequesterID,
		},
	})
	if err != nil {
		w.logger.Warn("ticket created handlers failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (w *AnalysisWorker) handleTicketCreated(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	ticket := &domain.Ticket{
		ID:          event.TicketID,
		Subject:     payload.Subject,
		Description: payload.Description,
		RequesterID: payload.RequesterID,
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.wg.Add(1)
	w.mu.Unlock()
	go func() {
		defer w.wg.Done()
		select {
		case w.sem <- struct{}{}:
		case <-w.ctx.Done():
			return
		}
		defer func() { <-w.sem }()
		w.analyzer.OnTicketCreated(w.ctx, ticket)
	}()
	return nil
}

func (w *AnalysisWorker) onMessageChange(ctx context.Context, change docstore.Change) {
	if change.Document == nil || w.counter == nil {
		return
	}
	msg := repository.DecodeMessage(change.Document)
	var (
		err       error
		eventType events.EventType
	)
	switch change.Type {
	case docstore.ChangeCreated:
		err = w.counter.ApplyMessageCreated(ctx, &msg)
		eventType = events.EventMessageAdded
	case docstore.ChangeDeleted:
		err = w.counter.ApplyMessageDeleted(ctx, &msg)
		eventType = events.EventMessageDeleted
	default:
		return
	}
	if err != nil {
		w.logger.Error("apply message side effect", zap.String("ticket_id", msg.TicketID), zap.String("message_id", msg.ID), zap.Error(err))
		return
	}

	preview := truncateRunes(msg.Text, previewLength)
	if err := w.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  msg.TicketID,
		Timestamp: time.Now().UTC(),
		Payload: events.MessagePayload{
			MessageID: msg.ID,
			AuthorID:  msg.AuthorID,
			Role:      msg.Role,
			Preview:   preview,
		},
	}); err != nil {
		w.logger.Warn("message handlers failed", zap.String("ticket_id", msg.TicketID), zap.Error(err))
	}
}

// truncateRunes cuts text to at most n runes.
func truncateRunes(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n])
}

var (
	_ TicketAnalyzer = (*service.AnalysisPipeline)(nil)
	_ MessageCounter = (*service.TicketService)(nil)
)
