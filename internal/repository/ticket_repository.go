package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Abdin71/supportflow-ai/internal/docstore"
	"github.com/Abdin71/supportflow-ai/internal/domain"
)

// Ticket document fields.
const (
	fieldSubject           = "subject"
	fieldDescription       = "description"
	fieldUserID            = "userId"
	fieldUserEmail         = "userEmail"
	fieldUserName          = "userName"
	fieldStatus            = "status"
	fieldPriority          = "priority"
	fieldCategory          = "category"
	fieldTags              = "tags"
	fieldAssignedAgentID   = "assignedAgentId"
	fieldAssignedAgentName = "assignedAgentName"
	fieldMessageCount      = "messageCount"
	fieldHasUnread         = "hasUnreadMessages"
	fieldLastMessageAt     = "lastMessageAt"
	fieldPriorityIndex     = "priority_index"
	fieldCategoryIndex     = "category_index"
	fieldCreatedAt         = "createdAt"
	fieldUpdatedAt         = "updatedAt"

	FieldProcessingStatus = "aiMetadata.processingStatus"
	fieldAIStartedAt      = "aiMetadata.startedAt"
	fieldAICompletedAt    = "aiMetadata.completedAt"
	fieldAIConfidence     = "aiMetadata.confidence"
	fieldAIModelVersion   = "aiMetadata.modelVersion"
	fieldAIUsedFallback   = "aiMetadata.usedFallback"
	fieldAIError          = "aiMetadata.error"
)

// DefaultUserTicketLimit bounds identity-scoped ticket queries.
const DefaultUserTicketLimit = 50

// TicketFilter captures listing parameters pushed to the store.
type TicketFilter struct {
	RequesterID     *string
	Status          *domain.TicketStatus
	Priority        *domain.TicketPriority
	Category        *string
	AssignedAgentID *string
	Limit           int
}

// AnalysisRecord is the terminal write of the analysis pipeline.
type AnalysisRecord struct {
	Result       domain.AnalysisResult
	Status       domain.ProcessingStatus
	ModelVersion *string
	Error        *string
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) error
	Assign(ctx context.Context, id, agentID, agentName string) error
	MarkRead(ctx context.Context, id string) error
	// BeginAnalysis moves a pending ticket to processing. It reports false
	// when the ticket was no longer pending.
	BeginAnalysis(ctx context.Context, id string) (bool, error)
	// CompleteAnalysis persists a terminal result for a processing ticket.
	CompleteAnalysis(ctx context.Context, id string, record AnalysisRecord) (bool, error)
	// SetMessageCount records the current thread size. A non-nil
	// lastMessageAt also flags the ticket unread.
	SetMessageCount(ctx context.Context, id string, count int, lastMessageAt *time.Time) error
	Subscribe(id string, fn func(*domain.Ticket, error)) (docstore.Unsubscribe, error)
	SubscribeByUser(userID string, limit int, fn func([]domain.Ticket, error)) (docstore.Unsubscribe, error)
}

type ticketRepository struct {
	store docstore.Store
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(store docstore.Store) TicketRepository {
	return &ticketRepository{store: store}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	data := docstore.Fields{
		fieldSubject:      ticket.Subject,
		fieldDescription:  ticket.Description,
		fieldUserID:       ticket.RequesterID,
		fieldUserEmail:    ticket.RequesterEmail,
		fieldUserName:     ticket.RequesterName,
		fieldStatus:       string(domain.TicketStatusOpen),
		fieldTags:         []string{},
		fieldMessageCount: 0,
		fieldHasUnread:    false,
		fieldCreatedAt:    docstore.ServerTimestamp,
		fieldUpdatedAt:    docstore.ServerTimestamp,
		"aiMetadata": map[string]any{
			"processingStatus": string(domain.ProcessingPending),
		},
	}
	id, err := r.store.Create(ctx, CollectionTickets, data)
	if err != nil {
		return err
	}
	ticket.ID = id
	ticket.Status = domain.TicketStatusOpen
	ticket.AIMetadata = domain.AIMetadata{ProcessingStatus: domain.ProcessingPending}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	doc, err := r.store.Get(ctx, CollectionTickets, id)
	if err != nil {
		return nil, err
	}
	ticket := ticketFromDocument(doc)
	return &ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	docs, err := r.store.Query(ctx, ticketQuery(filter))
	if err != nil {
		return nil, err
	}
	return ticketsFromDocuments(docs), nil
}

// PendingAnalysisQuery selects tickets whose analysis has not started,
// oldest first.
func PendingAnalysisQuery() docstore.Query {
	return docstore.Query{
		Collection: CollectionTickets,
		Filters:    []docstore.Filter{docstore.Where(FieldProcessingStatus, docstore.OpEqual, string(domain.ProcessingPending))},
		OrderBy:    &docstore.OrderBy{Field: fieldCreatedAt, Direction: docstore.Asc},
	}
}

func ticketQuery(filter TicketFilter) docstore.Query {
	q := docstore.Query{
		Collection: CollectionTickets,
		OrderBy:    &docstore.OrderBy{Field: fieldCreatedAt, Direction: docstore.Desc},
		Limit:      filter.Limit,
	}
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if filter.RequesterID != nil {
		q.Filters = append(q.Filters, docstore.Where(fieldUserID, docstore.OpEqual, *filter.RequesterID))
	}
	if filter.Status != nil {
		q.Filters = append(q.Filters, docstore.Where(fieldStatus, docstore.OpEqual, string(*filter.Status)))
	}
	if filter.Priority != nil {
		q.Filters = append(q.Filters, docstore.Where(fieldPriorityIndex, docstore.OpEqual, filter.Priority.Index()))
	}
	if filter.Category != nil {
		q.Filters = append(q.Filters, docstore.Where(fieldCategoryIndex, docstore.OpEqual, *filter.Category))
	}
	if filter.AssignedAgentID != nil {
		q.Filters = append(q.Filters, docstore.Where(fieldAssignedAgentID, docstore.OpEqual, *filter.AssignedAgentID))
	}
	return q
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) error {
	return r.store.Update(ctx, CollectionTickets, id, docstore.Fields{
		fieldStatus:    string(status),
		fieldUpdatedAt: docstore.ServerTimestamp,
	})
}

func (r *ticketRepository) Assign(ctx context.Context, id, agentID, agentName string) error {
	return r.store.Update(ctx, CollectionTickets, id, docstore.Fields{
		fieldAssignedAgentID:   agentID,
		fieldAssignedAgentName: agentName,
		fieldStatus:            string(domain.TicketStatusInProgress),
		fieldUpdatedAt:         docstore.ServerTimestamp,
	})
}

func (r *ticketRepository) MarkRead(ctx context.Context, id string) error {
	return r.store.Update(ctx, CollectionTickets, id, docstore.Fields{
		fieldHasUnread: false,
		fieldUpdatedAt: docstore.ServerTimestamp,
	})
}

var processingStatuses = []domain.ProcessingStatus{
	domain.ProcessingPending,
	domain.ProcessingProcessing,
	domain.ProcessingCompleted,
	domain.ProcessingFailed,
}

// advanceTo writes fields only while the stored status may move to next.
func (r *ticketRepository) advanceTo(ctx context.Context, id string, next domain.ProcessingStatus, fields docstore.Fields) (bool, error) {
	from := make([]string, 0, 1)
	for _, status := range processingStatuses {
		if status.CanAdvanceTo(next) {
			from = append(from, string(status))
		}
	}
	if len(from) == 0 {
		return false, fmt.Errorf("analysis status %q is not reachable", next)
	}
	fields[FieldProcessingStatus] = string(next)
	return r.store.UpdateIf(ctx, CollectionTickets, id,
		[]docstore.Filter{docstore.Where(FieldProcessingStatus, docstore.OpIn, from)},
		fields)
}

func (r *ticketRepository) BeginAnalysis(ctx context.Context, id string) (bool, error) {
	return r.advanceTo(ctx, id, domain.ProcessingProcessing, docstore.Fields{
		fieldAIStartedAt: docstore.ServerTimestamp,
	})
}

func (r *ticketRepository) CompleteAnalysis(ctx context.Context, id string, record AnalysisRecord) (bool, error) {
	if !record.Status.Terminal() {
		return false, fmt.Errorf("complete analysis: non-terminal status %q", record.Status)
	}
	result := record.Result
	tags := result.Tags
	if tags == nil {
		tags = []string{}
	}
	fields := docstore.Fields{
		fieldCategory:       result.Category,
		fieldPriority:       string(result.Priority),
		fieldTags:           tags,
		fieldPriorityIndex:  result.Priority.Index(),
		fieldCategoryIndex:  result.Category,
		fieldUpdatedAt:      docstore.ServerTimestamp,
		fieldAICompletedAt:  docstore.ServerTimestamp,
		fieldAIUsedFallback: result.Source == domain.SourceFallback,
	}
	if result.Confidence != nil {
		fields[fieldAIConfidence] = *result.Confidence
	}
	if record.ModelVersion != nil {
		fields[fieldAIModelVersion] = *record.ModelVersion
	}
	if record.Error != nil {
		fields[fieldAIError] = *record.Error
	}
	return r.advanceTo(ctx, id, record.Status, fields)
}

func (r *ticketRepository) SetMessageCount(ctx context.Context, id string, count int, lastMessageAt *time.Time) error {
	fields := docstore.Fields{
		fieldMessageCount: count,
		fieldUpdatedAt:    docstore.ServerTimestamp,
	}
	if lastMessageAt != nil {
		fields[fieldLastMessageAt] = *lastMessageAt
		fields[fieldHasUnread] = true
	}
	return r.store.Update(ctx, CollectionTickets, id, fields)
}

func (r *ticketRepository) Subscribe(id string, fn func(*domain.Ticket, error)) (docstore.Unsubscribe, error) {
	return r.store.SubscribeDoc(CollectionTickets, id, func(doc *docstore.Document, err error) {
		if err != nil || doc == nil {
			fn(nil, err)
			return
		}
		ticket := ticketFromDocument(doc)
		fn(&ticket, nil)
	})
}

func (r *ticketRepository) SubscribeByUser(userID string, limit int, fn func([]domain.Ticket, error)) (docstore.Unsubscribe, error) {
	if limit <= 0 {
		limit = DefaultUserTicketLimit
	}
	q := ticketQuery(TicketFilter{RequesterID: &userID, Limit: limit})
	return r.store.SubscribeQuery(q, func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(ticketsFromDocuments(docs), nil)
	})
}

func ticketsFromDocuments(docs []docstore.Document) []domain.Ticket {
	result := make([]domain.Ticket, 0, len(docs))
	for i := range docs {
		result = append(result, ticketFromDocument(&docs[i]))
	}
	return result
}

func ticketFromDocument(doc *docstore.Document) domain.Ticket {
	data := doc.Data
	ticket := domain.Ticket{
		ID:                doc.ID,
		Subject:           fieldString(data, fieldSubject),
		Description:       fieldString(data, fieldDescription),
		RequesterID:       fieldString(data, fieldUserID),
		RequesterEmail:    fieldString(data, fieldUserEmail),
		RequesterName:     fieldString(data, fieldUserName),
		Status:            domain.TicketStatus(fieldString(data, fieldStatus)),
		Category:          fieldStringPtr(data, fieldCategory),
		Tags:              fieldStrings(data, fieldTags),
		AssignedAgentID:   fieldStringPtr(data, fieldAssignedAgentID),
		AssignedAgentName: fieldStringPtr(data, fieldAssignedAgentName),
		MessageCount:      fieldInt(data, fieldMessageCount),
		HasUnreadMessages: fieldBool(data, fieldHasUnread),
		LastMessageAt:     fieldTimePtr(data, fieldLastMessageAt),
		PriorityIndex:     fieldInt(data, fieldPriorityIndex),
		CategoryIndex:     fieldStringPtr(data, fieldCategoryIndex),
		CreatedAt:         fieldTime(data, fieldCreatedAt),
		UpdatedAt:         fieldTime(data, fieldUpdatedAt),
		AIMetadata: domain.AIMetadata{
			ProcessingStatus: domain.ProcessingStatus(fieldString(data, FieldProcessingStatus)),
			StartedAt:        fieldTimePtr(data, fieldAIStartedAt),
			CompletedAt:      fieldTimePtr(data, fieldAICompletedAt),
			Confidence:       fieldFloatPtr(data, fieldAIConfidence),
			ModelVersion:     fieldStringPtr(data, fieldAIModelVersion),
			UsedFallback:     fieldBool(data, fieldAIUsedFallback),
			Error:            fieldStringPtr(data, fieldAIError),
		},
	}
	if p := fieldStringPtr(data, fieldPriority); p != nil {
		priority := domain.TicketPriority(*p)
		ticket.Priority = &priority
	}
	return ticket
}
