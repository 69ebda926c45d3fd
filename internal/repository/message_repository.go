package repository

import (
	"context"

	"github.com/Abdin71/supportflow-ai/internal/docstore"
	"github.com/Abdin71/supportflow-ai/internal/domain"
)

const (
	fieldTicketID       = "ticketId"
	fieldText           = "text"
	fieldRole           = "role"
	fieldIsAISuggestion = "isAiSuggestion"
	fieldIsEdited       = "isEdited"
	fieldEditedAt       = "editedAt"
)

// MessageRepository manages ticket thread messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	// ListByTicket returns up to limit messages, oldest first. A limit of
	// zero returns all of them.
	ListByTicket(ctx context.Context, ticketID string, limit int) ([]domain.Message, error)
	CountByTicket(ctx context.Context, ticketID string) (int, error)
	UpdateText(ctx context.Context, id, text string) error
	Delete(ctx context.Context, id string) error
	SubscribeByTicket(ticketID string, fn func([]domain.Message, error)) (docstore.Unsubscribe, error)
}

type messageRepository struct {
	store docstore.Store
}

// NewMessageRepository builds repository.
func NewMessageRepository(store docstore.Store) MessageRepository {
	return &messageRepository{store: store}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	id, err := r.store.Create(ctx, CollectionMessages, docstore.Fields{
		fieldTicketID:       msg.TicketID,
		fieldText:           msg.Text,
		fieldUserID:         msg.AuthorID,
		fieldUserName:       msg.AuthorName,
		fieldRole:           string(msg.Role),
		fieldIsAISuggestion: msg.IsAISuggestion,
		fieldIsEdited:       false,
		fieldEditedAt:       nil,
		fieldCreatedAt:      docstore.ServerTimestamp,
	})
	if err != nil {
		return err
	}
	msg.ID = id
	msg.IsEdited = false
	msg.EditedAt = nil
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	doc, err := r.store.Get(ctx, CollectionMessages, id)
	if err != nil {
		return nil, err
	}
	msg := messageFromDocument(doc)
	return &msg, nil
}

func messageQuery(ticketID string, limit int) docstore.Query {
	return docstore.Query{
		Collection: CollectionMessages,
		Filters:    []docstore.Filter{docstore.Where(fieldTicketID, docstore.OpEqual, ticketID)},
		OrderBy:    &docstore.OrderBy{Field: fieldCreatedAt, Direction: docstore.Asc},
		Limit:      limit,
	}
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID string, limit int) ([]domain.Message, error) {
	docs, err := r.store.Query(ctx, messageQuery(ticketID, limit))
	if err != nil {
		return nil, err
	}
	return messagesFromDocuments(docs), nil
}

func (r *messageRepository) CountByTicket(ctx context.Context, ticketID string) (int, error) {
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: CollectionMessages,
		Filters:    []docstore.Filter{docstore.Where(fieldTicketID, docstore.OpEqual, ticketID)},
	})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (r *messageRepository) UpdateText(ctx context.Context, id, text string) error {
	return r.store.Update(ctx, CollectionMessages, id, docstore.Fields{
		fieldText:     text,
		fieldIsEdited: true,
		fieldEditedAt: docstore.ServerTimestamp,
	})
}

func (r *messageRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollectionMessages, id)
}

func (r *messageRepository) SubscribeByTicket(ticketID string, fn func([]domain.Message, error)) (docstore.Unsubscribe, error) {
	return r.store.SubscribeQuery(messageQuery(ticketID, 0), func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(messagesFromDocuments(docs), nil)
	})
}

func messagesFromDocuments(docs []docstore.Document) []domain.Message {
	result := make([]domain.Message, 0, len(docs))
	for i := range docs {
		result = append(result, messageFromDocument(&docs[i]))
	}
	return result
}

func messageFromDocument(doc *docstore.Document) domain.Message {
	data := doc.Data
	return domain.Message{
		ID:             doc.ID,
		TicketID:       fieldString(data, fieldTicketID),
		Text:           fieldString(data, fieldText),
		AuthorID:       fieldString(data, fieldUserID),
		AuthorName:     fieldString(data, fieldUserName),
		Role:           domain.MessageRole(fieldString(data, fieldRole)),
		IsAISuggestion: fieldBool(data, fieldIsAISuggestion),
		IsEdited:       fieldBool(data, fieldIsEdited),
		EditedAt:       fieldTimePtr(data, fieldEditedAt),
		CreatedAt:      fieldTime(data, fieldCreatedAt),
	}
}
