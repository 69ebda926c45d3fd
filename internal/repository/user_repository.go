package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/Abdin71/supportflow-ai/internal/docstore"
	"github.com/Abdin71/supportflow-ai/internal/domain"
)

const (
	fieldEmail        = "email"
	fieldDisplayName  = "displayName"
	fieldPasswordHash = "passwordHash"
	fieldUserRole     = "role"
	fieldLastLogin    = "lastLogin"
	fieldLoginCount   = "loginCount"
)

// ErrEmailTaken is returned when another account already uses the email.
var ErrEmailTaken = errors.New("email already registered")

// MemoryStoreOptions returns the unique constraints the SQL schema
// enforces, for use with an in-memory store.
func MemoryStoreOptions() []docstore.MemoryOption {
	return []docstore.MemoryOption{docstore.WithUniqueField(CollectionUsers, fieldEmail)}
}

// UserRepository defines persistence access for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	TouchLogin(ctx context.Context, id string) error
}

type userRepository struct {
	store docstore.Store
}

// NewUserRepository returns a document-store-backed implementation.
func NewUserRepository(store docstore.Store) UserRepository {
	return &userRepository{store: store}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	id, err := r.store.Create(ctx, CollectionUsers, docstore.Fields{
		fieldEmail:        strings.ToLower(user.Email),
		fieldDisplayName:  user.DisplayName,
		fieldPasswordHash: user.PasswordHash,
		fieldUserRole:     string(user.Role),
		fieldCreatedAt:    docstore.ServerTimestamp,
		fieldLoginCount:   0,
	})
	if errors.Is(err, docstore.ErrConflict) {
		return ErrEmailTaken
	}
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	doc, err := r.store.Get(ctx, CollectionUsers, id)
	if err != nil {
		return nil, err
	}
	user := userFromDocument(doc)
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: CollectionUsers,
		Filters:    []docstore.Filter{docstore.Where(fieldEmail, docstore.OpEqual, strings.ToLower(email))},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	user := userFromDocument(&docs[0])
	return &user, nil
}

func (r *userRepository) TouchLogin(ctx context.Context, id string) error {
	return r.store.Update(ctx, CollectionUsers, id, docstore.Fields{
		fieldLastLogin:  docstore.ServerTimestamp,
		fieldLoginCount: docstore.Increment(1),
	})
}

func userFromDocument(doc *docstore.Document) domain.User {
	data := doc.Data
	return domain.User{
		ID:           doc.ID,
		Email:        fieldString(data, fieldEmail),
		DisplayName:  fieldString(data, fieldDisplayName),
		PasswordHash: fieldString(data, fieldPasswordHash),
		Role:         domain.UserRole(fieldString(data, fieldUserRole)),
		CreatedAt:    fieldTime(data, fieldCreatedAt),
		LastLoginAt:  fieldTimePtr(data, fieldLastLogin),
		LoginCount:   fieldInt(data, fieldLoginCount),
	}
}
