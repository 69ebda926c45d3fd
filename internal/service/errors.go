package service

import (
	"errors"

	"github.com/Abdin71/supportflow-ai/internal/domain"
	"github.com/Abdin71/supportflow-ai/internal/repository"
	apperrors "github.com/Abdin71/supportflow-ai/pkg/util"
)

func mapNotFound(err error, resource string, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	return err
}

func requireIdentity(identity *domain.Identity) error {
	if identity == nil || identity.ID == "" {
		return apperrors.NewUnauthorized("authentication required")
	}
	return nil
}

// canAccessTicket reports whether identity may read and reply to ticket.
func canAccessTicket(identity *domain.Identity, ticket *domain.Ticket) bool {
	return identity.Role.Privileged() || ticket.RequesterID == identity.ID
}
