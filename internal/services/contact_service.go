// Package services – ContactService
//
// Thin CRUD over the address book. Phones are stored exactly as entered;
// normalization happens at dispatch and matching time.
package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/zapvite/go-wa-backend/internal/domain"
	"github.com/zapvite/go-wa-backend/internal/phone"
	"github.com/zapvite/go-wa-backend/internal/repo"
)

// ContactService owns address-book entries.
type ContactService struct {
	DB *gorm.DB
}

// Create validates and stores a contact.
func (s *ContactService) Create(ctx context.Context, userID, name, rawPhone string) (*domain.Contact, error) {
	tr := otel.Tracer("services/ContactService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if phone.Digits(rawPhone) == "" {
		return nil, ErrInvalidPhone
	}

	c := &domain.Contact{UserID: userID, Name: name, Phone: strings.TrimSpace(rawPhone)}
	if err := repo.CreateContact(s.DB.WithContext(ctx), c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns a single owned contact.
func (s *ContactService) Get(ctx context.Context, userID, id string) (*domain.Contact, error) {
	c, err := repo.GetContact(s.DB.WithContext(ctx), id, userID)
	if err != nil {
		return nil, ErrContactNotFound
	}
	return c, nil
}

// List returns every contact for a user.
func (s *ContactService) List(ctx context.Context, userID string) ([]domain.Contact, error) {
	tr := otel.Tracer("services/ContactService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return repo.ListContacts(s.DB.WithContext(ctx), userID)
}

// Delete removes an owned contact.
func (s *ContactService) Delete(ctx context.Context, userID, id string) error {
	ok, err := repo.DeleteContact(s.DB.WithContext(ctx), id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrContactNotFound
	}
	return nil
}
