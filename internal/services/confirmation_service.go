// Package services – ConfirmationService
//
// Authoring and retrieval of yes/no confirmations. Resolution is owned by
// the webhook matcher; nothing here ever moves a confirmation out of
// pending.
package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/zapvite/go-wa-backend/internal/domain"
	"github.com/zapvite/go-wa-backend/internal/phone"
	"github.com/zapvite/go-wa-backend/internal/repo"
)

// ConfirmationService owns confirmation authoring and listings.
type ConfirmationService struct {
	DB *gorm.DB

	MaxContentRunes int
}

// ConfirmationInput is one confirmation authoring request.
type ConfirmationInput struct {
	ContactName    string
	ContactPhone   string
	EventDate      time.Time
	MessageContent string
}

// Create validates and stores a pending confirmation.
func (s *ConfirmationService) Create(ctx context.Context, userID string, in ConfirmationInput) (*domain.Confirmation, error) {
	tr := otel.Tracer("services/ConfirmationService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	in.ContactName = strings.TrimSpace(in.ContactName)
	in.MessageContent = strings.TrimSpace(in.MessageContent)
	if in.ContactName == "" {
		return nil, ErrEmptyName
	}
	if in.MessageContent == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(in.MessageContent) > s.MaxContentRunes {
		return nil, ErrTooLong
	}
	if phone.Digits(in.ContactPhone) == "" {
		return nil, ErrInvalidPhone
	}

	c := &domain.Confirmation{
		UserID:         userID,
		ContactName:    in.ContactName,
		ContactPhone:   strings.TrimSpace(in.ContactPhone),
		EventDate:      in.EventDate,
		MessageContent: in.MessageContent,
	}
	if err := repo.CreateConfirmation(s.DB.WithContext(ctx), c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns a single owned confirmation.
func (s *ConfirmationService) Get(ctx context.Context, userID, id string) (*domain.Confirmation, error) {
	c, err := repo.GetConfirmation(s.DB.WithContext(ctx), id, userID)
	if err != nil {
		return nil, ErrConfirmationNotFound
	}
	return c, nil
}

// ListPage returns paginated confirmations for a user, newest first.
func (s *ConfirmationService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Confirmation, int64, error) {
	tr := otel.Tracer("services/ConfirmationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountConfirmations(s.DB.WithContext(ctx), userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Confirmation{}, 0, nil
	}
	items, err := repo.ListConfirmationsPage(s.DB.WithContext(ctx), userID, offset, pageSize)
	return items, total, err
}

// ListPending returns the unresolved confirmations for a user, oldest first.
func (s *ConfirmationService) ListPending(ctx context.Context, userID string) ([]domain.Confirmation, error) {
	return repo.ListPendingConfirmations(s.DB.WithContext(ctx), userID)
}
