// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns message authoring. A send request fans out into one message row per
// target contact; rows authored without a schedule are stamped due-now and
// handed to the dispatcher as a single paced batch, falling back to the
// scheduler tick if the session is down.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include user identifiers and pagination parameters where applicable.
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
	"github.com/zapvite/go-wa-backend/internal/repo"
)

// NowSender hands freshly authored messages to the dispatcher as one batch,
// which probes the session once and paces the sends. Implemented by
// DispatchService.
type NowSender interface {
	SendNowBatch(ctx context.Context, userID string, messageIDs []string)
}

// MessageService coordinates message authoring and retrieval.
type MessageService struct {
	DB     *gorm.DB
	Sender NowSender

	MaxContentRunes int
}

// SendInput is one authoring request, possibly fanning out to many contacts.
type SendInput struct {
	ContactIDs  []string
	Content     string
	Kind        string
	ScheduledAt *time.Time
	Recurrence  string
}

// Send validates the request and creates one message row per contact. For
// unscheduled text messages it then asks the dispatcher for an immediate
// attempt; a not-ready session is not an authoring error because the rows
// stay due and the next tick retries them.
func (s *MessageService) Send(ctx context.Context, userID string, in SendInput) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("recipients", len(in.ContactIDs)),
		),
	)
	defer span.End()

	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(in.Content) > s.MaxContentRunes {
		return nil, ErrTooLong
	}
	if len(in.ContactIDs) == 0 {
		return nil, ErrNoRecipients
	}
	if in.Kind == "" {
		in.Kind = domain.KindText
	}
	if in.Kind != domain.KindText && in.Kind != domain.KindMedia {
		return nil, ErrInvalidKind
	}
	if in.Recurrence == "" {
		in.Recurrence = domain.RecurrenceNone
	}
	if in.Recurrence != domain.RecurrenceNone && in.Recurrence != domain.RecurrenceMonthly {
		return nil, ErrInvalidRecurrence
	}

	now := time.Now().UTC()
	if in.ScheduledAt != nil && !in.ScheduledAt.After(now) {
		return nil, ErrInvalidSchedule
	}
	if in.Recurrence == domain.RecurrenceMonthly && in.ScheduledAt == nil {
		return nil, ErrInvalidSchedule
	}

	// resolve all contacts up front so a bad id rejects the whole request
	contacts := make([]*domain.Contact, 0, len(in.ContactIDs))
	for _, cid := range in.ContactIDs {
		c, err := repo.GetContact(s.DB.WithContext(ctx), cid, userID)
		if err != nil {
			return nil, ErrContactNotFound
		}
		contacts = append(contacts, c)
	}

	created := make([]domain.Message, 0, len(contacts))
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range contacts {
			m := &domain.Message{
				UserID:     userID,
				ContactID:  c.ID,
				Content:    in.Content,
				Kind:       in.Kind,
				Recurrence: in.Recurrence,
			}
			switch {
			case in.Kind == domain.KindMedia:
				// stored only; the dispatcher never picks these up
				m.Status = domain.StatusPending
			case in.ScheduledAt != nil:
				at := in.ScheduledAt.UTC()
				m.Status = domain.StatusScheduled
				m.ScheduledAt = &at
			default:
				// due immediately; the tick is the retry net
				at := now
				m.Status = domain.StatusScheduled
				m.ScheduledAt = &at
			}
			if err := repo.CreateMessage(tx, m); err != nil {
				return err
			}
			created = append(created, *m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if in.ScheduledAt == nil && in.Kind == domain.KindText && s.Sender != nil {
		ids := make([]string, len(created))
		for i := range created {
			ids[i] = created[i].ID
		}
		// one paced batch; a down session is not an authoring error because
		// the rows are already due and the next tick retries them
		s.Sender.SendNowBatch(ctx, userID, ids)
	}
	return created, nil
}

// Get returns a single owned message.
func (s *MessageService) Get(ctx context.Context, userID, id string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("message.id", id), attribute.String("user.id", userID)),
	)
	defer span.End()

	m, err := repo.GetMessage(s.DB.WithContext(ctx), id, userID)
	if err != nil {
		return nil, ErrMessageNotFound
	}
	return m, nil
}

// ListPage returns paginated messages for a user, newest first.
func (s *MessageService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
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

	total, err := repo.CountMessages(s.DB.WithContext(ctx), userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), userID, offset, pageSize)
	return items, total, err
}

// Delete removes an owned message.
func (s *MessageService) Delete(ctx context.Context, userID, id string) error {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("message.id", id), attribute.String("user.id", userID)),
	)
	defer span.End()

	ok, err := repo.DeleteMessage(s.DB.WithContext(ctx), id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMessageNotFound
	}
	return nil
}
