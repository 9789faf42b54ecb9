// Package services – DispatchService
//
// This file implements DispatchService, the component that drains due
// scheduled messages into the WhatsApp gateway. It is invoked periodically by
// the scheduler loop and directly by the send-now API.
//
// Duplicate suppression is layered: an in-process guard drops overlapping
// attempts inside one process, the optional Redis marker drops re-dispatch
// across restarts, and the store-level conditional claim is the final
// authority. Only a message that wins the claim is ever handed to the
// transport.
//
// Observability: all public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/zapvite/go-wa-backend/internal/cache"
	"github.com/zapvite/go-wa-backend/internal/dedup"
	"github.com/zapvite/go-wa-backend/internal/domain"
	"github.com/zapvite/go-wa-backend/internal/phone"
	"github.com/zapvite/go-wa-backend/internal/repo"
	"github.com/zapvite/go-wa-backend/internal/whatsapp"
)

// Transport is the slice of the gateway client the dispatcher needs.
type Transport interface {
	SendText(ctx context.Context, session, phone, content string) (string, error)
	SessionStatus(ctx context.Context, session string) (string, error)
}

// DispatchService owns the due-message drain and the manual send path.
type DispatchService struct {
	DB        *gorm.DB
	Transport Transport
	Guard     *dedup.Guard
	Cache     *cache.DispatchCache

	SessionPrefix      string
	DefaultCountryCode string

	// SendInterval paces sends inside one batch so the gateway is not
	// hammered. Zero disables pacing.
	SendInterval time.Duration

	// StaleClaimAfter bounds how long a message may sit in dispatching. A
	// claim whose process died before writing an outcome is invisible to
	// the due query, so each tick returns claims older than this to
	// scheduled. Zero means defaultStaleClaimAfter.
	StaleClaimAfter time.Duration

	// RetainSent keeps non-recurring messages after a successful send
	// instead of deleting them. Recurring messages are always retained
	// because they anchor their chain.
	RetainSent bool
}

// defaultStaleClaimAfter is the claim age after which DispatchDue assumes
// the claiming process is gone. Long enough to outlive any plausible
// in-flight gateway call.
const defaultStaleClaimAfter = 5 * time.Minute

// DispatchDue drains every currently due message, grouped per user so one
// readiness probe covers a whole group. Called on each scheduler tick.
func (s *DispatchService) DispatchDue(ctx context.Context) {
	tr := otel.Tracer("services/DispatchService")
	ctx, span := tr.Start(ctx, "DispatchDue")
	defer span.End()

	now := time.Now().UTC()

	staleAfter := s.StaleClaimAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleClaimAfter
	}
	if n, err := repo.ReclaimStaleDispatching(s.DB.WithContext(ctx), now.Add(-staleAfter)); err != nil {
		log.Warn().Err(err).Msg("dispatch: reclaiming stale claims failed")
	} else if n > 0 {
		log.Warn().Int64("reclaimed", n).Msg("dispatch: stale claims returned to schedule")
	}

	due, err := repo.ListDueMessages(s.DB.WithContext(ctx), now)
	if err != nil {
		log.Error().Err(err).Msg("dispatch: listing due messages")
		return
	}
	if len(due) == 0 {
		return
	}
	span.SetAttributes(attribute.Int("dispatch.due", len(due)))

	// due is ordered by user_id, so grouping is a single pass
	start := 0
	for i := 1; i <= len(due); i++ {
		if i == len(due) || due[i].UserID != due[start].UserID {
			s.dispatchForUser(ctx, due[start].UserID, due[start:i])
			start = i
		}
	}
}

// dispatchForUser probes the user's session once and, if ready, sends the
// group with pacing. A user whose session is down skips the whole group;
// their messages stay scheduled and the next tick retries.
func (s *DispatchService) dispatchForUser(ctx context.Context, userID string, batch []domain.Message) {
	session := whatsapp.SessionID(s.SessionPrefix, userID)

	status, err := s.Transport.SessionStatus(ctx, session)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("dispatch: session probe failed")
		dispatchSkippedTotal.WithLabelValues("probe_failed").Add(float64(len(batch)))
		return
	}

	// keep the mirror fresh regardless of outcome
	if err := repo.UpsertSession(s.DB.WithContext(ctx), userID, session, status, "", ""); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("dispatch: session mirror upsert failed")
	}

	if !whatsapp.IsReady(status) {
		log.Info().Str("user_id", userID).Str("status", status).Int("held", len(batch)).
			Msg("dispatch: session not ready, holding batch")
		dispatchSkippedTotal.WithLabelValues("session_not_ready").Add(float64(len(batch)))
		return
	}

	var lim *rate.Limiter
	if s.SendInterval > 0 {
		lim = rate.NewLimiter(rate.Every(s.SendInterval), 1)
	}
	for i := range batch {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return
			}
		}
		s.dispatchOne(ctx, &batch[i], session)
	}
}

// dispatchOne runs the full lifecycle for a single message: dedup fast
// paths, store claim, render, transport send, and outcome bookkeeping.
func (s *DispatchService) dispatchOne(ctx context.Context, m *domain.Message, session string) {
	tr := otel.Tracer("services/DispatchService")
	ctx, span := tr.Start(ctx, "dispatchOne",
		trace.WithAttributes(
			attribute.String("message.id", m.ID),
			attribute.String("user.id", m.UserID),
		),
	)
	defer span.End()

	if !s.Guard.Claim(m.ID) {
		dispatchSkippedTotal.WithLabelValues("in_flight").Inc()
		return
	}
	defer s.Guard.Release(m.ID)

	if hit, err := s.Cache.WasDispatched(ctx, m.ID); err != nil {
		log.Warn().Err(err).Str("message_id", m.ID).Msg("dispatch: cache check failed")
	} else if hit {
		dispatchSkippedTotal.WithLabelValues("cached").Inc()
		return
	}

	ok, err := repo.ClaimForDispatch(s.DB.WithContext(ctx), m.ID)
	if err != nil {
		log.Error().Err(err).Str("message_id", m.ID).Msg("dispatch: claim failed")
		return
	}
	if !ok {
		dispatchSkippedTotal.WithLabelValues("claim_lost").Inc()
		return
	}

	if m.Kind != domain.KindText {
		// stored but not dispatchable; do not burn retries on it
		s.fail(ctx, m, "unsupported kind")
		return
	}

	contact, err := repo.GetContact(s.DB.WithContext(ctx), m.ContactID, m.UserID)
	if err != nil {
		s.fail(ctx, m, "contact lookup failed")
		return
	}

	content := renderContent(m.Content, contact.Name)
	target := phone.Normalize(contact.Phone, s.DefaultCountryCode)
	if target == "" {
		s.fail(ctx, m, "contact has no usable phone")
		return
	}

	externalID, err := s.Transport.SendText(ctx, session, target, content)
	if err != nil {
		log.Error().Err(err).Str("message_id", m.ID).Msg("dispatch: transport send failed")
		s.fail(ctx, m, "transport error")
		return
	}

	sentAt := time.Now().UTC()
	// mark the cache first: if the status write below dies, the marker is
	// what stops the next tick from sending the same text again
	if err := s.Cache.MarkDispatched(ctx, m.ID, externalID, sentAt); err != nil {
		log.Warn().Err(err).Str("message_id", m.ID).Msg("dispatch: cache mark failed")
	}

	applied, err := repo.MarkSent(s.DB.WithContext(ctx), m.ID, externalID, sentAt)
	if err != nil {
		log.Error().Err(err).Str("message_id", m.ID).Msg("dispatch: recording sent failed")
		// hand the row back to the schedule; within the marker's TTL the
		// cache keeps the retry from sending the text a second time
		if relErr := repo.ReleaseClaim(s.DB.WithContext(ctx), m.ID); relErr != nil {
			log.Error().Err(relErr).Str("message_id", m.ID).Msg("dispatch: releasing claim failed")
		}
		return
	}
	if !applied {
		// a webhook ACK beat us past dispatching; the send still happened
		log.Debug().Str("message_id", m.ID).Msg("dispatch: sent state already advanced")
	}
	messagesSentTotal.Inc()
	log.Info().Str("message_id", m.ID).Str("user_id", m.UserID).
		Str("external_id", externalID).Msg("dispatch: message sent")

	s.afterSend(ctx, m)
}

// fail moves a message into failed, respecting the pre-sent guard.
func (s *DispatchService) fail(ctx context.Context, m *domain.Message, reason string) {
	applied, err := repo.MarkFailed(s.DB.WithContext(ctx), m.ID)
	if err != nil {
		log.Error().Err(err).Str("message_id", m.ID).Msg("dispatch: recording failure failed")
		return
	}
	if applied {
		messagesFailedTotal.Inc()
		log.Warn().Str("message_id", m.ID).Str("reason", reason).Msg("dispatch: message failed")
	}
}

// afterSend applies recurrence expansion and the retention policy.
func (s *DispatchService) afterSend(ctx context.Context, m *domain.Message) {
	if m.Recurrence == domain.RecurrenceMonthly && m.ScheduledAt != nil {
		next := nextMonthlyOccurrence(*m.ScheduledAt)
		clone := &domain.Message{
			UserID:            m.UserID,
			ContactID:         m.ContactID,
			Content:           m.Content,
			Kind:              m.Kind,
			Status:            domain.StatusScheduled,
			ScheduledAt:       &next,
			Recurrence:        domain.RecurrenceMonthly,
			OriginalMessageID: m.ChainRoot(),
			IsRecurringClone:  true,
		}
		if err := repo.CreateMessage(s.DB.WithContext(ctx), clone); err != nil {
			log.Error().Err(err).Str("message_id", m.ID).Msg("dispatch: scheduling next occurrence failed")
		} else {
			log.Info().Str("message_id", m.ID).Str("next_id", clone.ID).
				Time("next_at", next).Msg("dispatch: next occurrence scheduled")
		}
		return
	}

	if !s.RetainSent {
		if err := repo.DeleteMessageByID(s.DB.WithContext(ctx), m.ID); err != nil {
			log.Warn().Err(err).Str("message_id", m.ID).Msg("dispatch: retention delete failed")
		}
	}
}

// SendNow dispatches a single message immediately, bypassing the schedule.
// The message must still be in a pre-sent state and the user's session must
// be ready.
func (s *DispatchService) SendNow(ctx context.Context, userID, messageID string) error {
	tr := otel.Tracer("services/DispatchService")
	ctx, span := tr.Start(ctx, "SendNow",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	m, err := repo.GetMessage(s.DB.WithContext(ctx), messageID, userID)
	if err != nil {
		return ErrMessageNotFound
	}
	if domain.StatusRank(m.Status) >= domain.StatusRank(domain.StatusSent) || m.Status == domain.StatusFailed {
		return ErrNotSendable
	}

	session := whatsapp.SessionID(s.SessionPrefix, userID)
	status, err := s.Transport.SessionStatus(ctx, session)
	if err != nil || !whatsapp.IsReady(status) {
		return ErrSessionNotReady
	}
	if err := repo.UpsertSession(s.DB.WithContext(ctx), userID, session, status, "", ""); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("send-now: session mirror upsert failed")
	}

	s.dispatchOne(ctx, m, session)
	return nil
}

// SendNowBatch pushes freshly authored due-now messages through the same
// probe-once, paced path the scheduler tick uses, so a multi-recipient
// request cannot hammer the gateway or probe the session once per message.
// Best effort: rows it cannot load or deliver are already due, so the next
// tick retries them.
func (s *DispatchService) SendNowBatch(ctx context.Context, userID string, messageIDs []string) {
	tr := otel.Tracer("services/DispatchService")
	ctx, span := tr.Start(ctx, "SendNowBatch",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("batch.size", len(messageIDs)),
		),
	)
	defer span.End()

	batch := make([]domain.Message, 0, len(messageIDs))
	for _, id := range messageIDs {
		m, err := repo.GetMessage(s.DB.WithContext(ctx), id, userID)
		if err != nil {
			log.Warn().Err(err).Str("message_id", id).Msg("send-now: message lookup failed")
			continue
		}
		batch = append(batch, *m)
	}
	if len(batch) == 0 {
		return
	}
	s.dispatchForUser(ctx, userID, batch)
}

// renderContent substitutes the contact placeholders in authored text.
func renderContent(content, contactName string) string {
	return strings.NewReplacer(
		"{name}", contactName,
		"{nome}", contactName,
	).Replace(content)
}

// nextMonthlyOccurrence advances a timestamp by one calendar month, clamping
// the day so Jan 31 lands on Feb 28/29 instead of spilling into March.
func nextMonthlyOccurrence(t time.Time) time.Time {
	y, m, d := t.Date()
	firstOfNext := time.Date(y, m, 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	if last := daysIn(firstOfNext.Year(), firstOfNext.Month()); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
