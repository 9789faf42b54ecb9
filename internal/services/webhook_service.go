// Package services – WebhookService
//
// This file implements WebhookService, the ingest side of the gateway
// integration. Every inbound event is recorded in the in-memory ring for
// inspection and then routed by kind: session status pushes refresh the
// mirror, delivery ACKs advance message lifecycles, and inbound messages
// feed the confirmation matcher.
//
// Ingestion never returns an error to the gateway: a malformed or
// unattributable event is counted, logged, and dropped so the gateway does
// not retry-loop on our parsing.
package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/zapvite/go-wa-backend/internal/domain"
	"github.com/zapvite/go-wa-backend/internal/events"
	"github.com/zapvite/go-wa-backend/internal/phone"
	"github.com/zapvite/go-wa-backend/internal/reply"
	"github.com/zapvite/go-wa-backend/internal/repo"
	"github.com/zapvite/go-wa-backend/internal/whatsapp"
)

// InboundEvent is one webhook delivery from the gateway.
type InboundEvent struct {
	Event   string          `json:"event"`
	Session string          `json:"session"`
	Payload json.RawMessage `json:"payload"`
}

// WebhookService routes inbound gateway events.
type WebhookService struct {
	DB         *gorm.DB
	Ring       *events.Ring
	Classifier *reply.Classifier

	SessionPrefix      string
	DefaultCountryCode string
}

// ackTargets maps gateway ACK codes onto lifecycle statuses. Codes outside
// the map (errors, pending, played) are ignored.
var ackTargets = map[int]string{
	1: domain.StatusSent,
	2: domain.StatusDelivered,
	3: domain.StatusRead,
}

// Ingest records and routes one event. Unknown kinds are kept in the ring
// but otherwise ignored.
func (s *WebhookService) Ingest(ctx context.Context, ev InboundEvent) {
	tr := otel.Tracer("services/WebhookService")
	ctx, span := tr.Start(ctx, "Ingest",
		trace.WithAttributes(
			attribute.String("event", ev.Event),
			attribute.String("session", ev.Session),
		),
	)
	defer span.End()

	kind := normalizeEventKind(ev.Event)
	webhookEventsTotal.WithLabelValues(kind).Inc()
	if s.Ring != nil {
		s.Ring.Add(events.Event{
			Event:      kind,
			Session:    ev.Session,
			Payload:    ev.Payload,
			ReceivedAt: time.Now().UTC(),
		})
	}

	switch kind {
	case "status":
		s.handleStatus(ctx, ev.Session, ev.Payload)
	case "ack":
		s.handleAck(ctx, ev.Payload)
	case "message":
		s.handleMessage(ctx, ev.Session, ev.Payload)
	default:
		log.Debug().Str("event", kind).Str("session", ev.Session).Msg("webhook: ignoring event kind")
	}
}

// normalizeEventKind folds gateway spellings ("onack", "onMessage",
// "status-find") onto the three kinds this service routes.
func normalizeEventKind(event string) string {
	k := strings.ToLower(strings.TrimSpace(event))
	k = strings.TrimPrefix(k, "on")
	switch k {
	case "ack", "message", "status":
		return k
	case "status-find", "statusfind", "session-status":
		return "status"
	}
	return k
}

type statusPayload struct {
	Status      string `json:"status"`
	Phone       string `json:"phone"`
	ProfileName string `json:"profileName"`
}

// handleStatus refreshes the mirrored session row for the event's owner.
func (s *WebhookService) handleStatus(ctx context.Context, session string, payload json.RawMessage) {
	owner, ok := whatsapp.OwnerFromSession(s.SessionPrefix, session)
	if !ok {
		log.Warn().Str("session", session).Msg("webhook: status event with unattributable session")
		return
	}
	var p statusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn().Err(err).Str("session", session).Msg("webhook: undecodable status payload")
		return
	}
	if err := repo.UpsertSession(s.DB.WithContext(ctx), owner, session, p.Status, p.Phone, p.ProfileName); err != nil {
		log.Error().Err(err).Str("session", session).Msg("webhook: session mirror upsert failed")
	}
}

type ackPayload struct {
	ID  json.RawMessage `json:"id"`
	Ack int             `json:"ack"`
}

// handleAck correlates a delivery ACK to a stored message by external id and
// advances its lifecycle. Unmatched or stale ACKs are dropped without error;
// re-delivered ACKs are naturally idempotent through the store CAS.
func (s *WebhookService) handleAck(ctx context.Context, payload json.RawMessage) {
	var p ackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn().Err(err).Msg("webhook: undecodable ack payload")
		return
	}
	target, ok := ackTargets[p.Ack]
	if !ok {
		return
	}
	ref := whatsapp.AckRef(compositeID(p.ID))
	if ref == "" {
		acksDroppedTotal.Inc()
		return
	}

	applied, err := repo.AdvanceDelivery(s.DB.WithContext(ctx), ref, target, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Str("external_id", ref).Msg("webhook: applying ack failed")
		return
	}
	if !applied {
		// either unknown external id or an already-passed status; both are
		// fine, but the former is worth counting
		if _, err := repo.FindByExternalID(s.DB.WithContext(ctx), ref); err != nil {
			acksDroppedTotal.Inc()
			log.Debug().Str("external_id", ref).Int("ack", p.Ack).Msg("webhook: ack for unknown message")
		}
		return
	}
	acksAppliedTotal.WithLabelValues(target).Inc()
	log.Info().Str("external_id", ref).Str("status", target).Msg("webhook: delivery ack applied")
}

// compositeID accepts the gateway's two id spellings: a bare string or an
// object carrying a "_serialized" field.
func compositeID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Serialized string `json:"_serialized"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Serialized
	}
	return ""
}

type messagePayload struct {
	Body       string          `json:"body"`
	Text       string          `json:"text"`
	Caption    string          `json:"caption"`
	From       string          `json:"from"`
	Author     string          `json:"author"`
	RealNumber string          `json:"realNumber"`
	FromMe     bool            `json:"fromMe"`
	ID         json.RawMessage `json:"id"`
	Ack        *int            `json:"ack"`
}

// handleMessage routes an inbound message. Self-echoes carrying an ACK code
// feed the delivery pipeline; genuine inbound text feeds the confirmation
// matcher.
func (s *WebhookService) handleMessage(ctx context.Context, session string, payload json.RawMessage) {
	var p messagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn().Err(err).Str("session", session).Msg("webhook: undecodable message payload")
		return
	}

	if p.FromMe {
		if p.Ack != nil {
			b, _ := json.Marshal(ackPayload{ID: p.ID, Ack: *p.Ack})
			s.handleAck(ctx, b)
		}
		return
	}

	owner, ok := whatsapp.OwnerFromSession(s.SessionPrefix, session)
	if !ok {
		log.Warn().Str("session", session).Msg("webhook: message event with unattributable session")
		return
	}

	text := firstNonEmpty(p.Body, p.Text, p.Caption)
	if strings.TrimSpace(text) == "" {
		return
	}
	senderRaw := firstNonEmpty(p.RealNumber, p.Author, p.From)
	s.matchConfirmation(ctx, owner, senderRaw, text)
}

// matchConfirmation classifies an inbound reply and resolves the pending
// confirmation it belongs to. With a single pending confirmation the sender
// match is skipped entirely; with several, the normalized phone comparator
// picks the oldest matching one.
func (s *WebhookService) matchConfirmation(ctx context.Context, owner, senderRaw, text string) {
	verdict, ok := s.Classifier.Classify(text)
	if !ok {
		log.Debug().Str("user_id", owner).Msg("webhook: inbound reply matched no keyword")
		return
	}

	pending, err := repo.ListPendingConfirmations(s.DB.WithContext(ctx), owner)
	if err != nil {
		log.Error().Err(err).Str("user_id", owner).Msg("webhook: listing pending confirmations failed")
		return
	}
	if len(pending) == 0 {
		return
	}

	var chosen *domain.Confirmation
	var strategy string
	if len(pending) == 1 {
		chosen = &pending[0]
		strategy = "single_pending"
	} else {
		sender := phone.Normalize(senderRaw, s.DefaultCountryCode)
		for i := range pending {
			stored := phone.Normalize(pending[i].ContactPhone, s.DefaultCountryCode)
			if st, match := phone.Match(stored, sender, s.DefaultCountryCode); match {
				chosen = &pending[i]
				strategy = st
				break
			}
		}
	}
	if chosen == nil {
		log.Debug().Str("user_id", owner).Msg("webhook: reply matched no pending confirmation")
		return
	}

	status := domain.ConfirmationConfirmed
	if verdict == reply.Negative {
		status = domain.ConfirmationDenied
	}
	applied, err := repo.ResolveConfirmation(s.DB.WithContext(ctx), chosen.ID, status, text, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Str("confirmation_id", chosen.ID).Msg("webhook: resolving confirmation failed")
		return
	}
	if !applied {
		return
	}
	confirmationsResolvedTotal.WithLabelValues(status).Inc()
	log.Info().Str("confirmation_id", chosen.ID).Str("user_id", owner).
		Str("status", status).Str("match", strategy).Msg("webhook: confirmation resolved")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
