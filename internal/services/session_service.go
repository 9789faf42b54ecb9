// Package services – SessionService
//
// Read side of the mirrored WhatsApp session state. The mirror is refreshed
// opportunistically wherever the gateway is contacted; this service adds an
// on-demand probe so the API can show a reasonably fresh view.
package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/zapvite/go-wa-backend/internal/domain"
	"github.com/zapvite/go-wa-backend/internal/repo"
	"github.com/zapvite/go-wa-backend/internal/whatsapp"
)

// SessionService exposes the mirrored gateway session state.
type SessionService struct {
	DB        *gorm.DB
	Transport Transport

	SessionPrefix string
}

// Status returns the session mirror for a user. When the gateway answers a
// live probe the mirror is refreshed first; when it does not, the last known
// state is served as-is.
func (s *SessionService) Status(ctx context.Context, userID string) (*domain.WhatsAppSession, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Status",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	session := whatsapp.SessionID(s.SessionPrefix, userID)
	if s.Transport != nil {
		if status, err := s.Transport.SessionStatus(ctx, session); err == nil {
			if err := repo.UpsertSession(s.DB.WithContext(ctx), userID, session, status, "", ""); err != nil {
				log.Warn().Err(err).Str("user_id", userID).Msg("session: mirror upsert failed")
			}
		} else {
			log.Debug().Err(err).Str("user_id", userID).Msg("session: live probe failed, serving mirror")
		}
	}

	mirror, err := repo.GetSessionByUser(s.DB.WithContext(ctx), userID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	return mirror, nil
}
