// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the mirrored
// WhatsAppSession model.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zapvite/go-wa-backend/internal/domain"
)

// UpsertSession refreshes the mirrored session state for a user, creating
// the row on first sight. Empty phone/profile values do not clobber
// previously learned ones; status always wins because it reflects the most
// recent push.
func UpsertSession(db *gorm.DB, userID, sessionID, status, phone, profileName string) error {
	now := time.Now().UTC()
	s := domain.WhatsAppSession{
		ID:          uuid.NewString(),
		UserID:      userID,
		SessionID:   sessionID,
		Status:      status,
		Phone:       phone,
		ProfileName: profileName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	assignments := map[string]any{
		"session_id": sessionID,
		"status":     status,
		"updated_at": now,
	}
	if phone != "" {
		assignments["phone"] = phone
	}
	if profileName != "" {
		assignments["profile_name"] = profileName
	}

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&s).Error
}

// GetSessionByUser fetches the mirrored session for a user.
func GetSessionByUser(db *gorm.DB, userID string) (*domain.WhatsAppSession, error) {
	var s domain.WhatsAppSession
	if err := db.Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns all mirrored sessions.
func ListSessions(db *gorm.DB) ([]domain.WhatsAppSession, error) {
	var out []domain.WhatsAppSession
	err := db.Order("user_id ASC").Find(&out).Error
	return out, err
}
