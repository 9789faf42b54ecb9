// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Confirmation model.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zapvite/go-wa-backend/internal/domain"
)

// CreateConfirmation inserts a pending confirmation row.
func CreateConfirmation(db *gorm.DB, c *domain.Confirmation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = domain.ConfirmationPending
	}
	c.CreatedAt = time.Now().UTC()
	return db.Create(c).Error
}

// GetConfirmation fetches a confirmation by id scoped to its owner.
func GetConfirmation(db *gorm.DB, id, userID string) (*domain.Confirmation, error) {
	var c domain.Confirmation
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListPendingConfirmations returns every pending confirmation for a user,
// oldest first so the matcher resolves the longest-waiting one on ties.
func ListPendingConfirmations(db *gorm.DB, userID string) ([]domain.Confirmation, error) {
	var out []domain.Confirmation
	err := db.
		Where("user_id = ? AND status = ?", userID, domain.ConfirmationPending).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountConfirmations uses a raw COUNT so a missing table surfaces as an error.
func CountConfirmations(db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM confirmations WHERE user_id = ?", userID).Scan(&total).Error
	return total, err
}

// ListConfirmationsPage returns a paginated slice ordered (CreatedAt DESC, ID ASC).
func ListConfirmationsPage(db *gorm.DB, userID string, offset, limit int) ([]domain.Confirmation, error) {
	var out []domain.Confirmation
	err := db.
		Where("user_id = ?", userID).
		Order("created_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ResolveConfirmation moves a pending confirmation to the given verdict
// status, recording the raw reply text and timestamp. The transition is a
// CAS from pending: an already-resolved confirmation is left untouched and
// the call reports applied=false.
func ResolveConfirmation(db *gorm.DB, id, status, response string, at time.Time) (bool, error) {
	res := db.Model(&domain.Confirmation{}).
		Where("id = ? AND status = ?", id, domain.ConfirmationPending).
		Updates(map[string]any{
			"status":       status,
			"response":     response,
			"responded_at": at,
		})
	return res.RowsAffected == 1, res.Error
}
