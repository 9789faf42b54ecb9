// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Contact
// model.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zapvite/go-wa-backend/internal/domain"
)

// CreateContact inserts a new contact row.
func CreateContact(db *gorm.DB, c *domain.Contact) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	return db.Create(c).Error
}

// GetContact fetches a contact by id scoped to its owner.
func GetContact(db *gorm.DB, id, userID string) (*domain.Contact, error) {
	var c domain.Contact
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts returns all contacts for a user, name order.
func ListContacts(db *gorm.DB, userID string) ([]domain.Contact, error) {
	var out []domain.Contact
	err := db.
		Where("user_id = ?", userID).
		Order("name ASC, id ASC").
		Find(&out).Error
	return out, err
}

// DeleteContact removes a contact owned by userID, reporting whether a row
// was deleted.
func DeleteContact(db *gorm.DB, id, userID string) (bool, error) {
	res := db.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Contact{})
	return res.RowsAffected == 1, res.Error
}
