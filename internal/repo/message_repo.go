// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including the conditional status transitions that make dispatch
// claims and delivery-ACK application safe under concurrency.
//
// Every status mutation here is a compare-and-swap: the UPDATE carries the
// set of admissible current statuses in its WHERE clause and the caller
// learns from RowsAffected whether the transition applied. That turns the
// race between the dispatch failure path and a concurrent ACK into a
// defined, testable contract instead of a read-then-write gamble.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zapvite/go-wa-backend/internal/domain"
)

// CreateMessage inserts a new message row, assigning an ID and defaulting
// OriginalMessageID to self (chain root) when unset.
func CreateMessage(db *gorm.DB, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.OriginalMessageID == "" {
		m.OriginalMessageID = m.ID
	}
	if m.Kind == "" {
		m.Kind = domain.KindText
	}
	if m.Recurrence == "" {
		m.Recurrence = domain.RecurrenceNone
	}
	m.CreatedAt = time.Now().UTC()
	return db.Create(m).Error
}

// GetMessage fetches a message by id scoped to its owner.
func GetMessage(db *gorm.DB, id, userID string) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListDueMessages returns every scheduled message whose scheduledAt has
// passed, ordered so that per-user grouping is deterministic.
func ListDueMessages(db *gorm.DB, now time.Time) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", domain.StatusScheduled, now).
		Order("user_id ASC, scheduled_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE user_id = ?", userID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt DESC, ID ASC).
func ListMessagesPage(db *gorm.DB, userID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("user_id = ?", userID).
		Order("created_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DeleteMessage removes a message owned by userID. It reports whether a row
// was actually deleted.
func DeleteMessage(db *gorm.DB, id, userID string) (bool, error) {
	res := db.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Message{})
	return res.RowsAffected == 1, res.Error
}

// DeleteMessageByID removes a message regardless of owner; used by the
// retention policy after a successful send.
func DeleteMessageByID(db *gorm.DB, id string) error {
	return db.Where("id = ?", id).Delete(&domain.Message{}).Error
}

// ClaimForDispatch atomically moves a message from a pre-send state into
// dispatching. Exactly one concurrent caller can win the claim; everyone
// else sees false.
func ClaimForDispatch(db *gorm.DB, id string) (bool, error) {
	res := db.Model(&domain.Message{}).
		Where("id = ? AND status IN ?", id, []string{domain.StatusPending, domain.StatusScheduled}).
		Update("status", domain.StatusDispatching)
	return res.RowsAffected == 1, res.Error
}

// ReleaseClaim returns a dispatching message to scheduled so the next tick
// can pick it up again. Used when a claim was taken but the send could not
// be attempted or its outcome could not be recorded.
func ReleaseClaim(db *gorm.DB, id string) error {
	return db.Model(&domain.Message{}).
		Where("id = ? AND status = ?", id, domain.StatusDispatching).
		Update("status", domain.StatusScheduled).Error
}

// ReclaimStaleDispatching returns every dispatching row whose last update is
// at or before cutoff to scheduled, reporting how many rows moved. A claim is
// orphaned when its process dies between ClaimForDispatch and the outcome
// write; the due query never selects dispatching rows, so without this sweep
// an orphaned row would never be attempted again.
func ReclaimStaleDispatching(db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.Model(&domain.Message{}).
		Where("status = ? AND updated_at <= ?", domain.StatusDispatching, cutoff).
		Update("status", domain.StatusScheduled)
	return res.RowsAffected, res.Error
}

// MarkSent records a successful transport send: dispatching → sent, with
// sentAt and the transport-assigned external id. An empty id leaves the
// column NULL, so ACK correlation is impossible for this row.
func MarkSent(db *gorm.DB, id, externalID string, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":  domain.StatusSent,
		"sent_at": at,
	}
	if externalID != "" {
		updates["external_id"] = externalID
	}
	res := db.Model(&domain.Message{}).
		Where("id = ? AND status = ?", id, domain.StatusDispatching).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// MarkFailed moves a message into failed, but only from a pre-sent state.
// A message that a concurrent webhook already advanced to sent or beyond is
// left untouched.
func MarkFailed(db *gorm.DB, id string) (bool, error) {
	res := db.Model(&domain.Message{}).
		Where("id = ? AND status IN ?", id, domain.PreSentStatuses).
		Updates(map[string]any{"status": domain.StatusFailed})
	return res.RowsAffected == 1, res.Error
}

// FindByExternalID looks a message up by its transport-assigned id, the
// sole correlation key for delivery ACKs.
func FindByExternalID(db *gorm.DB, externalID string) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("external_id = ?", externalID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// AdvanceDelivery applies a delivery-progress transition (sent, delivered,
// read) to the message with the given external id. The transition is a CAS
// over the forward status order: a message already at or past the target
// status is left unchanged and the call reports applied=false with no
// error, which makes repeated ACKs idempotent.
//
// Earlier timestamps are backfilled: an out-of-order "read" also stamps
// deliveredAt/sentAt when those are still NULL.
func AdvanceDelivery(db *gorm.DB, externalID, target string, at time.Time) (bool, error) {
	var from []string
	updates := map[string]any{"status": target}

	switch target {
	case domain.StatusSent:
		from = []string{domain.StatusDispatching}
		updates["sent_at"] = gorm.Expr("COALESCE(sent_at, ?)", at)
	case domain.StatusDelivered:
		from = []string{domain.StatusDispatching, domain.StatusSent}
		updates["sent_at"] = gorm.Expr("COALESCE(sent_at, ?)", at)
		updates["delivered_at"] = at
	case domain.StatusRead:
		from = []string{domain.StatusDispatching, domain.StatusSent, domain.StatusDelivered}
		updates["sent_at"] = gorm.Expr("COALESCE(sent_at, ?)", at)
		updates["delivered_at"] = gorm.Expr("COALESCE(delivered_at, ?)", at)
		updates["read_at"] = at
	default:
		return false, nil
	}

	res := db.Model(&domain.Message{}).
		Where("external_id = ? AND status IN ?", externalID, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}
