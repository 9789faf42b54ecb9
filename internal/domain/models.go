// Package domain defines the persistence models for outbound messages,
// contacts, confirmations, and the mirrored WhatsApp session state. These
// types are mapped with GORM and form the core data layer of the scheduling
// backend.
package domain

import "time"

// Message statuses. A message only ever moves forward along
// pending/scheduled → dispatching → sent → delivered → read, or sideways
// into failed from any pre-sent state. StatusRank encodes that order.
const (
	StatusPending     = "pending"
	StatusScheduled   = "scheduled"
	StatusDispatching = "dispatching"
	StatusSent        = "sent"
	StatusDelivered   = "delivered"
	StatusRead        = "read"
	StatusFailed      = "failed"
)

// Recurrence values for Message.Recurrence.
const (
	RecurrenceNone    = "none"
	RecurrenceMonthly = "monthly"
)

// Message kinds. Media messages are stored but never dispatched by this
// service; only text is supported end to end.
const (
	KindText  = "text"
	KindMedia = "media"
)

// Confirmation statuses.
const (
	ConfirmationPending   = "pending"
	ConfirmationConfirmed = "confirmed"
	ConfirmationDenied    = "denied"
)

// PreSentStatuses are the states from which a message may still transition
// to failed. Anything at or past sent is owned by the delivery pipeline.
var PreSentStatuses = []string{StatusPending, StatusScheduled, StatusDispatching}

// statusRank orders the delivery lifecycle. failed is deliberately absent:
// it is a terminal side state, not part of the forward chain.
var statusRank = map[string]int{
	StatusPending:     0,
	StatusScheduled:   0,
	StatusDispatching: 1,
	StatusSent:        2,
	StatusDelivered:   3,
	StatusRead:        4,
}

// StatusRank returns the position of a status in the forward delivery order.
// Unknown statuses (including failed) rank as -1.
func StatusRank(s string) int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Message represents one outbound WhatsApp message owned by a user. Bulk
// sends fan out into one row per target contact.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identifier of the owning user; indexed for per-user listings.
//   - ContactID: the target contact.
//   - Status / ScheduledAt: drive the due-message query; composite index.
//   - ExternalID: transport-assigned id, set on sent, unique once set. It is
//     the sole correlation key for delivery ACKs.
//   - OriginalMessageID: root of a recurrence chain; equals ID on the root.
//   - IsRecurringClone: true on messages synthesized by recurrence expansion.
type Message struct {
	ID                string     `json:"id"                  gorm:"type:char(36);primaryKey"`
	UserID            string     `json:"user_id"             gorm:"type:varchar(64);not null;index:idx_user_msgs"`
	ContactID         string     `json:"contact_id"          gorm:"type:char(36);not null;index"`
	Content           string     `json:"content"             gorm:"type:text;not null"`
	Kind              string     `json:"kind"                gorm:"type:varchar(16);not null;default:'text'"`
	Status            string     `json:"status"              gorm:"type:varchar(16);not null;index:idx_due,priority:1"`
	ScheduledAt       *time.Time `json:"scheduled_at,omitempty" gorm:"index:idx_due,priority:2"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	ReadAt            *time.Time `json:"read_at,omitempty"`
	ExternalID        *string    `json:"external_id,omitempty" gorm:"type:varchar(128);uniqueIndex"`
	Recurrence        string     `json:"recurrence"          gorm:"type:varchar(16);not null;default:'none'"`
	OriginalMessageID string     `json:"original_message_id" gorm:"type:char(36);index"`
	IsRecurringClone  bool       `json:"is_recurring_clone"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// ChainRoot returns the id of the recurrence chain this message belongs to.
func (m *Message) ChainRoot() string {
	if m.OriginalMessageID != "" {
		return m.OriginalMessageID
	}
	return m.ID
}

// Contact is an address-book entry owned by a user. The stored phone is
// free-form; normalization happens at dispatch and matching time.
type Contact struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_contacts"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null"`
	Phone     string    `json:"phone"      gorm:"type:varchar(32);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Contact.
func (Contact) TableName() string { return "contacts" }

// Confirmation is a pending yes/no RSVP awaiting an inbound reply. It is
// created by the authoring API, resolved only by the confirmation matcher,
// and never auto-deleted.
//
// ContactPhone is kept exactly as entered; the matcher normalizes it on the
// fly when correlating inbound replies.
type Confirmation struct {
	ID             string     `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID         string     `json:"user_id"       gorm:"type:varchar(64);not null;index:idx_user_confirmations"`
	ContactName    string     `json:"contact_name"  gorm:"type:varchar(255);not null"`
	ContactPhone   string     `json:"contact_phone" gorm:"type:varchar(32);not null"`
	EventDate      time.Time  `json:"event_date"`
	MessageContent string     `json:"message_content" gorm:"type:text;not null"`
	Status         string     `json:"status"        gorm:"type:varchar(16);not null;default:'pending';index"`
	Response       string     `json:"response"      gorm:"type:text"`
	RespondedAt    *time.Time `json:"responded_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Confirmation.
func (Confirmation) TableName() string { return "confirmations" }

// WhatsAppSession mirrors the last known transport session state for one
// user. It is refreshed opportunistically from status pushes and readiness
// probes; the transport remains the source of truth.
type WhatsAppSession struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);not null;uniqueIndex"`
	SessionID   string    `json:"session_id"   gorm:"type:varchar(128);not null"`
	Status      string    `json:"status"       gorm:"type:varchar(32)"`
	Phone       string    `json:"phone"        gorm:"type:varchar(32)"`
	ProfileName string    `json:"profile_name" gorm:"type:varchar(255)"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for WhatsAppSession.
func (WhatsAppSession) TableName() string { return "whatsapp_sessions" }
