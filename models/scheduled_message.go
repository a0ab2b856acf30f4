package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ScheduleStatus enumerates the lifecycle state of a scheduled message.
// Transitions only move forward: pending -> claimed -> {sent, failed};
// pending -> cancelled is the only exit outside that chain.
type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "pending"
	ScheduleStatusClaimed   ScheduleStatus = "claimed"
	ScheduleStatusSent      ScheduleStatus = "sent"
	ScheduleStatusFailed    ScheduleStatus = "failed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// String returns the string representation of the status
func (s ScheduleStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s ScheduleStatus) Valid() bool {
	switch s {
	case ScheduleStatusPending, ScheduleStatusClaimed, ScheduleStatusSent,
		ScheduleStatusFailed, ScheduleStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions
func (s ScheduleStatus) Terminal() bool {
	switch s {
	case ScheduleStatusSent, ScheduleStatusFailed, ScheduleStatusCancelled:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ScheduleStatus
func (s *ScheduleStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ScheduleStatus(v)
	case []byte:
		*s = ScheduleStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ScheduleStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ScheduleStatus
func (s ScheduleStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ScheduleStatus: %s", s)
	}
	return string(s), nil
}

// ScheduledMessage is a durable record of one journey message's computed due
// time and delivery state for one lead. Template content and the lead's
// identity are snapshotted at schedule time so the dispatcher can build the
// outbound payload without further lookups and later edits never change
// messages already scheduled. The composite unique index keys a single
// stage-entry event so re-processing it cannot create duplicates. Rows are
// never deleted; terminal states are retained for audit.
type ScheduledMessage struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	LeadID         uint           `gorm:"not null;index:idx_scheduled_messages_lead_stage;uniqueIndex:uk_scheduled_messages_entry" json:"lead_id"`
	StageID        uint           `gorm:"not null;index:idx_scheduled_messages_lead_stage;uniqueIndex:uk_scheduled_messages_entry" json:"stage_id"`
	TemplateID     uint           `gorm:"not null;uniqueIndex:uk_scheduled_messages_entry" json:"template_id"`
	EnteredAt      time.Time      `gorm:"not null;uniqueIndex:uk_scheduled_messages_entry" json:"entered_at"`
	LeadName       string         `gorm:"size:255;not null;default:''" json:"lead_name"`
	LeadPhone      string         `gorm:"size:20;not null;default:''" json:"lead_phone"`
	LeadEmail      string         `gorm:"size:255;not null;default:''" json:"lead_email"`
	LeadTags       pq.StringArray `gorm:"type:text[]" json:"lead_tags,omitempty"`
	Title          string         `gorm:"size:255;not null" json:"title"`
	Body           string         `gorm:"type:text;not null" json:"body"`
	Type           MessageType    `gorm:"size:16;not null;default:'text'" json:"type"`
	MediaURL       *string        `gorm:"size:2048" json:"media_url,omitempty"`
	WebhookURL     string         `gorm:"size:2048;not null;default:''" json:"webhook_url"`
	ScheduledFor   time.Time      `gorm:"not null;index:idx_scheduled_messages_due" json:"scheduled_for"`
	Status         ScheduleStatus `gorm:"size:16;not null;default:'pending';index:idx_scheduled_messages_due" json:"status"`
	ClaimToken     *string        `gorm:"size:64;index:idx_scheduled_messages_claim_token" json:"claim_token,omitempty"`
	ClaimExpiresAt *time.Time     `json:"claim_expires_at,omitempty"`
	Attempts       int            `gorm:"not null;default:0" json:"attempts"`
	LastError      *string        `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (ScheduledMessage) TableName() string { return "scheduled_messages" }

// ScheduledMessageFilter provides filter fields for repository queries
type ScheduledMessageFilter struct {
	ID           *uint
	LeadID       *uint
	StageID      *uint
	TemplateID   *uint
	Status       *ScheduleStatus
	DueBefore    *time.Time
	CreatedAfter *time.Time
}
