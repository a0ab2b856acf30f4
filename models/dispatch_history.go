package models

import "time"

// Dispatch failure reasons recorded in history entries
const (
	DispatchErrorNoWebhookConfigured = "NoWebhookConfigured"
)

// DispatchHistoryEntry records one dispatch attempt and its outcome.
// Entries are append-only and immutable once written; lead/stage/message
// identifiers are denormalized so history stays queryable on its own.
type DispatchHistoryEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ScheduleID uint      `gorm:"not null;index:idx_dispatch_history_schedule_id" json:"schedule_id"`
	LeadID     uint      `gorm:"not null;index:idx_dispatch_history_lead_id" json:"lead_id"`
	StageID    uint      `gorm:"not null;index:idx_dispatch_history_stage_id" json:"stage_id"`
	Title      string    `gorm:"size:255;not null" json:"title"`
	Attempt    int       `gorm:"not null" json:"attempt"`
	Success    bool      `gorm:"not null" json:"success"`
	StatusCode *int      `json:"status_code,omitempty"`
	Error      *string   `gorm:"type:text" json:"error,omitempty"`
	SentAt     time.Time `gorm:"not null;index:idx_dispatch_history_sent_at" json:"sent_at"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (DispatchHistoryEntry) TableName() string { return "dispatch_history" }

// DispatchHistoryFilter provides filter fields for history queries
type DispatchHistoryFilter struct {
	ScheduleID *uint
	LeadID     *uint
	StageID    *uint
	Success    *bool
	SentAfter  *time.Time
	SentBefore *time.Time
}
