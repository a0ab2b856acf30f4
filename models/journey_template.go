package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// MessageType enumerates the content type of a journey message
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
)

// Valid checks if the message type is valid
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for MessageType
func (t *MessageType) Scan(value any) error {
	if value == nil {
		*t = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*t = MessageType(v)
	case []byte:
		*t = MessageType(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageType", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for MessageType
func (t MessageType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid MessageType: %s", t)
	}
	return string(t), nil
}

// DelayUnit enumerates the unit of a journey template's send delay
type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
)

// Valid checks if the delay unit is valid
func (u DelayUnit) Valid() bool {
	switch u {
	case DelayUnitMinutes, DelayUnitHours, DelayUnitDays:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for DelayUnit
func (u *DelayUnit) Scan(value any) error {
	if value == nil {
		*u = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*u = DelayUnit(v)
	case []byte:
		*u = DelayUnit(string(v))
	default:
		return fmt.Errorf("cannot scan %T into DelayUnit", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for DelayUnit
func (u DelayUnit) Value() (driver.Value, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("invalid DelayUnit: %s", u)
	}
	return string(u), nil
}

// Duration converts delayValue in this unit to a time.Duration with second precision
func (u DelayUnit) Duration(delayValue int) time.Duration {
	switch u {
	case DelayUnitMinutes:
		return time.Duration(delayValue) * time.Minute
	case DelayUnitHours:
		return time.Duration(delayValue) * time.Hour
	case DelayUnitDays:
		return time.Duration(delayValue) * 24 * time.Hour
	default:
		return 0
	}
}

// JourneyTemplate represents a message configured to fire a fixed delay
// after a lead enters a stage. Read-only from the core's perspective;
// content is snapshotted into scheduled messages at entry time.
type JourneyTemplate struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	StageID    uint        `gorm:"not null;index:idx_journey_templates_stage_id" json:"stage_id"`
	Title      string      `gorm:"size:255;not null" json:"title"`
	Body       string      `gorm:"type:text;not null" json:"body"`
	Type       MessageType `gorm:"size:16;not null;default:'text'" json:"type"`
	MediaURL   *string     `gorm:"size:2048" json:"media_url,omitempty"`
	WebhookURL *string     `gorm:"size:2048" json:"webhook_url,omitempty"`
	DelayValue int         `gorm:"not null" json:"delay_value"`
	DelayUnit  DelayUnit   `gorm:"size:16;not null" json:"delay_unit"`
	SortOrder  int         `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt  time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time   `gorm:"not null" json:"updated_at"`
}

func (JourneyTemplate) TableName() string { return "journey_templates" }

// Delay returns the template's configured delay as a duration
func (t JourneyTemplate) Delay() time.Duration {
	return t.DelayUnit.Duration(t.DelayValue)
}

// JourneyTemplateFilter provides filter fields for repository queries
type JourneyTemplateFilter struct {
	ID      *uint
	StageID *uint
	Type    *MessageType
}
