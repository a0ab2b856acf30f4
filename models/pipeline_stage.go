package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// StageEntryRule represents the precondition a lead must satisfy before
// entering a stage. Rules are explicit configuration, never inferred from
// stage display names.
type StageEntryRule string

const (
	EntryRuleNone                     StageEntryRule = "none"
	EntryRuleRequiresLinkedProposal   StageEntryRule = "requires_linked_proposal"
	EntryRuleRequiresScheduledMeeting StageEntryRule = "requires_scheduled_meeting"
)

// String returns the string representation of the rule
func (r StageEntryRule) String() string {
	return string(r)
}

// Valid checks if the rule is valid
func (r StageEntryRule) Valid() bool {
	switch r {
	case EntryRuleNone, EntryRuleRequiresLinkedProposal, EntryRuleRequiresScheduledMeeting:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for StageEntryRule
func (r *StageEntryRule) Scan(value any) error {
	if value == nil {
		*r = EntryRuleNone
		return nil
	}

	switch v := value.(type) {
	case string:
		*r = StageEntryRule(v)
	case []byte:
		*r = StageEntryRule(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StageEntryRule", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for StageEntryRule
func (r StageEntryRule) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid StageEntryRule: %s", r)
	}
	return string(r), nil
}

// PipelineStage represents a named position in the sales pipeline.
// Stages are edited only by the settings collaborator; the core treats
// them as immutable at runtime.
type PipelineStage struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	SortOrder int            `gorm:"not null;default:0;index:idx_pipeline_stages_sort_order" json:"sort_order"`
	EntryRule StageEntryRule `gorm:"size:32;not null;default:'none'" json:"entry_rule"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (PipelineStage) TableName() string { return "pipeline_stages" }

// PipelineStageFilter provides filter fields for repository queries
type PipelineStageFilter struct {
	ID        *uint
	Name      *string
	EntryRule *StageEntryRule
}
