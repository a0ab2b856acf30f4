package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Lead represents a sales lead moving through the pipeline.
// The current stage is mutated only through an approved transition.
type Lead struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_leads_uuid" json:"uuid"`
	FullName   string         `gorm:"size:255;not null" json:"full_name"`
	Phone      string         `gorm:"size:20;not null;index:idx_leads_phone" json:"phone"`
	Email      string         `gorm:"size:255" json:"email"`
	StageID    uint           `gorm:"not null;index:idx_leads_stage_id" json:"stage_id"`
	ProposalID *uint          `json:"proposal_id,omitempty"`
	Tags       pq.StringArray `gorm:"type:text[]" json:"tags,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`

	Stage *PipelineStage `gorm:"foreignKey:StageID" json:"stage,omitempty"`
}

func (Lead) TableName() string { return "leads" }

// LeadFilter provides filter fields for repository queries
type LeadFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	StageID       *uint
	Phone         *string
	HasProposal   *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
