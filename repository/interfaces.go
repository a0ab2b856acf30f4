// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/leadpilot/pipeline-journey/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// LeadRepository defines operations for leads
type LeadRepository interface {
	Repository[models.Lead, models.LeadFilter]
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Lead, error)
	// UpdateStageCAS assigns newStageID only if the lead's current stage still
	// equals expectedStageID. Returns false when the precondition failed.
	UpdateStageCAS(ctx context.Context, leadID, expectedStageID, newStageID uint) (bool, error)
	LinkProposal(ctx context.Context, leadID, proposalID uint) error
}

// StageRepository defines operations for the pipeline stage catalog
type StageRepository interface {
	Repository[models.PipelineStage, models.PipelineStageFilter]
	ListOrdered(ctx context.Context) ([]*models.PipelineStage, error)
}

// TemplateRepository defines read operations for journey message templates
type TemplateRepository interface {
	Repository[models.JourneyTemplate, models.JourneyTemplateFilter]
	ListByStage(ctx context.Context, stageID uint) ([]*models.JourneyTemplate, error)
}

// ScheduledMessageRepository defines operations for durable scheduled messages
type ScheduledMessageRepository interface {
	Repository[models.ScheduledMessage, models.ScheduledMessageFilter]
	// SaveBatchIgnoreConflicts inserts rows, silently skipping rows whose
	// (lead_id, stage_id, entered_at, template_id) key already exists.
	SaveBatchIgnoreConflicts(ctx context.Context, rows []*models.ScheduledMessage) error
	// ClaimDue atomically claims up to limit due rows for this worker,
	// including rows whose previous claim has expired, and returns them.
	ClaimDue(ctx context.Context, now time.Time, limit int, claimToken string, claimTTL time.Duration) ([]*models.ScheduledMessage, error)
	// MarkSent finishes a claimed row; the update is conditional on the claim
	// token still being held.
	MarkSent(ctx context.Context, id uint, claimToken string, attempts int) (bool, error)
	// MarkFailed finishes a claimed row with a terminal error.
	MarkFailed(ctx context.Context, id uint, claimToken string, attempts int, lastError string) (bool, error)
	// CancelPending moves still-pending rows for the lead+stage to cancelled
	// and returns the number of rows affected.
	CancelPending(ctx context.Context, leadID, stageID uint) (int64, error)
	CountByStatus(ctx context.Context, status models.ScheduleStatus) (int64, error)
}

// DispatchHistoryRepository defines append-only operations for dispatch history
type DispatchHistoryRepository interface {
	Save(ctx context.Context, entry *models.DispatchHistoryEntry) error
	// Query returns entries matching the filter ordered by sent_at descending.
	Query(ctx context.Context, filter models.DispatchHistoryFilter, limit, offset int) ([]*models.DispatchHistoryEntry, error)
	ListBySchedule(ctx context.Context, scheduleID uint) ([]*models.DispatchHistoryEntry, error)
}
