package repository

import (
	"context"
	"time"

	"github.com/leadpilot/pipeline-journey/models"
	"github.com/leadpilot/pipeline-journey/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScheduledMessageRepositoryImpl implements ScheduledMessageRepository
type ScheduledMessageRepositoryImpl struct {
	*BaseRepository[models.ScheduledMessage, models.ScheduledMessageFilter]
}

func NewScheduledMessageRepository(db *gorm.DB) ScheduledMessageRepository {
	return &ScheduledMessageRepositoryImpl{BaseRepository: NewBaseRepository[models.ScheduledMessage, models.ScheduledMessageFilter](db)}
}

// SaveBatchIgnoreConflicts inserts the rows, skipping any whose stage-entry
// key (lead_id, stage_id, entered_at, template_id) already exists. This makes
// materializing a stage-entry event idempotent under crash-and-retry.
func (r *ScheduledMessageRepositoryImpl) SaveBatchIgnoreConflicts(ctx context.Context, rows []*models.ScheduledMessage) error {
	if len(rows) == 0 {
		return nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 100).Error
	return err
}

// ClaimDue atomically transitions due rows to claimed with a fresh token.
// Candidates are pending rows plus claimed rows whose claim has expired
// (crash recovery). The conditional update guarantees a row is won by at
// most one worker; losers simply claim fewer rows than they selected.
func (r *ScheduledMessageRepositoryImpl) ClaimDue(ctx context.Context, now time.Time, limit int, claimToken string, claimTTL time.Duration) ([]*models.ScheduledMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	db := r.getDB(ctx)

	var ids []uint
	if err := db.Model(&models.ScheduledMessage{}).
		Where("scheduled_for <= ?", now).
		Where("(status = ? OR (status = ? AND claim_expires_at <= ?))",
			models.ScheduleStatusPending, models.ScheduleStatusClaimed, now).
		Order("scheduled_for ASC, id ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	res := db.Model(&models.ScheduledMessage{}).
		Where("id IN ?", ids).
		Where("(status = ? OR (status = ? AND claim_expires_at <= ?))",
			models.ScheduleStatusPending, models.ScheduleStatusClaimed, now).
		Updates(map[string]any{
			"status":           models.ScheduleStatusClaimed,
			"claim_token":      claimToken,
			"claim_expires_at": now.Add(claimTTL),
			"updated_at":       now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var rows []*models.ScheduledMessage
	if err := db.Where("claim_token = ? AND status = ?", claimToken, models.ScheduleStatusClaimed).
		Order("scheduled_for ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkSent finishes a claimed row as sent. The claim-token condition rejects
// the update if the claim expired and another worker reclaimed the row.
func (r *ScheduledMessageRepositoryImpl) MarkSent(ctx context.Context, id uint, claimToken string, attempts int) (bool, error) {
	return r.finish(ctx, id, claimToken, models.ScheduleStatusSent, attempts, nil)
}

// MarkFailed finishes a claimed row as failed with its last error recorded.
func (r *ScheduledMessageRepositoryImpl) MarkFailed(ctx context.Context, id uint, claimToken string, attempts int, lastError string) (bool, error) {
	return r.finish(ctx, id, claimToken, models.ScheduleStatusFailed, attempts, &lastError)
}

func (r *ScheduledMessageRepositoryImpl) finish(ctx context.Context, id uint, claimToken string, status models.ScheduleStatus, attempts int, lastError *string) (bool, error) {
	db := r.getDB(ctx)
	updates := map[string]any{
		"status":           status,
		"attempts":         attempts,
		"claim_token":      nil,
		"claim_expires_at": nil,
		"updated_at":       utils.UTCNow(),
	}
	if lastError != nil {
		updates["last_error"] = *lastError
	}
	res := db.Model(&models.ScheduledMessage{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, models.ScheduleStatusClaimed, claimToken).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelPending moves still-pending rows for the lead+stage to cancelled.
// Claimed and terminal rows are left untouched.
func (r *ScheduledMessageRepositoryImpl) CancelPending(ctx context.Context, leadID, stageID uint) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.ScheduledMessage{}).
		Where("lead_id = ? AND stage_id = ? AND status = ?", leadID, stageID, models.ScheduleStatusPending).
		Updates(map[string]any{
			"status":     models.ScheduleStatusCancelled,
			"updated_at": utils.UTCNow(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *ScheduledMessageRepositoryImpl) CountByStatus(ctx context.Context, status models.ScheduleStatus) (int64, error) {
	return r.Count(ctx, models.ScheduledMessageFilter{Status: &status})
}

func (r *ScheduledMessageRepositoryImpl) applyFilter(db *gorm.DB, f models.ScheduledMessageFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.LeadID != nil {
		db = db.Where("lead_id = ?", *f.LeadID)
	}
	if f.StageID != nil {
		db = db.Where("stage_id = ?", *f.StageID)
	}
	if f.TemplateID != nil {
		db = db.Where("template_id = ?", *f.TemplateID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.DueBefore != nil {
		db = db.Where("scheduled_for <= ?", *f.DueBefore)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	return db
}

func (r *ScheduledMessageRepositoryImpl) ByFilter(ctx context.Context, filter models.ScheduledMessageFilter, orderBy string, limit, offset int) ([]*models.ScheduledMessage, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ScheduledMessage{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.ScheduledMessage
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ScheduledMessageRepositoryImpl) Count(ctx context.Context, filter models.ScheduledMessageFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ScheduledMessage{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
