package repository

import (
	"context"

	"github.com/leadpilot/pipeline-journey/models"
	"gorm.io/gorm"
)

// DispatchHistoryRepositoryImpl implements DispatchHistoryRepository.
// The write path is append-only; no update or delete is exposed.
type DispatchHistoryRepositoryImpl struct {
	*BaseRepository[models.DispatchHistoryEntry, models.DispatchHistoryFilter]
}

func NewDispatchHistoryRepository(db *gorm.DB) DispatchHistoryRepository {
	return &DispatchHistoryRepositoryImpl{BaseRepository: NewBaseRepository[models.DispatchHistoryEntry, models.DispatchHistoryFilter](db)}
}

func (r *DispatchHistoryRepositoryImpl) applyFilter(db *gorm.DB, f models.DispatchHistoryFilter) *gorm.DB {
	if f.ScheduleID != nil {
		db = db.Where("schedule_id = ?", *f.ScheduleID)
	}
	if f.LeadID != nil {
		db = db.Where("lead_id = ?", *f.LeadID)
	}
	if f.StageID != nil {
		db = db.Where("stage_id = ?", *f.StageID)
	}
	if f.Success != nil {
		db = db.Where("success = ?", *f.Success)
	}
	if f.SentAfter != nil {
		db = db.Where("sent_at >= ?", *f.SentAfter)
	}
	if f.SentBefore != nil {
		db = db.Where("sent_at < ?", *f.SentBefore)
	}
	return db
}

// Query returns history entries ordered by sent_at descending so the most
// recent attempts come first; limit/offset give restartable pagination.
func (r *DispatchHistoryRepositoryImpl) Query(ctx context.Context, filter models.DispatchHistoryFilter, limit, offset int) ([]*models.DispatchHistoryEntry, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.DispatchHistoryEntry{}), filter).
		Order("sent_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.DispatchHistoryEntry
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DispatchHistoryRepositoryImpl) ListBySchedule(ctx context.Context, scheduleID uint) ([]*models.DispatchHistoryEntry, error) {
	db := r.getDB(ctx)
	var rows []*models.DispatchHistoryEntry
	if err := db.Where("schedule_id = ?", scheduleID).
		Order("attempt ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
