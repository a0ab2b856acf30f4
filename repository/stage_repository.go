package repository

import (
	"context"

	"github.com/leadpilot/pipeline-journey/models"
	"gorm.io/gorm"
)

// StageRepositoryImpl implements StageRepository
type StageRepositoryImpl struct {
	*BaseRepository[models.PipelineStage, models.PipelineStageFilter]
}

func NewStageRepository(db *gorm.DB) StageRepository {
	return &StageRepositoryImpl{BaseRepository: NewBaseRepository[models.PipelineStage, models.PipelineStageFilter](db)}
}

// ListOrdered returns the full stage catalog in pipeline order
func (r *StageRepositoryImpl) ListOrdered(ctx context.Context) ([]*models.PipelineStage, error) {
	db := r.getDB(ctx)
	var rows []*models.PipelineStage
	if err := db.Order("sort_order ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *StageRepositoryImpl) applyFilter(db *gorm.DB, f models.PipelineStageFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.Name != nil {
		db = db.Where("name = ?", *f.Name)
	}
	if f.EntryRule != nil {
		db = db.Where("entry_rule = ?", *f.EntryRule)
	}
	return db
}

func (r *StageRepositoryImpl) ByFilter(ctx context.Context, filter models.PipelineStageFilter, orderBy string, limit, offset int) ([]*models.PipelineStage, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PipelineStage{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.PipelineStage
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *StageRepositoryImpl) Count(ctx context.Context, filter models.PipelineStageFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PipelineStage{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
