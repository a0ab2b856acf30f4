package repository

import (
	"context"

	"github.com/leadpilot/pipeline-journey/models"
	"gorm.io/gorm"
)

// TemplateRepositoryImpl implements TemplateRepository
type TemplateRepositoryImpl struct {
	*BaseRepository[models.JourneyTemplate, models.JourneyTemplateFilter]
}

func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &TemplateRepositoryImpl{BaseRepository: NewBaseRepository[models.JourneyTemplate, models.JourneyTemplateFilter](db)}
}

// ListByStage returns the templates configured for a stage in display order.
// The order is a display tie-break only; scheduling derives solely from each
// template's delay.
func (r *TemplateRepositoryImpl) ListByStage(ctx context.Context, stageID uint) ([]*models.JourneyTemplate, error) {
	db := r.getDB(ctx)
	var rows []*models.JourneyTemplate
	if err := db.Where("stage_id = ?", stageID).
		Order("sort_order ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *TemplateRepositoryImpl) applyFilter(db *gorm.DB, f models.JourneyTemplateFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.StageID != nil {
		db = db.Where("stage_id = ?", *f.StageID)
	}
	if f.Type != nil {
		db = db.Where("type = ?", *f.Type)
	}
	return db
}

func (r *TemplateRepositoryImpl) ByFilter(ctx context.Context, filter models.JourneyTemplateFilter, orderBy string, limit, offset int) ([]*models.JourneyTemplate, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.JourneyTemplate{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.JourneyTemplate
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *TemplateRepositoryImpl) Count(ctx context.Context, filter models.JourneyTemplateFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.JourneyTemplate{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
