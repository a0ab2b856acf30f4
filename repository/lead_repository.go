package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/leadpilot/pipeline-journey/models"
	"github.com/leadpilot/pipeline-journey/utils"
	"gorm.io/gorm"
)

// LeadRepositoryImpl implements LeadRepository
type LeadRepositoryImpl struct {
	*BaseRepository[models.Lead, models.LeadFilter]
}

func NewLeadRepository(db *gorm.DB) LeadRepository {
	return &LeadRepositoryImpl{BaseRepository: NewBaseRepository[models.Lead, models.LeadFilter](db)}
}

func (r *LeadRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	db := r.getDB(ctx)
	var row models.Lead
	if err := db.Where("uuid = ?", id).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// UpdateStageCAS performs the stage assignment as a conditional update so two
// concurrent moves of the same lead cannot both win. The caller must
// re-evaluate the entry gate against the now-current stage before retrying.
func (r *LeadRepositoryImpl) UpdateStageCAS(ctx context.Context, leadID, expectedStageID, newStageID uint) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Lead{}).
		Where("id = ? AND stage_id = ?", leadID, expectedStageID).
		Updates(map[string]any{
			"stage_id":   newStageID,
			"updated_at": utils.UTCNow(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *LeadRepositoryImpl) LinkProposal(ctx context.Context, leadID, proposalID uint) error {
	db := r.getDB(ctx)
	return db.Model(&models.Lead{}).
		Where("id = ?", leadID).
		Updates(map[string]any{
			"proposal_id": proposalID,
			"updated_at":  utils.UTCNow(),
		}).Error
}

func (r *LeadRepositoryImpl) applyFilter(db *gorm.DB, f models.LeadFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.StageID != nil {
		db = db.Where("stage_id = ?", *f.StageID)
	}
	if f.Phone != nil {
		db = db.Where("phone = ?", *f.Phone)
	}
	if f.HasProposal != nil {
		if *f.HasProposal {
			db = db.Where("proposal_id IS NOT NULL")
		} else {
			db = db.Where("proposal_id IS NULL")
		}
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *LeadRepositoryImpl) ByFilter(ctx context.Context, filter models.LeadFilter, orderBy string, limit, offset int) ([]*models.Lead, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Lead{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Lead
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *LeadRepositoryImpl) Count(ctx context.Context, filter models.LeadFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Lead{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
