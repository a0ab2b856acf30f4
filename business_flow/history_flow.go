package businessflow

import (
	"context"
	"time"

	"github.com/leadpilot/pipeline-journey/models"
	"github.com/leadpilot/pipeline-journey/repository"
)

// HistoryQuery filters and paginates dispatch history reads.
type HistoryQuery struct {
	LeadID   *uint
	StageID  *uint
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// HistoryFlow exposes the read side of the dispatch history log.
type HistoryFlow interface {
	Query(ctx context.Context, q HistoryQuery) ([]*models.DispatchHistoryEntry, error)
}

type historyFlow struct {
	historyRepo repository.DispatchHistoryRepository
}

// NewHistoryFlow creates a new history business flow
func NewHistoryFlow(historyRepo repository.DispatchHistoryRepository) HistoryFlow {
	return &historyFlow{historyRepo: historyRepo}
}

func (f *historyFlow) Query(ctx context.Context, q HistoryQuery) ([]*models.DispatchHistoryEntry, error) {
	if q.Page < 1 {
		return nil, ErrInvalidPage
	}
	if q.PageSize < 1 || q.PageSize > 100 {
		return nil, ErrInvalidPageSize
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return nil, ErrInvalidRange
	}

	filter := models.DispatchHistoryFilter{
		LeadID:     q.LeadID,
		StageID:    q.StageID,
		SentAfter:  q.From,
		SentBefore: q.To,
	}
	offset := (q.Page - 1) * q.PageSize
	return f.historyRepo.Query(ctx, filter, q.PageSize, offset)
}
