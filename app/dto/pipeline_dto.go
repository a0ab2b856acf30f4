package dto

// MoveLeadRequest represents a stage-move request for a lead
type MoveLeadRequest struct {
	TargetStageID uint `json:"target_stage_id" validate:"required,gt=0"`
}

// MoveLeadResponse represents the outcome of a stage-move request
type MoveLeadResponse struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason,omitempty"`
	PreviousStageID *uint  `json:"previous_stage_id,omitempty"`
	StageID         uint   `json:"stage_id"`
	MovedAt         string `json:"moved_at,omitempty"`
}

// CancelPendingRequest represents a request to cancel still-pending journey
// messages of a lead for one stage
type CancelPendingRequest struct {
	StageID uint `json:"stage_id" validate:"required,gt=0"`
}

// CancelPendingResponse reports how many schedules were cancelled
type CancelPendingResponse struct {
	Cancelled int64 `json:"cancelled"`
}

// StageDTO represents one pipeline stage of the catalog
type StageDTO struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
	EntryRule string `json:"entry_rule"`
}

// ListStagesResponse returns the ordered stage catalog
type ListStagesResponse struct {
	Items []StageDTO `json:"items"`
}

// DispatchHistoryRequest filters the dispatch history query. From/To are
// RFC3339 timestamps.
type DispatchHistoryRequest struct {
	LeadID   *uint  `query:"lead_id" validate:"omitempty,gt=0"`
	StageID  *uint  `query:"stage_id" validate:"omitempty,gt=0"`
	From     string `query:"from" validate:"omitempty"`
	To       string `query:"to" validate:"omitempty"`
	Page     int    `query:"page" validate:"omitempty,gte=1"`
	PageSize int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// DispatchHistoryItem is one dispatch attempt outcome
type DispatchHistoryItem struct {
	ID         uint   `json:"id"`
	ScheduleID uint   `json:"schedule_id"`
	LeadID     uint   `json:"lead_id"`
	StageID    uint   `json:"stage_id"`
	Title      string `json:"title"`
	Attempt    int    `json:"attempt"`
	Success    bool   `json:"success"`
	StatusCode *int   `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	SentAt     string `json:"sent_at"`
}

// DispatchHistoryResponse is a page of history entries ordered by sent_at descending
type DispatchHistoryResponse struct {
	Items    []DispatchHistoryItem `json:"items"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}
