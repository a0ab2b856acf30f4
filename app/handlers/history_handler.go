package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/leadpilot/pipeline-journey/app/dto"
	businessflow "github.com/leadpilot/pipeline-journey/business_flow"
)

// HistoryHandlerInterface defines the contract for dispatch history handlers
type HistoryHandlerInterface interface {
	ListDispatchHistory(c fiber.Ctx) error
}

// HistoryHandler handles dispatch history HTTP requests
type HistoryHandler struct {
	historyFlow businessflow.HistoryFlow
	validator   *validator.Validate
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(historyFlow businessflow.HistoryFlow) *HistoryHandler {
	return &HistoryHandler{
		historyFlow: historyFlow,
		validator:   validator.New(),
	}
}

func (h *HistoryHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *HistoryHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ListDispatchHistory returns dispatch attempts ordered most recent first.
func (h *HistoryHandler) ListDispatchHistory(c fiber.Ctx) error {
	var req dto.DispatchHistoryRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	from, err := parseTimeParam(req.From)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "from must be an RFC3339 timestamp", "INVALID_QUERY", nil)
	}
	to, err := parseTimeParam(req.To)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "to must be an RFC3339 timestamp", "INVALID_QUERY", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/dispatch-history")
	defer cancel()

	entries, err := h.historyFlow.Query(ctx, businessflow.HistoryQuery{
		LeadID:   req.LeadID,
		StageID:  req.StageID,
		From:     from,
		To:       to,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		if errors.Is(err, businessflow.ErrInvalidPage) ||
			errors.Is(err, businessflow.ErrInvalidPageSize) ||
			errors.Is(err, businessflow.ErrInvalidRange) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_QUERY", nil)
		}

		log.Println("List dispatch history failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list dispatch history", "LIST_HISTORY_FAILED", nil)
	}

	items := make([]dto.DispatchHistoryItem, 0, len(entries))
	for _, e := range entries {
		item := dto.DispatchHistoryItem{
			ID:         e.ID,
			ScheduleID: e.ScheduleID,
			LeadID:     e.LeadID,
			StageID:    e.StageID,
			Title:      e.Title,
			Attempt:    e.Attempt,
			Success:    e.Success,
			StatusCode: e.StatusCode,
			SentAt:     e.SentAt.Format(time.RFC3339),
		}
		if e.Error != nil {
			item.Error = *e.Error
		}
		items = append(items, item)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Dispatch history retrieved successfully", dto.DispatchHistoryResponse{
		Items:    items,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

func parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
