package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/leadpilot/pipeline-journey/app/dto"
	businessflow "github.com/leadpilot/pipeline-journey/business_flow"
)

// PipelineHandlerInterface defines the contract for pipeline transition handlers
type PipelineHandlerInterface interface {
	MoveLead(c fiber.Ctx) error
	CancelPending(c fiber.Ctx) error
	ListStages(c fiber.Ctx) error
}

// PipelineHandler handles stage transition HTTP requests
type PipelineHandler struct {
	transitionFlow businessflow.TransitionFlow
	validator      *validator.Validate
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(transitionFlow businessflow.TransitionFlow) *PipelineHandler {
	return &PipelineHandler{
		transitionFlow: transitionFlow,
		validator:      validator.New(),
	}
}

func (h *PipelineHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *PipelineHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// MoveLead evaluates the target stage's entry rule and, when allowed,
// commits the move and schedules the stage's journey messages. A blocked
// move is a successful response carrying the block reason.
func (h *PipelineHandler) MoveLead(c fiber.Ctx) error {
	leadUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead UUID", "INVALID_LEAD_UUID", nil)
	}

	var req dto.MoveLeadRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get("X-Request-ID"))

	ctx, cancel := createRequestContext(c, "/api/v1/leads/:uuid/move")
	defer cancel()

	result, err := h.transitionFlow.Move(ctx, leadUUID, req.TargetStageID, metadata)
	if err != nil {
		if businessflow.IsLeadNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", "LEAD_NOT_FOUND", nil)
		}
		if businessflow.IsStageNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Stage not found", "STAGE_NOT_FOUND", nil)
		}
		if businessflow.IsStaleStage(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Lead stage changed concurrently", "STALE_STAGE", nil)
		}
		if businessflow.IsMoveLockHeld(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Another move for this lead is in progress", "MOVE_IN_PROGRESS", nil)
		}
		var bizErr *businessflow.BusinessError
		if errors.As(err, &bizErr) {
			return h.ErrorResponse(c, fiber.StatusBadGateway, bizErr.Message, bizErr.Code, nil)
		}

		log.Println("Move lead failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Move failed", "MOVE_FAILED", nil)
	}

	resp := dto.MoveLeadResponse{
		Allowed: result.Decision.Allowed,
		StageID: result.Decision.StageID,
	}
	if result.Decision.Allowed {
		prev := result.PreviousStageID
		resp.PreviousStageID = &prev
		resp.MovedAt = result.MovedAt.Format(time.RFC3339)
		return h.SuccessResponse(c, fiber.StatusOK, "Lead moved successfully", resp)
	}

	resp.Reason = string(result.Decision.Reason)
	return h.SuccessResponse(c, fiber.StatusOK, "Move blocked by stage entry rule", resp)
}

// CancelPending cancels still-pending journey messages of the lead for the
// given stage. Claimed, sent, failed, and cancelled rows are untouched.
func (h *PipelineHandler) CancelPending(c fiber.Ctx) error {
	leadUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead UUID", "INVALID_LEAD_UUID", nil)
	}

	var req dto.CancelPendingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/leads/:uuid/journeys/cancel")
	defer cancel()

	cancelled, err := h.transitionFlow.CancelPending(ctx, leadUUID, req.StageID)
	if err != nil {
		if businessflow.IsLeadNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", "LEAD_NOT_FOUND", nil)
		}

		log.Println("Cancel pending failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Cancel failed", "CANCEL_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Pending messages cancelled", dto.CancelPendingResponse{
		Cancelled: cancelled,
	})
}

// ListStages returns the stage catalog in pipeline order.
func (h *PipelineHandler) ListStages(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/stages")
	defer cancel()

	stages, err := h.transitionFlow.ListStages(ctx)
	if err != nil {
		log.Println("List stages failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list stages", "LIST_STAGES_FAILED", nil)
	}

	items := make([]dto.StageDTO, 0, len(stages))
	for _, s := range stages {
		items = append(items, dto.StageDTO{
			ID:        s.ID,
			Name:      s.Name,
			SortOrder: s.SortOrder,
			EntryRule: s.EntryRule.String(),
		})
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Stages retrieved successfully", dto.ListStagesResponse{
		Items: items,
	})
}
