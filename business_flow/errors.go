// Package businessflow contains the core business logic for pipeline transitions and journey scheduling.
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Lead and stage lookup errors
	ErrLeadNotFound  = errors.New("lead not found")
	ErrStageNotFound = errors.New("stage not found")

	// Gate errors surfaced to blocked callers
	ErrProposalRequired = errors.New("lead has no linked proposal")
	ErrMeetingRequired  = errors.New("lead has no scheduled meeting")

	// Concurrency errors
	ErrStaleStage   = errors.New("lead stage changed concurrently, re-evaluate and retry")
	ErrMoveLockHeld = errors.New("another move for this lead is in progress")

	// Scheduling errors
	ErrTargetStageRequired = errors.New("target stage is required")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
	ErrInvalidRange    = errors.New("start date cannot be after end date")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsLeadNotFound(err error) bool {
	return errors.Is(err, ErrLeadNotFound)
}

func IsStageNotFound(err error) bool {
	return errors.Is(err, ErrStageNotFound)
}

func IsStaleStage(err error) bool {
	return errors.Is(err, ErrStaleStage)
}

func IsMoveLockHeld(err error) bool {
	return errors.Is(err, ErrMoveLockHeld)
}
