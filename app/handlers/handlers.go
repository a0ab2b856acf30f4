// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	businessflow "github.com/leadpilot/pipeline-journey/business_flow"
)

// contextKey types handler-local request-scoped context values
type contextKey string

const (
	userAgentContextKey contextKey = "user_agent"
	ipAddressContextKey contextKey = "ip_address"
	endpointContextKey  contextKey = "endpoint"
)

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "gt":
		return err.Field() + " must be greater than " + err.Param()
	case "gte":
		return err.Field() + " must be at least " + err.Param()
	case "lte":
		return err.Field() + " must be at most " + err.Param()
	case "uuid":
		return err.Field() + " must be a valid UUID"
	default:
		return err.Field() + " is invalid"
	}
}

func validationMessages(err error) []string {
	var messages []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, verr := range verrs {
			messages = append(messages, getValidationErrorMessage(verr))
		}
	}
	return messages
}

// createRequestContext builds a request-scoped context with a timeout and
// typed observability values. The caller must defer the returned cancel.
func createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ctx = context.WithValue(ctx, businessflow.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, userAgentContextKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, ipAddressContextKey, c.IP())
	ctx = context.WithValue(ctx, endpointContextKey, endpoint)

	return ctx, cancel
}
