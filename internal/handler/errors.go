package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/selection"
	"github.com/fridgechef/api/internal/service"
	"github.com/fridgechef/api/pkg/response"
)

// base carries what every API handler needs to parse requests and turn
// service errors into the response envelope.
type base struct {
	validator *validator.Validate
	log       *zap.Logger
}

// parseBody decodes and validates the JSON body into dst. On failure it
// writes the response and returns false.
func (b base) parseBody(c *fiber.Ctx, dst any) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, response.ValidationError(c, "Invalid request body", nil)
	}
	if err := b.validator.Struct(dst); err != nil {
		return false, response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	return true, nil
}

func (b base) parseQuery(c *fiber.Ctx, dst any) (bool, error) {
	if err := c.QueryParser(dst); err != nil {
		return false, response.ValidationError(c, "Invalid query parameters", nil)
	}
	if err := b.validator.Struct(dst); err != nil {
		return false, response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	return true, nil
}

// fail maps a service error to its HTTP status and error code.
func (b base) fail(c *fiber.Ctx, err error) error {
	switch {
	case service.IsNotFound(err):
		return response.NotFound(c, "Resource not found")
	case errors.Is(err, lifecycle.ErrRetryExhausted):
		return response.Unprocessable(c, response.CodeMaxRetriesExceeded, "Maximum retries exceeded")
	case errors.Is(err, lifecycle.ErrJobProcessing):
		return response.Conflict(c, response.CodeJobProcessing, "Job is currently processing")
	case errors.Is(err, lifecycle.ErrInvalidState):
		return response.Conflict(c, response.CodeInvalidStatus, err.Error())
	case errors.Is(err, service.ErrNoPendingReview):
		return response.Conflict(c, response.CodeInvalidStatus, err.Error())
	case errors.Is(err, service.ErrLookupInProgress):
		return response.Conflict(c, response.CodeLookupInProgress, err.Error())
	case errors.Is(err, service.ErrCookbookNameTaken):
		return response.Conflict(c, response.CodeDuplicateName, err.Error())
	case errors.Is(err, service.ErrCookbookBusy):
		return response.Conflict(c, response.CodeCookbookBusy, err.Error())
	case errors.Is(err, service.ErrScanNotCompleted):
		return response.Unprocessable(c, response.CodeScanNotCompleted, err.Error())
	case errors.Is(err, service.ErrNoRecipes):
		return response.Unprocessable(c, response.CodeNoRecipes, err.Error())
	case errors.Is(err, service.ErrJobNotCompleted):
		return response.Unprocessable(c, response.CodeJobNotCompleted, err.Error())
	case errors.Is(err, selection.ErrNotInSuggestions),
		errors.Is(err, service.ErrNoImages),
		errors.Is(err, service.ErrTooManyImages),
		errors.Is(err, service.ErrWrongScanKind),
		errors.Is(err, service.ErrInvalidName):
		return response.ValidationError(c, err.Error(), nil)
	}

	b.log.Error("request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return response.ServiceError(c, "Internal server error")
}

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	fields := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		fields[e.Field()] = e.Tag()
	}
	return fields
}

const defaultPageLimit = 20

func withDefaults(q model.PageQuery) model.PageQuery {
	if q.Limit == 0 {
		q.Limit = defaultPageLimit
	}
	return q
}
