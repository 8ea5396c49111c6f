package server

import (
	"errors"

	"animelight/internal/feed"
	"animelight/internal/models"
	"animelight/internal/observability"
	"animelight/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

var codeStatus = map[string]int{
	models.CodeFetchFailed:        fiber.StatusBadGateway,
	models.CodePermissionDenied:   fiber.StatusForbidden,
	models.CodeMutationFailed:     fiber.StatusBadGateway,
	models.CodeNotFound:           fiber.StatusNotFound,
	models.CodeConflict:           fiber.StatusConflict,
	models.CodeValidation:         fiber.StatusBadRequest,
	models.CodeSubscriptionFailed: fiber.StatusServiceUnavailable,
	models.CodeCacheFailed:        fiber.StatusInternalServerError,
	models.CodeInternal:           fiber.StatusInternalServerError,
}

// respondWithError maps err onto a status code and writes the JSON error body.
func respondWithError(c *fiber.Ctx, err error) error {
	var fieldErrs validation.FieldErrors
	if errors.As(err, &fieldErrs) {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:  "Invalid request",
			Code:   models.CodeValidation,
			Fields: fieldErrs,
		})
	}

	if errors.Is(err, feed.ErrSessionStopped) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error: "Feed session has ended",
			Code:  models.CodeInternal,
		})
	}

	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		appErr = models.NewInternalError(err)
	}
	status, ok := codeStatus[appErr.Code]
	if !ok {
		status = fiber.StatusInternalServerError
	}
	if status >= fiber.StatusInternalServerError {
		observability.GlobalLogger.ErrorContext(c.UserContext(), "request failed",
			"code", appErr.Code, "error", appErr.Error())
	}

	resp := ErrorResponse{Error: appErr.Message, Code: appErr.Code}
	if appErr.Err != nil {
		resp.Details = appErr.Err.Error()
	}
	return c.Status(status).JSON(resp)
}

// errorHandler renders errors returned by handlers and middleware.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message})
	}
	return respondWithError(c, err)
}
