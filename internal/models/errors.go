package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error codes surfaced to the UI.
const (
	CodeFetchFailed        = "FETCH_FAILED"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeMutationFailed     = "MUTATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeValidation         = "VALIDATION_ERROR"
	CodeSubscriptionFailed = "SUBSCRIPTION_FAILED"
	CodeCacheFailed        = "CACHE_FAILED"
	CodeInternal           = "INTERNAL_ERROR"
)

// Postgres SQLSTATE values the client reacts to.
const (
	pgInsufficientPrivilege = "42501"
	pgUniqueViolation       = "23505"
)

// AppError is the error type every operation boundary converts failures into.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewFetchError(err error) *AppError {
	return &AppError{
		Code:    CodeFetchFailed,
		Message: "Failed to load posts. Please try again.",
		Err:     err,
	}
}

func NewPermissionError(err error) *AppError {
	return &AppError{
		Code:    CodePermissionDenied,
		Message: "Unable to load posts. Please check your database permissions.",
		Err:     err,
	}
}

func NewMutationError(action string, err error) *AppError {
	return &AppError{
		Code:    CodeMutationFailed,
		Message: fmt.Sprintf("Failed to %s", action),
		Err:     err,
	}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewSubscriptionError(err error) *AppError {
	return &AppError{
		Code:    CodeSubscriptionFailed,
		Message: "Live updates are temporarily unavailable",
		Err:     err,
	}
}

func NewCacheError(op string, err error) *AppError {
	return &AppError{
		Code:    CodeCacheFailed,
		Message: fmt.Sprintf("Local cache %s failed", op),
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal error",
		Err:     err,
	}
}

// ClassifyFetchError maps a page fetch failure onto the user-facing taxonomy.
func ClassifyFetchError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if IsPermissionDenied(err) {
		return NewPermissionError(err)
	}
	return NewFetchError(err)
}

// IsPermissionDenied reports whether err is a backend permission failure.
func IsPermissionDenied(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInsufficientPrivilege {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "permission")
}

// IsUniqueViolation reports whether err is a duplicate-key failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Alert is a user-visible error raised at an operation boundary.
type Alert struct {
	Code    string    `json:"code"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// AlertFrom builds the alert shown for err.
func AlertFrom(err *AppError, now time.Time) Alert {
	title := "Error"
	if err.Code == CodePermissionDenied {
		title = "Permission Error"
	}
	return Alert{Code: err.Code, Title: title, Message: err.Message, At: now}
}
