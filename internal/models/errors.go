// Package models contains data structures for the application's domain models.
package models

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
)

// Error codes used across the application.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeConfiguration       = "CONFIGURATION_ERROR"
	CodeProviderRejected    = "PROVIDER_REJECTED"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Details    string `json:"details,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	// Status is the last provider HTTP status for gateway errors, 0 otherwise.
	Status int
	// Attempts is the number of provider attempts made before giving up.
	Attempts int
	// RetryAfter is the admission window hint in seconds for rate-limit errors.
	RetryAfter int
	Err        error
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

// NewNotFoundError reports an owner-scoped lookup miss.
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

// NewValidationError reports malformed or missing required input.
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewUnauthorizedError reports a missing or failed credential.
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

// NewRateLimitedError reports an admission rejection with a retry hint in seconds.
func NewRateLimitedError(retryAfter int) *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    "Too many requests, please try again later",
		RetryAfter: retryAfter,
	}
}

// NewConfigurationError reports a missing provider credential or similar
// startup-level defect. Not retryable; fatal to the operation only.
func NewConfigurationError(message string) *AppError {
	return &AppError{
		Code:    CodeConfiguration,
		Message: message,
	}
}

// NewTerminalError reports a provider rejection that retrying cannot fix
// (a 4xx other than 429).
func NewTerminalError(status int, message string) *AppError {
	return &AppError{
		Code:    CodeProviderRejected,
		Message: fmt.Sprintf("provider rejected request (status %d): %s", status, message),
		Status:  status,
	}
}

// NewExhaustedRetriesError reports provider unavailability after bounded retry.
func NewExhaustedRetriesError(status int, message string, attempts int) *AppError {
	return &AppError{
		Code:     CodeProviderUnavailable,
		Message:  fmt.Sprintf("provider unavailable after %d attempts (last status %d): %s", attempts, status, message),
		Status:   status,
		Attempts: attempts,
	}
}

// NewInternalError wraps an unexpected error.
func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// StatusForError maps an error to the HTTP status it should be reported with.
func StatusForError(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeValidation:
		return fiber.StatusBadRequest
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeUnauthorized:
		return fiber.StatusUnauthorized
	case CodeRateLimited:
		return fiber.StatusTooManyRequests
	case CodeProviderRejected:
		return fiber.StatusBadGateway
	case CodeProviderUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError writes a standardized error response. Wrapped error detail
// is omitted in production.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error:      appErr.Message,
			Code:       appErr.Code,
			RetryAfter: appErr.RetryAfter,
		}
		if appErr.Err != nil && os.Getenv("APP_ENV") != "production" {
			response.Details = appErr.Err.Error()
		}
		if appErr.RetryAfter > 0 {
			c.Set("Retry-After", fmt.Sprintf("%d", appErr.RetryAfter))
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}

// Respond writes err using its mapped status.
func Respond(c *fiber.Ctx, err error) error {
	return RespondWithError(c, StatusForError(err), err)
}
