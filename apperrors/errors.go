// Package apperrors provides the HTTP-facing error taxonomy for the Gateway
// and System Server: AppError classifies errors by the HTTP response they
// must produce and the recovery policy a caller should apply.
package apperrors

import (
	"fmt"
	"net/http"
)

// Code identifies the category of an application error.
type Code string

const (
	// CodeValidation indicates the request failed schema or field validation.
	CodeValidation Code = "validation_error"

	// CodePromptRejected indicates a guard rejected the prompt content.
	CodePromptRejected Code = "prompt_rejected"

	// CodeNoEligibleSystems indicates the candidate set had fewer than two
	// eligible systems to sample a pair from.
	CodeNoEligibleSystems Code = "no_eligible_systems"

	// CodeUnreachable indicates a System Server could not be reached.
	CodeUnreachable Code = "unreachable"

	// CodeBatchTimeout indicates a batch exceeded its generation deadline.
	CodeBatchTimeout Code = "batch_timeout"

	// CodeGenerateFailed indicates a System Server returned a generation
	// failure after being reached successfully.
	CodeGenerateFailed Code = "generate_failed"

	// CodeInsufficientListenTime indicates a vote was cast before the
	// minimum listen time elapsed.
	CodeInsufficientListenTime Code = "insufficient_listen_time"

	// CodeConflict indicates a benign race on a resource that was resolved
	// with a last-write-wins policy; the response still succeeds.
	CodeConflict Code = "conflict"

	// CodeInternal indicates an unexpected internal failure.
	CodeInternal Code = "internal_error"

	// CodeNotFound indicates a referenced resource (e.g. a battle uuid)
	// does not exist. Not part of the spec's core taxonomy table, but
	// required by the 404 responses §4.6 calls for on vote recording.
	CodeNotFound Code = "not_found"

	// CodeAlreadyExists indicates a document-store create collided with an
	// existing id.
	CodeAlreadyExists Code = "already_exists"

	// CodeBusy indicates a System Server's request queue is at capacity.
	CodeBusy Code = "busy"
)

// AppError is a structured, HTTP-facing error. It wraps an optional cause
// so callers can still inspect the underlying failure via errors.As/errors.Is
// through the chain.
type AppError struct {
	Code      Code
	Message   string
	Operation string
	Err       error
}

// New creates an AppError with the given code, operation, message, and
// optional wrapped cause.
func New(code Code, operation, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Operation: operation, Err: cause}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying cause so errors.Is/errors.As traverse the
// error chain.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error code to the HTTP status code the Gateway or
// System Server must respond with.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodePromptRejected, CodeInsufficientListenTime:
		return http.StatusUnprocessableEntity
	case CodeNoEligibleSystems:
		return http.StatusConflict
	case CodeUnreachable, CodeGenerateFailed:
		return http.StatusBadGateway
	case CodeBatchTimeout:
		return http.StatusGatewayTimeout
	case CodeConflict:
		return http.StatusOK
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBusy:
		return http.StatusServiceUnavailable
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a client should retry the request that produced
// this error. Unreachable, BatchTimeout and Busy are transient; the rest are
// not.
func (e *AppError) Retryable() bool {
	switch e.Code {
	case CodeUnreachable, CodeBatchTimeout, CodeBusy:
		return true
	default:
		return false
	}
}

// Validation builds a CodeValidation error.
func Validation(operation, message string) *AppError {
	return New(CodeValidation, operation, message, nil)
}

// PromptRejected builds a CodePromptRejected error.
func PromptRejected(operation, reason string) *AppError {
	return New(CodePromptRejected, operation, reason, nil)
}

// NoEligibleSystems builds a CodeNoEligibleSystems error.
func NoEligibleSystems(operation string) *AppError {
	return New(CodeNoEligibleSystems, operation, "fewer than two eligible systems in candidate set", nil)
}

// Unreachable builds a CodeUnreachable error wrapping the transport cause.
func Unreachable(operation string, cause error) *AppError {
	return New(CodeUnreachable, operation, "system server unreachable", cause)
}

// BatchTimeout builds a CodeBatchTimeout error.
func BatchTimeout(operation string) *AppError {
	return New(CodeBatchTimeout, operation, "batch generation deadline exceeded", nil)
}

// GenerateFailed builds a CodeGenerateFailed error wrapping the upstream cause.
func GenerateFailed(operation string, cause error) *AppError {
	return New(CodeGenerateFailed, operation, "generation failed", cause)
}

// InsufficientListenTime builds a CodeInsufficientListenTime error.
func InsufficientListenTime(operation string) *AppError {
	return New(CodeInsufficientListenTime, operation, "vote cast before minimum listen time elapsed", nil)
}

// Conflict builds a CodeConflict warning error. Callers that receive this
// should still return 200 with a warning body, per the recovery policy.
func Conflict(operation, message string) *AppError {
	return New(CodeConflict, operation, message, nil)
}

// Internal builds a CodeInternal error wrapping the cause.
func Internal(operation string, cause error) *AppError {
	return New(CodeInternal, operation, "internal error", cause)
}

// NotFound builds a CodeNotFound error for operation, describing what was
// missing in message.
func NotFound(operation, message string) *AppError {
	return New(CodeNotFound, operation, message, nil)
}

// Busy builds a CodeBusy error for operation.
func Busy(operation string) *AppError {
	return New(CodeBusy, operation, "queue at capacity", nil)
}

// AlreadyExists builds a CodeAlreadyExists error for operation.
func AlreadyExists(operation, message string) *AppError {
	return New(CodeAlreadyExists, operation, message, nil)
}
