// Package apperr defines the error taxonomy shared by the stage handlers, the
// dispatcher and the HTTP API.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrValidation is a client error at ingest; no record is created.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means the requested document record does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists means a record with the same ID was already created.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrTransient is an external call that failed or timed out and is worth redelivering.
	ErrTransient = errors.New("transient failure")
	// ErrFatalParse means the trigger cannot be tied to a document record.
	ErrFatalParse = errors.New("cannot resolve document from trigger")
	// ErrInvalidDocument means the uploaded file itself cannot be processed.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrInvalidTransition is a write that the status state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// AppError carries a client-safe message and the HTTP status to answer with.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New builds an AppError around one of the sentinels.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

// Validation returns a 400 error with a message safe to show to the caller.
func Validation(format string, args ...any) *AppError {
	return New(ErrValidation, http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// Transient marks err as retryable while keeping it in the chain.
func Transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

// HTTPStatusCode picks the response status for err.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text returned to HTTP clients. Internal details never leak.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	switch {
	case errors.Is(err, ErrValidation):
		return "Invalid request"
	case errors.Is(err, ErrNotFound):
		return "Document not found"
	default:
		return "Internal server error"
	}
}

// IsPermanent reports failures that redelivering the same trigger cannot fix:
// the permanent sentinels and anything IsRetryable rejects.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFatalParse) ||
		errors.Is(err, ErrInvalidDocument) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) {
		return true
	}
	return !IsRetryable(err)
}

// IsRetryable reports whether an error from a Google API or an RPC is worth
// another attempt: throttling, server errors, timeouts and aborted transactions.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
			return true
		}
	}
	return false
}
