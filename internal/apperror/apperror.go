// Package apperror defines the application's error taxonomy.
//
// Every failure that reaches a handler is either one of the sentinels below
// (wrapped in an *AppError that carries the client-facing message) or an
// unexpected error. The handler layer maps the sentinels to HTTP statuses;
// unexpected errors become a generic 500 and are only logged.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrExpired           = errors.New("expired")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrRejected          = errors.New("rejected")
	ErrDelivery          = errors.New("delivery failed")
)

type AppError struct {
	Err     error  // sentinel, matched with errors.Is
	Message string // human-readable, safe to show to the client
	Field   string // optional: input field that caused the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// NotFoundMessage is NotFound with a caller-chosen client message.
func NotFoundMessage(message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation. Field names the colliding
// attribute ("login", "email", "show", "id") so callers can tell them apart.
func Conflict(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
	}
}

func Expired(message string) *AppError {
	return &AppError{
		Err:     ErrExpired,
		Message: message,
	}
}

// InvalidCredential covers wrong codes, wrong tokens and wrong login/password
// pairs. The message must not reveal whether the account exists.
func InvalidCredential(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidCredential,
		Message: message,
	}
}

// Rejected is a well-formed request refused by a business rule, e.g.
// resending a code for an account that is already verified.
func Rejected(message string) *AppError {
	return &AppError{
		Err:     ErrRejected,
		Message: message,
	}
}

func Delivery(err error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrDelivery, err),
		Message: "We could not send the email. Please try again later.",
	}
}

// FieldOf returns the Field of the first *AppError in err's chain, or "".
func FieldOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
