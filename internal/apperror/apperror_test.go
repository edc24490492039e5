package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("user", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("login", "login is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("email", "Email already exists"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Expired wraps ErrExpired",
			err:       Expired("Verification code expired."),
			target:    ErrExpired,
			wantMatch: true,
		},
		{
			name:      "InvalidCredential wraps ErrInvalidCredential",
			err:       InvalidCredential("Invalid identifier or code."),
			target:    ErrInvalidCredential,
			wantMatch: true,
		},
		{
			name:      "Rejected wraps ErrRejected",
			err:       Rejected("Account is already verified."),
			target:    ErrRejected,
			wantMatch: true,
		},
		{
			name:      "Delivery wraps ErrDelivery",
			err:       Delivery(errors.New("connection refused")),
			target:    ErrDelivery,
			wantMatch: true,
		},
		{
			name:      "wrapped AppError still matches",
			err:       fmt.Errorf("service: %w", NotFound("show", "Dune")),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "Expired does NOT match ErrInvalidCredential",
			err:       Expired("Verification code expired."),
			target:    ErrInvalidCredential,
			wantMatch: false,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("show", "Dune"),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("user", "abc123"),
			wantMessage: "user not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("login", "login is required"),
			wantMessage: "login is required",
		},
		{
			name:        "Conflict uses custom message",
			err:         Conflict("login", "Username already exists"),
			wantMessage: "Username already exists",
		},
		{
			name:        "Delivery hides the transport error",
			err:         Delivery(errors.New("dial tcp: refused")),
			wantMessage: "We could not send the email. Please try again later.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("user", "abc123")
	if err.Unwrap() != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), ErrNotFound)
	}
}

func TestFieldOf(t *testing.T) {
	err := fmt.Errorf("sqlite: inserting user: %w", Conflict("email", "Email already exists"))
	if got := FieldOf(err); got != "email" {
		t.Errorf("FieldOf() = %q, want %q", got, "email")
	}
	if got := FieldOf(errors.New("plain")); got != "" {
		t.Errorf("FieldOf(plain) = %q, want empty", got)
	}
}
