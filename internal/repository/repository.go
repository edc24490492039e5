// Package repository defines the storage contract shared by the SQLite and
// MongoDB backends. Services depend on these interfaces only.
//
// Implementations translate driver errors into apperror values:
// a missing row is apperror.ErrNotFound and a uniqueness violation is
// apperror.ErrConflict with Field set to the colliding attribute.
package repository

import (
	"context"
	"time"

	"github.com/sakif/showdex/internal/model"
)

// UserRepository stores accounts together with their one-time codes.
type UserRepository interface {
	// Create inserts a new user. The caller sets ID. Returns ErrConflict with
	// Field "id", "login" or "email" on a uniqueness violation.
	Create(ctx context.Context, user *model.User) error

	GetByID(ctx context.Context, id string) (*model.User, error)

	// GetByLogin matches the login name exactly.
	GetByLogin(ctx context.Context, login string) (*model.User, error)

	// GetByIdentifier matches identifier against the login name or the email.
	// A login match wins when both exist on different accounts.
	GetByIdentifier(ctx context.Context, identifier string) (*model.User, error)

	// FindByCode returns the user whose login or email equals identifier and
	// whose stored code for purpose equals code exactly.
	FindByCode(ctx context.Context, purpose model.CodePurpose, identifier, code string) (*model.User, error)

	// IssueCode stores code for purpose on the user unless an active code is
	// already stored at now. In that case it returns ErrConflict and leaves the
	// stored code untouched; the check and the write are one store operation.
	IssueCode(ctx context.Context, userID string, purpose model.CodePurpose, code model.Code, now time.Time) error

	// ConsumeVerification marks the user verified and clears the verification
	// code, provided the stored code still equals code. Returns ErrNotFound
	// when the code was already consumed or replaced.
	ConsumeVerification(ctx context.Context, userID, code string) error

	// ConsumeReset replaces the password hash and clears the reset token,
	// provided the stored token still equals token. Returns ErrNotFound when
	// the token was already consumed or replaced.
	ConsumeReset(ctx context.Context, userID, token, passwordHash string) error

	Ping(ctx context.Context) error
}

// ShowRepository stores per-user show lists. (UserID, Title) is unique.
type ShowRepository interface {
	// Create inserts show and sets its ID and timestamps. Returns ErrConflict
	// with Field "show" if the user already has a show with that title.
	Create(ctx context.Context, show *model.Show) error

	// Update overwrites title, genre and rating of the show matching
	// (show.UserID, oldTitle). Returns ErrNotFound if none matches and
	// ErrConflict if the new title collides with another of the user's shows.
	Update(ctx context.Context, oldTitle string, show *model.Show) error

	// Delete removes the show matching (userID, title), or returns ErrNotFound.
	Delete(ctx context.Context, userID, title string) error

	// Search returns the user's shows matching q in insertion order.
	Search(ctx context.Context, q model.ShowQuery) ([]model.Show, error)
}
