package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/showdex/internal/apperror"
	"github.com/sakif/showdex/internal/auth"
	"github.com/sakif/showdex/internal/model"
	"github.com/sakif/showdex/internal/notify"
	"github.com/sakif/showdex/internal/repository"
)

const (
	msgIdentifierRequired   = "Identifier required."
	msgVerifyFieldsRequired = "Identifier and code required."
	msgResetFieldsRequired  = "Identifier, reset token, and new password required."
	msgInvalidCode          = "Invalid identifier or code."
	msgCodeExpired          = "Verification code expired."
	msgInvalidResetToken    = "Invalid identifier or reset token."
	msgResetTokenExpired    = "Reset token expired."
	msgAlreadyVerified      = "Account is already verified."
	msgResetNeedsVerified   = "Account must be verified to reset password."
)

// IssueOutcome says what Resend or ForgotPassword did.
type IssueOutcome int

const (
	// OutcomeIssued means a new code was stored and emailed.
	OutcomeIssued IssueOutcome = iota + 1
	// OutcomeActive means an unexpired code already existed and was kept.
	OutcomeActive
	// OutcomeUnknownAccount means no account matched the identifier. Callers
	// must answer exactly as they would for an account that exists.
	OutcomeUnknownAccount
)

func (o IssueOutcome) String() string {
	switch o {
	case OutcomeIssued:
		return "issued"
	case OutcomeActive:
		return "active"
	case OutcomeUnknownAccount:
		return "unknown-account"
	}
	return fmt.Sprintf("IssueOutcome(%d)", int(o))
}

// IssueResult reports the outcome together with the expiry of the code that
// is active afterwards (zero for OutcomeUnknownAccount).
type IssueResult struct {
	Outcome IssueOutcome
	Expires time.Time
}

// VerificationService runs the two one-time code flows: email verification
// (resend, verify) and password reset (forgot, reset).
//
// Each account has one slot per purpose. A slot is empty, active (expiry in
// the future) or expired. Issuing is refused while the slot is active, so a
// user never holds two valid codes for the same purpose. Consuming a code
// requires the identifier and the code to match the same account before the
// expiry is even looked at: a wrong code against an expired slot is
// "invalid", not "expired".
type VerificationService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	codes     *CodeIssuer
	logger    *slog.Logger
}

func NewVerificationService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	codes *CodeIssuer,
	logger *slog.Logger,
) *VerificationService {
	return &VerificationService{
		users:     users,
		passwords: passwords,
		codes:     codes,
		logger:    logger,
	}
}

// lookup finds the account for identifier. A missing account is reported as
// (nil, nil).
func (s *VerificationService) lookup(ctx context.Context, identifier string) (*model.User, error) {
	user, err := s.users.GetByIdentifier(ctx, identifier)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("service/verification: looking up identifier: %w", err)
	}
	return user, nil
}

// Resend emails a new verification code if the account has none active.
func (s *VerificationService) Resend(ctx context.Context, identifier string) (*IssueResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, apperror.ValidationFailed("identifier", msgIdentifierRequired)
	}

	user, err := s.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return &IssueResult{Outcome: OutcomeUnknownAccount}, nil
	}
	if user.IsVerified {
		return nil, apperror.Rejected(msgAlreadyVerified)
	}

	code, issued, err := s.codes.issue(ctx, user, model.PurposeVerification)
	if err != nil {
		return nil, err
	}
	if !issued {
		return &IssueResult{Outcome: OutcomeActive, Expires: code.Expires}, nil
	}

	msg, renderErr := notify.ResendEmail(user.Email, user.FirstName, code.Value, s.codes.TTL())
	if err := s.codes.deliver(ctx, msg, renderErr); err != nil {
		return nil, err
	}
	return &IssueResult{Outcome: OutcomeIssued, Expires: code.Expires}, nil
}

// Verify marks the account verified when identifier and code match it and
// the code has not expired. The code is cleared in the same write, so a
// second attempt with it fails as invalid.
func (s *VerificationService) Verify(ctx context.Context, identifier, code string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || code == "" {
		return apperror.ValidationFailed("", msgVerifyFieldsRequired)
	}

	user, err := s.matchCode(ctx, model.PurposeVerification, identifier, code, msgInvalidCode, msgCodeExpired)
	if err != nil {
		return err
	}

	if err := s.users.ConsumeVerification(ctx, user.ID, code); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// Consumed or replaced by a concurrent request.
			return apperror.InvalidCredential(msgInvalidCode)
		}
		return fmt.Errorf("service/verification: verifying user %s: %w", user.ID, err)
	}

	s.logger.Info("account verified", slog.String("userID", user.ID))
	return nil
}

// ForgotPassword emails a reset token to a verified account that has none
// active. While a token is active the result is OutcomeActive with its
// expiry, and no email is sent.
func (s *VerificationService) ForgotPassword(ctx context.Context, identifier string) (*IssueResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, apperror.ValidationFailed("identifier", msgIdentifierRequired)
	}

	user, err := s.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return &IssueResult{Outcome: OutcomeUnknownAccount}, nil
	}
	if !user.IsVerified {
		return nil, apperror.Rejected(msgResetNeedsVerified)
	}

	token, issued, err := s.codes.issue(ctx, user, model.PurposeReset)
	if err != nil {
		return nil, err
	}
	if !issued {
		return &IssueResult{Outcome: OutcomeActive, Expires: token.Expires}, nil
	}

	msg, renderErr := notify.ResetEmail(user.Email, user.FirstName, token.Value, s.codes.TTL())
	if err := s.codes.deliver(ctx, msg, renderErr); err != nil {
		return nil, err
	}
	return &IssueResult{Outcome: OutcomeIssued, Expires: token.Expires}, nil
}

// ResetPassword replaces the password of the account matching identifier
// and token, provided the token has not expired. The new password must pass
// the same strength policy as registration.
func (s *VerificationService) ResetPassword(ctx context.Context, identifier, token, newPassword string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || token == "" || newPassword == "" {
		return apperror.ValidationFailed("", msgResetFieldsRequired)
	}
	if err := auth.CheckStrength(newPassword); err != nil {
		return apperror.ValidationFailed("newPassword", auth.WeakPasswordMessage)
	}

	user, err := s.matchCode(ctx, model.PurposeReset, identifier, token, msgInvalidResetToken, msgResetTokenExpired)
	if err != nil {
		return err
	}

	hash, err := s.passwords.Hash(newPassword)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return apperror.ValidationFailed("newPassword", msgPasswordTooLong)
	}
	if err != nil {
		return fmt.Errorf("service/verification: %w", err)
	}

	if err := s.users.ConsumeReset(ctx, user.ID, token, hash); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.InvalidCredential(msgInvalidResetToken)
		}
		return fmt.Errorf("service/verification: resetting password for %s: %w", user.ID, err)
	}

	s.logger.Info("password reset", slog.String("userID", user.ID))
	return nil
}

// matchCode finds the account whose identifier and stored code both match,
// then checks expiry. The boundary instant counts as expired.
func (s *VerificationService) matchCode(ctx context.Context, purpose model.CodePurpose, identifier, code, invalidMsg, expiredMsg string) (*model.User, error) {
	user, err := s.users.FindByCode(ctx, purpose, identifier, code)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.InvalidCredential(invalidMsg)
	}
	if err != nil {
		return nil, fmt.Errorf("service/verification: matching %s code: %w", purpose, err)
	}
	if user.Code(purpose).ExpiredAt(s.codes.Now()) {
		return nil, apperror.Expired(expiredMsg)
	}
	return user, nil
}
