package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/showdex/internal/apperror"
	"github.com/sakif/showdex/internal/auth"
	"github.com/sakif/showdex/internal/model"
	"github.com/sakif/showdex/internal/notify"
	"github.com/sakif/showdex/internal/repository"
)

// maxIDAttempts bounds how often Register draws a new user ID after the
// store reports an ID collision.
const maxIDAttempts = 5

const (
	msgAllFieldsRequired    = "All fields are required."
	msgLoginFieldsRequired  = "Login and password are required."
	msgInvalidLogin         = "Invalid login or password."
	msgPasswordTooLong      = "Password must be 72 bytes or fewer."
	msgRegistrationComplete = "Registration successful! Please check your email."
)

// AccountService registers users and checks their credentials.
type AccountService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	codes     *CodeIssuer
	logger    *slog.Logger

	newID func() string
}

func NewAccountService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	codes *CodeIssuer,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		passwords: passwords,
		codes:     codes,
		logger:    logger,
		newID:     func() string { return xid.New().String() },
	}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Login     string
	Password  string
	FirstName string
	LastName  string
	Email     string
}

// RegisterResult carries the created account and its first verification
// code. The handler decides whether the code itself is shown to the client.
type RegisterResult struct {
	User    *model.User
	Code    model.Code
	Message string
}

// Register creates an unverified account holding a fresh verification code
// and emails the code. Login and email uniqueness is enforced by the store,
// so a conflict names the colliding field and nothing is written.
//
// If the email cannot be sent the account still exists and the error is
// apperror.ErrDelivery; the user recovers through resend.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Login = strings.TrimSpace(in.Login)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)

	if in.Login == "" || in.Password == "" || in.FirstName == "" || in.LastName == "" || in.Email == "" {
		return nil, apperror.ValidationFailed("", msgAllFieldsRequired)
	}
	if err := auth.CheckStrength(in.Password); err != nil {
		return nil, apperror.ValidationFailed("password", auth.WeakPasswordMessage)
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.codes.Now()
	code, err := s.codes.next(now)
	if err != nil {
		return nil, fmt.Errorf("service/account: %w", err)
	}

	user := &model.User{
		Login:        in.Login,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Verification: code,
	}
	if err := s.create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("userID", user.ID), slog.String("login", user.Login))
	s.codes.issued(user.ID, model.PurposeVerification, code)

	msg, renderErr := notify.VerificationEmail(user.Email, user.FirstName, code.Value, s.codes.TTL())
	if err := s.codes.deliver(ctx, msg, renderErr); err != nil {
		return nil, err
	}

	return &RegisterResult{User: user, Code: code, Message: msgRegistrationComplete}, nil
}

// create inserts user under a fresh ID, drawing again when the ID collides.
func (s *AccountService) create(ctx context.Context, user *model.User) error {
	for attempt := 1; ; attempt++ {
		user.ID = s.newID()
		err := s.users.Create(ctx, user)
		if err == nil {
			return nil
		}
		if errors.Is(err, apperror.ErrConflict) && apperror.FieldOf(err) == "id" && attempt < maxIDAttempts {
			s.logger.Warn("user ID collision, retrying", slog.String("userID", user.ID))
			continue
		}
		if errors.Is(err, apperror.ErrConflict) {
			return err
		}
		return fmt.Errorf("service/account: creating user %q: %w", user.Login, err)
	}
}

func (s *AccountService) hashPassword(password string) (string, error) {
	hash, err := s.passwords.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", apperror.ValidationFailed("password", msgPasswordTooLong)
	}
	if err != nil {
		return "", fmt.Errorf("service/account: %w", err)
	}
	return hash, nil
}

// LoginResult is a successful credential check. VerificationCode is set only
// for an unverified account whose code is still active, so the client can
// offer to verify or resend.
type LoginResult struct {
	User             *model.User
	VerificationCode string
	Message          string
}

// Login checks login and password. Unknown logins and wrong passwords give
// the same apperror.ErrInvalidCredential.
func (s *AccountService) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, apperror.ValidationFailed("", msgLoginFieldsRequired)
	}

	user, err := s.users.GetByLogin(ctx, login)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.InvalidCredential(msgInvalidLogin)
	}
	if err != nil {
		return nil, fmt.Errorf("service/account: looking up %q: %w", login, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.InvalidCredential(msgInvalidLogin)
		}
		if errors.Is(err, auth.ErrUnusableHash) {
			// Needs a password reset before it can log in again.
			s.logger.Warn("stored password is not a bcrypt hash", slog.String("userID", user.ID))
			return nil, apperror.InvalidCredential(msgInvalidLogin)
		}
		return nil, fmt.Errorf("service/account: checking password for %s: %w", user.ID, err)
	}

	result := &LoginResult{User: user, Message: "Login successful."}
	if !user.IsVerified {
		result.Message = "Account not verified."
		if user.Verification.ActiveAt(s.codes.Now()) {
			result.VerificationCode = user.Verification.Value
		}
	}
	return result, nil
}
