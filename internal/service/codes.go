// Package service contains the business logic of Showdex.
//
//	Handler (HTTP) → Service (rules) → Repository (store)
//
// Services take repository interfaces, never concrete stores, and return
// apperror values so the handler layer can pick the status code. They know
// nothing about HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/showdex/internal/apperror"
	"github.com/sakif/showdex/internal/auth"
	"github.com/sakif/showdex/internal/metrics"
	"github.com/sakif/showdex/internal/model"
	"github.com/sakif/showdex/internal/notify"
	"github.com/sakif/showdex/internal/repository"
)

// DefaultCodeTTL is how long verification codes and reset tokens stay valid.
const DefaultCodeTTL = 10 * time.Minute

// CodeIssuer generates one-time codes, writes them to accounts and emails
// them. It is shared by registration, resend and forgot password so every
// code follows the same lifecycle.
type CodeIssuer struct {
	users   repository.UserRepository
	sender  notify.Sender
	metrics *metrics.Metrics
	logger  *slog.Logger
	ttl     time.Duration

	now      func() time.Time
	generate func() (string, error)
}

// NewCodeIssuer returns an issuer using the wall clock and crypto/rand codes.
// A non-positive ttl falls back to DefaultCodeTTL. m may be nil.
func NewCodeIssuer(users repository.UserRepository, sender notify.Sender, m *metrics.Metrics, logger *slog.Logger, ttl time.Duration) *CodeIssuer {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &CodeIssuer{
		users:    users,
		sender:   sender,
		metrics:  m,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
		generate: auth.NewCode,
	}
}

// SetClock replaces the time source. Tests use it to step past expiries.
func (c *CodeIssuer) SetClock(now func() time.Time) {
	c.now = now
}

// TTL is the lifetime of every code this issuer hands out.
func (c *CodeIssuer) TTL() time.Duration {
	return c.ttl
}

// Now is the issuer's current time.
func (c *CodeIssuer) Now() time.Time {
	return c.now()
}

// next returns a fresh code expiring ttl after now.
func (c *CodeIssuer) next(now time.Time) (model.Code, error) {
	value, err := c.generate()
	if err != nil {
		return model.Code{}, err
	}
	return model.Code{Value: value, Expires: now.Add(c.ttl)}, nil
}

// issue writes a fresh code for purpose unless user already holds an active
// one. It reports whether a new code was written; if not, the returned code
// is the one still active.
func (c *CodeIssuer) issue(ctx context.Context, user *model.User, purpose model.CodePurpose) (model.Code, bool, error) {
	now := c.now()
	if current := user.Code(purpose); current.ActiveAt(now) {
		return current, false, nil
	}

	code, err := c.next(now)
	if err != nil {
		return model.Code{}, false, err
	}

	if err := c.users.IssueCode(ctx, user.ID, purpose, code, now); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			return model.Code{}, false, fmt.Errorf("service/codes: issuing %s code for user %s: %w", purpose, user.ID, err)
		}
		// A concurrent request issued a code after user was read.
		fresh, err := c.users.GetByID(ctx, user.ID)
		if err != nil {
			return model.Code{}, false, fmt.Errorf("service/codes: reloading user %s: %w", user.ID, err)
		}
		return fresh.Code(purpose), false, nil
	}

	user.SetCode(purpose, code)
	c.issued(user.ID, purpose, code)
	return code, true, nil
}

func (c *CodeIssuer) issued(userID string, purpose model.CodePurpose, code model.Code) {
	c.metrics.CodeIssued(string(purpose))
	c.logger.Info("code issued",
		slog.String("userID", userID),
		slog.String("purpose", string(purpose)),
		slog.Time("expires", code.Expires),
	)
}

// deliver renders and sends an email. The stored code is never rolled back
// when sending fails; the user can ask for it again once it expires.
func (c *CodeIssuer) deliver(ctx context.Context, msg notify.Message, renderErr error) error {
	if renderErr != nil {
		return fmt.Errorf("service/codes: %w", renderErr)
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		c.metrics.EmailFailed()
		c.logger.Error("sending email failed",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return apperror.Delivery(err)
	}
	return nil
}
