package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/showdex/internal/apperror"
	"github.com/sakif/showdex/internal/model"
	"github.com/sakif/showdex/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

const userColumns = `id, login, email, password_hash, first_name, last_name, is_verified,
	verification_code, verification_expires_at, reset_token, reset_expires_at,
	created_at, updated_at`

// codeColumns maps a purpose to its (code, expiry) column pair.
func codeColumns(purpose model.CodePurpose) (string, string, error) {
	switch purpose {
	case model.PurposeVerification:
		return "verification_code", "verification_expires_at", nil
	case model.PurposeReset:
		return "reset_token", "reset_expires_at", nil
	}
	return "", "", fmt.Errorf("sqlite: unknown code purpose %q", purpose)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                    model.User
		verifyCode, resetTok sql.NullString
		verifyExp, resetExp  sql.NullInt64
	)
	err := row.Scan(
		&u.ID, &u.Login, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsVerified,
		&verifyCode, &verifyExp, &resetTok, &resetExp,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if verifyCode.Valid {
		u.Verification = model.Code{Value: verifyCode.String, Expires: fromNanos(verifyExp)}
	}
	if resetTok.Valid {
		u.Reset = model.Code{Value: resetTok.String, Expires: fromNanos(resetExp)}
	}
	return &u, nil
}

// nullCode converts a Code into the nullable column values stored for it.
func nullCode(c model.Code) (sql.NullString, sql.NullInt64) {
	if c.IsZero() {
		return sql.NullString{}, sql.NullInt64{}
	}
	return sql.NullString{String: c.Value, Valid: true}, sql.NullInt64{Int64: nanos(c.Expires), Valid: true}
}

// Create inserts a new user. The caller generates user.ID; a clash on id,
// login or email comes back as apperror.ErrConflict naming the field.
func (s *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	verifyCode, verifyExp := nullCode(user.Verification)
	resetTok, resetExp := nullCode(user.Reset)

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Login, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.IsVerified,
		verifyCode, verifyExp, resetTok, resetExp,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if msg, ok := uniqueViolation(err); ok {
			switch {
			case violates(msg, "users.login"):
				return apperror.Conflict("login", "Username already exists")
			case violates(msg, "users.email"):
				return apperror.Conflict("email", "Email already exists")
			default:
				return apperror.Conflict("id", "User ID already exists")
			}
		}
		return fmt.Errorf("sqlite: inserting user (login=%s): %w", user.Login, err)
	}
	return nil
}

// GetByID returns apperror.ErrNotFound if no user has that ID.
func (s *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

func (s *UserDB) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	u, err := scanUser(s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE login = ?`, login,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("user", login)
		}
		return nil, fmt.Errorf("sqlite: getting user by login: %w", err)
	}
	return u, nil
}

// GetByIdentifier matches login or email. When one account has the
// identifier as login and another has it as email, the login match wins.
func (s *UserDB) GetByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	u, err := scanUser(s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE login = ? OR email = ?
		 ORDER BY (login = ?) DESC
		 LIMIT 1`,
		identifier, identifier, identifier,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("user", identifier)
		}
		return nil, fmt.Errorf("sqlite: getting user by identifier: %w", err)
	}
	return u, nil
}

func (s *UserDB) FindByCode(ctx context.Context, purpose model.CodePurpose, identifier, code string) (*model.User, error) {
	codeCol, _, err := codeColumns(purpose)
	if err != nil {
		return nil, err
	}

	u, err := scanUser(s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE (login = ? OR email = ?) AND `+codeCol+` = ?
		 LIMIT 1`,
		identifier, identifier, code,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("user", identifier)
		}
		return nil, fmt.Errorf("sqlite: finding user by %s code: %w", purpose, err)
	}
	return u, nil
}

// IssueCode writes the code only if the slot is empty or expired at now.
// The condition lives in the UPDATE's WHERE clause, so two concurrent
// requests cannot both issue.
func (s *UserDB) IssueCode(ctx context.Context, userID string, purpose model.CodePurpose, code model.Code, now time.Time) error {
	codeCol, expCol, err := codeColumns(purpose)
	if err != nil {
		return err
	}

	result, err := s.conn.ExecContext(ctx,
		`UPDATE users SET `+codeCol+` = ?, `+expCol+` = ?, updated_at = ?
		 WHERE id = ? AND (`+codeCol+` IS NULL OR `+expCol+` IS NULL OR `+expCol+` <= ?)`,
		code.Value, nanos(code.Expires), time.Now().UTC(),
		userID, nanos(now),
	)
	if err != nil {
		return fmt.Errorf("sqlite: issuing %s code for user %s: %w", purpose, userID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Nothing updated: either the user is gone or a code is still active.
	if _, err := s.GetByID(ctx, userID); err != nil {
		return err
	}
	return apperror.Conflict("code", fmt.Sprintf("an active %s code already exists", purpose))
}

func (s *UserDB) ConsumeVerification(ctx context.Context, userID, code string) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE users
		 SET is_verified = 1, verification_code = NULL, verification_expires_at = NULL, updated_at = ?
		 WHERE id = ? AND verification_code = ?`,
		time.Now().UTC(), userID, code,
	)
	if err != nil {
		return fmt.Errorf("sqlite: consuming verification code for user %s: %w", userID, err)
	}
	return requireOneRow(result, "verification code", userID)
}

func (s *UserDB) ConsumeReset(ctx context.Context, userID, token, passwordHash string) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE users
		 SET password_hash = ?, reset_token = NULL, reset_expires_at = NULL, updated_at = ?
		 WHERE id = ? AND reset_token = ?`,
		passwordHash, time.Now().UTC(), userID, token,
	)
	if err != nil {
		return fmt.Errorf("sqlite: consuming reset token for user %s: %w", userID, err)
	}
	return requireOneRow(result, "reset token", userID)
}

// requireOneRow turns "the WHERE clause matched nothing" into ErrNotFound.
func requireOneRow(result sql.Result, resource, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return notFound(resource, id)
	}
	return nil
}
