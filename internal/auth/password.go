// Package auth holds the credential primitives: bcrypt password hashing, the
// password strength policy and one-time code generation.
//
// PASSWORD STORAGE:
// Accounts never store the plaintext password. Register and reset both hash
// with bcrypt, and login compares with bcrypt.CompareHashAndPassword, which
// runs in constant time. The stored value is self-describing:
//
//	$2a$12$<22-char salt><31-char hash>
//
// so changing the cost later only affects newly written hashes.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor used in production.
const defaultCost = 12

// maxPasswordBytes is bcrypt's input limit. Longer inputs would be silently
// truncated, so Hash rejects them instead.
const maxPasswordBytes = 72

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: password does not match")

// ErrUnusableHash is returned by Verify when the stored value is not a
// bcrypt hash, for example a plaintext password left by an older backend.
var ErrUnusableHash = errors.New("auth: stored password is not a bcrypt hash")

// ErrPasswordTooLong is returned by Hash for inputs bcrypt cannot represent.
var ErrPasswordTooLong = fmt.Errorf("auth: password must be %d bytes or fewer", maxPasswordBytes)

// PasswordService hashes and verifies account passwords.
type PasswordService struct {
	cost int
}

// NewPasswordService returns a PasswordService with the production cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest returns a PasswordService with a custom cost.
// Tests in other packages pass bcrypt.MinCost (4) to keep hashing fast.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash of plaintext.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil if plaintext matches hash, ErrPasswordMismatch if it
// does not, and ErrUnusableHash if hash is not a bcrypt hash at all.
//
//	if err := ps.Verify(user.PasswordHash, req.Password); err != nil {
//	    // treat every failure as invalid credentials
//	}
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return fmt.Errorf("%w: %w", ErrUnusableHash, err)
}
