// Package model defines the data structures used throughout the application.
package model

import "time"

// CodePurpose distinguishes the two independent one-time code slots a user
// carries. Each purpose has its own code and expiry; issuing or consuming one
// never touches the other.
type CodePurpose string

const (
	PurposeVerification CodePurpose = "verification"
	PurposeReset        CodePurpose = "reset"
)

// Code is a short-lived one-time code together with its expiry.
//
// The zero value means "no code". A non-empty Value always has a non-zero
// Expires; the stores write and clear both fields together.
type Code struct {
	Value   string    `json:"-"`
	Expires time.Time `json:"-"`
}

// IsZero reports whether no code is stored.
func (c Code) IsZero() bool {
	return c.Value == ""
}

// ActiveAt reports whether the code exists and its expiry is strictly after now.
func (c Code) ActiveAt(now time.Time) bool {
	return c.Value != "" && now.Before(c.Expires)
}

// ExpiredAt reports whether now has reached the expiry. The boundary instant
// itself counts as expired.
func (c Code) ExpiredAt(now time.Time) bool {
	return !now.Before(c.Expires)
}

// User represents a registered account.
//
// PasswordHash holds a bcrypt hash, never the plaintext password. It is
// excluded from JSON so a User can never leak it through a response.
type User struct {
	ID           string    `json:"id"`
	Login        string    `json:"login"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	IsVerified   bool      `json:"isVerified"`
	Verification Code      `json:"-"`
	Reset        Code      `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Code returns the code slot for the given purpose.
func (u *User) Code(purpose CodePurpose) Code {
	if purpose == PurposeReset {
		return u.Reset
	}
	return u.Verification
}

// SetCode replaces the code slot for the given purpose.
func (u *User) SetCode(purpose CodePurpose, c Code) {
	if purpose == PurposeReset {
		u.Reset = c
		return
	}
	u.Verification = c
}
