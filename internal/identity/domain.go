// Package identity implements the account core of the platform:
// registration, credential storage and verification, and login.
package identity

import (
	"errors"
	"fmt"
	"time"
)

// Role values assignable to an account.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Account is the persisted identity entity.
type Account struct {
	ID               string
	Email            string
	Username         string
	CredentialDigest string
	DisplayName      string
	City             string
	Region           string
	Country          string
	Role             string
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastLoginAt      *time.Time
}

var (
	// ErrNotFound indicates the requested account does not exist.
	ErrNotFound = errors.New("identity: account not found")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("identity: email already registered")
	// ErrDuplicateUsername indicates the username is already taken.
	ErrDuplicateUsername = errors.New("identity: username already taken")
	// ErrInvalidCredentials is the uniform login failure. It covers both
	// an unknown email and a wrong password and must stay
	// indistinguishable between the two.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrAuthUnavailable indicates a storage failure during login,
	// distinct from a credentials failure.
	ErrAuthUnavailable = errors.New("identity: authentication unavailable")
	// ErrStoreUnavailable indicates a connectivity or timeout failure
	// talking to the store. The caller may retry; nothing here does.
	ErrStoreUnavailable = errors.New("identity: store unavailable")
	// ErrEncoding indicates a secret that cannot be represented under
	// the password string profile.
	ErrEncoding = errors.New("identity: malformed secret encoding")
)

// ConflictError is the storage-native uniqueness violation surfaced by
// the repository. The service translates it into ErrDuplicateEmail or
// ErrDuplicateUsername; nothing else should interpret it.
type ConflictError struct {
	Constraint string
	Field      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("identity: unique constraint %s violated on %s", e.Constraint, e.Field)
}
