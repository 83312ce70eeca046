// Package account defines the credential record and the store contract the
// engine consumes. Storage itself lives outside this package.
package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by finders when no record matches.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate is returned by Insert and Update when a unique field
	// collides with another record.
	ErrDuplicate = errors.New("account already exists")
)

// Role is the closed set of account roles.
type Role string

const (
	RoleEndUser       Role = "end_user"
	RoleOrganization  Role = "organization"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleEndUser, RoleOrganization, RoleAdministrator:
		return true
	}
	return false
}

// Status is the validation status of an account.
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusRejected  Status = "rejected"
)

// Record is a credential record. PasswordHash holds either an argon2id PHC
// string or, for records not yet migrated, a legacy plaintext value.
type Record struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Status       Status
	DisplayName  string
	NationalID   string
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Update lists the fields to change. Nil fields are left untouched.
type Update struct {
	Email        *string
	PasswordHash *string
	Status       *Status
}

// Apply writes the non-nil fields of u into r.
func (u Update) Apply(r *Record) {
	if u.Email != nil {
		r.Email = *u.Email
	}
	if u.PasswordHash != nil {
		r.PasswordHash = *u.PasswordHash
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
}

// IsEmpty reports whether u changes nothing.
func (u Update) IsEmpty() bool {
	return u.Email == nil && u.PasswordHash == nil && u.Status == nil
}

// Store is the external user record store. Implementations enforce email
// uniqueness (and national id / phone uniqueness when set) as a backstop by
// returning ErrDuplicate.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Record, error)
	FindByID(ctx context.Context, id string) (*Record, error)
	FindByNationalID(ctx context.Context, nationalID string) (*Record, error)
	FindByPhone(ctx context.Context, phone string) (*Record, error)
	Insert(ctx context.Context, r Record) (string, error)
	Update(ctx context.Context, id string, u Update) error
}

// NormalizeEmail is the canonical form used for lookups and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
