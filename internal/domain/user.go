package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User represents a registered account
type User struct {
	ID           uuid.UUID
	Email        string // Unique email address
	PasswordHash string // Bcrypt hashed password (not returned in API)
	Active       bool   // Soft-disable flag; inactive users may not book
	Superuser    bool   // May act on reservations owned by others
	Verified     bool   // Email verification flag
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuthenticatedUser is the resolved caller identity attached to a request
// after token validation. Flags are loaded fresh from the store so a
// deactivated account loses booking rights before its token expires.
type AuthenticatedUser struct {
	ID        uuid.UUID
	Email     string
	Active    bool
	Superuser bool
	Verified  bool
}

// CanActFor reports whether the caller may create or modify a reservation
// owned by ownerID.
func (u *AuthenticatedUser) CanActFor(ownerID uuid.UUID) bool {
	if u == nil {
		return false
	}
	return u.Superuser || u.ID == ownerID
}

// UserRepository defines data access for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}
