package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Uniqueness violations surfaced by the credential store. The orchestrator
// checks existence up front; these cover the insert race underneath.
var (
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"-"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserRepository is the credential store. Lookups never return
// soft-deleted users; users are never hard-deleted.
type UserRepository interface {
	Create(user *User) error
	GetByID(id uuid.UUID) (*User, error)
	GetByEmail(email string) (*User, error)
	GetByUsername(username string) (*User, error)
	ExistsByEmail(email string) (bool, error)
	ExistsByUsername(username string) (bool, error)
	UpdatePassword(id uuid.UUID, passwordHash string) error
	UpdateRole(id uuid.UUID, role Role) error
	SoftDelete(id uuid.UUID) error
	ListAll(limit, offset int) ([]*User, int, error)
}
