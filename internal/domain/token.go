package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrTokenExists is returned when a refresh token hash collides with an
// existing record. Token values are generated from crypto/rand, so a
// collision means the generator is broken; callers must not retry.
var ErrTokenExists = errors.New("refresh token already exists")

// RefreshToken is one link in a token family: the set of refresh tokens
// descended, via rotation, from a single login. Only the newest link of a
// family should be unrevoked at any time.
type RefreshToken struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	TokenHash string     `json:"-"`
	Family    string     `json:"family"`
	ExpiresAt time.Time  `json:"expires_at"`
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsValid reports whether the token can still be used for rotation.
// Pure function of record state and the supplied clock.
func (t *RefreshToken) IsValid(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// RefreshTokenRepository is the session ledger: the durable record of every
// issued refresh token, its family lineage, expiry, and revocation status.
//
// Revoke is a compare-and-revoke: the update applies only while the row is
// still unrevoked, and the return value tells the caller whether it won.
// Two concurrent refreshes of the same token therefore resolve to exactly
// one winner; the loser must treat the token as already rotated.
type RefreshTokenRepository interface {
	Create(token *RefreshToken) error
	GetByTokenHash(tokenHash string) (*RefreshToken, error)
	GetByFamily(family string) (*RefreshToken, error)
	Revoke(id uuid.UUID) (won bool, err error)
	// Rotate revokes old and inserts next in a single transaction.
	// A lost compare-and-revoke aborts the insert and returns won=false.
	Rotate(old *RefreshToken, next *RefreshToken) (won bool, err error)
	DeleteByUserID(userID uuid.UUID) error
	DeleteByFamily(family string) error
}
