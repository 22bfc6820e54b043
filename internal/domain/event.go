package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuthEventKind string

const (
	AuthEventSignup         AuthEventKind = "signup"
	AuthEventLogin          AuthEventKind = "login"
	AuthEventRefresh        AuthEventKind = "refresh"
	AuthEventLogout         AuthEventKind = "logout"
	AuthEventReplayDetected AuthEventKind = "replay_detected"
)

// AuthEvent is an append-only audit row. Event writes are best-effort:
// a failed insert must never fail the flow that produced it.
type AuthEvent struct {
	ID        uuid.UUID     `json:"id"`
	UserID    uuid.UUID     `json:"user_id"`
	Kind      AuthEventKind `json:"kind"`
	IPAddress string        `json:"ip_address,omitempty"`
	UserAgent string        `json:"user_agent,omitempty"`
	CreatedAt time.Time     `json:"created_at"`

	// Filled by joins on admin listings.
	UserEmail    string `json:"user_email,omitempty"`
	UserUsername string `json:"user_username,omitempty"`
}

type AuthEventRepository interface {
	Create(event *AuthEvent) error
	ListRecent(limit, offset int) ([]*AuthEvent, int, error)
	ListByUser(userID uuid.UUID, limit, offset int) ([]*AuthEvent, error)
	CountByKind(since time.Time) (map[AuthEventKind]int, error)
}
