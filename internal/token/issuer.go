package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jokwangwon/portfolio-blog/internal/config"
)

var ErrInvalidAccessToken = errors.New("invalid access token")

// refreshTokenBytes is the entropy of an opaque refresh token.
const refreshTokenBytes = 32

type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// Issuer mints signed access tokens and opaque refresh tokens. It is
// stateless: signing material and lifetimes come from the injected config,
// never from package-level state.
type Issuer struct {
	cfg *config.JWTConfig
}

func NewIssuer(cfg *config.JWTConfig) *Issuer {
	return &Issuer{cfg: cfg}
}

// IssueAccessToken returns a signed HS256 JWT and its lifetime in seconds.
func (i *Issuer) IssueAccessToken(userID uuid.UUID, role string) (string, int64, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.AccessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID.String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return "", 0, err
	}
	return signed, int64(i.cfg.AccessExpiry.Seconds()), nil
}

// IssueRefreshToken returns a fresh opaque refresh token: the plain value
// handed to the client, the SHA-256 hex persisted server-side, and the
// expiry. The plain value must never be stored.
func (i *Issuer) IssueRefreshToken() (plain, hash string, expiresAt time.Time, err error) {
	b := make([]byte, refreshTokenBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", time.Time{}, err
	}

	plain = base64.RawURLEncoding.EncodeToString(b)
	hash = HashToken(plain)
	expiresAt = time.Now().Add(i.cfg.RefreshExpiry)
	return plain, hash, expiresAt, nil
}

// ParseAccessToken verifies signature and expiry and returns the claims.
func (i *Issuer) ParseAccessToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidAccessToken
		}
		return []byte(i.cfg.Secret), nil
	})
	if err != nil {
		return nil, ErrInvalidAccessToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// HashToken maps a plain refresh token to its stored form.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
