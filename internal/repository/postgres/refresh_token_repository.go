package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jokwangwon/portfolio-blog/internal/domain"
)

// RefreshTokenRepository is the Postgres session ledger.
//
// Revocation is a conditional update on the revoked flag, so two concurrent
// rotations of the same token resolve to exactly one winner at the database.
type RefreshTokenRepository struct {
	db *pgxpool.Pool
}

func NewRefreshTokenRepository(db *pgxpool.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const tokenColumns = `id, user_id, token_hash, family, expires_at, revoked, revoked_at, created_at`

func scanToken(row pgx.Row) (*domain.RefreshToken, error) {
	token := &domain.RefreshToken{}
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.Family,
		&token.ExpiresAt,
		&token.Revoked,
		&token.RevokedAt,
		&token.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (r *RefreshTokenRepository) Create(token *domain.RefreshToken) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.CreatedAt = time.Now()

	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, family, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`
	_, err := r.db.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.Family,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrTokenExists
	}
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) GetByTokenHash(tokenHash string) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	return scanToken(r.db.QueryRow(ctx, query, tokenHash))
}

func (r *RefreshTokenRepository) GetByFamily(family string) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE family = $1 ORDER BY created_at DESC LIMIT 1`
	return scanToken(r.db.QueryRow(ctx, query, family))
}

// Revoke flips the revoked flag only if it is still clear. The returned
// bool reports whether this caller's update applied; false means the token
// was already revoked and the caller lost the rotation race.
func (r *RefreshTokenRepository) Revoke(id uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`
	tag, err := r.db.Exec(ctx, query, id, time.Now())
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Rotate revokes old and inserts next within one transaction. When the
// conditional revoke touches zero rows another caller already rotated the
// token; the transaction rolls back and no new record is written.
func (r *RefreshTokenRepository) Rotate(old *domain.RefreshToken, next *domain.RefreshToken) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin rotation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`,
		old.ID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("rotate: revoke old token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	next.CreatedAt = time.Now()

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, family, expires_at, revoked, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		next.ID, next.UserID, next.TokenHash, next.Family, next.ExpiresAt, next.CreatedAt,
	)
	if isUniqueViolation(err) {
		return false, domain.ErrTokenExists
	}
	if err != nil {
		return false, fmt.Errorf("rotate: insert new token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit rotation: %w", err)
	}
	return true, nil
}

func (r *RefreshTokenRepository) DeleteByUserID(userID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `DELETE FROM refresh_tokens WHERE user_id = $1`
	_, err := r.db.Exec(ctx, query, userID)
	return err
}

func (r *RefreshTokenRepository) DeleteByFamily(family string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `DELETE FROM refresh_tokens WHERE family = $1`
	_, err := r.db.Exec(ctx, query, family)
	return err
}

func (r *RefreshTokenRepository) DeleteExpired() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `DELETE FROM refresh_tokens WHERE expires_at < NOW()`
	_, err := r.db.Exec(ctx, query)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
