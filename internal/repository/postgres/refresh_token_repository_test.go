package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jokwangwon/portfolio-blog/internal/domain"
)

// Integration tests run against a real database when TEST_DATABASE_URL is
// set. The schema must already be migrated.

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL is not set; skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	t.Cleanup(pool.Close)
	return pool
}

// seedUser inserts a throwaway user and schedules removal of the user and
// every refresh token hanging off it.
func seedUser(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()

	id := uuid.New()
	user := &domain.User{
		ID:           id,
		Email:        fmt.Sprintf("%s@test.local", id),
		Username:     "it_" + id.String()[:8],
		PasswordHash: "x",
		Role:         domain.RoleUser,
	}
	require.NoError(t, NewUserRepository(pool).Create(user))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, id)
		pool.Exec(ctx, `DELETE FROM auth_events WHERE user_id = $1`, id)
		pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func seedToken(t *testing.T, repo *RefreshTokenRepository, userID uuid.UUID, family string) *domain.RefreshToken {
	t.Helper()

	token := &domain.RefreshToken{
		UserID:    userID,
		TokenHash: uuid.NewString(),
		Family:    family,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Create(token))
	return token
}

func TestRefreshTokenRepositoryRoundtrip(t *testing.T) {
	pool := testPool(t)
	repo := NewRefreshTokenRepository(pool)
	userID := seedUser(t, pool)

	created := seedToken(t, repo, userID, uuid.NewString())

	got, err := repo.GetByTokenHash(created.TokenHash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, created.Family, got.Family)
	assert.False(t, got.Revoked)
	assert.Nil(t, got.RevokedAt)

	missing, err := repo.GetByTokenHash("no-such-hash")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Duplicate hash is rejected by the unique constraint.
	err = repo.Create(&domain.RefreshToken{
		UserID:    userID,
		TokenHash: created.TokenHash,
		Family:    uuid.NewString(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrTokenExists)
}

func TestRefreshTokenRepositoryGetByFamilyNewest(t *testing.T) {
	pool := testPool(t)
	repo := NewRefreshTokenRepository(pool)
	userID := seedUser(t, pool)
	family := uuid.NewString()

	seedToken(t, repo, userID, family)
	time.Sleep(10 * time.Millisecond)
	newest := seedToken(t, repo, userID, family)

	got, err := repo.GetByFamily(family)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newest.ID, got.ID)
}

func TestRefreshTokenRepositoryRevokeOnce(t *testing.T) {
	pool := testPool(t)
	repo := NewRefreshTokenRepository(pool)
	userID := seedUser(t, pool)

	token := seedToken(t, repo, userID, uuid.NewString())

	won, err := repo.Revoke(token.ID)
	require.NoError(t, err)
	assert.True(t, won)

	// The second conditional update finds the flag already set.
	won, err = repo.Revoke(token.ID)
	require.NoError(t, err)
	assert.False(t, won)

	got, err := repo.GetByTokenHash(token.TokenHash)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.NotNil(t, got.RevokedAt)
}

func TestRefreshTokenRepositoryRotateConcurrent(t *testing.T) {
	pool := testPool(t)
	repo := NewRefreshTokenRepository(pool)
	userID := seedUser(t, pool)
	family := uuid.NewString()

	old := seedToken(t, repo, userID, family)

	const n = 8
	var wg sync.WaitGroup
	wins := make([]bool, n)

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			next := &domain.RefreshToken{
				UserID:    userID,
				TokenHash: uuid.NewString(),
				Family:    family,
				ExpiresAt: time.Now().Add(time.Hour),
			}
			won, err := repo.Rotate(old, next)
			assert.NoError(t, err)
			wins[i] = won
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	// Losing transactions rolled back their insert: the family holds the
	// revoked original plus exactly one live successor.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var total, unrevoked int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT revoked) FROM refresh_tokens WHERE family = $1`,
		family,
	).Scan(&total, &unrevoked))
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, unrevoked)
}

func TestRefreshTokenRepositoryDeleteByFamily(t *testing.T) {
	pool := testPool(t)
	repo := NewRefreshTokenRepository(pool)
	userID := seedUser(t, pool)
	family := uuid.NewString()
	other := uuid.NewString()

	seedToken(t, repo, userID, family)
	seedToken(t, repo, userID, family)
	kept := seedToken(t, repo, userID, other)

	require.NoError(t, repo.DeleteByFamily(family))

	gone, err := repo.GetByFamily(family)
	require.NoError(t, err)
	assert.Nil(t, gone)

	still, err := repo.GetByTokenHash(kept.TokenHash)
	require.NoError(t, err)
	assert.NotNil(t, still)
}
