package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jokwangwon/portfolio-blog/internal/domain"
)

type AuthEventRepository struct {
	db *pgxpool.Pool
}

func NewAuthEventRepository(db *pgxpool.Pool) *AuthEventRepository {
	return &AuthEventRepository{db: db}
}

func (r *AuthEventRepository) Create(event *domain.AuthEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()

	query := `
		INSERT INTO auth_events (id, user_id, kind, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		event.ID, event.UserID, event.Kind, event.IPAddress, event.UserAgent, event.CreatedAt,
	)
	return err
}

func (r *AuthEventRepository) ListRecent(limit, offset int) ([]*domain.AuthEvent, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM auth_events`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ae.id, ae.user_id, ae.kind, ae.ip_address, ae.user_agent, ae.created_at,
		       COALESCE(u.email, '') AS user_email, COALESCE(u.username, '') AS user_username
		FROM auth_events ae
		LEFT JOIN users u ON u.id = ae.user_id
		ORDER BY ae.created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*domain.AuthEvent
	for rows.Next() {
		e := &domain.AuthEvent{}
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Kind, &e.IPAddress, &e.UserAgent, &e.CreatedAt,
			&e.UserEmail, &e.UserUsername,
		); err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	return events, total, nil
}

func (r *AuthEventRepository) ListByUser(userID uuid.UUID, limit, offset int) ([]*domain.AuthEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, user_id, kind, ip_address, user_agent, created_at
		FROM auth_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.AuthEvent
	for rows.Next() {
		e := &domain.AuthEvent{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func (r *AuthEventRepository) CountByKind(since time.Time) (map[domain.AuthEventKind]int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT kind, COUNT(*) FROM auth_events
		WHERE created_at >= $1
		GROUP BY kind
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[domain.AuthEventKind]int)
	for rows.Next() {
		var kind domain.AuthEventKind
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		result[kind] = count
	}
	return result, nil
}
