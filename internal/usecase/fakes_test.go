package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jokwangwon/portfolio-blog/internal/domain"
)

// fakeUserRepo is an in-memory credential store for tests.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (f *fakeUserRepo) Create(user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == user.Email {
			return domain.ErrEmailExists
		}
		if u.Username == user.Username {
			return domain.ErrUsernameExists
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == email && u.DeletedAt == nil {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) GetByUsername(username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Username == username && u.DeletedAt == nil {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) ExistsByEmail(email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) ExistsByUsername(username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) UpdatePassword(id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.users[id]; ok && u.DeletedAt == nil {
		u.PasswordHash = passwordHash
		u.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeUserRepo) UpdateRole(id uuid.UUID, role domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.users[id]; ok && u.DeletedAt == nil {
		u.Role = role
		u.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeUserRepo) SoftDelete(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.users[id]; ok && u.DeletedAt == nil {
		now := time.Now()
		u.DeletedAt = &now
	}
	return nil
}

func (f *fakeUserRepo) ListAll(limit, offset int) ([]*domain.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var users []*domain.User
	for _, u := range f.users {
		if u.DeletedAt == nil {
			cp := *u
			users = append(users, &cp)
		}
	}
	return users, len(users), nil
}

// fakeTokenRepo is an in-memory session ledger. Revoke and Rotate hold the
// lock across the read-check-write, matching the conditional-update
// semantics of the Postgres implementation.
type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*domain.RefreshToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[uuid.UUID]*domain.RefreshToken)}
}

func (f *fakeTokenRepo) Create(token *domain.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createLocked(token)
}

func (f *fakeTokenRepo) createLocked(token *domain.RefreshToken) error {
	for _, t := range f.tokens {
		if t.TokenHash == token.TokenHash {
			return domain.ErrTokenExists
		}
	}
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.CreatedAt = time.Now()
	cp := *token
	f.tokens[token.ID] = &cp
	return nil
}

func (f *fakeTokenRepo) GetByTokenHash(tokenHash string) (*domain.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range f.tokens {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeTokenRepo) GetByFamily(family string) (*domain.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var newest *domain.RefreshToken
	for _, t := range f.tokens {
		if t.Family != family {
			continue
		}
		if newest == nil || t.CreatedAt.After(newest.CreatedAt) {
			newest = t
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (f *fakeTokenRepo) Revoke(id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokeLocked(id), nil
}

func (f *fakeTokenRepo) revokeLocked(id uuid.UUID) bool {
	t, ok := f.tokens[id]
	if !ok || t.Revoked {
		return false
	}
	now := time.Now()
	t.Revoked = true
	t.RevokedAt = &now
	return true
}

func (f *fakeTokenRepo) Rotate(old *domain.RefreshToken, next *domain.RefreshToken) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.revokeLocked(old.ID) {
		return false, nil
	}
	if err := f.createLocked(next); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeTokenRepo) DeleteByUserID(userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, t := range f.tokens {
		if t.UserID == userID {
			delete(f.tokens, id)
		}
	}
	return nil
}

func (f *fakeTokenRepo) DeleteByFamily(family string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, t := range f.tokens {
		if t.Family == family {
			delete(f.tokens, id)
		}
	}
	return nil
}

func (f *fakeTokenRepo) familyTokens(family string) []*domain.RefreshToken {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*domain.RefreshToken
	for _, t := range f.tokens {
		if t.Family == family {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

func (f *fakeTokenRepo) unrevokedByUser(userID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, t := range f.tokens {
		if t.UserID == userID && !t.Revoked {
			n++
		}
	}
	return n
}

// fakeEventRepo records auth events in memory.
type fakeEventRepo struct {
	mu     sync.Mutex
	events []*domain.AuthEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{}
}

func (f *fakeEventRepo) Create(event *domain.AuthEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()
	cp := *event
	f.events = append(f.events, &cp)
	return nil
}

func (f *fakeEventRepo) ListRecent(limit, offset int) ([]*domain.AuthEvent, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.AuthEvent(nil), f.events...), len(f.events), nil
}

func (f *fakeEventRepo) ListByUser(userID uuid.UUID, limit, offset int) ([]*domain.AuthEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*domain.AuthEvent
	for _, e := range f.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) CountByKind(since time.Time) (map[domain.AuthEventKind]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make(map[domain.AuthEventKind]int)
	for _, e := range f.events {
		if !e.CreatedAt.Before(since) {
			result[e.Kind]++
		}
	}
	return result, nil
}

func (f *fakeEventRepo) kinds() []domain.AuthEventKind {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.AuthEventKind
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}
