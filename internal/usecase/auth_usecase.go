package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jokwangwon/portfolio-blog/internal/domain"
	"github.com/jokwangwon/portfolio-blog/internal/metrics"
	"github.com/jokwangwon/portfolio-blog/internal/token"
)

var (
	ErrEmailTaken         = errors.New("email already exists")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid refresh token")
	ErrUserNotFound       = errors.New("user not found")
)

// ErrTokenReplayed marks a refresh token presented after it was already
// rotated. It unwraps to ErrInvalidToken: clients only ever see the generic
// failure, while the orchestrator wipes the family as a side effect.
var ErrTokenReplayed = fmt.Errorf("refresh token replayed: %w", ErrInvalidToken)

// Client carries per-request caller metadata for the audit log.
type Client struct {
	IP        string
	UserAgent string
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AuthUsecase drives signup, login, refresh and logout over the credential
// store, the token issuer and the session ledger.
type AuthUsecase struct {
	userRepo  domain.UserRepository
	tokenRepo domain.RefreshTokenRepository
	eventRepo domain.AuthEventRepository
	issuer    *token.Issuer
	logger    *zap.Logger
}

func NewAuthUsecase(
	userRepo domain.UserRepository,
	tokenRepo domain.RefreshTokenRepository,
	eventRepo domain.AuthEventRepository,
	issuer *token.Issuer,
	logger *zap.Logger,
) *AuthUsecase {
	return &AuthUsecase{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		eventRepo: eventRepo,
		issuer:    issuer,
		logger:    logger,
	}
}

// Signup registers a new user and logs them straight in.
func (u *AuthUsecase) Signup(email, username, password string, client Client) (*domain.User, *TokenPair, error) {
	if taken, err := u.userRepo.ExistsByEmail(email); err != nil {
		return nil, nil, err
	} else if taken {
		return nil, nil, ErrEmailTaken
	}
	if taken, err := u.userRepo.ExistsByUsername(username); err != nil {
		return nil, nil, err
	} else if taken {
		return nil, nil, ErrUsernameTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}

	user := &domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hashed),
		Role:         domain.RoleUser,
	}
	if err := u.userRepo.Create(user); err != nil {
		// The exists checks race against concurrent signups; the unique
		// constraints are the backstop.
		if errors.Is(err, domain.ErrEmailExists) {
			return nil, nil, ErrEmailTaken
		}
		if errors.Is(err, domain.ErrUsernameExists) {
			return nil, nil, ErrUsernameTaken
		}
		return nil, nil, err
	}

	u.logger.Info("user registered", zap.String("username", user.Username))
	metrics.SignupsTotal.Inc()
	u.recordEvent(user.ID, domain.AuthEventSignup, client)

	tokens, err := u.startFamily(user, client)
	if err != nil {
		// The user row is already committed at this point, so a retry of
		// signup reports the email as taken. The credentials themselves
		// stay usable: the account recovers through a normal login.
		u.logger.Error("signup session could not be opened",
			zap.Error(err), zap.String("username", user.Username))
		return nil, nil, err
	}
	return user, tokens, nil
}

// Login verifies credentials and opens a fresh token family. Unknown user
// and wrong password are indistinguishable to the caller.
func (u *AuthUsecase) Login(username, password string, client Client) (*domain.User, *TokenPair, error) {
	user, err := u.userRepo.GetByUsername(username)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return nil, nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		u.logger.Warn("invalid password attempt", zap.String("username", username))
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := u.startFamily(user, client)
	if err != nil {
		return nil, nil, err
	}

	u.logger.Info("user authenticated", zap.String("username", username))
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	u.recordEvent(user.ID, domain.AuthEventLogin, client)

	return user, tokens, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// one is issued under the same family. A token can rotate exactly once; any
// second presentation is treated as theft and the whole family is wiped.
func (u *AuthUsecase) Refresh(refreshToken string, client Client) (*TokenPair, error) {
	record, err := u.tokenRepo.GetByTokenHash(token.HashToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrInvalidToken
	}

	if record.Revoked {
		return nil, u.handleReplay(record, client)
	}
	if !record.IsValid(time.Now()) {
		// Expired but never reused: not a theft signal, the family stays.
		return nil, ErrInvalidToken
	}

	user, err := u.userRepo.GetByID(record.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	accessToken, expiresIn, err := u.issuer.IssueAccessToken(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	plain, hash, expiresAt, err := u.issuer.IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	next := &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: hash,
		Family:    record.Family,
		ExpiresAt: expiresAt,
	}
	won, err := u.tokenRepo.Rotate(record, next)
	if err != nil {
		return nil, err
	}
	if !won {
		// Another caller rotated this token between our read and the
		// conditional revoke. That caller holds the live tail of the
		// family, so the family survives; only this request fails.
		u.logger.Warn("lost refresh rotation race", zap.String("family", record.Family))
		return nil, ErrInvalidToken
	}

	u.logger.Info("token refreshed", zap.String("username", user.Username))
	metrics.TokenRotationsTotal.Inc()
	u.recordEvent(user.ID, domain.AuthEventRefresh, client)

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: plain,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	}, nil
}

// Logout tears down the presented token's entire family, closing every
// token ever issued along that login's lineage.
func (u *AuthUsecase) Logout(refreshToken string, client Client) error {
	record, err := u.tokenRepo.GetByTokenHash(token.HashToken(refreshToken))
	if err != nil {
		return err
	}
	if record == nil {
		return ErrInvalidToken
	}

	if err := u.tokenRepo.DeleteByFamily(record.Family); err != nil {
		return err
	}

	u.logger.Info("user logged out", zap.String("user_id", record.UserID.String()))
	u.recordEvent(record.UserID, domain.AuthEventLogout, client)
	return nil
}

// ChangePassword updates the hash and tears down every session of the user.
func (u *AuthUsecase) ChangePassword(userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := u.userRepo.GetByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := u.userRepo.UpdatePassword(userID, string(hashed)); err != nil {
		return err
	}

	u.logger.Info("password changed", zap.String("user_id", userID.String()))
	return u.tokenRepo.DeleteByUserID(userID)
}

// ChangeRole updates the role and force-logs the user out everywhere.
func (u *AuthUsecase) ChangeRole(userID uuid.UUID, role domain.Role) error {
	user, err := u.userRepo.GetByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if err := u.userRepo.UpdateRole(userID, role); err != nil {
		return err
	}
	return u.tokenRepo.DeleteByUserID(userID)
}

// DeactivateUser soft-deletes the user and removes every refresh record
// they own.
func (u *AuthUsecase) DeactivateUser(userID uuid.UUID) error {
	user, err := u.userRepo.GetByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if err := u.userRepo.SoftDelete(userID); err != nil {
		return err
	}
	return u.tokenRepo.DeleteByUserID(userID)
}

func (u *AuthUsecase) ValidateAccessToken(tokenString string) (*token.Claims, error) {
	claims, err := u.issuer.ParseAccessToken(tokenString)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (u *AuthUsecase) GetUserByID(id uuid.UUID) (*domain.User, error) {
	return u.userRepo.GetByID(id)
}

// startFamily issues a token pair and records the refresh token under a
// brand-new family id.
func (u *AuthUsecase) startFamily(user *domain.User, client Client) (*TokenPair, error) {
	accessToken, expiresIn, err := u.issuer.IssueAccessToken(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	plain, hash, expiresAt, err := u.issuer.IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	record := &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: hash,
		Family:    uuid.NewString(),
		ExpiresAt: expiresAt,
	}
	if err := u.tokenRepo.Create(record); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: plain,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	}, nil
}

// handleReplay wipes the family of a token that was presented after being
// rotated away and returns the replay error.
func (u *AuthUsecase) handleReplay(record *domain.RefreshToken, client Client) error {
	u.logger.Warn("refresh token replay detected, wiping family",
		zap.String("user_id", record.UserID.String()),
		zap.String("family", record.Family),
	)
	metrics.ReplayDetectedTotal.Inc()
	u.recordEvent(record.UserID, domain.AuthEventReplayDetected, client)

	if err := u.tokenRepo.DeleteByFamily(record.Family); err != nil {
		return err
	}
	return ErrTokenReplayed
}

func (u *AuthUsecase) recordEvent(userID uuid.UUID, kind domain.AuthEventKind, client Client) {
	if u.eventRepo == nil {
		return
	}
	event := &domain.AuthEvent{
		UserID:    userID,
		Kind:      kind,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
	}
	if err := u.eventRepo.Create(event); err != nil {
		u.logger.Error("failed to record auth event", zap.Error(err), zap.String("kind", string(kind)))
	}
}
