// Package auth verifies credentials and manages the session lifecycle. The
// authoritative session state lives solely in the repository; nothing here is
// cached across requests.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"inventario/internal/domain"
	"inventario/internal/store"
	"inventario/internal/token"
)

// ErrInvalidCredentials deliberately covers both unknown-user and
// wrong-password so callers cannot enumerate usernames.
var ErrInvalidCredentials = errors.New("invalid credentials")

const DefaultSessionTTL = 12 * time.Hour

// Defaults are the bootstrap credentials used when no admin or seller exists
// yet. The hardcoded fallbacks are a first-run convenience only.
type Defaults struct {
	AdminUser      string
	AdminPassword  string
	SellerUser     string
	SellerPassword string
}

func (d Defaults) withFallbacks() Defaults {
	if d.AdminUser == "" {
		d.AdminUser = "admin"
	}
	if d.AdminPassword == "" {
		d.AdminPassword = "admin123"
	}
	if d.SellerUser == "" {
		d.SellerUser = "seller"
	}
	if d.SellerPassword == "" {
		d.SellerPassword = "seller123"
	}
	return d
}

type Service struct {
	repo     store.Repository
	ttl      time.Duration
	defaults Defaults
}

func New(repo store.Repository, ttl time.Duration, defaults Defaults) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{repo: repo, ttl: ttl, defaults: defaults.withFallbacks()}
}

func (s *Service) Login(ctx context.Context, username string, password string) (*domain.SessionUser, *domain.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return &domain.SessionUser{ID: user.ID, Username: user.Username, Role: user.Role}, session, nil
}

// CreateSession issues a fresh token and opportunistically sweeps expired
// rows. The sweep is best effort; a failure must not block login.
func (s *Service) CreateSession(ctx context.Context, userID string) (*domain.Session, error) {
	now := time.Now().UTC()
	if err := s.repo.DeleteExpiredSessions(ctx, now); err != nil {
		log.Warn().Err(err).Msg("expired session cleanup failed")
	}

	session := domain.Session{
		Token:     token.NewSession(),
		UserID:    userID,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CurrentUser resolves a token to its user, or nil for missing, unknown and
// expired tokens alike.
func (s *Service) CurrentUser(ctx context.Context, sessionToken string) (*domain.SessionUser, error) {
	if sessionToken == "" {
		return nil, nil
	}
	user, err := s.repo.GetUserBySessionToken(ctx, sessionToken, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// Logout deletes the session row. Deleting a token that no longer exists is
// not an error.
func (s *Service) Logout(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	return s.repo.DeleteSession(ctx, sessionToken)
}

// EnsureDefaultUsers provisions one admin and one seller if none exist. It is
// safe to call concurrently: the unique username constraint, not a lock, is
// what prevents duplicates.
func (s *Service) EnsureDefaultUsers(ctx context.Context) error {
	if err := s.ensureRole(ctx, domain.RoleAdmin, s.defaults.AdminUser, s.defaults.AdminPassword); err != nil {
		return err
	}
	return s.ensureRole(ctx, domain.RoleSeller, s.defaults.SellerUser, s.defaults.SellerPassword)
}

func (s *Service) ensureRole(ctx context.Context, role string, username string, password string) error {
	exists, err := s.repo.HasUserWithRole(ctx, role)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	err = s.repo.CreateUser(ctx, domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return err
	}
	if err == nil {
		log.Info().Str("role", role).Str("username", username).Msg("bootstrap user created")
	}
	return nil
}
