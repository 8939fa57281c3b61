package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/conorfennell/murajaah/internal/domain"
	"github.com/conorfennell/murajaah/internal/storage"
	"github.com/conorfennell/murajaah/internal/validate"
)

var (
	// ErrInvalidCredentials is returned for any failed sign in. It does not
	// say whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when signing up with an email already in use.
	ErrEmailTaken = errors.New("an account with this email already exists")
	// ErrInvalidSession is returned for a missing, expired or forged token.
	ErrInvalidSession = errors.New("invalid session")
)

// UserStore is the persistence the identity provider needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateUserDisplayName(ctx context.Context, id, name string) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	UpdateUserEmail(ctx context.Context, id, email string) error
}

// Config controls session issuing and password hashing.
type Config struct {
	Secret       string
	Issuer       string
	SessionTTL   time.Duration
	CookieName   string
	CookieSecure bool
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Service signs users up and in and issues session tokens.
type Service struct {
	users UserStore
	cfg   Config
	now   func() time.Time
}

// NewService creates an identity provider backed by users.
func NewService(users UserStore, cfg Config) (*Service, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("session secret must be at least 16 characters")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "murajaah_session"
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "murajaah"
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{users: users, cfg: cfg, now: time.Now}, nil
}

// SignUpRequest is the sign up form.
type SignUpRequest struct {
	DisplayName   string `form:"name" validate:"notblank,max=100"`
	Email         string `form:"email" validate:"required,email,max=254"`
	Password      string `form:"password" validate:"required,min=6,max=72"`
	AcceptTerms   bool   `form:"terms" validate:"required"`
	AcceptPrivacy bool   `form:"privacy" validate:"required"`
}

// SignUp creates a new account. Invalid input yields validate.FieldErrors.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*domain.User, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			slog.WarnContext(ctx, "Sign up with existing email", "email", req.Email)
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.InfoContext(ctx, "User signed up", "user_id", u.ID)
	return u, nil
}

// SignIn checks an email and password pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "Sign in failed: user not found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		slog.WarnContext(ctx, "Sign in failed: password mismatch", "user_id", u.ID)
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// User returns the account with the given id.
func (s *Service) User(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetUserByID(ctx, id)
}

type displayNameChange struct {
	DisplayName string `form:"name" validate:"notblank,max=100"`
}

// ChangeDisplayName renames an account.
func (s *Service) ChangeDisplayName(ctx context.Context, userID, name string) error {
	req := displayNameChange{DisplayName: strings.TrimSpace(name)}
	if err := validate.Struct(req); err != nil {
		return err
	}
	if err := s.users.UpdateUserDisplayName(ctx, userID, req.DisplayName); err != nil {
		return fmt.Errorf("failed to update display name: %w", err)
	}
	return nil
}

// PasswordChange is the change password form.
type PasswordChange struct {
	Current string `form:"current_password" validate:"required"`
	New     string `form:"new_password" validate:"required,min=6,max=72"`
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID string, req PasswordChange) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Current)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.New), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	slog.InfoContext(ctx, "Password changed", "user_id", userID)
	return nil
}

// EmailChange is the change email form.
type EmailChange struct {
	Email   string `form:"email" validate:"required,email,max=254"`
	Current string `form:"email_password" validate:"required"`
}

// ChangeEmail moves the account to a new email after checking the current
// password. A taken email yields ErrEmailTaken.
func (s *Service) ChangeEmail(ctx context.Context, userID string, req EmailChange) error {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return err
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Current)); err != nil {
		return ErrInvalidCredentials
	}
	if err := s.users.UpdateUserEmail(ctx, userID, req.Email); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to update email: %w", err)
	}
	slog.InfoContext(ctx, "Email changed", "user_id", userID)
	return nil
}

// IssueSession signs a session token for u and returns it with its expiry.
func (s *Service) IssueSession(u *domain.User) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.cfg.SessionTTL)
	claims := &jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   u.ID,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, expires, nil
}

// ParseSession verifies a session token and returns the user id it carries.
func (s *Service) ParseSession(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}
	return claims.Subject, nil
}
