package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/bookingsystem/internal/domain"
	"github.com/yourorg/bookingsystem/internal/security/auth"
	"golang.org/x/crypto/bcrypt"
)

const tokenLifetime = time.Hour

// AuthService is the identity gate: it registers accounts, issues bearer
// tokens, and resolves tokens back into caller identities for the
// booking engine.
type AuthService struct {
	users  domain.UserRepository
	tokens *auth.TokenManager
	logger *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(users domain.UserRepository, tokens *auth.TokenManager, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{users: users, tokens: tokens, logger: logger}
}

// RegisterResult represents registration response
type RegisterResult struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

// LoginResult represents login response
type LoginResult struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"` // seconds
	TokenType string `json:"token_type"`
}

// Register creates a new account. New users start active and unverified.
func (s *AuthService) Register(ctx context.Context, email, password string) (*RegisterResult, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, errors.New("failed to register user")
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		s.logger.Error("failed to create user", slog.String("error", err.Error()))
		return nil, errors.New("failed to register user")
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, err
	}

	return &RegisterResult{
		UserID: user.ID.String(),
		Email:  user.Email,
		Token:  token,
	}, nil
}

// Login authenticates a user and returns a bearer token
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, domain.ErrAuthentication
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Info("login attempt with non-existent email", slog.String("email", email))
		return nil, domain.ErrAuthentication
	}
	if !user.Active {
		s.logger.Info("login attempt on deactivated account", slog.String("email", email))
		return nil, domain.ErrAuthentication
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed with wrong password", slog.String("email", email))
		return nil, domain.ErrAuthentication
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID.String()),
		slog.String("email", user.Email),
	)

	return &LoginResult{
		UserID:    user.ID.String(),
		Email:     user.Email,
		Token:     token,
		ExpiresIn: int(tokenLifetime.Seconds()),
		TokenType: "Bearer",
	}, nil
}

// Resolve turns a bearer token into a caller identity. Flags come from
// the store, not the token, so deactivation takes effect immediately.
func (s *AuthService) Resolve(ctx context.Context, tokenString string) (*domain.AuthenticatedUser, error) {
	claims, err := s.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", domain.ErrAuthentication)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown user", domain.ErrAuthentication)
	}

	return &domain.AuthenticatedUser{
		ID:        user.ID,
		Email:     user.Email,
		Active:    user.Active,
		Superuser: user.Superuser,
		Verified:  user.Verified,
	}, nil
}

// ChangePassword changes a user's password
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return errors.New("new password must be at least 8 characters")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.ErrNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return errors.New("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.String("error", err.Error()))
		return errors.New("failed to change password")
	}

	user.PasswordHash = string(hash)
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Error("failed to update user password", slog.String("error", err.Error()))
		return errors.New("failed to change password")
	}

	s.logger.Info("user changed password", slog.String("user_id", userID.String()))
	return nil
}

func (s *AuthService) generateToken(user *domain.User) (string, error) {
	token, err := s.tokens.GenerateToken(user.ID.String(), user.Email, user.Superuser, user.Verified, tokenLifetime)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return "", errors.New("failed to generate token")
	}
	return token, nil
}
