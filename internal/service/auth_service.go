package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/security/auth"
	"golang.org/x/crypto/bcrypt"
)

const tokenLifetime = 12 * time.Hour

// AuthService handles authentication operations
type AuthService struct {
	tenants domain.TenantRepository
	tokens  *auth.TokenManager
	logger  *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tenants domain.TenantRepository,
	tokens *auth.TokenManager,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		tenants: tenants,
		tokens:  tokens,
		logger:  logger,
	}
}

// LoginResult represents login response
type LoginResult struct {
	TenantID  int64  `json:"tenant_id"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"is_admin"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"` // seconds
	TokenType string `json:"token_type"`
}

// Login authenticates a tenant and returns a JWT token. Unknown usernames
// and wrong passwords produce the same error so callers cannot probe for
// registered accounts.
func (s *AuthService) Login(username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}

	tenant, err := s.tenants.GetByUsername(username)
	if err != nil {
		s.logger.Info("login attempt with unknown username", slog.String("username", username))
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(tenant.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed with wrong password", slog.String("username", username))
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}

	if tenant.Expired(time.Now()) {
		s.logger.Info("login refused for expired tenant",
			slog.Int64("tenant_id", tenant.ID),
			slog.Time("expired_at", tenant.ExpiresAt),
		)
		return nil, fmt.Errorf("%w: account expired", domain.ErrUnauthorized)
	}

	token, err := s.tokens.GenerateToken(tenant.ID, tenant.Username, tenant.IsAdmin, tokenLifetime)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, errors.New("failed to generate token")
	}

	s.logger.Info("tenant logged in",
		slog.Int64("tenant_id", tenant.ID),
		slog.String("username", tenant.Username),
	)

	return &LoginResult{
		TenantID:  tenant.ID,
		Username:  tenant.Username,
		IsAdmin:   tenant.IsAdmin,
		Token:     token,
		ExpiresIn: int(tokenLifetime.Seconds()),
		TokenType: "Bearer",
	}, nil
}

// VerifyToken verifies and parses a JWT token
func (s *AuthService) VerifyToken(tokenString string) (*auth.Claims, error) {
	claims, err := s.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return claims, nil
}

// ChangePassword changes a tenant's password
func (s *AuthService) ChangePassword(tenantID int64, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: new password must be at least 8 characters", domain.ErrInvalidInput)
	}

	tenant, err := s.tenants.GetByID(tenantID)
	if err != nil {
		return fmt.Errorf("%w: tenant not found", domain.ErrNotFound)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(tenant.PasswordHash), []byte(oldPassword)); err != nil {
		return fmt.Errorf("%w: current password is incorrect", domain.ErrUnauthorized)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.String("error", err.Error()))
		return errors.New("failed to change password")
	}

	tenant.PasswordHash = string(hash)
	if err := s.tenants.Update(tenant); err != nil {
		s.logger.Error("failed to update tenant password", slog.String("error", err.Error()))
		return errors.New("failed to change password")
	}

	s.logger.Info("tenant changed password", slog.Int64("tenant_id", tenantID))
	return nil
}
