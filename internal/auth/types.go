package auth

import (
	"time"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/license"
)

// Token types carried in the token_type claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// UserClaims represents the identity part of the JWT claims
type UserClaims struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"is_admin"`
	TokenType string `json:"token_type"`
}

// TokenPair represents an access and refresh token pair
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // Access token expiry in seconds
	TokenType    string `json:"token_type"` // Always "Bearer"
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	DeviceID string `json:"device_id" binding:"required"`
	Platform string `json:"platform" binding:"omitempty,platform"`
}

// LoginRequest represents a user login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	DeviceID string `json:"device_id"`
	Platform string `json:"platform"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	User         *database.User      `json:"user"`
	AccessToken  string              `json:"access_token"`
	RefreshToken string              `json:"refresh_token"`
	ExpiresIn    int64               `json:"expires_in"`
	TokenType    string              `json:"token_type"`
	Activation   license.Entitlement `json:"activation"`
}

// MeResponse is returned by /api/auth/me
type MeResponse struct {
	User       *database.User      `json:"user"`
	Activation license.Entitlement `json:"activation"`
}

// RefreshRequest represents a token refresh request. The token may instead
// arrive as a Bearer header.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse represents a token refresh response
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// LogoutRequest carries the refresh token to revoke
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UpdateUserRequest is an administrative account change
type UpdateUserRequest struct {
	IsActive *bool   `json:"is_active"`
	IsAdmin  *bool   `json:"is_admin"`
	Password *string `json:"password"`
}

// Config holds authentication configuration
type Config struct {
	JWTSecret            string
	Issuer               string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
	BcryptCost           int
	MinPasswordLength    int
}

// DefaultConfig returns default authentication configuration
func DefaultConfig() Config {
	return Config{
		JWTSecret:            "", // Must be set
		Issuer:               "printer-web-api",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 30 * 24 * time.Hour,
		BcryptCost:           DefaultBcryptCost,
		MinPasswordLength:    MinPasswordLength,
	}
}

// Common authentication errors
var (
	ErrInvalidCredentials = apperror.Unauthorized("INVALID_CREDENTIALS", "Invalid email or password")
	ErrUserNotFound       = apperror.NotFound("USER_NOT_FOUND", "User not found")
	ErrEmailExists        = apperror.Conflict("EMAIL_EXISTS", "Email already registered")
	ErrMissingToken       = apperror.Unauthorized("UNAUTHORIZED", "Authorization token is required")
	ErrInvalidToken       = apperror.Unauthorized("INVALID_TOKEN", "Invalid or expired token")
	ErrTokenExpired       = apperror.Unauthorized("TOKEN_EXPIRED", "Token has expired")
	ErrTokenRevoked       = apperror.Unauthorized("TOKEN_REVOKED", "Token has been revoked")
	ErrForbidden          = apperror.Forbidden(apperror.CodeForbidden, "Admin access required")
	ErrAccountDisabled    = apperror.Forbidden("ACCOUNT_DISABLED", "Account is disabled")
)
