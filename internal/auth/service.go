package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/cache"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/events"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/license"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

// Service handles authentication operations
type Service struct {
	store           database.Store
	licenses        *license.Service
	jwtManager      *JWTManager
	passwordManager *PasswordManager
	denylist        cache.Denylist
	publisher       events.Publisher
	log             *logging.Logger
}

// NewService creates a new authentication service. A nil denylist keeps
// revocations in process memory.
func NewService(store database.Store, licenses *license.Service, config Config, denylist cache.Denylist, publisher events.Publisher) (*Service, error) {
	if config.JWTSecret == "" {
		return nil, errors.New("JWT secret is required")
	}

	defaults := DefaultConfig()
	if config.AccessTokenDuration == 0 {
		config.AccessTokenDuration = defaults.AccessTokenDuration
	}
	if config.RefreshTokenDuration == 0 {
		config.RefreshTokenDuration = defaults.RefreshTokenDuration
	}
	if config.Issuer == "" {
		config.Issuer = defaults.Issuer
	}
	if denylist == nil {
		local := cache.NewLocalDenylist()
		local.SetClock(licenses.Now)
		denylist = local
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	jwtManager := NewJWTManager(config.JWTSecret, config.Issuer, config.AccessTokenDuration, config.RefreshTokenDuration)
	jwtManager.now = licenses.Now

	return &Service{
		store:           store,
		licenses:        licenses,
		jwtManager:      jwtManager,
		passwordManager: NewPasswordManager(config.BcryptCost, config.MinPasswordLength),
		denylist:        denylist,
		publisher:       publisher,
		log:             logging.WithComponent("auth"),
	}, nil
}

// GetJWTManager returns the JWT manager for use in middleware
func (s *Service) GetJWTManager() *JWTManager {
	return s.jwtManager
}

// Passwords returns the password manager
func (s *Service) Passwords() *PasswordManager {
	return s.passwordManager
}

func (s *Service) publish(eventType events.EventType, data map[string]interface{}) {
	s.publisher.Publish(events.Event{Type: eventType, Timestamp: s.licenses.Now(), Data: data})
}

func (s *Service) respond(ctx context.Context, user *database.User) (*AuthResponse, error) {
	pair, err := s.jwtManager.GenerateTokenPair(user)
	if err != nil {
		return nil, err
	}
	activation, err := s.licenses.Status(ctx, user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		TokenType:    pair.TokenType,
		Activation:   activation,
	}, nil
}

// Register creates an account and opens the device trial in one transaction
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := s.passwordManager.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	deviceID, platform, err := license.NormalizeDevice(req.DeviceID, req.Platform)
	if err != nil {
		return nil, err
	}

	passwordHash, err := s.passwordManager.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &database.User{
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    s.licenses.Now(),
	}

	var device *database.Device
	err = s.store.WithTx(ctx, func(tx database.Store) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return ErrEmailExists
			}
			return err
		}
		device, err = s.licenses.Trials().Using(tx).RegisterTrial(ctx, user.ID, deviceID, platform)
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.UserContext(ctx, user.ID).Info("User registered", "email", user.Email)
	logging.DeviceContext(ctx, device.DeviceID, device.Platform).Info("Trial started",
		"user_id", user.ID,
		"expires_at", device.TrialExpiresAt)
	s.publish(events.EventUserRegistered, map[string]interface{}{"user_id": user.ID, "email": user.Email})
	s.publish(events.EventTrialStarted, map[string]interface{}{
		"user_id":          user.ID,
		"device_id":        device.DeviceID,
		"platform":         device.Platform,
		"trial_expires_at": device.TrialExpiresAt,
	})

	return s.respond(ctx, user)
}

// Login authenticates a user and returns tokens. A supplied device is recorded
// without granting trial time.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !s.passwordManager.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if req.DeviceID != "" {
		if deviceID, platform, err := license.NormalizeDevice(req.DeviceID, req.Platform); err != nil {
			s.log.WithError(err).Warn("Skipping login device", "user_id", user.ID, "platform", req.Platform)
		} else if _, err := s.licenses.Trials().ObserveDevice(ctx, user.ID, deviceID, platform); err != nil {
			s.log.WithError(err).Warn("Failed to record login device", "user_id", user.ID)
		}
	}

	now := s.licenses.Now()
	user.LastLoginAt = &now
	if err := s.store.UpdateUser(ctx, user); err != nil {
		s.log.WithError(err).Warn("Failed to update last login", "user_id", user.ID)
	}

	s.publish(events.EventUserLogin, map[string]interface{}{"user_id": user.ID})
	return s.respond(ctx, user)
}

// Me returns the account and its current entitlement
func (s *Service) Me(ctx context.Context, user *database.User) (*MeResponse, error) {
	activation, err := s.licenses.Status(ctx, user)
	if err != nil {
		return nil, err
	}
	return &MeResponse{User: user, Activation: activation}, nil
}

func (s *Service) validateRefresh(ctx context.Context, refreshToken string) (*Claims, error) {
	if refreshToken == "" {
		return nil, ErrMissingToken
	}
	claims, err := s.jwtManager.ValidateToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Refresh issues a new access token for a valid refresh token
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	claims, err := s.validateRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.store.UserByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}
	return &RefreshResponse{AccessToken: accessToken, ExpiresIn: s.jwtManager.AccessTokenTTL()}, nil
}

// Logout revokes the refresh token until it would have expired anyway
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.validateRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			return nil
		}
		return err
	}

	until := s.licenses.Now().Add(s.jwtManager.refreshTokenDuration)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := s.denylist.Revoke(ctx, claims.ID, until); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	s.publish(events.EventUserLogout, map[string]interface{}{"user_id": claims.UserID})
	return nil
}

// UpdateUser applies an administrative change to an account. The superadmin
// cannot be modified through the API.
func (s *Service) UpdateUser(ctx context.Context, userID int64, req UpdateUserRequest) (*database.User, error) {
	if userID == database.SuperAdminID {
		return nil, ErrUserNotFound
	}

	var passwordHash string
	if req.Password != nil {
		if err := s.passwordManager.ValidatePassword(*req.Password); err != nil {
			return nil, err
		}
		hash, err := s.passwordManager.HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		passwordHash = hash
	}

	var updated *database.User
	err := s.store.WithTx(ctx, func(tx database.Store) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		if req.IsActive != nil {
			user.IsActive = *req.IsActive
		}
		if req.IsAdmin != nil {
			user.IsAdmin = *req.IsAdmin
		}
		if passwordHash != "" {
			user.PasswordHash = passwordHash
		}
		if err := tx.UpdateUser(ctx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.UserContext(ctx, updated.ID).Info("User updated",
		"is_active", updated.IsActive,
		"is_admin", updated.IsAdmin,
		"password_changed", passwordHash != "")
	s.publish(events.EventUserUpdated, map[string]interface{}{
		"user_id":   updated.ID,
		"is_active": updated.IsActive,
		"is_admin":  updated.IsAdmin,
	})
	return updated, nil
}
