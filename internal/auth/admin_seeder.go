package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

// EnsureAdmin promotes the account with email to an active administrator,
// creating it when missing. A non-empty password replaces the stored one.
// It reports whether a new account was created.
func EnsureAdmin(ctx context.Context, store database.UserStore, passwords *PasswordManager, email, password string) (*database.User, bool, error) {
	log := logging.WithComponent("auth")

	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, false, err
	}
	if passwords == nil {
		passwords = NewPasswordManager(DefaultBcryptCost, MinPasswordLength)
	}

	var hash string
	if password != "" {
		if err := passwords.ValidatePassword(password); err != nil {
			return nil, false, err
		}
		if hash, err = passwords.HashPassword(password); err != nil {
			return nil, false, err
		}
	}

	user, err := store.UserByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check for admin user: %w", err)
	}

	if user == nil {
		if hash == "" {
			return nil, false, errors.New("password is required to create an admin")
		}
		user = &database.User{
			Email:        email,
			PasswordHash: hash,
			IsActive:     true,
			IsAdmin:      true,
		}
		if err := store.CreateUser(ctx, user); err != nil {
			return nil, false, fmt.Errorf("failed to create admin user: %w", err)
		}
		log.Info("Admin user created", "user_id", user.ID, "email", email)
		return user, true, nil
	}

	user.IsAdmin = true
	user.IsActive = true
	if hash != "" {
		user.PasswordHash = hash
	}
	if err := store.UpdateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("failed to update admin user: %w", err)
	}
	log.Info("User promoted to admin", "user_id", user.ID, "email", email, "password_changed", hash != "")
	return user, false, nil
}
