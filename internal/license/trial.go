package license

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

// MaxDeviceIDLength bounds the stored device identifier
const MaxDeviceIDLength = 512

var allowedPlatforms = map[string]bool{
	database.PlatformAndroid: true,
	database.PlatformWeb:     true,
}

// NormalizeDevice trims the identifier and defaults the platform to android
func NormalizeDevice(deviceID, platform string) (string, string, error) {
	deviceID, err := normalizeDeviceID(deviceID)
	if err != nil {
		return "", "", err
	}
	platform, ok := normalizePlatform(platform)
	if !ok {
		return "", "", apperror.Invalid("platform must be 'android' or 'web'")
	}
	return deviceID, platform, nil
}

func normalizeDeviceID(deviceID string) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", apperror.Invalid("device_id is required")
	}
	if len(deviceID) > MaxDeviceIDLength {
		return "", apperror.Invalid("device_id is too long")
	}
	return deviceID, nil
}

func normalizePlatform(platform string) (string, bool) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		platform = database.PlatformAndroid
	}
	return platform, allowedPlatforms[platform]
}

// TrialTracker records one trial window per (device, platform) pair
type TrialTracker struct {
	store     database.DeviceStore
	trialDays int
	now       func() time.Time
}

// NewTrialTracker creates a tracker granting trialDays per new device
func NewTrialTracker(store database.DeviceStore, trialDays int, now func() time.Time) *TrialTracker {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &TrialTracker{store: store, trialDays: trialDays, now: now}
}

// Using returns a tracker bound to store, typically an open transaction
func (t *TrialTracker) Using(store database.DeviceStore) *TrialTracker {
	return &TrialTracker{store: store, trialDays: t.trialDays, now: t.now}
}

// RegisterTrial opens a trial window for a pair that has never been seen.
// A known pair fails with ErrTrialAlreadyUsed regardless of its owner.
func (t *TrialTracker) RegisterTrial(ctx context.Context, userID int64, deviceID, platform string) (*database.Device, error) {
	deviceID, platform, err := NormalizeDevice(deviceID, platform)
	if err != nil {
		return nil, err
	}

	used, err := t.store.DeviceExists(ctx, deviceID, platform)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, ErrTrialAlreadyUsed
	}

	now := t.now()
	device := &database.Device{
		UserID:         userID,
		DeviceID:       deviceID,
		Platform:       platform,
		TrialStartedAt: now,
		TrialExpiresAt: now.Add(database.Days(t.trialDays)),
	}
	if err := t.store.InsertDevice(ctx, device); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, ErrTrialAlreadyUsed
		}
		return nil, err
	}

	logging.DeviceContext(ctx, deviceID, platform).Info("Trial registered",
		"user_id", userID,
		"trial_expires_at", device.TrialExpiresAt)
	return device, nil
}

// ObserveDevice tracks a device without granting trial time.
// The window is created already elapsed; an existing pair is left untouched.
func (t *TrialTracker) ObserveDevice(ctx context.Context, userID int64, deviceID, platform string) (bool, error) {
	deviceID, platform, err := NormalizeDevice(deviceID, platform)
	if err != nil {
		return false, err
	}

	now := t.now()
	return t.store.ObserveDevice(ctx, &database.Device{
		UserID:         userID,
		DeviceID:       deviceID,
		Platform:       platform,
		TrialStartedAt: now,
		TrialExpiresAt: now,
	})
}

// CheckDeviceUsed reports whether the pair has ever been seen.
// Platforms outside the allowed set are never stored, so they report false.
func (t *TrialTracker) CheckDeviceUsed(ctx context.Context, deviceID, platform string) (bool, error) {
	deviceID, err := normalizeDeviceID(deviceID)
	if err != nil {
		return false, err
	}
	platform, ok := normalizePlatform(platform)
	if !ok {
		return false, nil
	}
	return t.store.DeviceExists(ctx, deviceID, platform)
}
