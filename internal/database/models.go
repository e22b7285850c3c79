package database

import (
	"time"
)

// SuperAdminID is the bootstrap account hidden from administrative listings
const SuperAdminID int64 = 1

// ============================================================================
// USERS
// ============================================================================

// User represents an account
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	IsAdmin      bool       `json:"is_admin"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
}

// ============================================================================
// ACTIVATION KEYS
// ============================================================================

// KeyStatus is the stored lifecycle state of an activation key.
// Expiry is derived from ExpiresAt and never stored.
type KeyStatus string

const (
	KeyStatusAvailable KeyStatus = "available"
	KeyStatusSold      KeyStatus = "sold"
	KeyStatusActivated KeyStatus = "activated"
	KeyStatusRevoked   KeyStatus = "revoked"
)

// Valid reports whether s is one of the stored statuses
func (s KeyStatus) Valid() bool {
	switch s {
	case KeyStatusAvailable, KeyStatusSold, KeyStatusActivated, KeyStatusRevoked:
		return true
	}
	return false
}

// ActivationKey represents a redeemable subscription grant
type ActivationKey struct {
	ID           int64     `json:"id"`
	KeyCode      string    `json:"key_code"`
	DurationDays int       `json:"duration_days"`
	Status       KeyStatus `json:"status"`

	// Redemption fields, set only while Status is activated
	UserID         *int64     `json:"user_id"`
	ActivatedEmail *string    `json:"activated_email"`
	ActivatedAt    *time.Time `json:"activated_at"`
	ExpiresAt      *time.Time `json:"expires_at"`

	// Sale tracking
	SoldToName  *string    `json:"sold_to_name"`
	SoldToEmail *string    `json:"sold_to_email"`
	SoldAt      *time.Time `json:"sold_at"`
	SoldPrice   *float64   `json:"sold_price"`
	Notes       *string    `json:"notes"`

	CreatedBy *int64    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Activate binds the key to a user for DurationDays starting at now
func (k *ActivationKey) Activate(user *User, now time.Time) {
	userID := user.ID
	email := user.Email
	expires := now.Add(Days(k.DurationDays))

	k.Status = KeyStatusActivated
	k.UserID = &userID
	k.ActivatedEmail = &email
	k.ActivatedAt = &now
	k.ExpiresAt = &expires
}

// ClearRedemption detaches the key from its user
func (k *ActivationKey) ClearRedemption() {
	k.UserID = nil
	k.ActivatedEmail = nil
	k.ActivatedAt = nil
	k.ExpiresAt = nil
}

// LiveAt reports whether the key is activated and unexpired at now
func (k *ActivationKey) LiveAt(now time.Time) bool {
	return k.Status == KeyStatusActivated && k.ExpiresAt != nil && k.ExpiresAt.After(now)
}

// ============================================================================
// DEVICES
// ============================================================================

// Platform values accepted for devices
const (
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

// Device is a (device_id, platform) pair bound to the user who first registered it
type Device struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	DeviceID       string    `json:"device_id"`
	Platform       string    `json:"platform"`
	TrialStartedAt time.Time `json:"trial_started_at"`
	TrialExpiresAt time.Time `json:"trial_expires_at"`
	CreatedAt      time.Time `json:"-"`
}

// TrialLiveAt reports whether the device trial window is still open at now
func (d *Device) TrialLiveAt(now time.Time) bool {
	return d.TrialExpiresAt.After(now)
}

// ============================================================================
// CATALOG
// ============================================================================

// ProductDatabase is a user-owned named catalog
type ProductDatabase struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description"`
	ProductCount int       `json:"product_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Product is a priced, barcoded catalog item
type Product struct {
	ID         int64     `json:"id"`
	DatabaseID int64     `json:"database_id"`
	NameKZ     string    `json:"name_kz"`
	NameFull   string    `json:"name_full"`
	Barcode    string    `json:"barcode"`
	Price      float64   `json:"price"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ============================================================================
// STATS
// ============================================================================

// Stats holds the raw counters behind the admin dashboard
type Stats struct {
	TotalUsers    int     `json:"total_users"`
	AdminUsers    int     `json:"admin_users"`
	ActiveTrials  int     `json:"active_trials"`
	ActiveKeys    int     `json:"active_keys"`
	TotalKeys     int     `json:"total_keys"`
	AvailableKeys int     `json:"available_keys"`
	SoldKeys      int     `json:"sold_keys"`
	Revenue       float64 `json:"revenue"`
}

// Days converts a day count into a duration
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
