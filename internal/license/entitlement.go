package license

import (
	"time"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
)

// Status is the account-level entitlement state
type Status string

const (
	StatusActive  Status = "active"
	StatusTrial   Status = "trial"
	StatusExpired Status = "expired"
)

// AdminDaysRemaining is reported for admins, who have no tracked expiry
const AdminDaysRemaining = 999

// Entitlement is the evaluated access state of a user at an instant
type Entitlement struct {
	Status         Status     `json:"status"`
	KeyCode        string     `json:"key_code,omitempty"`
	Email          string     `json:"email,omitempty"`
	ActivatedAt    *time.Time `json:"activated_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	DaysRemaining  int        `json:"days_remaining"`
	HoursRemaining *int       `json:"hours_remaining,omitempty"`
}

// Evaluate computes the entitlement of user at now.
// Precedence: admin, then a live activated key, then a live device trial, else expired.
func Evaluate(user *database.User, keys []database.ActivationKey, devices []database.Device, now time.Time) Entitlement {
	if user.IsAdmin {
		return Entitlement{Status: StatusActive, DaysRemaining: AdminDaysRemaining}
	}

	if key := liveKey(user.ID, keys, now); key != nil {
		expires := *key.ExpiresAt
		ent := Entitlement{
			Status:        StatusActive,
			KeyCode:       key.KeyCode,
			ExpiresAt:     &expires,
			DaysRemaining: daysUntil(expires, now),
		}
		if key.ActivatedEmail != nil {
			ent.Email = *key.ActivatedEmail
		}
		if key.ActivatedAt != nil {
			activated := *key.ActivatedAt
			ent.ActivatedAt = &activated
		}
		return ent
	}

	if device := liveTrial(user.ID, devices, now); device != nil {
		expires := device.TrialExpiresAt
		hours := int((expires.Sub(now) % (24 * time.Hour)) / time.Hour)
		return Entitlement{
			Status:         StatusTrial,
			ExpiresAt:      &expires,
			DaysRemaining:  daysUntil(expires, now),
			HoursRemaining: &hours,
		}
	}

	return Entitlement{Status: StatusExpired, DaysRemaining: 0}
}

// Redeemed summarizes a freshly activated key; days remaining is the full grant
func Redeemed(key *database.ActivationKey) Entitlement {
	ent := Entitlement{
		Status:        StatusActive,
		KeyCode:       key.KeyCode,
		ActivatedAt:   key.ActivatedAt,
		ExpiresAt:     key.ExpiresAt,
		DaysRemaining: key.DurationDays,
	}
	if key.ActivatedEmail != nil {
		ent.Email = *key.ActivatedEmail
	}
	return ent
}

// liveKey picks the qualifying key with the latest expiry, then the lowest id
func liveKey(userID int64, keys []database.ActivationKey, now time.Time) *database.ActivationKey {
	var best *database.ActivationKey
	for i := range keys {
		k := &keys[i]
		if k.UserID == nil || *k.UserID != userID || !k.LiveAt(now) {
			continue
		}
		if best == nil || k.ExpiresAt.After(*best.ExpiresAt) ||
			(k.ExpiresAt.Equal(*best.ExpiresAt) && k.ID < best.ID) {
			best = k
		}
	}
	return best
}

// liveTrial picks the open trial with the latest expiry, then the lowest id
func liveTrial(userID int64, devices []database.Device, now time.Time) *database.Device {
	var best *database.Device
	for i := range devices {
		d := &devices[i]
		if d.UserID != userID || !d.TrialLiveAt(now) {
			continue
		}
		if best == nil || d.TrialExpiresAt.After(best.TrialExpiresAt) ||
			(d.TrialExpiresAt.Equal(best.TrialExpiresAt) && d.ID < best.ID) {
			best = d
		}
	}
	return best
}

// daysUntil floors the remaining time in whole days, never negative
func daysUntil(t, now time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
