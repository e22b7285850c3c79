package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// DEVICES
// ============================================================================

const deviceColumns = `id, user_id, device_id, platform, trial_started_at, trial_expires_at, created_at`

func scanDevice(row pgx.Row) (*Device, error) {
	d := &Device{}
	err := row.Scan(&d.ID, &d.UserID, &d.DeviceID, &d.Platform, &d.TrialStartedAt, &d.TrialExpiresAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// InsertDevice records a device trial window
func (r *Repository) InsertDevice(ctx context.Context, device *Device) error {
	query := `
		INSERT INTO devices (user_id, device_id, platform, trial_started_at, trial_expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.q.QueryRow(ctx, query,
		device.UserID, device.DeviceID, device.Platform, device.TrialStartedAt, device.TrialExpiresAt,
	).Scan(&device.ID, &device.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert device: %w", mapError(err))
	}
	return nil
}

// ObserveDevice records the device unless the pair is already known
func (r *Repository) ObserveDevice(ctx context.Context, device *Device) (bool, error) {
	query := `
		INSERT INTO devices (user_id, device_id, platform, trial_started_at, trial_expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id, platform) DO NOTHING
		RETURNING id, created_at
	`
	err := r.q.QueryRow(ctx, query,
		device.UserID, device.DeviceID, device.Platform, device.TrialStartedAt, device.TrialExpiresAt,
	).Scan(&device.ID, &device.CreatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to observe device: %w", err)
	}
	return true, nil
}

// DeviceExists checks whether a (device_id, platform) pair has been seen
func (r *Repository) DeviceExists(ctx context.Context, deviceID, platform string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM devices WHERE device_id = $1 AND platform = $2)`
	if err := r.q.QueryRow(ctx, query, deviceID, platform).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check device: %w", err)
	}
	return exists, nil
}

// DevicesByUser returns all devices bound to a user
func (r *Repository) DevicesByUser(ctx context.Context, userID int64) ([]Device, error) {
	rows, err := r.q.Query(ctx, "SELECT "+deviceColumns+" FROM devices WHERE user_id = $1 ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// ExpireTrials closes the user's open trial windows at now
func (r *Repository) ExpireTrials(ctx context.Context, userID int64, now time.Time) (int64, error) {
	query := `UPDATE devices SET trial_expires_at = $2 WHERE user_id = $1 AND trial_expires_at > $2`
	tag, err := r.q.Exec(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire trials: %w", err)
	}
	return tag.RowsAffected(), nil
}
