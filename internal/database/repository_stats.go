package database

import (
	"context"
	"fmt"
	"time"
)

// Stats aggregates the dashboard counters in a single round trip
func (r *Repository) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE is_admin),
			(SELECT COUNT(DISTINCT user_id) FROM devices WHERE trial_expires_at > $1),
			(SELECT COUNT(*) FROM activation_keys WHERE status = 'activated' AND expires_at > $1),
			(SELECT COUNT(*) FROM activation_keys),
			(SELECT COUNT(*) FROM activation_keys WHERE status = 'available'),
			(SELECT COUNT(*) FROM activation_keys WHERE status = 'sold'),
			(SELECT COALESCE(SUM(sold_price), 0)::float8 FROM activation_keys WHERE sold_price IS NOT NULL)
	`
	s := &Stats{}
	err := r.q.QueryRow(ctx, query, now).Scan(
		&s.TotalUsers, &s.AdminUsers, &s.ActiveTrials, &s.ActiveKeys,
		&s.TotalKeys, &s.AvailableKeys, &s.SoldKeys, &s.Revenue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return s, nil
}
