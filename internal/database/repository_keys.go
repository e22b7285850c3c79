package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// ACTIVATION KEYS
// ============================================================================

const keyColumns = `
	id, key_code, duration_days, status, user_id, activated_email, activated_at, expires_at,
	sold_to_name, sold_to_email, sold_at, sold_price::float8, notes, created_by, created_at`

func scanKey(row pgx.Row) (*ActivationKey, error) {
	k := &ActivationKey{}
	err := row.Scan(
		&k.ID, &k.KeyCode, &k.DurationDays, &k.Status,
		&k.UserID, &k.ActivatedEmail, &k.ActivatedAt, &k.ExpiresAt,
		&k.SoldToName, &k.SoldToEmail, &k.SoldAt, &k.SoldPrice, &k.Notes,
		&k.CreatedBy, &k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// InsertKeys inserts a batch of keys in a single transaction
func (r *Repository) InsertKeys(ctx context.Context, keys []*ActivationKey) error {
	return r.WithTx(ctx, func(tx Store) error {
		q := tx.(*Repository).q
		query := `
			INSERT INTO activation_keys (key_code, duration_days, status, sold_to_name, sold_to_email,
				sold_at, sold_price, notes, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, created_at
		`
		for _, k := range keys {
			err := q.QueryRow(ctx, query,
				k.KeyCode, k.DurationDays, k.Status, k.SoldToName, k.SoldToEmail,
				k.SoldAt, k.SoldPrice, k.Notes, k.CreatedBy,
			).Scan(&k.ID, &k.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert key: %w", mapError(err))
			}
		}
		return nil
	})
}

// KeyByID retrieves a key by ID, optionally locking the row
func (r *Repository) KeyByID(ctx context.Context, id int64, forUpdate bool) (*ActivationKey, error) {
	return r.getKey(ctx, "id = $1", id, forUpdate)
}

// KeyByCode retrieves a key by its canonical code, optionally locking the row
func (r *Repository) KeyByCode(ctx context.Context, code string, forUpdate bool) (*ActivationKey, error) {
	return r.getKey(ctx, "key_code = $1", code, forUpdate)
}

func (r *Repository) getKey(ctx context.Context, cond string, arg any, forUpdate bool) (*ActivationKey, error) {
	query := "SELECT " + keyColumns + " FROM activation_keys WHERE " + cond
	if forUpdate {
		query += " FOR UPDATE"
	}

	k, err := scanKey(r.q.QueryRow(ctx, query, arg))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activation key: %w", err)
	}
	return k, nil
}

// KeyCodeExists checks whether a code is already persisted
func (r *Repository) KeyCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM activation_keys WHERE key_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check key code: %w", err)
	}
	return exists, nil
}

// KeysByUser returns every key currently bound to a user
func (r *Repository) KeysByUser(ctx context.Context, userID int64) ([]ActivationKey, error) {
	query := "SELECT " + keyColumns + " FROM activation_keys WHERE user_id = $1 ORDER BY id"
	return r.queryKeys(ctx, query, userID)
}

// SaveKey writes every mutable column of the key
func (r *Repository) SaveKey(ctx context.Context, key *ActivationKey) error {
	query := `
		UPDATE activation_keys
		SET duration_days = $2, status = $3, user_id = $4, activated_email = $5, activated_at = $6,
			expires_at = $7, sold_to_name = $8, sold_to_email = $9, sold_at = $10, sold_price = $11, notes = $12
		WHERE id = $1
	`
	_, err := r.q.Exec(ctx, query,
		key.ID, key.DurationDays, key.Status, key.UserID, key.ActivatedEmail, key.ActivatedAt,
		key.ExpiresAt, key.SoldToName, key.SoldToEmail, key.SoldAt, key.SoldPrice, key.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to save activation key: %w", err)
	}
	return nil
}

// DeleteKey hard-deletes a key and reports whether it existed
func (r *Repository) DeleteKey(ctx context.Context, id int64) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM activation_keys WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete activation key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListKeys returns keys matching the filter, newest first, and the total match count
func (r *Repository) ListKeys(ctx context.Context, filter KeyFilter) ([]ActivationKey, int, error) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argNum := 1

	if filter.Status != "" {
		whereClause += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filter.Status)
		argNum++
	}

	if filter.Search != "" {
		whereClause += fmt.Sprintf(
			" AND (key_code ILIKE $%d OR activated_email ILIKE $%d OR sold_to_name ILIKE $%d OR sold_to_email ILIKE $%d)",
			argNum, argNum, argNum, argNum)
		args = append(args, likePattern(filter.Search))
		argNum++
	}

	var total int
	if err := r.q.QueryRow(ctx, "SELECT COUNT(*) FROM activation_keys "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count activation keys: %w", err)
	}

	query := "SELECT " + keyColumns + " FROM activation_keys " + whereClause + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	keys, err := r.queryKeys(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return keys, total, nil
}

func (r *Repository) queryKeys(ctx context.Context, query string, args ...interface{}) ([]ActivationKey, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activation keys: %w", err)
	}
	defer rows.Close()

	var keys []ActivationKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activation key: %w", err)
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}
