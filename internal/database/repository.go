package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides data access methods backed by PostgreSQL
type Repository struct {
	db   *DB
	q    querier
	inTx bool
}

var _ Store = (*Repository)(nil)

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db, q: db.Pool}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// GetDB returns the underlying DB instance
func (r *Repository) GetDB() *DB {
	return r.db
}

// WithTx runs fn inside a transaction
func (r *Repository) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Repository{db: r.db, q: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

// mapError converts unique violations into ErrDuplicate
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// likePattern escapes LIKE metacharacters in a user-supplied search term
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// ============================================================================
// USERS
// ============================================================================

const userColumns = `id, email, password_hash, is_active, is_admin, created_at, last_login_at`

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsAdmin, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser inserts a new user
func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (email, password_hash, is_active, is_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.q.QueryRow(ctx, query, user.Email, user.PasswordHash, user.IsActive, user.IsAdmin).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapError(err))
	}
	return nil
}

// UserByID retrieves a user by ID
func (r *Repository) UserByID(ctx context.Context, id int64) (*User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// UserByEmail retrieves a user by email
func (r *Repository) UserByEmail(ctx context.Context, email string) (*User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// LockUser retrieves a user and locks the row for the rest of the transaction
func (r *Repository) LockUser(ctx context.Context, id int64) (*User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) getUser(ctx context.Context, query string, arg any) (*User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, query, arg))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// UpdateUser updates the mutable account fields
func (r *Repository) UpdateUser(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET password_hash = $2, is_active = $3, is_admin = $4, last_login_at = $5
		WHERE id = $1
	`
	_, err := r.q.Exec(ctx, query, user.ID, user.PasswordHash, user.IsActive, user.IsAdmin, user.LastLoginAt)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// ListUsers returns users matching the filter, newest first, and the total match count
func (r *Repository) ListUsers(ctx context.Context, filter UserFilter) ([]User, int, error) {
	whereClause := "WHERE id <> $1"
	args := []interface{}{SuperAdminID}
	argNum := 2

	if filter.Search != "" {
		whereClause += fmt.Sprintf(" AND email ILIKE $%d", argNum)
		args = append(args, likePattern(filter.Search))
		argNum++
	}

	switch filter.Type {
	case "admin":
		whereClause += " AND is_admin = TRUE"
	case "client":
		whereClause += " AND is_admin = FALSE"
	}

	var total int
	if err := r.q.QueryRow(ctx, "SELECT COUNT(*) FROM users "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := "SELECT " + userColumns + " FROM users " + whereClause + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}
