package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// PRODUCT DATABASES
// ============================================================================

const databaseColumns = `
	d.id, d.user_id, d.name, d.description, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM cloud_products p WHERE p.database_id = d.id)`

func scanDatabase(row pgx.Row) (*ProductDatabase, error) {
	pdb := &ProductDatabase{}
	err := row.Scan(&pdb.ID, &pdb.UserID, &pdb.Name, &pdb.Description, &pdb.CreatedAt, &pdb.UpdatedAt, &pdb.ProductCount)
	if err != nil {
		return nil, err
	}
	return pdb, nil
}

// CreateDatabase inserts a new product database
func (r *Repository) CreateDatabase(ctx context.Context, pdb *ProductDatabase) error {
	query := `
		INSERT INTO product_databases (user_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.q.QueryRow(ctx, query, pdb.UserID, pdb.Name, pdb.Description).
		Scan(&pdb.ID, &pdb.CreatedAt, &pdb.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product database: %w", err)
	}
	return nil
}

// DatabaseByID retrieves a product database by ID
func (r *Repository) DatabaseByID(ctx context.Context, id int64) (*ProductDatabase, error) {
	pdb, err := scanDatabase(r.q.QueryRow(ctx, "SELECT "+databaseColumns+" FROM product_databases d WHERE d.id = $1", id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product database: %w", err)
	}
	return pdb, nil
}

// DatabasesByUser returns a user's product databases, most recently updated first
func (r *Repository) DatabasesByUser(ctx context.Context, userID int64) ([]ProductDatabase, error) {
	query := "SELECT " + databaseColumns + " FROM product_databases d WHERE d.user_id = $1 ORDER BY d.updated_at DESC, d.id DESC"
	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query product databases: %w", err)
	}
	defer rows.Close()

	var out []ProductDatabase
	for rows.Next() {
		pdb, err := scanDatabase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product database: %w", err)
		}
		out = append(out, *pdb)
	}
	return out, rows.Err()
}

// UpdateDatabase updates name and description and bumps updated_at
func (r *Repository) UpdateDatabase(ctx context.Context, pdb *ProductDatabase) error {
	query := `
		UPDATE product_databases
		SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := r.q.QueryRow(ctx, query, pdb.ID, pdb.Name, pdb.Description).Scan(&pdb.UpdatedAt); err != nil {
		return fmt.Errorf("failed to update product database: %w", err)
	}
	return nil
}

// DeleteDatabase deletes a product database and, by cascade, its products
func (r *Repository) DeleteDatabase(ctx context.Context, id int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM product_databases WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete product database: %w", err)
	}
	return nil
}

// ============================================================================
// PRODUCTS
// ============================================================================

const productColumns = `id, database_id, name_kz, name_full, barcode, price::float8, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	p := &Product{}
	err := row.Scan(&p.ID, &p.DatabaseID, &p.NameKZ, &p.NameFull, &p.Barcode, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// InsertProducts inserts products into a database in one transaction
func (r *Repository) InsertProducts(ctx context.Context, databaseID int64, products []*Product) error {
	return r.WithTx(ctx, func(tx Store) error {
		q := tx.(*Repository).q
		query := `
			INSERT INTO cloud_products (database_id, name_kz, name_full, barcode, price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at
		`
		for _, p := range products {
			p.DatabaseID = databaseID
			err := q.QueryRow(ctx, query, databaseID, p.NameKZ, p.NameFull, p.Barcode, p.Price).
				Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert product: %w", err)
			}
		}

		if _, err := q.Exec(ctx, `UPDATE product_databases SET updated_at = NOW() WHERE id = $1`, databaseID); err != nil {
			return fmt.Errorf("failed to touch product database: %w", err)
		}
		return nil
	})
}

// ProductByID retrieves a product by ID
func (r *Repository) ProductByID(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, "SELECT "+productColumns+" FROM cloud_products WHERE id = $1", id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// ProductsByDatabase returns all products of a database ordered by name_kz
func (r *Repository) ProductsByDatabase(ctx context.Context, databaseID int64) ([]Product, error) {
	query := "SELECT " + productColumns + " FROM cloud_products WHERE database_id = $1 ORDER BY name_kz, id"
	rows, err := r.q.Query(ctx, query, databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// UpdateProduct updates a product's fields
func (r *Repository) UpdateProduct(ctx context.Context, product *Product) error {
	query := `
		UPDATE cloud_products
		SET name_kz = $2, name_full = $3, barcode = $4, price = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.q.QueryRow(ctx, query, product.ID, product.NameKZ, product.NameFull, product.Barcode, product.Price).
		Scan(&product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

// DeleteProduct deletes a single product
func (r *Repository) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM cloud_products WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

// DeleteProductsByDatabase removes every product of a database
func (r *Repository) DeleteProductsByDatabase(ctx context.Context, databaseID int64) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM cloud_products WHERE database_id = $1`, databaseID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear products: %w", err)
	}
	return tag.RowsAffected(), nil
}
