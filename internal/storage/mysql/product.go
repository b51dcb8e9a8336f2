package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/oolio-purchase/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, stock, created_at, updated_at
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, stock, created_at, updated_at
		FROM products WHERE id = ?`

	createProductSQL = `INSERT INTO products (name, price, stock) VALUES (?, ?, ?)`

	updateProductSQL = `UPDATE products SET name = ?, price = ?, stock = ?, updated_at = CURRENT_TIMESTAMP(6)
		WHERE id = ?`

	deleteProductSQL = `DELETE FROM products WHERE id = ?`
)

var _ product.Catalog = (*ProductRepository)(nil)

// ProductRepository implements product.Catalog backed by MySQL.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository returns a ProductRepository that uses sqlDB.
func NewProductRepository(sqlDB *sql.DB) *ProductRepository {
	return &ProductRepository{db: sqlDB}
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.QueryContext(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetByID returns a single product.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, getProductByIDSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// Create inserts p and reloads it to pick up the assigned ID and timestamps.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	res, err := r.db.ExecContext(ctx, createProductSQL, p.Name, p.Price, p.Stock)
	if err != nil {
		return fmt.Errorf("creating product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading product id: %w", err)
	}
	return r.reload(ctx, id, p)
}

// Update overwrites name, price and stock of an existing product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	if _, err := r.db.ExecContext(ctx, updateProductSQL, p.Name, p.Price, p.Stock, p.ID); err != nil {
		return fmt.Errorf("updating product %d: %w", p.ID, err)
	}
	return r.reload(ctx, p.ID, p)
}

// Delete removes a product. Orders that reference it are kept.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) reload(ctx context.Context, id int64, p *product.Product) error {
	got, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	*p = *got
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
