package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/product"
)

const (
	productColumns = `id, name, description, brand, price`

	getProductByIDSQL   = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY id LIMIT $2 OFFSET $3`
	countProductsSQL = `SELECT COUNT(*) FROM products WHERE name ILIKE '%' || $1 || '%'`

	createProductSQL = `INSERT INTO products (name, description, brand, price)
		VALUES ($1, $2, $3, $4) RETURNING id`
	updateProductSQL = `UPDATE products SET name = $2, description = $3, brand = $4, price = $5
		WHERE id = $1`
	deleteProductSQL = `DELETE FROM products WHERE id = $1`
	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	upsertProductSQL = `INSERT INTO products (name, description, brand, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, brand) DO UPDATE
			SET description = EXCLUDED.description, price = EXCLUDED.price
		RETURNING id, (xmax = 0) AS inserted`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository that uses db.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, classify(err, 0))
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, classify(err, 0))
	}
	return &p, nil
}

// GetByIDs returns the products matching any of ids. Unknown ids are skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", classify(err, 0))
	}
	return pgx.CollectRows(rows, scanProduct)
}

// List returns a page of products whose name contains name, case-insensitively.
func (r *ProductRepository) List(ctx context.Context, name string, req page.Request) (page.Page[product.Product], error) {
	q := r.db.conn(ctx)

	var total int64
	if err := q.QueryRow(ctx, countProductsSQL, name).Scan(&total); err != nil {
		return page.Page[product.Product]{}, fmt.Errorf("counting products: %w", classify(err, 0))
	}

	rows, err := q.Query(ctx, listProductsSQL, name, req.Size, req.Offset())
	if err != nil {
		return page.Page[product.Product]{}, fmt.Errorf("listing products: %w", classify(err, 0))
	}
	items, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return page.Page[product.Product]{}, fmt.Errorf("listing products: %w", classify(err, 0))
	}
	return page.New(items, req, total), nil
}

// Create inserts p and sets its ID.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.db.conn(ctx).QueryRow(ctx, createProductSQL, p.Name, p.Description, p.Brand, p.Price).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.Name, classify(err, 0))
	}
	return nil
}

// Update stores every writable field of p.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.db.conn(ctx).Exec(ctx, updateProductSQL, p.ID, p.Name, p.Description, p.Brand, p.Price)
	if err != nil {
		return fmt.Errorf("updating product %d: %w", p.ID, classify(err, 0))
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product. Products still referenced by order lines are a
// conflict.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.conn(ctx).Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %d: %w", id, classify(err, apperr.KindConflict))
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	if err := r.db.conn(ctx).QueryRow(ctx, productExistsSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking product %d: %w", id, classify(err, 0))
	}
	return ok, nil
}

// Upsert inserts p or, when a product with the same name and brand exists,
// updates its description and price. It reports whether a row was inserted.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) (bool, error) {
	var inserted bool
	err := r.db.conn(ctx).QueryRow(ctx, upsertProductSQL, p.Name, p.Description, p.Brand, p.Price).Scan(&p.ID, &inserted)
	if err != nil {
		return false, fmt.Errorf("upserting product %q: %w", p.Name, classify(err, 0))
	}
	return inserted, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Brand, &p.Price)
	return p, err
}
