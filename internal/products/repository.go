package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kueskilink/kueskilink/internal/shared"
)

// Store is the persistence surface the service depends on.
type Store interface {
	Get(ctx context.Context, companyID, id int64) (*Product, error)
	List(ctx context.Context, companyID int64) ([]Product, error)
	Insert(ctx context.Context, p Product) (int64, error)
	Update(ctx context.Context, p Product) error
	SetImagePath(ctx context.Context, companyID, id int64, path string) error
	HasLineItems(ctx context.Context, id int64) (bool, error)
	MarkDeleted(ctx context.Context, companyID, id int64) error
	Delete(ctx context.Context, companyID, id int64) error
}

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectProductColumns = `
	id, company_id, name, description, price, type, status, image_path,
	created_at, updated_at
`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	var status string
	if err := row.Scan(
		&p.ID, &p.CompanyID, &p.Name, &p.Description, &p.Price, &p.Type,
		&status, &p.ImagePath, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	return &p, nil
}

// Get loads a product scoped to its company.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (*Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+selectProductColumns+` FROM products WHERE id = $1 AND company_id = $2`,
		id, companyID)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// List returns the company catalog, newest first, without deleted entries.
func (r *Repository) List(ctx context.Context, companyID int64) ([]Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectProductColumns+`
		 FROM products
		 WHERE company_id = $1 AND status <> 'deleted'
		 ORDER BY created_at DESC, id DESC`,
		companyID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Insert creates a catalog entry. A unique index on (company_id, lower(name))
// backs the duplicate check.
func (r *Repository) Insert(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (company_id, name, description, price, type, status, image_path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		p.CompanyID, p.Name, p.Description, p.Price, p.Type, string(p.Status), p.ImagePath,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: product %q already exists", shared.ErrValidation, p.Name)
		}
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

// Update rewrites the editable fields.
func (r *Repository) Update(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products
		 SET name = $3, description = $4, price = $5, type = $6, status = $7, updated_at = now()
		 WHERE id = $1 AND company_id = $2`,
		p.ID, p.CompanyID, p.Name, p.Description, p.Price, p.Type, string(p.Status))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: product %q already exists", shared.ErrValidation, p.Name)
		}
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetImagePath stores the uploaded image location.
func (r *Repository) SetImagePath(ctx context.Context, companyID, id int64, path string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET image_path = $3, updated_at = now()
		 WHERE id = $1 AND company_id = $2`,
		id, companyID, path)
	if err != nil {
		return fmt.Errorf("set product image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// HasLineItems reports whether any payment link references the product.
func (r *Repository) HasLineItems(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products_transactions WHERE product_id = $1)`,
		id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check product references: %w", err)
	}
	return exists, nil
}

// MarkDeleted flips a referenced product to deleted, keeping the row for
// link history.
func (r *Repository) MarkDeleted(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET status = 'deleted', updated_at = now()
		 WHERE id = $1 AND company_id = $2`,
		id, companyID)
	if err != nil {
		return fmt.Errorf("mark product deleted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes an unreferenced product permanently.
func (r *Repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM products WHERE id = $1 AND company_id = $2`,
		id, companyID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
