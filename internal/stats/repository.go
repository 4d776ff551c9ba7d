package stats

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kueskilink/kueskilink/internal/links"
)

// Store is the persistence surface the service depends on.
type Store interface {
	Payments(ctx context.Context, companyID int64) ([]Payment, error)
	ProductSales(ctx context.Context, companyID int64) ([]ProductSale, error)
	Links(ctx context.Context, companyID int64) ([]links.Transaction, error)
}

// Repository provides PostgreSQL backed reads for the dashboard.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Payments loads the settled transactions of a company, newest first.
func (r *Repository) Payments(ctx context.Context, companyID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT amount, COALESCE(customer_name, ''), concept, updated_at
		 FROM transactions
		 WHERE company_id = $1 AND status IN ('approved', 'pagado_efectivo')
		 ORDER BY updated_at DESC`,
		companyID)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.Amount, &p.Customer, &p.Concept, &p.Day); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ProductSales loads line items joined with their product and link status.
func (r *Repository) ProductSales(ctx context.Context, companyID int64) ([]ProductSale, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT pt.product_id, p.name, pt.quantity, t.status
		 FROM products_transactions pt
		 JOIN products p ON p.id = pt.product_id
		 JOIN transactions t ON t.id = pt.transaction_id
		 WHERE t.company_id = $1`,
		companyID)
	if err != nil {
		return nil, fmt.Errorf("load product sales: %w", err)
	}
	defer rows.Close()

	var out []ProductSale
	for rows.Next() {
		var sale ProductSale
		var status string
		if err := rows.Scan(&sale.ProductID, &sale.Name, &sale.Quantity, &status); err != nil {
			return nil, fmt.Errorf("scan product sale: %w", err)
		}
		sale.Status = links.Status(status)
		out = append(out, sale)
	}
	return out, rows.Err()
}

// Links loads every transaction of a company for the kind counts. Only the
// fields the derivation needs are selected.
func (r *Repository) Links(ctx context.Context, companyID int64) ([]links.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, status, expiration_date, kueski_created_at
		 FROM transactions
		 WHERE company_id = $1`,
		companyID)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	defer rows.Close()

	var out []links.Transaction
	for rows.Next() {
		var tx links.Transaction
		var status string
		if err := rows.Scan(&tx.ID, &status, &tx.ExpirationDate, &tx.KueskiCreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		tx.Status = links.Status(status)
		out = append(out, tx)
	}
	return out, rows.Err()
}
