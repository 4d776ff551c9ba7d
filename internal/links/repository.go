package links

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kueskilink/kueskilink/internal/platform/db"
	"github.com/kueskilink/kueskilink/internal/shared"
)

// Store is the persistence surface the service depends on.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Transaction, error)
	List(ctx context.Context, req ListRequest) ([]Transaction, int, error)
	LineItems(ctx context.Context, txID uuid.UUID) ([]LineItemDetail, error)
	Company(ctx context.Context, companyID int64) (*CompanySummary, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (bool, error)
	RecordCashIntent(ctx context.Context, id uuid.UUID, info CustomerInfo) (bool, error)
	MarkProviderHandoff(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	WriteDerivedStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
	ListLapsed(ctx context.Context, now time.Time, limit int) ([]Transaction, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside a link-creation
// transaction. Products created here are the ad hoc catalog entries.
type TxRepository interface {
	InsertProduct(ctx context.Context, companyID int64, name, description string, price float64, productType string) (int64, error)
	InsertTransaction(ctx context.Context, tx Transaction) error
	InsertLineItems(ctx context.Context, items []LineItem) error
}

// Repository provides PostgreSQL backed persistence for payment links.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectTransactionColumns = `
	id, company_id, user_id, concept, amount, status, payment_link,
	note_to_client, expiration_date, kueski_created_at,
	customer_name, customer_email, customer_phone, customer_request,
	created_at, updated_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*Transaction, error) {
	var tx Transaction
	var status string
	if err := s.Scan(
		&tx.ID, &tx.CompanyID, &tx.UserID, &tx.Concept, &tx.Amount, &status,
		&tx.PaymentLink, &tx.NoteToClient, &tx.ExpirationDate, &tx.KueskiCreatedAt,
		&tx.CustomerName, &tx.CustomerEmail, &tx.CustomerPhone, &tx.CustomerRequest,
		&tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	tx.Status = Status(status)
	return &tx, nil
}

// Get loads a transaction by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+selectTransactionColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("links: get transaction: %w", err)
	}
	return tx, nil
}

// List returns a company's transactions newest first, optionally filtered by
// a persisted-status set, plus the unpaginated total.
func (r *Repository) List(ctx context.Context, req ListRequest) ([]Transaction, int, error) {
	statuses := statusStrings(req.Statuses)

	var total int
	countQuery := `SELECT COUNT(*) FROM transactions WHERE company_id = $1
		AND (cardinality($2::text[]) = 0 OR status = ANY($2))`
	if err := r.pool.QueryRow(ctx, countQuery, req.CompanyID, statuses).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("links: count transactions: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 25
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectTransactionColumns+` FROM transactions
		 WHERE company_id = $1
		   AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		req.CompanyID, statuses, limit, req.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("links: list transactions: %w", err)
	}
	defer rows.Close()

	var result []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("links: scan transaction: %w", err)
		}
		result = append(result, *tx)
	}
	return result, total, rows.Err()
}

// LineItems returns the line items of a transaction joined with product
// display data, in insertion order.
func (r *Repository) LineItems(ctx context.Context, txID uuid.UUID) ([]LineItemDetail, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT pt.id, pt.transaction_id, pt.product_id, pt.quantity, pt.unit_price,
		        pt.description, p.name, p.image_path, p.type
		   FROM products_transactions pt
		   JOIN products p ON p.id = pt.product_id
		  WHERE pt.transaction_id = $1
		  ORDER BY pt.id`, txID)
	if err != nil {
		return nil, fmt.Errorf("links: line items: %w", err)
	}
	defer rows.Close()

	var items []LineItemDetail
	for rows.Next() {
		var item LineItemDetail
		if err := rows.Scan(
			&item.ID, &item.TransactionID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.Description, &item.ProductName,
			&item.ProductImage, &item.ProductType,
		); err != nil {
			return nil, fmt.Errorf("links: scan line item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Company loads the company summary shown on the client pay page.
func (r *Repository) Company(ctx context.Context, companyID int64) (*CompanySummary, error) {
	var c CompanySummary
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, logo_path FROM companies WHERE id = $1`, companyID).
		Scan(&c.ID, &c.Name, &c.LogoPath)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("links: get company: %w", err)
	}
	return &c, nil
}

// TransitionStatus performs a compare-and-swap on the status column: the
// update lands only while the persisted status is still one of `from`.
// Returns false when the row was missing or the precondition failed.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions SET status = $2, updated_at = now()
		  WHERE id = $1 AND status = ANY($3)`,
		id, string(to), statusStrings(from))
	if err != nil {
		return false, fmt.Errorf("links: transition status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordCashIntent moves pendiente -> pendiente_efectivo and stores the
// customer fields in the same conditional update.
func (r *Repository) RecordCashIntent(ctx context.Context, id uuid.UUID, info CustomerInfo) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions
		    SET status = $2, customer_name = $3, customer_email = $4,
		        customer_phone = $5, customer_request = $6, updated_at = now()
		  WHERE id = $1 AND status = $7`,
		id, string(StatusPendingCash), info.Name, info.Email, info.Phone,
		info.Request, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("links: record cash intent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkProviderHandoff stamps kueski_created_at when the customer is first
// sent to the provider. Restarting an unexpired window is not allowed.
func (r *Repository) MarkProviderHandoff(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions SET kueski_created_at = $2, updated_at = now()
		  WHERE id = $1 AND status = $3 AND kueski_created_at IS NULL`,
		id, at, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("links: mark provider handoff: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// WriteDerivedStatus persists a reconciled status, guarded on the status the
// derivation was computed from so concurrent transitions win over write-backs.
func (r *Repository) WriteDerivedStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions SET status = $2, updated_at = now()
		  WHERE id = $1 AND status = $3`,
		id, string(to), string(from))
	if err != nil {
		return false, fmt.Errorf("links: write derived status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListLapsed returns non-terminal transactions whose general or provider
// deadline has passed, oldest first. Used by the reconcile sweep.
func (r *Repository) ListLapsed(ctx context.Context, now time.Time, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectTransactionColumns+` FROM transactions
		  WHERE status = ANY($1)
		    AND (expiration_date < $2 OR (kueski_created_at IS NOT NULL AND kueski_created_at < $3))
		  ORDER BY updated_at ASC
		  LIMIT $4`,
		statusStrings([]Status{StatusPending, StatusPendingCash}),
		now, now.Add(-ProviderWindow), limit)
	if err != nil {
		return nil, fmt.Errorf("links: list lapsed: %w", err)
	}
	defer rows.Close()

	var result []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("links: scan lapsed: %w", err)
		}
		result = append(result, *tx)
	}
	return result, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps link creation in a repeatable-read transaction so the product,
// transaction and line-item inserts commit or roll back as one unit.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (t *txRepo) InsertProduct(ctx context.Context, companyID int64, name, description string, price float64, productType string) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO products (company_id, name, description, price, type, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 'active', now(), now())
		 RETURNING id`,
		companyID, name, description, price, productType).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("links: insert product: %w", err)
	}
	return id, nil
}

func (t *txRepo) InsertTransaction(ctx context.Context, tx Transaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO transactions
		   (id, company_id, user_id, concept, amount, status, payment_link,
		    note_to_client, expiration_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		tx.ID, tx.CompanyID, tx.UserID, tx.Concept, tx.Amount, string(tx.Status),
		tx.PaymentLink, tx.NoteToClient, tx.ExpirationDate)
	if err != nil {
		return fmt.Errorf("links: insert transaction: %w", err)
	}
	return nil
}

func (t *txRepo) InsertLineItems(ctx context.Context, items []LineItem) error {
	for _, item := range items {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO products_transactions
			   (transaction_id, product_id, quantity, unit_price, description)
			 VALUES ($1, $2, $3, $4, $5)`,
			item.TransactionID, item.ProductID, item.Quantity, item.UnitPrice, item.Description)
		if err != nil {
			return fmt.Errorf("links: insert line item: %w", err)
		}
	}
	return nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
