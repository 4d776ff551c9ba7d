package employees

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kueskilink/kueskilink/internal/platform/db"
	"github.com/kueskilink/kueskilink/internal/shared"
)

// Store is the persistence surface the service depends on.
type Store interface {
	List(ctx context.Context, companyID int64) ([]Employee, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations of the removal transaction.
type TxRepository interface {
	GetEmployee(ctx context.Context, id int64) (*Employee, error)
	CompanyOwner(ctx context.Context, companyID int64) (*Employee, error)
	ReassignTransactions(ctx context.Context, fromUserID, toUserID int64) (int64, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence for the roster.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectEmployeeColumns = `id, company_id, name, email, phone, role, active, created_at`

func scanEmployee(row pgx.Row) (*Employee, error) {
	var e Employee
	if err := row.Scan(
		&e.ID, &e.CompanyID, &e.Name, &e.Email, &e.Phone, &e.Role, &e.Active, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns the company's employees, owner excluded.
func (r *Repository) List(ctx context.Context, companyID int64) ([]Employee, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectEmployeeColumns+`
		 FROM users
		 WHERE company_id = $1 AND role = 'employee'
		 ORDER BY created_at DESC`,
		companyID)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// WithTx runs the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) GetEmployee(ctx context.Context, id int64) (*Employee, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+selectEmployeeColumns+` FROM users WHERE id = $1`, id)
	e, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

func (r *txRepo) CompanyOwner(ctx context.Context, companyID int64) (*Employee, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+selectEmployeeColumns+`
		 FROM users WHERE company_id = $1 AND role = 'owner'`, companyID)
	e, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get company owner: %w", err)
	}
	return e, nil
}

func (r *txRepo) ReassignTransactions(ctx context.Context, fromUserID, toUserID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx,
		`UPDATE transactions SET user_id = $2 WHERE user_id = $1`,
		fromUserID, toUserID)
	if err != nil {
		return 0, fmt.Errorf("reassign transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *txRepo) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
