package employees

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kueskilink/kueskilink/internal/shared"
)

// Service provides business logic for the staff roster.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs an employees service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// List returns the company's employees.
func (s *Service) List(ctx context.Context, actor shared.Actor) ([]Employee, error) {
	return s.store.List(ctx, actor.CompanyID)
}

// Remove deletes an employee. Their payment links are reassigned to the
// company owner inside the same transaction, so either everything moves and
// the row goes away, or nothing changes.
func (s *Service) Remove(ctx context.Context, actor shared.Actor, employeeID int64) (*RemoveResult, error) {
	var result RemoveResult
	err := s.store.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		employee, err := repo.GetEmployee(ctx, employeeID)
		if err != nil {
			return err
		}
		if employee.CompanyID != actor.CompanyID {
			return shared.ErrNotFound
		}
		if employee.Role == RoleOwner {
			return fmt.Errorf("%w: the company owner cannot be removed", shared.ErrInvalidState)
		}
		owner, err := repo.CompanyOwner(ctx, employee.CompanyID)
		if err != nil {
			return err
		}
		moved, err := repo.ReassignTransactions(ctx, employee.ID, owner.ID)
		if err != nil {
			return err
		}
		if err := repo.DeleteUser(ctx, employee.ID); err != nil {
			return err
		}
		result = RemoveResult{ReassignedTo: owner.ID, Transactions: moved}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("employee removed",
		slog.Int64("employee_id", employeeID),
		slog.Int64("reassigned_to", result.ReassignedTo),
		slog.Int64("transactions", result.Transactions))
	return &result, nil
}
