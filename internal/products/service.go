package products

import (
	"context"
	"log/slog"

	"github.com/kueskilink/kueskilink/internal/shared"
)

// Service provides business logic for the product catalog.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs a products service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Get returns a single catalog entry.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (*Product, error) {
	return s.store.Get(ctx, actor.CompanyID, id)
}

// List returns the company catalog without deleted entries.
func (s *Service) List(ctx context.Context, actor shared.Actor) ([]Product, error) {
	return s.store.List(ctx, actor.CompanyID)
}

// Create adds a catalog entry.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateProductRequest) (*Product, error) {
	p := Product{
		CompanyID:   actor.CompanyID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Type:        req.Type,
		Status:      statusFor(req.Active),
	}
	id, err := s.store.Insert(ctx, p)
	if err != nil {
		return nil, err
	}
	p.ID = id
	return &p, nil
}

// Update rewrites the editable fields of a catalog entry. A deleted entry
// stays deleted.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, req UpdateProductRequest) (*Product, error) {
	current, err := s.store.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusDeleted {
		return nil, shared.ErrNotFound
	}
	p := Product{
		ID:          id,
		CompanyID:   actor.CompanyID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Type:        req.Type,
		Status:      statusFor(req.Active),
		ImagePath:   current.ImagePath,
	}
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetImage stores the uploaded image location for a product.
func (s *Service) SetImage(ctx context.Context, actor shared.Actor, id int64, path string) error {
	return s.store.SetImagePath(ctx, actor.CompanyID, id, path)
}

// Delete removes a product. Entries referenced by payment link line items
// are only marked deleted so link history keeps resolving; unreferenced
// entries are removed outright.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) (*DeleteResult, error) {
	if _, err := s.store.Get(ctx, actor.CompanyID, id); err != nil {
		return nil, err
	}
	referenced, err := s.store.HasLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	if referenced {
		if err := s.store.MarkDeleted(ctx, actor.CompanyID, id); err != nil {
			return nil, err
		}
		s.logger.Info("product soft deleted", slog.Int64("product_id", id))
		return &DeleteResult{SoftDeleted: true}, nil
	}
	if err := s.store.Delete(ctx, actor.CompanyID, id); err != nil {
		return nil, err
	}
	return &DeleteResult{SoftDeleted: false}, nil
}

func statusFor(active bool) Status {
	if active {
		return StatusActive
	}
	return StatusInactive
}
