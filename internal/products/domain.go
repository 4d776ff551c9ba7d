// Package products manages a company's product catalog: the reusable
// entries merchants pick when assembling a payment link, plus the ad hoc
// ones link creation generates.
package products

import "time"

// Status of a catalog entry. Deleted products stay in the table when line
// items still reference them; listings filter them out.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)

// Product is a catalog entry.
type Product struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Type        string    `json:"type"`
	Status      Status    `json:"status"`
	ImagePath   *string   `json:"image_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateProductRequest is the merchant input for a new catalog entry.
type CreateProductRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=500"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Type        string  `json:"type" validate:"required,oneof=Producto Servicio Otro"`
	Active      bool    `json:"active"`
}

// UpdateProductRequest mirrors the create form. Image uploads travel on a
// separate endpoint, matching how the web client already works.
type UpdateProductRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=500"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Type        string  `json:"type" validate:"required,oneof=Producto Servicio Otro"`
	Active      bool    `json:"active"`
}

// DeleteResult tells the caller which deletion path was taken.
type DeleteResult struct {
	SoftDeleted bool `json:"soft_deleted"`
}
