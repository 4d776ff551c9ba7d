// Package links implements the payment-link lifecycle: creation, the
// effective-status derivation engine, reconciliation, and the customer and
// merchant transitions over a link's persisted status.
package links

import (
	"time"

	"github.com/google/uuid"
)

// Status enumerates every value the persisted status column can hold.
// expired and kueski_expired are never written by a transition, only by
// reconciliation of a lapsed deadline.
type Status string

const (
	StatusPending       Status = "pendiente"
	StatusPendingCash   Status = "pendiente_efectivo"
	StatusApproved      Status = "approved"
	StatusPaidCash      Status = "pagado_efectivo"
	StatusCanceled      Status = "canceled"
	StatusDenied        Status = "denied"
	StatusExpired       Status = "expired"
	StatusKueskiExpired Status = "kueski_expired"
)

// Terminal reports whether the status can never change again. Time-lapsed
// statuses are not terminal: they describe a deadline, not an outcome, and a
// merchant cancel may still land on them via reconciliation races.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusPaidCash, StatusCanceled, StatusDenied:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPendingCash, StatusApproved, StatusPaidCash,
		StatusCanceled, StatusDenied, StatusExpired, StatusKueskiExpired:
		return true
	}
	return false
}

// transitions is the authoritative state machine over the persisted status.
// Anything not listed here is rejected, including writes to terminal states.
var transitions = map[Status][]Status{
	StatusPending:     {StatusPendingCash, StatusApproved, StatusDenied, StatusCanceled},
	StatusPendingCash: {StatusPaidCash, StatusCanceled},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionSources returns every status from which `to` is reachable.
func TransitionSources(to Status) []Status {
	var sources []Status
	for from, targets := range transitions {
		for _, t := range targets {
			if t == to {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

// Transaction is a payment link. Amount equals the sum of
// quantity*unit_price over the line items at creation time.
type Transaction struct {
	ID              uuid.UUID  `json:"id"`
	CompanyID       int64      `json:"company_id"`
	UserID          int64      `json:"user_id"`
	Concept         string     `json:"concept"`
	Amount          float64    `json:"amount"`
	Status          Status     `json:"status"`
	PaymentLink     string     `json:"payment_link"`
	NoteToClient    string     `json:"note_to_client"`
	ExpirationDate  time.Time  `json:"expiration_date"`
	KueskiCreatedAt *time.Time `json:"kueski_created_at,omitempty"`
	CustomerName    *string    `json:"customer_name,omitempty"`
	CustomerEmail   *string    `json:"customer_email,omitempty"`
	CustomerPhone   *string    `json:"customer_phone,omitempty"`
	CustomerRequest *string    `json:"customer_request,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// LineItem associates a product with a transaction. Created atomically with
// its transaction and immutable afterwards.
type LineItem struct {
	ID            int64     `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	ProductID     *int64    `json:"product_id,omitempty"`
	Quantity      float64   `json:"quantity"`
	UnitPrice     float64   `json:"unit_price"`
	Description   string    `json:"description"`
}

// LineItemDetail is a line item joined with its product for display.
type LineItemDetail struct {
	LineItem
	ProductName  string  `json:"product_name"`
	ProductImage *string `json:"product_image,omitempty"`
	ProductType  string  `json:"product_type"`
}

// CompanySummary is the slice of company data shown on the client pay page.
type CompanySummary struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	LogoPath *string `json:"logo_path,omitempty"`
}

// CustomerInfo carries the customer-supplied fields captured at payment time.
type CustomerInfo struct {
	Name    string
	Email   string
	Phone   string
	Request *string
}

// CreateLinkRequest is the merchant input for creating a payment link.
type CreateLinkRequest struct {
	Concept      string          `json:"concept" validate:"required,max=200"`
	NoteToClient string          `json:"note_to_client" validate:"max=500"`
	Items        []CreateLineReq `json:"items" validate:"required,min=1,dive"`
}

// CreateLineReq is one bundle entry. ProductID nil means an ad hoc item: a
// catalog product is created for it during link creation.
type CreateLineReq struct {
	ProductID   *int64  `json:"product_id,omitempty"`
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=500"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"required,gt=0"`
	Type        string  `json:"type" validate:"omitempty,oneof=Producto Servicio Otro"`
}

// CreateLinkResult is returned to the merchant after link creation.
type CreateLinkResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	PaymentLink   string    `json:"payment_link"`
}

// ListRequest filters the merchant link history.
type ListRequest struct {
	CompanyID int64
	Statuses  []Status
	Limit     int
	Offset    int
}
