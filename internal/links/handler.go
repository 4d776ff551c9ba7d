package links

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kueskilink/kueskilink/internal/platform/httpx"
	"github.com/kueskilink/kueskilink/internal/shared"
)

// Handler manages the merchant link endpoints and the public payment API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers the merchant-facing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/links", h.createLink)
	r.Get("/links", h.listLinks)
	r.Get("/links/{id}", h.showLink)
	r.Post("/links/{id}/cancel", h.cancelLink)
	r.Post("/links/{id}/mark-cash", h.markCashReceived)
	r.Post("/links/{id}/resend", h.resendLink)
}

// MountPublicRoutes registers the customer-facing payment API. These routes
// carry no merchant identity; the link id is the capability.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/transaction/{id}", h.publicTransaction)
	r.Post("/pay-cash", h.payCash)
}

func (h *Handler) createLink(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.CompanyID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant identity required")
		return
	}

	var req CreateLinkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	result, err := h.service.CreatePaymentLink(r.Context(), actor, req)
	if err != nil {
		h.logger.Error("create payment link", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) listLinks(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.CompanyID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant identity required")
		return
	}

	req := ListRequest{CompanyID: actor.CompanyID}
	for _, raw := range r.URL.Query()["status"] {
		status := Status(raw)
		if !status.Valid() {
			httpx.RespondError(w, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, raw))
			return
		}
		req.Statuses = append(req.Statuses, status)
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := shared.NewPagination(page, perPage, 0)
	req.Limit = pagination.PerPage
	req.Offset = pagination.Offset()

	views, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list links", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"links":      views,
		"pagination": shared.NewPagination(pagination.Page, pagination.PerPage, total),
	})
}

func (h *Handler) showLink(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed link id", shared.ErrValidation))
		return
	}
	view, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.LineItems(r.Context(), id)
	if err != nil {
		h.logger.Error("link line items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"link":  view,
		"items": items,
	})
}

func (h *Handler) cancelLink(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Cancel)
}

func (h *Handler) markCashReceived(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.MarkCashReceived)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id uuid.UUID) error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed link id", shared.ErrValidation))
		return
	}
	if err := action(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) resendLink(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed link id", shared.ErrValidation))
		return
	}
	result, err := h.service.Resend(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// publicTransactionResponse mirrors the payload shape of the original
// serverless get-transaction handler the client pay page consumes.
type publicTransactionResponse struct {
	Transaction publicTransaction `json:"transaction"`
	Products    []publicProduct   `json:"products"`
	Company     publicCompany     `json:"company"`
}

type publicTransaction struct {
	ID              uuid.UUID `json:"id"`
	Concept         string    `json:"concept"`
	Amount          float64   `json:"amount"`
	NoteToClient    string    `json:"note_to_client"`
	CustomerRequest *string   `json:"customer_request"`
	Status          Status    `json:"status"`
	ExpirationDate  time.Time `json:"expiration_date"`
}

type publicProduct struct {
	UnitPrice   float64           `json:"unit_price"`
	Quantity    float64           `json:"quantity"`
	Description string            `json:"description"`
	Product     publicProductInfo `json:"product"`
}

type publicProductInfo struct {
	Name      string  `json:"name"`
	ImagePath *string `json:"image_path"`
	Type      string  `json:"type"`
}

type publicCompany struct {
	Name     string  `json:"name"`
	LogoPath *string `json:"logo_path"`
}

func (h *Handler) publicTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no such transaction")
		return
	}
	tx, items, company, err := h.service.PublicTransaction(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	products := make([]publicProduct, 0, len(items))
	for _, item := range items {
		products = append(products, publicProduct{
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Description: item.Description,
			Product: publicProductInfo{
				Name:      item.ProductName,
				ImagePath: item.ProductImage,
				Type:      item.ProductType,
			},
		})
	}
	httpx.JSON(w, http.StatusOK, publicTransactionResponse{
		Transaction: publicTransaction{
			ID:              tx.ID,
			Concept:         tx.Concept,
			Amount:          tx.Amount,
			NoteToClient:    tx.NoteToClient,
			CustomerRequest: tx.CustomerRequest,
			Status:          tx.Status,
			ExpirationDate:  tx.ExpirationDate,
		},
		Products: products,
		Company:  publicCompany{Name: company.Name, LogoPath: company.LogoPath},
	})
}

// payCashRequest matches the body the client pay page already sends.
type payCashRequest struct {
	TransactionID   string  `json:"transactionId" validate:"required,uuid4"`
	Name            string  `json:"name" validate:"required,max=200"`
	Email           string  `json:"email" validate:"required,email"`
	Phone           string  `json:"phone" validate:"required,max=30"`
	CustomerRequest *string `json:"customerRequest" validate:"omitempty,max=500"`
}

func (h *Handler) payCash(w http.ResponseWriter, r *http.Request) {
	var req payCashRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	id, err := uuid.Parse(req.TransactionID)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no such transaction")
		return
	}

	err = h.service.SubmitCashPayment(r.Context(), id, CustomerInfo{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Request: req.CustomerRequest,
	})
	if err != nil {
		h.respondPayCashError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondPayCashError preserves the public API contract: wrong state and
// expiry both answer 403.
func (h *Handler) respondPayCashError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrExpired):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
