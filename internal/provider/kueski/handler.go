package kueski

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kueskilink/kueskilink/internal/links"
	"github.com/kueskilink/kueskilink/internal/platform/httpx"
	"github.com/kueskilink/kueskilink/internal/shared"
)

// signatureHeader carries the hex HMAC-SHA256 of the webhook body.
const signatureHeader = "X-Kueski-Signature"

// PaymentCreator is the slice of the provider client the handler needs.
type PaymentCreator interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error)
}

// LinkService is the slice of the links service the handler needs.
type LinkService interface {
	Get(ctx context.Context, id uuid.UUID) (*links.LinkView, error)
	MarkProviderHandoff(ctx context.Context, id uuid.UUID) error
	ApplyProviderOutcome(ctx context.Context, id uuid.UUID, approved bool) error
}

// Handler exposes the provider-facing endpoints: the checkout handoff the
// pay page calls and the outcome webhook Kueski calls back.
type Handler struct {
	logger        *slog.Logger
	client        PaymentCreator
	linkService   LinkService
	webhookSecret []byte
	validator     *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, client PaymentCreator, linkService LinkService, webhookSecret string) *Handler {
	return &Handler{
		logger:        logger,
		client:        client,
		linkService:   linkService,
		webhookSecret: []byte(webhookSecret),
		validator:     validator.New(),
	}
}

// MountPublicRoutes registers the provider routes on the public API.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/create-payment", h.createPayment)
	r.Post("/kueski/webhook", h.webhook)
}

// createPaymentRequest matches the body the client pay page already sends.
type createPaymentRequest struct {
	TransactionID   string  `json:"transactionId" validate:"required,uuid4"`
	Name            string  `json:"name" validate:"required,max=200"`
	Email           string  `json:"email" validate:"required,email"`
	Phone           string  `json:"phone" validate:"required,max=30"`
	CustomerRequest *string `json:"customerRequest" validate:"omitempty,max=500"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
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

	view, err := h.linkService.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if view.EffectiveStatus != links.StatusPending {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "link is no longer payable")
		return
	}

	payment, err := h.client.CreatePayment(r.Context(), PaymentRequest{
		TransactionID: id.String(),
		Amount:        view.Amount,
		Description:   view.Concept,
		CustomerName:  req.Name,
		CustomerEmail: req.Email,
		CustomerPhone: req.Phone,
		ReturnURL:     view.PaymentLink,
	})
	if err != nil {
		h.logger.Error("create provider payment",
			slog.String("transaction_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	if err := h.linkService.MarkProviderHandoff(r.Context(), id); err != nil {
		h.logger.Error("mark provider handoff",
			slog.String("transaction_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	// Response shape the pay page expects.
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   map[string]string{"callback_url": payment.CallbackURL},
	})
}

// webhookPayload is the provider's outcome notification.
type webhookPayload struct {
	TransactionID string `json:"transaction_id"`
	Outcome       string `json:"outcome"`
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unreadable body")
		return
	}
	if !h.verifySignature(body, r.Header.Get(signatureHeader)) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bad signature")
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	id, err := uuid.Parse(payload.TransactionID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed transaction id")
		return
	}

	switch payload.Outcome {
	case "success":
		err = h.linkService.ApplyProviderOutcome(r.Context(), id, true)
	case "reject":
		err = h.linkService.ApplyProviderOutcome(r.Context(), id, false)
	case "canceled", "failed":
		// The customer may retry until a deadline lapses.
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown outcome")
		return
	}
	if err != nil {
		// A late verdict for an already settled link is acknowledged so
		// the provider stops retrying.
		if errors.Is(err, shared.ErrInvalidState) {
			h.logger.Warn("provider outcome ignored",
				slog.String("transaction_id", id.String()),
				slog.String("outcome", payload.Outcome),
				slog.Any("error", err))
			httpx.JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		h.logger.Error("apply provider outcome",
			slog.String("transaction_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) verifySignature(body []byte, signature string) bool {
	if len(h.webhookSecret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.webhookSecret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
