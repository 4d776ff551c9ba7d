// Package kueski is the boundary to the Kueski Pay provider: the outbound
// payment-creation client and the inbound outcome webhook.
package kueski

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kueskilink/kueskilink/internal/shared"
)

// Provider amount bounds in MXN. Enforced before calling out.
const (
	MinAmount = 500
	MaxAmount = 20000
)

// ClientConfig collects the provider client settings.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls the Kueski Pay API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a provider client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PaymentRequest is the outbound payment-creation payload.
type PaymentRequest struct {
	TransactionID string  `json:"order_id"`
	Amount        float64 `json:"amount"`
	Description   string  `json:"description"`
	CustomerName  string  `json:"customer_name"`
	CustomerEmail string  `json:"customer_email"`
	CustomerPhone string  `json:"customer_phone"`
	ReturnURL     string  `json:"return_url"`
}

// PaymentResponse carries the checkout URL the customer is redirected to.
type PaymentResponse struct {
	CallbackURL string `json:"callback_url"`
}

// CreatePayment registers the payment with the provider and returns the
// checkout URL. Amounts outside the provider bounds are rejected locally.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	if req.Amount < MinAmount {
		return nil, fmt.Errorf("%w: the provider minimum is $%d", shared.ErrValidation, MinAmount)
	}
	if req.Amount > MaxAmount {
		return nil, fmt.Errorf("%w: the provider maximum is $%d", shared.ErrValidation, MaxAmount)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode payment request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrProvider, resp.StatusCode, payload)
	}

	var result PaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", shared.ErrProvider, err)
	}
	if result.CallbackURL == "" {
		return nil, fmt.Errorf("%w: response carries no callback url", shared.ErrProvider)
	}
	return &result, nil
}
