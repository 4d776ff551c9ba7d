package kueski

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kueskilink/kueskilink/internal/shared"
)

func TestCreatePayment(t *testing.T) {
	var received PaymentRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(PaymentResponse{CallbackURL: "https://kueski.example.com/checkout/abc"})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "secret-key"})
	resp, err := client.CreatePayment(context.Background(), PaymentRequest{
		TransactionID: "tx-1",
		Amount:        1500,
		CustomerName:  "Ana",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://kueski.example.com/checkout/abc", resp.CallbackURL)
	assert.Equal(t, "tx-1", received.TransactionID)
	assert.InDelta(t, 1500, received.Amount, 1e-9)
}

func TestCreatePaymentBounds(t *testing.T) {
	// The bounds reject locally; any outbound call is a test failure.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called")
	}))
	defer server.Close()
	client := NewClient(ClientConfig{BaseURL: server.URL})

	_, err := client.CreatePayment(context.Background(), PaymentRequest{Amount: 499.99})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = client.CreatePayment(context.Background(), PaymentRequest{Amount: 20000.01})
	assert.ErrorIs(t, err, shared.ErrValidation)

	// The bounds themselves are payable.
	server2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(PaymentResponse{CallbackURL: "https://x"})
	}))
	defer server2.Close()
	client2 := NewClient(ClientConfig{BaseURL: server2.URL})
	_, err = client2.CreatePayment(context.Background(), PaymentRequest{Amount: 500})
	assert.NoError(t, err)
	_, err = client2.CreatePayment(context.Background(), PaymentRequest{Amount: 20000})
	assert.NoError(t, err)
}

func TestCreatePaymentProviderFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	_, err := client.CreatePayment(context.Background(), PaymentRequest{Amount: 1000})
	assert.ErrorIs(t, err, shared.ErrProvider)
}

func TestCreatePaymentEmptyCallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(PaymentResponse{})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	_, err := client.CreatePayment(context.Background(), PaymentRequest{Amount: 1000})
	assert.ErrorIs(t, err, shared.ErrProvider)
}
