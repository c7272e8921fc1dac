/**
 * @description
 * This package provides a client for the payment service. It submits one charge
 * per closed rental. Submissions must be at-most-once, so every call carries an
 * idempotency key and the orchestrator never retries a failed submission.
 */
package paymentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client is a client for the payment service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new payment service client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Payment is the charge submitted against a user's card. Valor is in whole
// currency units, matching the payment service's wire contract.
type Payment struct {
	UserID string  `json:"usuario"`
	Amount float64 `json:"valor"`
	Card   string  `json:"cartao"`
}

// Submit records the charge with the payment service.
func (c *Client) Submit(ctx context.Context, payment Payment) error {
	if c.baseURL == "" {
		return fmt.Errorf("payment service base url is empty")
	}

	url := fmt.Sprintf("%s/pagamento", c.baseURL)

	body, err := json.Marshal(payment)
	if err != nil {
		return fmt.Errorf("failed to marshal payment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to payment service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("payment service returned error status %d", resp.StatusCode)
	}
	return nil
}
