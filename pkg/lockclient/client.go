/**
 * @description
 * This package provides a client for the lock controller, the service that
 * drives a scooter's physical lock. The controller is accept-and-acknowledge:
 * it takes a "liberar" (release) or "bloquear" (lock) signal for a serial and
 * keeps no state of its own.
 */
package lockclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the lock controller.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new lock controller client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type lockRequest struct {
	Acesso string `json:"acesso"`
}

// SetLock locks (locked=true) or releases (locked=false) the scooter with the
// given serial.
func (c *Client) SetLock(ctx context.Context, serial string, locked bool) error {
	if c.baseURL == "" {
		return fmt.Errorf("lock controller base url is empty")
	}

	url := fmt.Sprintf("%s/controle/%s", c.baseURL, serial)

	payload := lockRequest{Acesso: "liberar"}
	if locked {
		payload.Acesso = "bloquear"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to lock controller: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("lock controller returned error status %d", resp.StatusCode)
	}
	return nil
}
