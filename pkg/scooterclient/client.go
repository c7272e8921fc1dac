/**
 * @description
 * This package provides a client for communicating with the scooter registry.
 * It encapsulates the calls the rental-control service makes to read a scooter
 * record and to patch its availability and position.
 */
package scooterclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrScooterNotFound is returned when the registry has no record for a serial.
var ErrScooterNotFound = errors.New("scooter not found")

// Client is a client for the scooter registry.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new scooter registry client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Scooter is the registry's representation of one scooter.
type Scooter struct {
	Serial       string  `json:"serial"`
	Availability string  `json:"availability"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
}

// Patch is the partial update accepted by the registry. Nil fields are left
// untouched on the registry side.
type Patch struct {
	Availability *string  `json:"availability,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lng          *float64 `json:"lng,omitempty"`
}

// GetScooter fetches one scooter record by serial.
func (c *Client) GetScooter(ctx context.Context, serial string) (*Scooter, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("scooter registry base url is empty")
	}

	url := fmt.Sprintf("%s/patinete/%s", c.baseURL, serial)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to scooter registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrScooterNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("scooter registry returned error status %d", resp.StatusCode)
	}

	var scooter Scooter
	if err := json.NewDecoder(resp.Body).Decode(&scooter); err != nil {
		return nil, fmt.Errorf("failed to decode scooter response: %w", err)
	}
	return &scooter, nil
}

// UpdateScooter patches a scooter record, typically to flip availability and
// record a final position.
func (c *Client) UpdateScooter(ctx context.Context, serial string, patch Patch) error {
	if c.baseURL == "" {
		return fmt.Errorf("scooter registry base url is empty")
	}

	url := fmt.Sprintf("%s/patinete/%s", c.baseURL, serial)

	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to scooter registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrScooterNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("scooter registry returned error status %d", resp.StatusCode)
	}
	return nil
}
