/**
 * @description
 * This package provides a client for communicating with the user registry.
 * The rental-control service only ever reads from it, to confirm that the
 * renting user actually exists before a rental is created.
 */
package userclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUserNotFound is returned when the registry has no record for an id.
var ErrUserNotFound = errors.New("user not found")

// Client is a client for the user registry.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new user registry client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// User is the registry's representation of one user.
type User struct {
	CPF   string `json:"cpf"`
	Name  string `json:"nome"`
	Email string `json:"email"`
	Phone string `json:"telefone"`
}

// GetUser fetches one user record by id.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("user registry base url is empty")
	}

	url := fmt.Sprintf("%s/usuario/%s", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to user registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("user registry returned error status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	return &user, nil
}
