package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/observatory-dash/backend/internal/observatory"
	"github.com/observatory-dash/backend/internal/state"
)

// HTTPClient makes REST calls to the dashboard server.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting baseURL (e.g. "http://127.0.0.1:8080").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 35 * time.Second},
	}
}

// GetState fetches /api/state.
func (c *HTTPClient) GetState() (*state.UnifiedState, error) {
	var st state.UnifiedState
	if err := c.get("/api/state", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStatus fetches /api/status.
func (c *HTTPClient) GetStatus() (*observatory.Status, error) {
	var st observatory.Status
	if err := c.get("/api/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Refresh asks the server to re-seed its state from controller history.
// It reports whether seeding succeeded.
func (c *HTTPClient) Refresh() (bool, error) {
	var out struct {
		Seeded bool `json:"seeded"`
	}
	if err := c.post("/api/state/refresh", &out); err != nil {
		return false, err
	}
	return out.Seeded, nil
}

func (c *HTTPClient) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) post(path string, out any) error {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s: %d %s", path, resp.StatusCode, string(respBody))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
