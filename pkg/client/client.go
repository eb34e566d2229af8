// Package client provides an HTTP client for the RepoMonitor API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
)

// Client is the API client for RepoMonitor
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// NewClient creates a new API client. The token may be empty when the
// server runs without authentication.
func NewClient(baseURL, apiToken string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // refresh runs are paced, allow them to finish
		},
	}
}

// GetDashboardStats retrieves the current dashboard view state
func (c *Client) GetDashboardStats() (*domain.DashboardStats, error) {
	var response struct {
		Data *domain.DashboardStats `json:"data"`
	}
	if err := c.do(http.MethodGet, "/api/v1/dashboard/stats", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// ListRepositories retrieves the tracked repository list
func (c *Client) ListRepositories() ([]*domain.Repository, error) {
	var response struct {
		Data []*domain.Repository `json:"data"`
	}
	if err := c.do(http.MethodGet, "/api/v1/repositories", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// TrackRepository adds a repository to the tracked list
func (c *Client) TrackRepository(owner, name string) (*domain.Repository, error) {
	body := map[string]string{"owner": owner, "name": name}

	var response struct {
		Data *domain.Repository `json:"data"`
	}
	if err := c.do(http.MethodPost, "/api/v1/repositories", body, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// UntrackRepository removes a repository from the tracked list
func (c *Client) UntrackRepository(owner, name string) error {
	path := fmt.Sprintf("/api/v1/repositories/%s/%s", owner, name)
	return c.do(http.MethodDelete, path, nil, nil)
}

// TriggerRefresh runs an aggregation over the tracked repositories
func (c *Client) TriggerRefresh() (*domain.AggregateResult, error) {
	var response struct {
		Data *domain.AggregateResult `json:"data"`
	}
	if err := c.do(http.MethodPost, "/api/v1/refresh", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck() error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.do(http.MethodGet, "/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) do(method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(data))
	}

	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}
