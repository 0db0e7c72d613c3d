package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	rangingserver "github.com/multirange/core/internal/ranging/server"
)

// errAPIRequest wraps a non-2xx response from the introspection API.
var errAPIRequest = errors.New("introspection API request failed")

// apiClient is a thin HTTP client for rangingd's read-only JSON
// introspection API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, httpClient *http.Client) *apiClient {
	return &apiClient{baseURL: baseURL, http: httpClient}
}

func (c *apiClient) ListSessions(ctx context.Context) ([]rangingserver.SessionSnapshot, error) {
	var out []rangingserver.SessionSnapshot
	if err := c.getJSON(ctx, "/sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) GetSession(ctx context.Context, device string) (rangingserver.SessionSnapshot, error) {
	var out rangingserver.SessionSnapshot
	if err := c.getJSON(ctx, "/sessions/"+device, &out); err != nil {
		return rangingserver.SessionSnapshot{}, err
	}
	return out, nil
}

func (c *apiClient) Healthz(ctx context.Context) error {
	var out map[string]string
	return c.getJSON(ctx, "/healthz", &out)
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%w: %s: %s", errAPIRequest, resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%w: %s", errAPIRequest, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
