package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/talentsync/internal/domain/model"
)

// Paths mirrored from the HTTP API.
const (
	syncPath         = "/functions/v1/sync-talent-submissions"
	applicationsPath = "/api/v1/talent-applications"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

// Client calls the talentsync HTTP API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient returns a client for baseURL. token is sent as a bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

// Sync triggers one reconciliation run.
func (c *Client) Sync(ctx context.Context) (SyncResponse, error) {
	var out SyncResponse
	err := c.do(ctx, http.MethodPost, syncPath, &out)
	return out, err
}

// ListApplications fetches one page of the directory.
func (c *Client) ListApplications(ctx context.Context, limit, offset int) ([]model.TalentApplication, error) {
	var out struct {
		Items []model.TalentApplication `json:"items"`
	}
	path := fmt.Sprintf("%s?limit=%d&offset=%d", applicationsPath, limit, offset)
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) do(ctx context.Context, method, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
