// Package ortrader provides a Go client for the ortrader results API.
package ortrader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ortrader/internal/domain"
	"ortrader/internal/httpapi"
)

// Client talks to an ortrader-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:8750".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// ListRuns returns up to limit run summaries, newest first. A limit of 0
// uses the server default.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]httpapi.RunSummary, error) {
	path := "/api/v1/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp httpapi.RunsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// GetRun returns the summary of one run.
func (c *Client) GetRun(ctx context.Context, runID string) (*httpapi.RunSummary, error) {
	var run httpapi.RunSummary
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(runID), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetStats returns the aggregate statistics of one run.
func (c *Client) GetStats(ctx context.Context, runID string) (*domain.Statistics, error) {
	var stats domain.Statistics
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(runID)+"/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetTrades returns all trade records of one run.
func (c *Client) GetTrades(ctx context.Context, runID string) ([]domain.TradeRecord, error) {
	var resp httpapi.TradesResponse
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(runID)+"/trades", &resp); err != nil {
		return nil, err
	}
	return resp.Trades, nil
}

// GetDailies returns all daily records of one run.
func (c *Client) GetDailies(ctx context.Context, runID string) ([]domain.DailyRecord, error) {
	var resp httpapi.DailiesResponse
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(runID)+"/dailies", &resp); err != nil {
		return nil, err
	}
	return resp.Dailies, nil
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	var resp map[string]string
	return c.get(ctx, "/api/v1/health", &resp)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr httpapi.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
