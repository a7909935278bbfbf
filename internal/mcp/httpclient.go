package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/voltbora/volt/internal/ingest"
	"github.com/voltbora/volt/internal/ranking"
	"github.com/voltbora/volt/internal/tracker"
)

// HTTPClient implements DataSource by calling the volt REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTPClient targeting the given base URL. apiKey is
// only needed for logging workouts.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, userID int, body []byte) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	req.Header.Set("X-User-ID", strconv.Itoa(userID))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, data)
	}

	return data, nil
}

func limitParams(limit int) url.Values {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	return v
}

func (c *HTTPClient) Progress(ctx context.Context, userID int) (*tracker.Result, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/progress", nil, userID, nil)
	if err != nil {
		return nil, err
	}

	var res tracker.Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("httpclient: decode progress: %w", err)
	}
	return &res, nil
}

func (c *HTTPClient) Leaderboard(ctx context.Context, userID, limit int) (ranking.Leaderboard, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/leaderboard", limitParams(limit), userID, nil)
	if err != nil {
		return ranking.Leaderboard{}, err
	}

	var lb ranking.Leaderboard
	if err := json.Unmarshal(body, &lb); err != nil {
		return ranking.Leaderboard{}, fmt.Errorf("httpclient: decode leaderboard: %w", err)
	}
	return lb, nil
}

func (c *HTTPClient) WorkoutHistory(ctx context.Context, userID, limit int) (*History, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/workouts", limitParams(limit), userID, nil)
	if err != nil {
		return nil, err
	}

	var h History
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("httpclient: decode workouts: %w", err)
	}
	return &h, nil
}

func (c *HTTPClient) LogWorkout(ctx context.Context, userID int, p ingest.SessionPayload) (*tracker.Result, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("httpclient: encode session: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, "/api/v1/workouts", nil, userID, payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Progress tracker.Result `json:"progress"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("httpclient: decode record response: %w", err)
	}
	return &resp.Progress, nil
}
