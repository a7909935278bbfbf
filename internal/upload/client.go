// Package upload sends Alpha Progression exports to a running Volt server.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/voltbora/volt/internal/ingest"
)

const alphaImportPath = "/api/v1/workouts/import/alpha"

// Client talks to the Volt server's import endpoint.
type Client struct {
	serverURL  string
	apiKey     string
	userID     int
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a client that imports as userID.
func NewClient(serverURL, apiKey string, userID int) *Client {
	return &Client{
		serverURL: serverURL,
		apiKey:    apiKey,
		userID:    userID,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: time.Second,
	}
}

// statusError is a non-200 answer from the server.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("import failed (status %d): %s", e.code, e.body)
}

// UploadAlpha POSTs one CSV export and returns the server's ingest result.
// Network errors and 5xx answers are retried up to 3 times with exponential
// backoff; 4xx answers are final.
func (c *Client) UploadAlpha(ctx context.Context, csv []byte) (*ingest.Result, error) {
	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff << uint(attempt-1)):
			}
		}

		res, err := c.post(ctx, csv)
		if err == nil {
			return res, nil
		}
		lastErr = err
		var se *statusError
		if errors.As(err, &se) && se.code < http.StatusInternalServerError {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after 3 attempts: %w", lastErr)
}

func (c *Client) post(ctx context.Context, csv []byte) (*ingest.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+alphaImportPath, bytes.NewReader(csv))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-User-ID", strconv.Itoa(c.userID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending import: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(body))}
	}

	var out struct {
		Import ingest.Result `json:"import"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding import result: %w", err)
	}
	return &out.Import, nil
}
