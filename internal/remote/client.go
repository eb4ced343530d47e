// Package remote pushes listening progress to an audiobook server. The
// local store is always the source of truth; the server is an eventually
// consistent mirror, fed in the background and never consulted during
// playback.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tdelacour/fable/internal/store"
)

const userAgent = "fable/1.0 (https://github.com/tdelacour/fable)"

// Client is a progress API client for an audiobook server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL, authenticating
// with a bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// progressPayload is the wire shape of one progress update. Times are in
// seconds, matching the store's persisted representation.
type progressPayload struct {
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
	IsFinished  bool    `json:"isFinished"`
	UpdatedAt   int64   `json:"updatedAt"`
}

// PushProgress sends one progress record to the server.
func (c *Client) PushProgress(ctx context.Context, rec store.ProgressRecord) error {
	payload := progressPayload{
		CurrentTime: rec.CurrentTime,
		Duration:    rec.Duration,
		IsFinished:  rec.IsFinished,
		UpdatedAt:   rec.UpdatedAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	reqURL := fmt.Sprintf("%s/api/progress/%s", c.baseURL, rec.ItemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}
