// Package webhook pushes journey record updates to the external system of
// record.
//
// The client issues a single partial-update POST per call; the dispatcher
// wraps it in a bounded worker pool so stage transitions never block on
// delivery.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/emoseum/journey/internal/models"
)

// galleryUpdatePath is the fixed endpoint path on the external server.
const galleryUpdatePath = "/api/ai/webhook/gallery-update"

// DefaultTimeout bounds each update request.
const DefaultTimeout = 10 * time.Second

// Opts holds configuration options for the webhook client.
type Opts struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option defines a configuration option for the webhook client.
type Option func(*Opts)

// WithBaseURL sets the external server base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient supplies a custom HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Fields is the partial update pushed for one record. Only non-empty
// fields are included in the payload.
type Fields struct {
	Keywords       []string
	Title          string
	GuidedQuestion string
	VADScores      *models.VADScore
}

// Result reports the outcome of one push.
//
// RetryRecommended marks failures that are plausibly transient (non-200,
// decode failure, timeout, transport error). The dispatcher consumes it to
// drive its bounded retry policy.
type Result struct {
	Success          bool
	Err              error
	RetryRecommended bool
}

// updatePayload is the wire format of a gallery update.
type updatePayload struct {
	ExternalLinkID string           `json:"external_link_id"`
	Keywords       []string         `json:"keywords,omitempty"`
	Title          string           `json:"title,omitempty"`
	GuidedQuestion string           `json:"guided_question,omitempty"`
	VADScores      *models.VADScore `json:"vad_scores,omitempty"`
	UpdatedAt      string           `json:"updated_at"`
}

// Client is a stateless HTTP client for the external gallery-update endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a webhook client. Falls back to the JOURNEY_SYNC_URL
// environment variable when no base URL option is given.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("JOURNEY_SYNC_URL")
	}
	slog.Debug("Webhook client config loaded", "baseURL_set", cfg.BaseURL != "")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("webhook base URL not set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}, nil
}

// PushUpdate sends one partial update for the record linked to linkID.
// It never panics and never retries; callers decide what to do with
// RetryRecommended.
func (c *Client) PushUpdate(ctx context.Context, linkID string, fields Fields) Result {
	payload := updatePayload{
		ExternalLinkID: linkID,
		Keywords:       fields.Keywords,
		Title:          fields.Title,
		GuidedQuestion: fields.GuidedQuestion,
		VADScores:      fields.VADScores,
		UpdatedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		// Marshal of plain structs cannot realistically fail; not retryable.
		slog.Error("Client.PushUpdate: marshal failed", "error", err, "linkID", linkID)
		return Result{Err: fmt.Errorf("failed to encode payload: %w", err)}
	}

	url := c.baseURL + galleryUpdatePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Error("Client.PushUpdate: request build failed", "error", err, "linkID", linkID)
		return Result{Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("Client.PushUpdate: request failed", "error", err, "linkID", linkID)
		return Result{Err: fmt.Errorf("request failed: %w", err), RetryRecommended: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("Client.PushUpdate: non-200 response", "status", resp.StatusCode, "linkID", linkID, "body", string(respBody))
		return Result{
			Err:              fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody)),
			RetryRecommended: true,
		}
	}

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		slog.Error("Client.PushUpdate: response decode failed", "error", err, "linkID", linkID)
		return Result{Err: fmt.Errorf("failed to decode response: %w", err), RetryRecommended: true}
	}

	slog.Debug("Client.PushUpdate: update delivered", "linkID", linkID, "title_set", fields.Title != "")
	return Result{Success: true}
}
