// Package syncer is the HTTP client for exchanging DRRP data with the
// partner annotation service: rough annotations are pulled from its outbox,
// polished entries are pushed to its inbox.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fractalaw/fractalaw/internal/schema"
)

// ServerError reports a non-success response from the partner service.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Body)
}

// Client talks to the partner's outbox/inbox endpoints.
type Client struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewClient creates a sync client for the given base URL
// (like "http://localhost:4000", no trailing slash required).
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client:  &http.Client{Timeout: 2 * time.Minute},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type pushResponse struct {
	Accepted uint64 `json:"accepted"`
}

// PullAnnotations pulls new annotations from the partner's outbox. When
// since is non-zero only annotations scraped after that instant are
// returned.
func (c *Client) PullAnnotations(ctx context.Context, since time.Time) ([]schema.Annotation, error) {
	url := c.baseURL + "/api/outbox/annotations"
	if !since.IsZero() {
		url += "?since=" + since.UTC().Format(time.RFC3339)
	}

	c.logger.Info("pulling annotations", zap.String("url", url))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pull annotations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &ServerError{Status: resp.StatusCode, Body: string(body)}
	}

	var annotations []schema.Annotation
	if err := json.NewDecoder(resp.Body).Decode(&annotations); err != nil {
		return nil, fmt.Errorf("parse annotations: %w", err)
	}
	c.logger.Info("pulled annotations", zap.Int("count", len(annotations)))
	return annotations, nil
}

// PushPolished pushes polished entries to the partner's inbox and returns
// the number accepted by the server.
func (c *Client) PushPolished(ctx context.Context, entries []schema.PolishedEntry) (uint64, error) {
	url := c.baseURL + "/api/inbox/polished"

	raw, err := json.Marshal(entries)
	if err != nil {
		return 0, fmt.Errorf("marshal entries: %w", err)
	}

	c.logger.Info("pushing polished entries", zap.String("url", url), zap.Int("count", len(entries)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("push polished: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return 0, &ServerError{Status: resp.StatusCode, Body: string(body)}
	}

	var result pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("parse push response: %w", err)
	}
	c.logger.Info("push complete", zap.Uint64("accepted", result.Accepted))
	return result.Accepted, nil
}
