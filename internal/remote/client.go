package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SharesTable is the remote table holding group shares.
const SharesTable = "group_shares"

// Endpoint identifies the remote store and its API key pair.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// RestURL returns the REST endpoint for the shares table.
func (e Endpoint) RestURL() string {
	return strings.TrimRight(e.BaseURL, "/") + "/rest/v1/" + SharesTable
}

// SetHeaders applies the store's auth header pair and insert hints to req.
func (e Endpoint) SetHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", e.APIKey)
	req.Header.Set("Authorization", "Bearer "+e.APIKey)
	req.Header.Set("Prefer", "return=minimal")
}

// Row is the wire shape of one group share. Timestamp is RFC 3339; epoch
// milliseconds are converted at this boundary and nowhere else.
type Row struct {
	Content   string `json:"content"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	Sender    string `json:"sender"`
	GroupID   string `json:"group_id"`
	Timestamp string `json:"timestamp"`
}

// FormatTimestamp converts canonical epoch milliseconds to the table's
// RFC 3339 representation.
func FormatTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// ParseTimestamp converts an RFC 3339 table timestamp back to epoch
// milliseconds. Malformed values fall back to the current time.
func ParseTimestamp(s string) int64 {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}

// Client talks to the remote store's REST surface.
type Client struct {
	endpoint   Endpoint
	httpClient *http.Client
}

// NewClient creates a Client for the given endpoint.
func NewClient(endpoint Endpoint) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Endpoint returns the endpoint this client targets.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// Insert writes one row into the shares table.
func (c *Client) Insert(ctx context.Context, row Row) error {
	body, err := json.Marshal([]Row{row})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.RestURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating insert request: %w", err)
	}
	c.endpoint.SetHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("insert: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// Health checks the store's health endpoint. Used as the initialization
// handshake and the "ping" diagnostic stage.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := strings.TrimRight(c.endpoint.BaseURL, "/") + "/auth/v1/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}
	req.Header.Set("apikey", c.endpoint.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// ProbeTable performs a cheap representative read against the shares table.
func (c *Client) ProbeTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := c.endpoint.RestURL() + "?select=id&limit=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating probe request: %w", err)
	}
	req.Header.Set("apikey", c.endpoint.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.endpoint.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe: unexpected status %d", resp.StatusCode)
	}
	return nil
}
