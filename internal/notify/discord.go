package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	botName     = "GroupClip Bot"
	embedColor  = 0x6366f1
	sendTimeout = 10 * time.Second
)

// Activity describes a detected contract address for webhook announcements.
type Activity struct {
	Address   string
	Chain     string
	SharedBy  string
	Timestamp int64 // epoch milliseconds
}

// WebhookNotifier posts to operator-configured Discord-compatible webhooks.
// All sends are fire and forget: failures are logged, never propagated, and
// independent of group-share delivery.
type WebhookNotifier struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier() *WebhookNotifier {
	return &WebhookNotifier{
		httpClient: &http.Client{Timeout: sendTimeout},
		logger:     slog.Default(),
	}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields"`
	Timestamp   string       `json:"timestamp"`
}

type embedPayload struct {
	Username string  `json:"username"`
	Embeds   []embed `json:"embeds"`
}

type contentPayload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// AnnounceActivity posts a rich embed describing a detected address to every
// webhook URL. Returns the number of successful sends.
func (n *WebhookNotifier) AnnounceActivity(ctx context.Context, urls []string, act Activity) int {
	payload := embedPayload{
		Username: botName,
		Embeds: []embed{{
			Title:       "New Contract Address Shared",
			Description: "`" + act.Address + "`",
			Color:       embedColor,
			Fields: []embedField{
				{Name: "Chain", Value: strings.ToUpper(act.Chain), Inline: true},
				{Name: "Shared by", Value: act.SharedBy, Inline: true},
			},
			Timestamp: time.UnixMilli(act.Timestamp).UTC().Format(time.RFC3339),
		}},
	}
	return n.fanOut(ctx, urls, payload)
}

// SendContent posts plain shared content to every webhook URL. Returns the
// number of successful sends.
func (n *WebhookNotifier) SendContent(ctx context.Context, urls []string, content, username string) int {
	return n.fanOut(ctx, urls, contentPayload{Content: content, Username: username})
}

func (n *WebhookNotifier) fanOut(ctx context.Context, urls []string, payload any) int {
	if len(urls) == 0 {
		return 0
	}
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("marshalling webhook payload", "error", err)
		return 0
	}

	successes := make([]bool, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	for i, url := range urls {
		g.Go(func() error {
			if err := n.post(ctx, url, body); err != nil {
				n.logger.Warn("webhook send failed", "url", url, "error", err)
				return nil // fire and forget; never cancel the siblings
			}
			successes[i] = true
			return nil
		})
	}
	g.Wait()

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	return count
}

func (n *WebhookNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
