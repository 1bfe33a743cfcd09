package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/groupclip/groupclip/internal/detect"
	"github.com/groupclip/groupclip/internal/notify"
	"github.com/groupclip/groupclip/internal/share"
	"github.com/groupclip/groupclip/internal/storage"
)

// Sharer delivers a record to the group. Implemented by share.Dispatcher.
type Sharer interface {
	Share(ctx context.Context, rec share.Record) (bool, error)
}

// Broadcaster pushes named events to attached UI clients.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// WebhookSender posts outbound notifications. Implemented by
// notify.WebhookNotifier.
type WebhookSender interface {
	AnnounceActivity(ctx context.Context, urls []string, act notify.Activity) int
	SendContent(ctx context.Context, urls []string, content, username string) int
}

// Pipeline connects event sources to detection, local state, notification,
// and group-share dispatch.
type Pipeline struct {
	store      *storage.Store
	dispatcher Sharer
	webhooks   WebhookSender
	events     Broadcaster
	logger     *slog.Logger
}

// New creates a Pipeline. events may be nil when no UI clients exist.
func New(store *storage.Store, dispatcher Sharer, webhooks WebhookSender, events Broadcaster) *Pipeline {
	return &Pipeline{
		store:      store,
		dispatcher: dispatcher,
		webhooks:   webhooks,
		events:     events,
		logger:     slog.Default(),
	}
}

// HandleClipboardText processes one new clipboard value from the poller:
// detect an address, record the activity, announce it, and share it with
// the group. Share failures are logged, never surfaced; the poller has no
// user to report to.
func (p *Pipeline) HandleClipboardText(ctx context.Context, text string) {
	match, ok := detect.Address(text)
	if !ok {
		return
	}

	username := p.store.GetSettingDefault(storage.KeyUsername, "")
	groupID := p.store.GetSettingDefault(storage.KeyGroupID, "")
	if username == "" || groupID == "" {
		p.logger.Debug("address detected but no user or group configured", "chain", match.Chain)
		return
	}

	activity := storage.Activity{
		Address:   match.Address,
		Chain:     match.Chain,
		SharedBy:  username,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := p.store.AppendActivity(activity); err != nil {
		p.logger.Error("recording activity", "error", err)
	}

	if p.events != nil {
		p.events.Broadcast("NEW_ACTIVITY", activity)
	}

	p.announce(ctx, activity)

	content, err := json.Marshal(activity)
	if err != nil {
		p.logger.Error("encoding activity", "error", err)
		return
	}
	rec := share.Record{
		Content:   string(content),
		GroupID:   groupID,
		Sender:    username,
		Title:     "Contract Address",
		Timestamp: activity.CreatedAt,
	}
	if _, err := p.dispatcher.Share(ctx, rec); err != nil {
		p.logger.Warn("sharing detected address", "error", err)
	}
}

// ShareRecord handles an explicit share request: dispatch to the group,
// record history, and fan out to configured webhooks. Dispatch errors
// (validation, connection) propagate; webhook and history problems do not.
func (p *Pipeline) ShareRecord(ctx context.Context, rec share.Record) error {
	if _, err := p.dispatcher.Share(ctx, rec); err != nil {
		return err
	}

	if err := p.store.AppendHistory(storage.HistoryEntry{
		Content:   rec.Content,
		Kind:      "share",
		CreatedAt: rec.Timestamp,
	}); err != nil {
		p.logger.Error("recording history", "error", err)
	}

	sender := rec.Sender
	if sender == "" {
		sender = p.store.GetSettingDefault(storage.KeyUsername, "")
	}
	p.webhooks.SendContent(ctx, p.webhookURLs(), rec.Content, sender)
	return nil
}

func (p *Pipeline) announce(ctx context.Context, a storage.Activity) {
	urls := p.webhookURLs()
	if len(urls) == 0 {
		return
	}
	p.webhooks.AnnounceActivity(ctx, urls, notify.Activity{
		Address:   a.Address,
		Chain:     a.Chain,
		SharedBy:  a.SharedBy,
		Timestamp: a.CreatedAt,
	})
}

func (p *Pipeline) webhookURLs() []string {
	hooks, err := p.store.ListWebhooks()
	if err != nil {
		p.logger.Error("listing webhooks", "error", err)
		return nil
	}
	urls := make([]string, len(hooks))
	for i, h := range hooks {
		urls[i] = h.URL
	}
	return urls
}
