package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/groupclip/groupclip/internal/notify"
	"github.com/groupclip/groupclip/internal/share"
	"github.com/groupclip/groupclip/internal/storage"
)

type mockSharer struct {
	records []share.Record
	err     error
}

func (m *mockSharer) Share(_ context.Context, rec share.Record) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.records = append(m.records, rec)
	return true, nil
}

type mockWebhooks struct {
	announced []notify.Activity
	contents  []string
}

func (m *mockWebhooks) AnnounceActivity(_ context.Context, urls []string, act notify.Activity) int {
	m.announced = append(m.announced, act)
	return len(urls)
}

func (m *mockWebhooks) SendContent(_ context.Context, urls []string, content, _ string) int {
	m.contents = append(m.contents, content)
	return len(urls)
}

type mockBroadcaster struct {
	events []string
}

func (m *mockBroadcaster) Broadcast(event string, _ any) {
	m.events = append(m.events, event)
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func configure(t *testing.T, s *storage.Store) {
	t.Helper()
	if err := s.SetSetting(storage.KeyUsername, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting(storage.KeyGroupID, "g1"); err != nil {
		t.Fatal(err)
	}
}

func TestHandleClipboardText_FullFlow(t *testing.T) {
	store := openTestStore(t)
	configure(t, store)
	if _, err := store.AddWebhook(storage.Webhook{Name: "w", URL: "https://discord.com/api/webhooks/1/a"}); err != nil {
		t.Fatal(err)
	}

	sharer := &mockSharer{}
	hooks := &mockWebhooks{}
	bus := &mockBroadcaster{}
	p := New(store, sharer, hooks, bus)

	p.HandleClipboardText(context.Background(), "ca: 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

	acts, err := store.RecentActivities(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 1 || acts[0].Chain != "ethereum" || acts[0].SharedBy != "alice" {
		t.Fatalf("activities = %+v", acts)
	}

	if len(bus.events) != 1 || bus.events[0] != "NEW_ACTIVITY" {
		t.Errorf("broadcasts = %v", bus.events)
	}
	if len(hooks.announced) != 1 {
		t.Errorf("announced %d times, want 1", len(hooks.announced))
	}

	if len(sharer.records) != 1 {
		t.Fatalf("shared %d records, want 1", len(sharer.records))
	}
	rec := sharer.records[0]
	if rec.GroupID != "g1" || rec.Sender != "alice" || rec.Title != "Contract Address" {
		t.Errorf("record = %+v", rec)
	}
	var activity storage.Activity
	if err := json.Unmarshal([]byte(rec.Content), &activity); err != nil {
		t.Fatalf("record content is not an activity: %v", err)
	}
	if activity.Address != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Errorf("activity address = %q", activity.Address)
	}
}

func TestHandleClipboardText_NoAddress(t *testing.T) {
	store := openTestStore(t)
	configure(t, store)
	sharer := &mockSharer{}
	p := New(store, sharer, &mockWebhooks{}, nil)

	p.HandleClipboardText(context.Background(), "just some text")

	if len(sharer.records) != 0 {
		t.Errorf("shared %d records for plain text, want 0", len(sharer.records))
	}
	acts, _ := store.RecentActivities(0)
	if len(acts) != 0 {
		t.Errorf("recorded %d activities, want 0", len(acts))
	}
}

func TestHandleClipboardText_UnconfiguredUser(t *testing.T) {
	store := openTestStore(t)
	sharer := &mockSharer{}
	p := New(store, sharer, &mockWebhooks{}, nil)

	p.HandleClipboardText(context.Background(), "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

	if len(sharer.records) != 0 {
		t.Errorf("shared without user/group configured")
	}
}

func TestShareRecord_RecordsHistoryAndWebhooks(t *testing.T) {
	store := openTestStore(t)
	configure(t, store)
	if _, err := store.AddWebhook(storage.Webhook{Name: "w", URL: "https://discord.com/api/webhooks/1/a"}); err != nil {
		t.Fatal(err)
	}

	sharer := &mockSharer{}
	hooks := &mockWebhooks{}
	p := New(store, sharer, hooks, nil)

	rec := share.Record{Content: "hello group", GroupID: "g1", Sender: "alice", Timestamp: 42}
	if err := p.ShareRecord(context.Background(), rec); err != nil {
		t.Fatalf("ShareRecord: %v", err)
	}

	hist, err := store.History(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].Content != "hello group" || hist[0].Kind != "share" {
		t.Fatalf("history = %+v", hist)
	}
	if len(hooks.contents) != 1 || hooks.contents[0] != "hello group" {
		t.Errorf("webhook contents = %v", hooks.contents)
	}
}

func TestShareRecord_DispatchErrorPropagates(t *testing.T) {
	store := openTestStore(t)
	sharer := &mockSharer{err: share.ErrInvalidPayload}
	hooks := &mockWebhooks{}
	p := New(store, sharer, hooks, nil)

	err := p.ShareRecord(context.Background(), share.Record{})
	if !errors.Is(err, share.ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
	if len(hooks.contents) != 0 {
		t.Error("webhooks fired despite dispatch failure")
	}
	hist, _ := store.History(0)
	if len(hist) != 0 {
		t.Error("history recorded despite dispatch failure")
	}
}
