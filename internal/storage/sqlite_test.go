package storage

import (
	"fmt"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettings_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetSetting(KeyUsername); err != ErrNotFound {
		t.Fatalf("GetSetting on empty store = %v, want ErrNotFound", err)
	}

	if err := s.SetSetting(KeyUsername, "alice"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	v, err := s.GetSetting(KeyUsername)
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "alice" {
		t.Errorf("GetSetting = %q, want %q", v, "alice")
	}

	// Overwrite.
	if err := s.SetSetting(KeyUsername, "bob"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	if got := s.GetSettingDefault(KeyUsername, "x"); got != "bob" {
		t.Errorf("after overwrite = %q, want %q", got, "bob")
	}

	if got := s.GetSettingDefault(KeyGroupID, "default-group"); got != "default-group" {
		t.Errorf("GetSettingDefault unset = %q, want fallback", got)
	}
}

func TestActivities_BoundedNewestFirst(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < MaxActivities+1; i++ {
		a := Activity{
			Address:   fmt.Sprintf("0xaddr%02d", i),
			Chain:     "ethereum",
			SharedBy:  "alice",
			CreatedAt: int64(1000 + i),
		}
		if err := s.AppendActivity(a); err != nil {
			t.Fatalf("AppendActivity %d: %v", i, err)
		}
	}

	got, err := s.RecentActivities(0)
	if err != nil {
		t.Fatalf("RecentActivities: %v", err)
	}
	if len(got) != MaxActivities {
		t.Fatalf("len = %d, want %d", len(got), MaxActivities)
	}
	// Newest first; the first-inserted row was evicted.
	if got[0].Address != fmt.Sprintf("0xaddr%02d", MaxActivities) {
		t.Errorf("newest = %q, want last inserted", got[0].Address)
	}
	if got[len(got)-1].Address != "0xaddr01" {
		t.Errorf("oldest = %q, want %q (0xaddr00 evicted)", got[len(got)-1].Address, "0xaddr01")
	}
}

func TestHistory_Bounded(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < MaxHistory+5; i++ {
		if err := s.AppendHistory(HistoryEntry{Content: fmt.Sprintf("item %d", i)}); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}

	got, err := s.History(0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != MaxHistory {
		t.Fatalf("len = %d, want %d", len(got), MaxHistory)
	}
	if got[0].Content != fmt.Sprintf("item %d", MaxHistory+4) {
		t.Errorf("newest = %q", got[0].Content)
	}
	if got[0].Kind != "clipboard" {
		t.Errorf("Kind = %q, want default %q", got[0].Kind, "clipboard")
	}
}

func TestErrorLogs_Bounded(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < MaxErrorLogs+3; i++ {
		e := ErrorLog{Source: "test", Message: fmt.Sprintf("failure %d", i)}
		if err := s.AppendErrorLog(e); err != nil {
			t.Fatalf("AppendErrorLog: %v", err)
		}
	}

	got, err := s.ErrorLogs(0)
	if err != nil {
		t.Fatalf("ErrorLogs: %v", err)
	}
	if len(got) != MaxErrorLogs {
		t.Fatalf("len = %d, want %d", len(got), MaxErrorLogs)
	}
	if got[0].Message != fmt.Sprintf("failure %d", MaxErrorLogs+2) {
		t.Errorf("newest = %q", got[0].Message)
	}
	if got[0].ID == "" || got[0].CreatedAt == 0 {
		t.Error("expected generated id and timestamp")
	}
}

func TestWebhooks_CRUD(t *testing.T) {
	s := openTestStore(t)

	w, err := s.AddWebhook(Webhook{Name: "team", URL: "https://discord.com/api/webhooks/1/abc"})
	if err != nil {
		t.Fatalf("AddWebhook: %v", err)
	}
	if w.ID == "" {
		t.Fatal("expected generated id")
	}

	// Duplicate URL rejected.
	if _, err := s.AddWebhook(Webhook{Name: "dup", URL: w.URL}); err == nil {
		t.Fatal("expected duplicate URL error")
	}

	list, err := s.ListWebhooks()
	if err != nil {
		t.Fatalf("ListWebhooks: %v", err)
	}
	if len(list) != 1 || list[0].Name != "team" {
		t.Fatalf("ListWebhooks = %+v", list)
	}

	if err := s.DeleteWebhook(w.ID); err != nil {
		t.Fatalf("DeleteWebhook: %v", err)
	}
	if err := s.DeleteWebhook(w.ID); err != ErrNotFound {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}
