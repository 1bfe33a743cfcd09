package share

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/groupclip/groupclip/internal/remote"
)

type mockStrategy struct {
	name    string
	calls   int
	attempt func(ctx context.Context, rec Record) error
}

func (m *mockStrategy) Name() string { return m.name }

func (m *mockStrategy) Attempt(ctx context.Context, rec Record) error {
	m.calls++
	if m.attempt != nil {
		return m.attempt(ctx, rec)
	}
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingSink) LogError(source, message, details string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, source+": "+message)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func failing(name string) *mockStrategy {
	return &mockStrategy{name: name, attempt: func(context.Context, Record) error {
		return errors.New(name + " failed")
	}}
}

func TestShare_FirstStrategyWins(t *testing.T) {
	s1 := &mockStrategy{name: "one"}
	s2 := &mockStrategy{name: "two"}
	sink := &recordingSink{}
	d := NewDispatcher([]Strategy{s1, s2}, sink, nil)

	ok, err := d.Share(context.Background(), Record{Content: "0xABC", GroupID: "g1"})
	if err != nil || !ok {
		t.Fatalf("Share = (%v, %v), want (true, nil)", ok, err)
	}
	if s1.calls != 1 || s2.calls != 0 {
		t.Errorf("calls = %d/%d, want 1/0", s1.calls, s2.calls)
	}
	if sink.count() != 0 {
		t.Errorf("logged %d errors, want 0", sink.count())
	}
}

func TestShare_FallsThroughOnFailure(t *testing.T) {
	s1 := failing("one")
	s2 := &mockStrategy{name: "two"}
	sink := &recordingSink{}
	d := NewDispatcher([]Strategy{s1, s2}, sink, nil)

	ok, err := d.Share(context.Background(), Record{Content: "0xABC", GroupID: "g1"})
	if err != nil || !ok {
		t.Fatalf("Share = (%v, %v), want (true, nil)", ok, err)
	}
	if s1.calls != 1 || s2.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", s1.calls, s2.calls)
	}
	if sink.count() != 1 {
		t.Errorf("logged %d errors, want exactly 1 (for strategy one)", sink.count())
	}
}

func TestShare_ExhaustedStillSucceeds(t *testing.T) {
	strategies := []Strategy{failing("a"), failing("b"), failing("c"), failing("d")}
	sink := &recordingSink{}
	d := NewDispatcher(strategies, sink, nil)

	ok, err := d.Share(context.Background(), Record{Content: "0xABC", GroupID: "g1"})
	if err != nil || !ok {
		t.Fatalf("Share = (%v, %v), want (true, nil) despite exhaustion", ok, err)
	}
	if sink.count() != 4 {
		t.Errorf("logged %d errors, want 4", sink.count())
	}
}

func TestShare_StrictModePropagates(t *testing.T) {
	d := NewDispatcher([]Strategy{failing("only")}, nil, nil)
	d.Strict = true

	ok, err := d.Share(context.Background(), Record{Content: "0xABC", GroupID: "g1"})
	if ok || err == nil {
		t.Fatalf("Share = (%v, %v), want (false, error) in strict mode", ok, err)
	}
}

func TestShare_InvalidPayloadNoIO(t *testing.T) {
	s1 := &mockStrategy{name: "one"}
	d := NewDispatcher([]Strategy{s1}, nil, nil)

	for _, rec := range []Record{
		{Content: "", GroupID: "g1"},
		{Content: "0xABC", GroupID: ""},
	} {
		ok, err := d.Share(context.Background(), rec)
		if ok || !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("Share(%+v) = (%v, %v), want ErrInvalidPayload", rec, ok, err)
		}
	}
	if s1.calls != 0 {
		t.Errorf("strategy called %d times for invalid payloads, want 0", s1.calls)
	}
}

func TestShare_ReadyErrorPropagates(t *testing.T) {
	s1 := &mockStrategy{name: "one"}
	wantErr := errors.New("not ready")
	d := NewDispatcher([]Strategy{s1}, nil, func(ctx context.Context) error { return wantErr })

	ok, err := d.Share(context.Background(), Record{Content: "0xABC", GroupID: "g1"})
	if ok || !errors.Is(err, wantErr) {
		t.Fatalf("Share = (%v, %v), want readiness error", ok, err)
	}
	if s1.calls != 0 {
		t.Error("cascade ran despite readiness failure")
	}
}

func TestShare_AppliesDefaults(t *testing.T) {
	var got Record
	s1 := &mockStrategy{name: "one", attempt: func(_ context.Context, rec Record) error {
		got = rec
		return nil
	}}
	d := NewDispatcher([]Strategy{s1}, nil, nil)

	if _, err := d.Share(context.Background(), Record{Content: "hi", GroupID: "g1"}); err != nil {
		t.Fatalf("Share: %v", err)
	}
	if got.Sender != "Anonymous" {
		t.Errorf("Sender = %q, want default %q", got.Sender, "Anonymous")
	}
	if got.Timestamp == 0 {
		t.Error("Timestamp not defaulted")
	}
}

// End to end through the real strategies: the client path returns an error,
// the raw path succeeds against a fake REST server.
func TestDefaultStrategies_CascadeOverHTTP(t *testing.T) {
	var inserts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inserts++
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	endpoint := remote.Endpoint{BaseURL: srv.URL, APIKey: "k"}
	// Provider with no established client: strategy 1 fails fast.
	sink := &recordingSink{}
	mgr := remote.NewManager(endpoint, nil)
	d := NewDispatcher(DefaultStrategies(mgr, endpoint), sink, nil)

	ok, err := d.Share(context.Background(), Record{Content: "0xABC", GroupID: "g1"})
	if err != nil || !ok {
		t.Fatalf("Share = (%v, %v), want (true, nil)", ok, err)
	}
	if inserts != 1 {
		t.Errorf("server saw %d inserts, want 1 (raw fallback only)", inserts)
	}
	if sink.count() != 1 {
		t.Errorf("logged %d errors, want 1 (client strategy)", sink.count())
	}
}
