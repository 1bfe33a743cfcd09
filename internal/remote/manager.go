package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// MaxInitRetries is the number of connection attempts before the
	// manager fails terminally.
	MaxInitRetries = 3

	initBackoff = 1 * time.Second
	initTimeout = 10 * time.Second
)

var (
	// ErrInitTimeout is returned to waiters when initialization exceeds
	// its hard wall-clock bound.
	ErrInitTimeout = errors.New("remote store initialization timed out")

	// ErrInitFailed is returned once all init retries are exhausted. The
	// failure is sticky for the lifetime of the manager.
	ErrInitFailed = errors.New("remote store initialization failed")
)

// ErrorSink records diagnostic entries. Implemented by the local store.
type ErrorSink interface {
	LogError(source, message, details string)
}

type nopSink struct{}

func (nopSink) LogError(string, string, string) {}

// Manager owns the remote store client handle: lazy creation, retry with
// backoff, and coalescing of concurrent initializers. All callers of
// EnsureReady while an attempt is in flight wait on that same attempt.
type Manager struct {
	endpoint Endpoint
	logger   *slog.Logger
	errors   ErrorSink

	// connect establishes and verifies a client handle. Overridable in tests.
	connect func(ctx context.Context) (*Client, error)

	backoff time.Duration
	timeout time.Duration

	sf singleflight.Group

	mu          sync.Mutex
	client      *Client
	terminalErr error
}

// NewManager creates a Manager for the given endpoint. sink may be nil.
func NewManager(endpoint Endpoint, sink ErrorSink) *Manager {
	if sink == nil {
		sink = nopSink{}
	}
	m := &Manager{
		endpoint: endpoint,
		logger:   slog.Default(),
		errors:   sink,
		backoff:  initBackoff,
		timeout:  initTimeout,
	}
	m.connect = m.dial
	return m
}

// dial builds a client and verifies reachability via the health endpoint.
func (m *Manager) dial(ctx context.Context) (*Client, error) {
	c := NewClient(m.endpoint)
	if err := c.Health(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Client returns the established handle, or nil before EnsureReady succeeds.
func (m *Manager) Client() *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

// EnsureReady makes sure the client handle exists. It is idempotent and safe
// to call from any number of goroutines: concurrent callers share a single
// in-flight initialization instead of starting their own. Waiters are failed
// after a hard 10s timeout. Once retries are exhausted the error is terminal
// and every subsequent call fails immediately.
func (m *Manager) EnsureReady(ctx context.Context) error {
	m.mu.Lock()
	if m.client != nil {
		m.mu.Unlock()
		return nil
	}
	if m.terminalErr != nil {
		err := m.terminalErr
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	ch := m.sf.DoChan("init", func() (any, error) {
		return nil, m.initialize()
	})

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.Err
	case <-timer.C:
		return ErrInitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// initialize runs the retry loop. It is executed by exactly one goroutine at
// a time (singleflight) and bounded by the same wall-clock limit as waiters.
func (m *Manager) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= MaxInitRetries; attempt++ {
		client, err := m.connect(ctx)
		if err == nil {
			m.mu.Lock()
			m.client = client
			m.mu.Unlock()

			// Liveness probe against the shares table. Failure is logged
			// but does not fail initialization; the handle is still usable.
			go func() {
				probeCtx, probeCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer probeCancel()
				if err := client.ProbeTable(probeCtx); err != nil {
					m.logger.Warn("initial table probe failed", "error", err)
					m.errors.LogError("connection", "initial table probe failed", err.Error())
				}
			}()

			m.logger.Info("remote store client initialized", "attempt", attempt)
			return nil
		}

		lastErr = err
		m.logger.Warn("remote store init attempt failed", "attempt", attempt, "error", err)
		m.errors.LogError("connection", fmt.Sprintf("init attempt %d/%d failed", attempt, MaxInitRetries), err.Error())

		if attempt < MaxInitRetries {
			select {
			case <-time.After(m.backoff):
			case <-ctx.Done():
				return ErrInitTimeout
			}
		}
	}

	terminal := fmt.Errorf("%w after %d attempts: %v", ErrInitFailed, MaxInitRetries, lastErr)
	m.mu.Lock()
	m.terminalErr = terminal
	m.mu.Unlock()
	return terminal
}

// TestResult is the outcome of a staged connection diagnostic.
type TestResult struct {
	Success bool   `json:"success"`
	Stage   string `json:"stage,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TestConnection checks handle, network reachability, and a representative
// read in order, reporting the first stage that failed. Read-only; never on
// the critical path of sharing.
func (m *Manager) TestConnection(ctx context.Context) TestResult {
	if err := m.EnsureReady(ctx); err != nil {
		return TestResult{Success: false, Stage: "client", Error: err.Error()}
	}
	client := m.Client()

	if err := client.Health(ctx); err != nil {
		return TestResult{Success: false, Stage: "ping", Error: err.Error()}
	}
	if err := client.ProbeTable(ctx); err != nil {
		return TestResult{Success: false, Stage: "query", Error: err.Error()}
	}
	return TestResult{Success: true}
}
