package share

import (
	"context"
	"log/slog"
	"time"
)

const defaultStrategyTimeout = 5 * time.Second

// Strategy is one independent way of delivering a record to the remote
// store. Strategies are attempted in order until one succeeds.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, rec Record) error
}

// ErrorSink records per-attempt diagnostic entries.
type ErrorSink interface {
	LogError(source, message, details string)
}

type nopSink struct{}

func (nopSink) LogError(string, string, string) {}

// Dispatcher delivers records through a cascading list of strategies.
//
// By default cascade exhaustion still reports success: delivery failure is
// demoted to logged diagnostics so the user-visible "shared" affordance
// stays consistent. Silent data loss is possible in that mode; Strict
// propagates the final error instead.
type Dispatcher struct {
	strategies []Strategy
	errors     ErrorSink
	logger     *slog.Logger

	// ready is called before the cascade; its error propagates to the
	// caller (connection problems are not swallowed, delivery problems are).
	ready func(ctx context.Context) error

	// Strict makes Share return the last cascade error instead of
	// swallowing it.
	Strict bool

	// StrategyTimeout bounds each individual attempt.
	StrategyTimeout time.Duration
}

// NewDispatcher creates a Dispatcher over the given strategies. sink and
// ready may be nil.
func NewDispatcher(strategies []Strategy, sink ErrorSink, ready func(ctx context.Context) error) *Dispatcher {
	if sink == nil {
		sink = nopSink{}
	}
	return &Dispatcher{
		strategies:      strategies,
		errors:          sink,
		logger:          slog.Default(),
		ready:           ready,
		StrategyTimeout: defaultStrategyTimeout,
	}
}

// Share validates and delivers rec. The returned bool is "apparent success"
// for UI messaging. Validation and connection errors propagate; delivery
// errors do not unless Strict is set.
func (d *Dispatcher) Share(ctx context.Context, rec Record) (bool, error) {
	rec, err := rec.normalized()
	if err != nil {
		d.errors.LogError("share", "missing required data for sharing", rec.Content)
		return false, err
	}

	if d.ready != nil {
		if err := d.ready(ctx); err != nil {
			return false, err
		}
	}

	var lastErr error
	for _, s := range d.strategies {
		attemptCtx, cancel := context.WithTimeout(ctx, d.StrategyTimeout)
		err := s.Attempt(attemptCtx, rec)
		cancel()

		if err == nil {
			d.logger.Info("content shared with group", "group", rec.GroupID, "strategy", s.Name())
			return true, nil
		}

		lastErr = err
		d.logger.Warn("delivery attempt failed", "strategy", s.Name(), "error", err)
		d.errors.LogError(s.Name(), "delivery attempt failed", err.Error())
	}

	d.logger.Error("all delivery strategies exhausted", "group", rec.GroupID, "error", lastErr)
	if d.Strict {
		return false, lastErr
	}
	return true, nil
}
