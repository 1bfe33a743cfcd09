package clipboard

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"
)

const defaultInterval = 2 * time.Second

// Poller watches the system clipboard on a fixed interval and invokes
// onChange whenever the text differs from the last value seen. Detection is
// a simple last-seen comparison, not content-addressed dedup: copying A,
// then B, then A again fires three times.
type Poller struct {
	interval time.Duration
	enabled  atomic.Bool
	onChange func(text string)
	logger   *slog.Logger

	// read returns the current clipboard text. Overridable in tests.
	read func() (string, error)

	last string
}

// NewPoller creates a Poller. interval <= 0 defaults to 2s. The poller
// starts enabled.
func NewPoller(interval time.Duration, onChange func(text string)) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	p := &Poller{
		interval: interval,
		onChange: onChange,
		logger:   slog.Default(),
		read:     clipboard.ReadAll,
	}
	p.enabled.Store(true)
	return p
}

// SetEnabled toggles monitoring. While disabled the clipboard is not read
// at all.
func (p *Poller) SetEnabled(enabled bool) {
	p.enabled.Store(enabled)
}

// Enabled reports whether monitoring is active.
func (p *Poller) Enabled() bool {
	return p.enabled.Load()
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll performs one clipboard read and change check.
func (p *Poller) poll() {
	if !p.enabled.Load() {
		return
	}
	text, err := p.read()
	if err != nil {
		p.logger.Debug("clipboard read failed", "error", err)
		return
	}
	if text == "" || text == p.last {
		return
	}
	p.last = text
	p.onChange(text)
}
