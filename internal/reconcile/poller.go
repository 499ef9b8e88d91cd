package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/linnemanlabs/go-core/log"
)

// Refresher is the part of Orchestrator the Poller drives.
type Refresher interface {
	Refresh(ctx context.Context) (RefreshResult, error)
}

// Poller refreshes on a fixed interval. Ticks that arrive while a previous
// poll is still running are skipped.
type Poller struct {
	c      *cron.Cron
	logger log.Logger
}

// NewPoller schedules r every interval. interval must be at least one second.
func NewPoller(r Refresher, interval time.Duration, logger log.Logger) (*Poller, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("refresh interval %v is below 1s", interval)
	}
	if logger == nil {
		logger = log.Nop()
	}
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	p := &Poller{c: c, logger: logger}

	ctx := context.Background()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if _, err := r.Refresh(ctx); err != nil {
			logger.Warn(ctx, "scheduled refresh failed", "err", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule refresh: %w", err)
	}
	return p, nil
}

// Start begins polling in the background.
func (p *Poller) Start() { p.c.Start() }

// Stop stops scheduling and waits for a running poll to finish or ctx to end.
func (p *Poller) Stop(ctx context.Context) error {
	done := p.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
