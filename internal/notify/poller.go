package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanzahq/stanza/internal/logging"
)

var (
	ErrPollerAlreadyRunning = errors.New("poller already running")
	ErrPollerNotRunning     = errors.New("poller not running")
)

// DefaultPollInterval is how often the unread badge is refreshed when no
// live push arrives.
const DefaultPollInterval = time.Minute

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval time.Duration
}

// DefaultPollerConfig returns a one-minute polling policy.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{Interval: DefaultPollInterval}
}

// Poller keeps a Feed fresh without the live channel. Each tick refreshes
// the unread count, and the list too while the panel is open.
type Poller struct {
	interval time.Duration
	feed     *Feed
	logger   zerolog.Logger

	mu    sync.RWMutex
	run   *pollRun
	last  time.Time
	polls int
}

// pollRun is one Start..Stop cycle.
type pollRun struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller returns a stopped Poller for feed.
func NewPoller(config PollerConfig, feed *Feed) *Poller {
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		interval: interval,
		feed:     feed,
		logger:   logging.Component("notify-poller"),
	}
}

// Start launches the tick loop. It stops when ctx ends or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run != nil {
		return ErrPollerAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &pollRun{ctx: runCtx, cancel: cancel, done: make(chan struct{})}
	p.run = run

	p.logger.Debug().Dur("interval", p.interval).Msg("polling notifications")
	go p.loop(run)
	return nil
}

// Stop ends the tick loop and waits for a poll in progress.
func (p *Poller) Stop() error {
	p.mu.Lock()
	run := p.run
	p.run = nil
	p.mu.Unlock()

	if run == nil {
		return ErrPollerNotRunning
	}
	run.cancel()
	<-run.done
	return nil
}

// IsRunning reports whether the tick loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.run != nil
}

// PollNow refreshes immediately without waiting for the next tick.
func (p *Poller) PollNow() error {
	p.mu.RLock()
	run := p.run
	p.mu.RUnlock()

	if run == nil {
		return ErrPollerNotRunning
	}
	p.poll(run.ctx)
	return nil
}

// LastPollTime returns the time of the latest refresh, if any.
func (p *Poller) LastPollTime() (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, !p.last.IsZero()
}

// Polls counts refreshes since the poller was created.
func (p *Poller) Polls() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.polls
}

func (p *Poller) loop(run *pollRun) {
	defer close(run.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-run.ctx.Done():
			return
		case <-ticker.C:
			p.poll(run.ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	p.feed.Refresh(ctx)

	p.mu.Lock()
	p.last = time.Now()
	p.polls++
	p.mu.Unlock()

	p.logger.Trace().
		Bool("panel_open", p.feed.IsOpen()).
		Int("unread", p.feed.UnreadCount()).
		Msg("notifications polled")
}
