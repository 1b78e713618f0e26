package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stanzahq/stanza/internal/chat"
	"github.com/stanzahq/stanza/internal/config"
	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/events"
	"github.com/stanzahq/stanza/internal/logging"
	"github.com/stanzahq/stanza/internal/models"
	"github.com/stanzahq/stanza/internal/notify"
)

// StreamConfig configures event log streaming.
type StreamConfig struct {
	// PollInterval is how often to check for new events.
	PollInterval time.Duration

	// EventTypes filters to specific event types (nil = all).
	EventTypes []models.EventType

	// EntityTypes filters to specific entity types (nil = all).
	EntityTypes []models.EntityType

	// ScopeID filters to one conversation or recipient.
	ScopeID string

	// Since streams events at or after this timestamp.
	Since *time.Time

	// IncludeExisting includes events logged before streaming starts.
	IncludeExisting bool

	// BatchSize is the max events per poll.
	BatchSize int
}

// DefaultStreamConfig returns the defaults for streaming.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		PollInterval: 500 * time.Millisecond,
		BatchSize:    100,
	}
}

// EventStreamer follows the persisted event log and hands each new event
// to emit, in log order.
type EventStreamer struct {
	repo   *db.EventRepository
	emit   func(context.Context, *models.Event) error
	config StreamConfig
	logger zerolog.Logger
}

// NewEventStreamer creates a streamer that writes events to out as JSONL.
func NewEventStreamer(repo *db.EventRepository, out io.Writer, config StreamConfig) *EventStreamer {
	return newEventStreamer(repo, config, func(_ context.Context, event *models.Event) error {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	})
}

// NewEventRelay creates a streamer that republishes logged events on a
// local channel, so a process sees events other processes persisted.
func NewEventRelay(repo *db.EventRepository, channel events.Channel, config StreamConfig) *EventStreamer {
	return newEventStreamer(repo, config, channel.Publish)
}

func newEventStreamer(repo *db.EventRepository, config StreamConfig, emit func(context.Context, *models.Event) error) *EventStreamer {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultStreamConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultStreamConfig().BatchSize
	}
	return &EventStreamer{
		repo:   repo,
		emit:   emit,
		config: config,
		logger: logging.Component("event-stream"),
	}
}

// Stream follows the log until ctx is cancelled. Returns nil on
// cancellation.
func (s *EventStreamer) Stream(ctx context.Context) error {
	var cursor string
	var since *time.Time
	if s.config.IncludeExisting {
		since = s.config.Since
	} else {
		latest, err := s.repo.LatestID(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to find log tail: %w", err)
		}
		cursor = latest
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Debug().Dur("poll_interval", s.config.PollInterval).Msg("starting event stream")

	for {
		if err := s.drain(ctx, &cursor, &since); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drain emits every event after the cursor, advancing it as it goes.
func (s *EventStreamer) drain(ctx context.Context, cursor *string, since **time.Time) error {
	for {
		batch, err := s.poll(ctx, *cursor, *since)
		if err != nil {
			return fmt.Errorf("failed to poll events: %w", err)
		}
		for _, event := range batch.events {
			if err := s.emit(ctx, event); err != nil {
				return fmt.Errorf("failed to emit event: %w", err)
			}
		}
		if batch.last != "" {
			*cursor = batch.last
			*since = nil
		}
		if !batch.more {
			return nil
		}
	}
}

type streamBatch struct {
	events []*models.Event
	last   string
	more   bool
}

// poll fetches the next page and applies the multi-value filters the
// repository query cannot express.
func (s *EventStreamer) poll(ctx context.Context, cursor string, since *time.Time) (streamBatch, error) {
	query := db.EventQuery{
		Cursor: cursor,
		Since:  since,
		Limit:  s.config.BatchSize,
	}
	if len(s.config.EventTypes) == 1 {
		query.Type = &s.config.EventTypes[0]
	}
	if len(s.config.EntityTypes) == 1 {
		query.EntityType = &s.config.EntityTypes[0]
	}
	if s.config.ScopeID != "" {
		query.ScopeID = &s.config.ScopeID
	}

	page, err := s.repo.Query(ctx, query)
	if err != nil {
		return streamBatch{}, err
	}

	batch := streamBatch{more: page.NextCursor != ""}
	if n := len(page.Events); n > 0 {
		batch.last = page.Events[n-1].ID
	}

	eventTypes := make(map[models.EventType]bool, len(s.config.EventTypes))
	for _, t := range s.config.EventTypes {
		eventTypes[t] = true
	}
	entityTypes := make(map[models.EntityType]bool, len(s.config.EntityTypes))
	for _, t := range s.config.EntityTypes {
		entityTypes[t] = true
	}

	for _, event := range page.Events {
		if len(eventTypes) > 1 && !eventTypes[event.Type] {
			continue
		}
		if len(entityTypes) > 1 && !entityTypes[event.EntityType] {
			continue
		}
		batch.events = append(batch.events, event)
	}
	return batch, nil
}

var watchConversation string

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchConversation, "conversation", "", "conversation to follow (id, prefix or username)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow conversations and notifications live",
	Long: `Open a chat session and the notification poller for the current user and
print updates until interrupted. With the memory transport, updates from
other processes arrive through the persisted event log
(live.persist_events).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return runWatch(ctx, cmd.OutOrStdout(), a, watchConversation)
	},
}

// runWatch follows the user's chats and notifications until ctx ends.
func runWatch(ctx context.Context, out io.Writer, a *app, conversationRef string) error {
	cfg := GetConfig()

	group, ctx := errgroup.WithContext(ctx)
	live, closeLive := viewChannel(ctx, group, a)
	defer closeLive()

	var printer watchPrinter
	printer.out = out
	printer.viewer = a.user.ID

	session := chat.NewSession(a.chat, live, a.user.ID, chat.OnMessage(printer.message))
	if err := session.Open(ctx); err != nil {
		return err
	}
	defer session.Close()

	if conversationRef != "" {
		summary, err := findConversation(session.Conversations(), conversationRef)
		if err != nil {
			return err
		}
		if err := session.Activate(ctx, summary.ID); err != nil {
			return err
		}
		printer.header(fmt.Sprintf("Conversation with %s", summary.Other.Name()))
		for _, msg := range session.Messages() {
			printer.message(msg)
		}
	} else {
		printer.header(fmt.Sprintf("%d conversation(s)", len(session.Conversations())))
	}

	feed := notify.NewFeed(a.notify, a.user.ID, notify.OnUpdate(printer.unread))
	feed.Refresh(ctx)
	if err := feed.Watch(ctx, live); err != nil {
		return err
	}
	defer feed.Close()

	poller := notify.NewPoller(notify.PollerConfig{Interval: cfg.Notifications.PollInterval}, feed)
	group.Go(func() error {
		if err := poller.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return poller.Stop()
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// viewChannel returns the channel views subscribe to. With the memory
// transport and a persisted event log that is a local relay fed from the
// log by a goroutine in group, so updates from other processes arrive too.
func viewChannel(ctx context.Context, group *errgroup.Group, a *app) (events.Channel, func()) {
	cfg := GetConfig()
	if cfg.Live.Transport != config.TransportMemory {
		return a.live, func() {}
	}
	if !cfg.Live.PersistEvents {
		logger := logging.WithUser(logging.Component("watch"), a.user.ID)
		logger.Warn().
			Msg("live.persist_events is off: updates from other processes arrive only through polling")
		return a.live, func() {}
	}

	relay := events.NewInMemoryPublisher(events.WithBufferSize(cfg.Live.SubscriberBuffer))
	streamer := NewEventRelay(db.NewEventRepository(a.db), relay, DefaultStreamConfig())
	group.Go(func() error { return streamer.Stream(ctx) })
	return relay, func() { _ = relay.Close() }
}

// watchPrinter serializes watch output from the session and feed
// callbacks.
type watchPrinter struct {
	out        io.Writer
	viewer     string
	lastUnread int
	mu         sync.Mutex
}

func (p *watchPrinter) header(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if wantsStructured() {
		return
	}
	fmt.Fprintln(p.out, render(headerStyle, text))
}

func (p *watchPrinter) message(msg *models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if wantsStructured() {
		_ = writeJSONLine(p.out, map[string]any{"type": "message", "message": msg})
		return
	}
	fmt.Fprintln(p.out, formatMessage(msg, p.viewer))
}

func (p *watchPrinter) unread(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if count == p.lastUnread {
		return
	}
	p.lastUnread = count
	if wantsStructured() {
		_ = writeJSONLine(p.out, map[string]any{"type": "notifications", "unread": count})
		return
	}
	fmt.Fprintf(p.out, "%s %d unread notification(s)\n", unreadMarker(count > 0), count)
}
