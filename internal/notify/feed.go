package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stanzahq/stanza/internal/events"
	"github.com/stanzahq/stanza/internal/logging"
	"github.com/stanzahq/stanza/internal/models"
)

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// OnUpdate registers a callback invoked after each refresh or local change
// with the current unread count.
func OnUpdate(fn func(unread int)) FeedOption {
	return func(f *Feed) {
		f.onUpdate = fn
	}
}

// Feed is one user's notification view: the unread badge count, and the
// item list while the feed is open. Counts and list may disagree by up to
// one refresh.
type Feed struct {
	svc    *Service
	viewer string
	logger zerolog.Logger

	onUpdate func(int)

	mu     sync.Mutex
	open   bool
	items  []*models.Notification
	unread int
	handle events.Handle
}

// NewFeed creates a closed feed for viewerID.
func NewFeed(svc *Service, viewerID string, opts ...FeedOption) *Feed {
	f := &Feed{
		svc:    svc,
		viewer: viewerID,
		logger: logging.WithUser(logging.Component("notify-feed"), viewerID),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open marks the feed visible and refetches the list and count.
func (f *Feed) Open(ctx context.Context) {
	f.mu.Lock()
	f.open = true
	f.mu.Unlock()
	f.Refresh(ctx)
}

// Hide collapses the list. The live subscription and the unread count are
// kept.
func (f *Feed) Hide() {
	f.mu.Lock()
	f.open = false
	f.items = nil
	f.mu.Unlock()
}

// Close hides the feed and cancels any live subscription. The unread count
// keeps being refreshed by Refresh.
func (f *Feed) Close() {
	f.mu.Lock()
	f.open = false
	f.items = nil
	handle := f.handle
	f.handle = nil
	f.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
}

// IsOpen reports whether the feed is visible.
func (f *Feed) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Refresh refetches the unread count, and the list when the feed is open.
// Failed fetches degrade to zero and empty.
func (f *Feed) Refresh(ctx context.Context) {
	count, err := f.svc.UnreadCount(ctx, f.viewer)
	if err != nil {
		f.logger.Error().Err(err).Msg("failed to load unread notification count")
		count = 0
	}

	f.mu.Lock()
	open := f.open
	f.mu.Unlock()

	var items []*models.Notification
	if open {
		items, err = f.svc.List(ctx, f.viewer)
		if err != nil {
			f.logger.Error().Err(err).Msg("failed to load notifications")
			items = []*models.Notification{}
		}
	}

	f.mu.Lock()
	f.unread = count
	if f.open && open {
		f.items = items
	}
	f.mu.Unlock()
	f.updated()
}

// MarkRead marks one notification read locally, then in the store. On
// failure the authoritative state is refetched and the error returned.
func (f *Feed) MarkRead(ctx context.Context, notificationID string) error {
	f.mu.Lock()
	for _, item := range f.items {
		if item.ID == notificationID && !item.IsRead {
			item.IsRead = true
			if f.unread > 0 {
				f.unread--
			}
			break
		}
	}
	f.mu.Unlock()
	f.updated()

	if err := f.svc.MarkOneRead(ctx, notificationID); err != nil {
		f.logger.Warn().Err(err).Str("notification_id", notificationID).Msg("mark read failed, refetching")
		f.Refresh(ctx)
		return err
	}
	return nil
}

// MarkAllRead marks every notification read locally, then in the store. On
// failure the authoritative state is refetched and the error returned.
func (f *Feed) MarkAllRead(ctx context.Context) error {
	f.mu.Lock()
	for _, item := range f.items {
		item.IsRead = true
	}
	f.unread = 0
	f.mu.Unlock()
	f.updated()

	if err := f.svc.MarkAllRead(ctx, f.viewer); err != nil {
		f.logger.Warn().Err(err).Msg("mark all read failed, refetching")
		f.Refresh(ctx)
		return err
	}
	return nil
}

// Watch subscribes to the viewer's notification events and refreshes on
// each one. The subscription ends when the feed is closed.
func (f *Feed) Watch(ctx context.Context, live events.Channel) error {
	ctx = context.WithoutCancel(ctx)
	handle, err := live.Subscribe(events.Filter{
		EntityTypes: []models.EntityType{models.EntityTypeNotification},
		ScopeID:     f.viewer,
	}, func(event *models.Event) {
		f.logger.Debug().Str("event_type", string(event.Type)).Msg("notification event")
		f.Refresh(ctx)
	})
	if err != nil {
		return models.E("notify.Feed.Watch", models.ErrTransport, err)
	}

	f.mu.Lock()
	previous := f.handle
	f.handle = handle
	f.mu.Unlock()

	if previous != nil {
		previous.Cancel()
	}
	return nil
}

// Items returns a copy of the loaded notifications, newest first.
func (f *Feed) Items() []*models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*models.Notification, len(f.items))
	for i, item := range f.items {
		copied := *item
		out[i] = &copied
	}
	return out
}

// UnreadCount returns the last known unread count.
func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

func (f *Feed) updated() {
	if f.onUpdate == nil {
		return
	}
	f.onUpdate(f.UnreadCount())
}
