package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stanzahq/stanza/internal/logging"
	"github.com/stanzahq/stanza/internal/models"
)

// DefaultBufferSize is the initial capacity of a subscription's mailbox.
const DefaultBufferSize = 64

// subscription delivers to its handler from its own goroutine. The mailbox
// grows as needed, so a slow handler delays its events but never loses them.
type subscription struct {
	id      string
	filter  Filter
	handler EventHandler
	owner   *InMemoryPublisher

	mu      sync.Mutex
	mailbox []*models.Event
	wake    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	once    sync.Once
}

func (s *subscription) ID() string {
	return s.id
}

// Cancel stops delivery and removes the subscription from its publisher.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.owner.remove(s.id)
		close(s.done)
	})
}

func (s *subscription) enqueue(event *models.Event) {
	s.mu.Lock()
	s.mailbox = append(s.mailbox, event)
	depth := int64(len(s.mailbox))
	s.mu.Unlock()

	for {
		seen := s.owner.highWater.Load()
		if depth <= seen || s.owner.highWater.CompareAndSwap(seen, depth) {
			break
		}
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) take() []*models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.mailbox
	s.mailbox = make([]*models.Event, 0, cap(batch))
	return batch
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for _, event := range s.take() {
			if s.closed.Load() {
				return
			}
			s.handler(event)
		}
	}
}

// InMemoryPublisher implements Channel using in-process pub/sub.
type InMemoryPublisher struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	bufferSize    int
	closed        bool
	highWater     atomic.Int64
	repo          Repository
	logger        zerolog.Logger
}

// PublisherOption configures an InMemoryPublisher.
type PublisherOption func(*InMemoryPublisher)

// WithRepository configures the publisher to also persist events.
func WithRepository(repo Repository) PublisherOption {
	return func(p *InMemoryPublisher) {
		p.repo = repo
	}
}

// WithBufferSize sets the initial mailbox capacity of each subscription.
func WithBufferSize(size int) PublisherOption {
	return func(p *InMemoryPublisher) {
		if size > 0 {
			p.bufferSize = size
		}
	}
}

// NewInMemoryPublisher creates a new in-memory event publisher.
func NewInMemoryPublisher(opts ...PublisherOption) *InMemoryPublisher {
	p := &InMemoryPublisher{
		subscriptions: make(map[string]*subscription),
		bufferSize:    DefaultBufferSize,
		logger:        logging.Component("events"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish queues an event for every matching subscriber without waiting for
// any of them. Every matching subscriber receives every event, in publish
// order. If a repository is configured, the event is also persisted.
func (p *InMemoryPublisher) Publish(ctx context.Context, event *models.Event) error {
	if event == nil {
		return ErrNilEvent
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if p.repo != nil {
		if err := p.repo.Append(ctx, event); err != nil {
			p.logger.Warn().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).Msg("failed to persist event")
		}
	}

	p.dispatch(event)
	return nil
}

func (p *InMemoryPublisher) dispatch(event *models.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}
	for _, sub := range p.subscriptions {
		if !sub.filter.Matches(event) {
			continue
		}
		sub.enqueue(event)
	}
}

// Subscribe registers a handler to receive events matching the filter.
func (p *InMemoryPublisher) Subscribe(filter Filter, handler EventHandler) (Handle, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	sub := &subscription{
		id:      uuid.New().String(),
		filter:  filter,
		handler: handler,
		owner:   p,
		mailbox: make([]*models.Event, 0, p.bufferSize),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.subscriptions[sub.id] = sub
	p.mu.Unlock()

	go sub.run()
	return sub, nil
}

func (p *InMemoryPublisher) remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subscriptions, id)
}

// SubscriberCount returns the number of active subscribers.
func (p *InMemoryPublisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscriptions)
}

// Backlog returns the deepest any subscription's mailbox has been.
func (p *InMemoryPublisher) Backlog() int64 {
	return p.highWater.Load()
}

// Close cancels all subscriptions. Later publishes are discarded.
func (p *InMemoryPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	subs := make([]*subscription, 0, len(p.subscriptions))
	for _, sub := range p.subscriptions {
		subs = append(subs, sub)
	}
	p.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	return nil
}
