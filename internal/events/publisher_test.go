package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stanzahq/stanza/internal/models"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func messageEvent(conversationID, messageID string) *models.Event {
	return &models.Event{
		Type:       models.EventTypeMessageInserted,
		EntityType: models.EntityTypeMessage,
		EntityID:   messageID,
		ScopeID:    conversationID,
	}
}

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		event  *models.Event
		want   bool
	}{
		{
			name:   "empty filter matches any event",
			filter: Filter{},
			event:  messageEvent("conv-1", "msg-1"),
			want:   true,
		},
		{
			name:   "nil event returns false",
			filter: Filter{},
			event:  nil,
			want:   false,
		},
		{
			name:   "event type filter matches",
			filter: Filter{EventTypes: []models.EventType{models.EventTypeMessageInserted}},
			event:  messageEvent("conv-1", "msg-1"),
			want:   true,
		},
		{
			name:   "event type filter rejects non-matching",
			filter: Filter{EventTypes: []models.EventType{models.EventTypeNotificationCreated}},
			event:  messageEvent("conv-1", "msg-1"),
			want:   false,
		},
		{
			name:   "entity type filter rejects non-matching",
			filter: Filter{EntityTypes: []models.EntityType{models.EntityTypeNotification}},
			event:  messageEvent("conv-1", "msg-1"),
			want:   false,
		},
		{
			name:   "entity id filter",
			filter: Filter{EntityID: "msg-2"},
			event:  messageEvent("conv-1", "msg-1"),
			want:   false,
		},
		{
			name:   "scope filter matches",
			filter: Filter{ScopeID: "conv-1"},
			event:  messageEvent("conv-1", "msg-1"),
			want:   true,
		},
		{
			name:   "scope filter rejects other conversation",
			filter: Filter{ScopeID: "conv-2"},
			event:  messageEvent("conv-1", "msg-1"),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.event); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInMemoryPublisher_Subscribe(t *testing.T) {
	pub := NewInMemoryPublisher()
	defer pub.Close()

	handle, err := pub.Subscribe(Filter{}, func(*models.Event) {})
	if err != nil {
		t.Fatalf("Subscribe() error = %v, want nil", err)
	}
	if handle.ID() == "" {
		t.Error("Subscribe() returned a handle without an id")
	}
	if pub.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", pub.SubscriberCount())
	}

	if _, err := pub.Subscribe(Filter{}, nil); err != ErrNilHandler {
		t.Errorf("Subscribe() nil handler error = %v, want %v", err, ErrNilHandler)
	}
}

func TestInMemoryPublisher_CancelIsIdempotent(t *testing.T) {
	pub := NewInMemoryPublisher()
	defer pub.Close()

	handle, _ := pub.Subscribe(Filter{}, func(*models.Event) {})
	handle.Cancel()
	handle.Cancel()

	if pub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", pub.SubscriberCount())
	}
}

func TestInMemoryPublisher_Publish(t *testing.T) {
	pub := NewInMemoryPublisher()
	defer pub.Close()

	var mu sync.Mutex
	var received []*models.Event
	_, _ = pub.Subscribe(Filter{}, func(event *models.Event) {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
	})

	event := messageEvent("conv-1", "msg-1")
	if err := pub.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if event.ID == "" || event.Timestamp.IsZero() {
		t.Errorf("Publish() did not stamp the event: %+v", event)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})
	mu.Lock()
	if received[0].EntityID != "msg-1" {
		t.Errorf("received entity = %s, want msg-1", received[0].EntityID)
	}
	mu.Unlock()

	if err := pub.Publish(context.Background(), nil); err != ErrNilEvent {
		t.Errorf("Publish(nil) error = %v, want %v", err, ErrNilEvent)
	}
}

func TestInMemoryPublisher_PublishWithFilter(t *testing.T) {
	pub := NewInMemoryPublisher()
	defer pub.Close()
	ctx := context.Background()

	var conv1, notifications atomic.Int32
	_, _ = pub.Subscribe(Filter{ScopeID: "conv-1"}, func(*models.Event) { conv1.Add(1) })
	_, _ = pub.Subscribe(Filter{
		EntityTypes: []models.EntityType{models.EntityTypeNotification},
	}, func(*models.Event) { notifications.Add(1) })

	_ = pub.Publish(ctx, messageEvent("conv-1", "msg-1"))
	_ = pub.Publish(ctx, messageEvent("conv-2", "msg-2"))
	_ = pub.Publish(ctx, &models.Event{
		Type:       models.EventTypeNotificationCreated,
		EntityType: models.EntityTypeNotification,
		EntityID:   "n-1",
		ScopeID:    "alice",
	})

	waitFor(t, func() bool { return conv1.Load() == 1 && notifications.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	if conv1.Load() != 1 {
		t.Errorf("conv-1 deliveries = %d, want 1", conv1.Load())
	}
	if notifications.Load() != 1 {
		t.Errorf("notification deliveries = %d, want 1", notifications.Load())
	}
}

func TestInMemoryPublisher_DeliversInPublishOrder(t *testing.T) {
	pub := NewInMemoryPublisher(WithBufferSize(256))
	defer pub.Close()

	const total = 200
	var mu sync.Mutex
	var got []string
	_, _ = pub.Subscribe(Filter{}, func(event *models.Event) {
		mu.Lock()
		got = append(got, event.EntityID)
		mu.Unlock()
	})

	var want []string
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("msg-%03d", i)
		want = append(want, id)
		_ = pub.Publish(context.Background(), messageEvent("conv-1", id))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == total
	})
	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestInMemoryPublisher_NoDeliveryAfterCancel(t *testing.T) {
	pub := NewInMemoryPublisher()
	defer pub.Close()

	var count atomic.Int32
	handle, _ := pub.Subscribe(Filter{}, func(*models.Event) { count.Add(1) })

	_ = pub.Publish(context.Background(), messageEvent("conv-1", "msg-1"))
	waitFor(t, func() bool { return count.Load() == 1 })

	handle.Cancel()
	_ = pub.Publish(context.Background(), messageEvent("conv-1", "msg-2"))
	time.Sleep(20 * time.Millisecond)

	if count.Load() != 1 {
		t.Errorf("deliveries after cancel = %d, want 1", count.Load())
	}
}

func TestInMemoryPublisher_CancelFromHandler(t *testing.T) {
	pub := NewInMemoryPublisher()
	defer pub.Close()

	var handle Handle
	var count atomic.Int32
	ready := make(chan struct{})
	handle, _ = pub.Subscribe(Filter{}, func(*models.Event) {
		<-ready
		count.Add(1)
		handle.Cancel()
	})
	close(ready)

	_ = pub.Publish(context.Background(), messageEvent("conv-1", "msg-1"))
	waitFor(t, func() bool { return pub.SubscriberCount() == 0 })
	_ = pub.Publish(context.Background(), messageEvent("conv-1", "msg-2"))
	time.Sleep(20 * time.Millisecond)

	if count.Load() != 1 {
		t.Errorf("deliveries = %d, want 1", count.Load())
	}
}

func TestInMemoryPublisher_SlowSubscriberMissesNothing(t *testing.T) {
	pub := NewInMemoryPublisher(WithBufferSize(1))
	defer pub.Close()

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	var mu sync.Mutex
	var got []string
	_, _ = pub.Subscribe(Filter{}, func(event *models.Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		mu.Lock()
		got = append(got, event.EntityID)
		mu.Unlock()
	})

	ctx := context.Background()
	_ = pub.Publish(ctx, messageEvent("conv-1", "msg-0"))
	<-started

	want := []string{"msg-0"}
	for i := 1; i < 300; i++ {
		id := fmt.Sprintf("msg-%d", i)
		want = append(want, id)
		if err := pub.Publish(ctx, messageEvent("conv-1", id)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if pub.Backlog() < 299 {
		t.Errorf("Backlog() = %d, want at least 299", pub.Backlog())
	}

	close(block)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	})
	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery %d = %s, want %s", i, got[i], want[i])
		}
	}
}

type recordingRepo struct {
	mu     sync.Mutex
	events []*models.Event
	err    error
}

func (r *recordingRepo) Append(_ context.Context, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func TestInMemoryPublisher_WithRepository(t *testing.T) {
	repo := &recordingRepo{err: errors.New("disk full")}
	pub := NewInMemoryPublisher(WithRepository(repo))
	defer pub.Close()

	var count atomic.Int32
	_, _ = pub.Subscribe(Filter{}, func(*models.Event) { count.Add(1) })

	if err := pub.Publish(context.Background(), messageEvent("conv-1", "msg-1")); err != nil {
		t.Fatalf("Publish() error = %v, want nil on persistence failure", err)
	}
	waitFor(t, func() bool { return count.Load() == 1 })

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.events) != 1 {
		t.Errorf("persisted %d events, want 1", len(repo.events))
	}
}

func TestInMemoryPublisher_Close(t *testing.T) {
	pub := NewInMemoryPublisher()
	_, _ = pub.Subscribe(Filter{}, func(*models.Event) {})
	_, _ = pub.Subscribe(Filter{}, func(*models.Event) {})

	_ = pub.Close()
	if pub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", pub.SubscriberCount())
	}
	if _, err := pub.Subscribe(Filter{}, func(*models.Event) {}); err != ErrClosed {
		t.Errorf("Subscribe() after Close error = %v, want %v", err, ErrClosed)
	}
}
