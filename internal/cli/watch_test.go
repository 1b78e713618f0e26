package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/events"
	"github.com/stanzahq/stanza/internal/models"
	"github.com/stanzahq/stanza/internal/testutil"
)

func appendEvents(t *testing.T, repo *db.EventRepository, base time.Time, scopes ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(scopes))
	for i, scope := range scopes {
		event := &models.Event{
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			Type:       models.EventTypeMessageInserted,
			EntityType: models.EntityTypeMessage,
			EntityID:   "msg",
			ScopeID:    scope,
		}
		if err := repo.Append(context.Background(), event); err != nil {
			t.Fatalf("append event: %v", err)
		}
		ids = append(ids, event.ID)
	}
	return ids
}

func decodeLines(t *testing.T, out string) []models.Event {
	t.Helper()
	var decoded []models.Event
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var event models.Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("line is not valid JSON: %q: %v", line, err)
		}
		decoded = append(decoded, event)
	}
	return decoded
}

func TestEventStreamer_DrainPagesInOrder(t *testing.T) {
	env := testutil.NewStoreEnv(t)
	repo := db.NewEventRepository(env.DB)
	ids := appendEvents(t, repo, time.Now().UTC().Add(-time.Minute), "c1", "c1", "c2")

	var buf bytes.Buffer
	config := DefaultStreamConfig()
	config.BatchSize = 2
	streamer := NewEventStreamer(repo, &buf, config)

	var cursor string
	var since *time.Time
	if err := streamer.drain(context.Background(), &cursor, &since); err != nil {
		t.Fatalf("drain: %v", err)
	}

	got := decodeLines(t, buf.String())
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, event := range got {
		if event.ID != ids[i] {
			t.Fatalf("event %d: expected %s, got %s", i, ids[i], event.ID)
		}
	}
	if cursor != ids[2] {
		t.Fatalf("expected cursor at last event, got %q", cursor)
	}

	buf.Reset()
	more := appendEvents(t, repo, time.Now().UTC(), "c1")
	if err := streamer.drain(context.Background(), &cursor, &since); err != nil {
		t.Fatalf("drain: %v", err)
	}
	got = decodeLines(t, buf.String())
	if len(got) != 1 || got[0].ID != more[0] {
		t.Fatalf("expected only the new event, got %+v", got)
	}
}

func TestEventStreamer_LateEventWithEarlierTimestamp(t *testing.T) {
	env := testutil.NewStoreEnv(t)
	repo := db.NewEventRepository(env.DB)
	base := time.Now().UTC()
	appendEvents(t, repo, base.Add(200*time.Millisecond), "c1")

	var buf bytes.Buffer
	streamer := NewEventStreamer(repo, &buf, DefaultStreamConfig())

	var cursor string
	var since *time.Time
	if err := streamer.drain(context.Background(), &cursor, &since); err != nil {
		t.Fatalf("drain: %v", err)
	}

	buf.Reset()
	late := appendEvents(t, repo, base.Add(100*time.Millisecond), "c1")
	if err := streamer.drain(context.Background(), &cursor, &since); err != nil {
		t.Fatalf("drain: %v", err)
	}
	got := decodeLines(t, buf.String())
	if len(got) != 1 || got[0].ID != late[0] {
		t.Fatalf("expected the late event, got %+v", got)
	}
}

func TestEventStreamer_StartsAtLogTail(t *testing.T) {
	env := testutil.NewStoreEnv(t)
	repo := db.NewEventRepository(env.DB)
	appendEvents(t, repo, time.Now().UTC(), "old")

	var mu sync.Mutex
	var buf bytes.Buffer
	config := DefaultStreamConfig()
	config.PollInterval = 10 * time.Millisecond
	streamer := newEventStreamer(repo, config, func(_ context.Context, event *models.Event) error {
		mu.Lock()
		defer mu.Unlock()
		buf.WriteString(event.ScopeID + "\n")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- streamer.Stream(ctx) }()

	// Let the stream pick its starting point before appending.
	time.Sleep(50 * time.Millisecond)
	appendEvents(t, repo, time.Now().UTC().Add(-time.Hour), "new")

	delivered := testutil.WaitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return strings.Contains(buf.String(), "new")
	})
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("stream: %v", err)
	}
	if !delivered {
		t.Fatal("event appended after start was not streamed")
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Contains(buf.String(), "old") {
		t.Fatalf("event logged before start was streamed: %q", buf.String())
	}
}

func TestEventStreamer_ScopeFilter(t *testing.T) {
	env := testutil.NewStoreEnv(t)
	repo := db.NewEventRepository(env.DB)
	ids := appendEvents(t, repo, time.Now().UTC().Add(-time.Minute), "c1", "c2", "c1")

	var buf bytes.Buffer
	config := DefaultStreamConfig()
	config.ScopeID = "c1"
	streamer := NewEventStreamer(repo, &buf, config)

	var cursor string
	var since *time.Time
	if err := streamer.drain(context.Background(), &cursor, &since); err != nil {
		t.Fatalf("drain: %v", err)
	}

	got := decodeLines(t, buf.String())
	if len(got) != 2 || got[0].ID != ids[0] || got[1].ID != ids[2] {
		t.Fatalf("expected c1 events only, got %+v", got)
	}
}

func TestEventStreamer_MultipleEventTypes(t *testing.T) {
	env := testutil.NewStoreEnv(t)
	repo := db.NewEventRepository(env.DB)
	base := time.Now().UTC().Add(-time.Minute)
	appendEvents(t, repo, base, "c1")
	if err := repo.Append(context.Background(), &models.Event{
		Timestamp:  base.Add(time.Second),
		Type:       models.EventTypeNotificationCreated,
		EntityType: models.EntityTypeNotification,
		EntityID:   "n1",
		ScopeID:    "alice",
	}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := repo.Append(context.Background(), &models.Event{
		Timestamp:  base.Add(2 * time.Second),
		Type:       models.EventTypeMessagesRead,
		EntityType: models.EntityTypeMessage,
		EntityID:   "c1",
		ScopeID:    "c1",
	}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	var buf bytes.Buffer
	config := DefaultStreamConfig()
	config.EventTypes = []models.EventType{models.EventTypeMessageInserted, models.EventTypeNotificationCreated}
	streamer := NewEventStreamer(repo, &buf, config)

	var cursor string
	var since *time.Time
	if err := streamer.drain(context.Background(), &cursor, &since); err != nil {
		t.Fatalf("drain: %v", err)
	}

	got := decodeLines(t, buf.String())
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	for _, event := range got {
		if event.Type == models.EventTypeMessagesRead {
			t.Fatalf("unexpected event type %s", event.Type)
		}
	}
}

func TestEventRelay_RepublishesLoggedEvents(t *testing.T) {
	env := testutil.NewStoreEnv(t)
	repo := db.NewEventRepository(env.DB)

	var delivered []string
	done := make(chan struct{}, 4)
	handle, err := env.Publisher.Subscribe(events.Filter{ScopeID: "c1"}, func(event *models.Event) {
		delivered = append(delivered, event.ID)
		done <- struct{}{}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer handle.Cancel()

	config := DefaultStreamConfig()
	config.PollInterval = 10 * time.Millisecond
	config.IncludeExisting = true
	relay := NewEventRelay(repo, env.Publisher, config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- relay.Stream(ctx) }()

	ids := appendEvents(t, repo, time.Now().UTC().Add(-time.Second), "c1", "c2", "c1")
	for range 2 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for relayed events")
		}
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(delivered) != 2 || delivered[0] != ids[0] || delivered[1] != ids[2] {
		t.Fatalf("expected relayed c1 events in order, got %v", delivered)
	}
}
