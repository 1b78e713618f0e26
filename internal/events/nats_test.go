package events_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stanzahq/stanza/internal/events"
	"github.com/stanzahq/stanza/internal/models"
	"github.com/stanzahq/stanza/internal/testutil"
)

func TestNATSChannelFansOutAcrossConnections(t *testing.T) {
	url := testutil.RequireNATS(t)
	prefix := "stanza.test." + strconv.FormatInt(time.Now().UnixNano(), 10)

	publisher, err := events.ConnectNATS(events.NATSOptions{URL: url, SubjectPrefix: prefix})
	require.NoError(t, err)
	defer publisher.Close()

	receiver, err := events.ConnectNATS(events.NATSOptions{URL: url, SubjectPrefix: prefix})
	require.NoError(t, err)
	defer receiver.Close()

	var mu sync.Mutex
	var got []string
	handle, err := receiver.Subscribe(events.Filter{ScopeID: "conv-1"}, func(event *models.Event) {
		mu.Lock()
		got = append(got, event.EntityID)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer handle.Cancel()

	ctx := context.Background()
	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, publisher.Publish(ctx, &models.Event{
			Type:       models.EventTypeMessageInserted,
			EntityType: models.EntityTypeMessage,
			EntityID:   id,
			ScopeID:    "conv-1",
		}))
	}
	require.NoError(t, publisher.Publish(ctx, &models.Event{
		Type:       models.EventTypeMessageInserted,
		EntityType: models.EntityTypeMessage,
		EntityID:   "other",
		ScopeID:    "conv-2",
	}))

	require.True(t, testutil.WaitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}))
	mu.Lock()
	require.Equal(t, []string{"m1", "m2", "m3"}, got)
	mu.Unlock()

	require.Equal(t, prefix+".message.inserted", publisher.Subject(models.EventTypeMessageInserted))
}

func TestConnectNATSRequiresURL(t *testing.T) {
	_, err := events.ConnectNATS(events.NATSOptions{SubjectPrefix: "stanza.events"})
	require.Error(t, err)

	_, err = events.ConnectNATS(events.NATSOptions{URL: "nats://localhost:4222"})
	require.Error(t, err)
}
