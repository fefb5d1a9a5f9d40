package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"backoffice-notify/internal/changefeed"
	"backoffice-notify/internal/model"
	"backoffice-notify/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(nil, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func receive(t *testing.T, c *Client) changefeed.Change {
	t.Helper()
	select {
	case frame, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var change changefeed.Change
		require.NoError(t, json.Unmarshal(frame, &change))
		return change
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return changefeed.Change{}
	}
}

func TestHubDeliversToEveryConnectionOfTheUser(t *testing.T) {
	hub, _ := startHub(t)
	log := logger.NewNopLogger()

	user := uuid.New()
	laptop := NewClient(hub, nil, user, log)
	phone := NewClient(hub, nil, user, log)
	stranger := NewClient(hub, nil, uuid.New(), log)
	for _, c := range []*Client{laptop, phone, stranger} {
		require.True(t, hub.Register(c))
	}
	require.Eventually(t, func() bool { return hub.ConnectedClients(user) == 2 }, time.Second, 5*time.Millisecond)

	rec := model.Notification{ID: uuid.New(), UserID: user, Type: model.NotificationTypeAssigned}
	hub.Deliver(user, changefeed.Change{Op: changefeed.OpInsert, Record: rec})

	for _, c := range []*Client{laptop, phone} {
		change := receive(t, c)
		assert.Equal(t, changefeed.OpInsert, change.Op)
		assert.Equal(t, rec.ID, change.Record.ID)
	}
	assert.Empty(t, stranger.Send)
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub, _ := startHub(t)

	user := uuid.New()
	c := NewClient(hub, nil, user, logger.NewNopLogger())
	require.True(t, hub.Register(c))
	require.Eventually(t, func() bool { return hub.ConnectedClients(user) == 1 }, time.Second, 5*time.Millisecond)

	hub.Unregister(c)
	require.Eventually(t, func() bool { return hub.ConnectedClients(user) == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-c.Send
	assert.False(t, ok)
}

func TestHubStop(t *testing.T) {
	hub, cancel := startHub(t)

	user := uuid.New()
	c := NewClient(hub, nil, user, logger.NewNopLogger())
	require.True(t, hub.Register(c))
	require.Eventually(t, func() bool { return hub.ConnectedClients(user) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return hub.ConnectedClients(user) == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-c.Send
	assert.False(t, ok)
	assert.False(t, hub.Register(NewClient(hub, nil, user, logger.NewNopLogger())))

	// Unregister after stop must not block.
	hub.Unregister(c)
}
