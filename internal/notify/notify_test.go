package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisNotifierPublishesOnGroupChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, ChannelForGroup(42))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	notifier := NewRedisNotifier(client)
	event := NewEvent(42, KindTransaction, 7)
	require.NoError(t, notifier.Notify(ctx, event))

	select {
	case msg := <-sub.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, int64(42), got.GroupID)
		assert.Equal(t, KindTransaction, got.Kind)
		assert.Equal(t, int64(7), got.EntityID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a published event")
	}
}

func TestDeliveryTaskRoundTrip(t *testing.T) {
	event := NewEvent(1, KindAccount, 3)
	task, err := NewDeliveryTask(event)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeDeliver, task.Type())

	var got Event
	require.NoError(t, json.Unmarshal(task.Payload(), &got))
	assert.Equal(t, event, got)
}

type captureNotifier struct {
	events []Event
}

func (c *captureNotifier) Notify(ctx context.Context, event Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestDeliveryHandlerForwardsToSink(t *testing.T) {
	event := NewEvent(9, KindAccount, 11)
	task, err := NewDeliveryTask(event)
	require.NoError(t, err)

	sink := &captureNotifier{}
	handler := NewDeliveryHandler(sink, discardLogger())
	require.NoError(t, handler(context.Background(), task))
	require.Len(t, sink.events, 1)
	assert.Equal(t, event, sink.events[0])
}
