package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ChannelForGroup names the Redis pub/sub channel carrying a group's events.
func ChannelForGroup(groupID int64) string {
	return fmt.Sprintf("group:%d", groupID)
}

// RedisNotifier publishes events on the group's pub/sub channel.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier returns a notifier backed by the given Redis client.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Notify publishes the event JSON. Subscribers that are not listening simply
// miss the event and resynchronize on reconnect.
func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	if err := n.client.Publish(ctx, ChannelForGroup(event.GroupID), payload).Err(); err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}
