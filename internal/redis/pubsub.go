package redis

import (
	"context"
	"fmt"

	"dispatch-realtime/internal/models"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// NextMessage subscribes to the token's channel, waits for one well-formed
// delivery and unsubscribes.
func (c *Client) NextMessage(ctx context.Context, token string) (models.PushPayload, error) {
	ch := channel(token)
	pubsub := c.rdb.Subscribe(ctx, ch)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return models.PushPayload{}, fmt.Errorf("failed to subscribe to %s: %w", ch, err)
	}

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return models.PushPayload{}, ctx.Err()

		case msg, ok := <-msgs:
			if !ok {
				return models.PushPayload{}, fmt.Errorf("subscription to %s closed", ch)
			}

			var payload models.PushPayload
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				c.logger.Error("[REDIS] Error unmarshaling push payload", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			return payload, nil
		}
	}
}
