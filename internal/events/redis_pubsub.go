package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus fans events out over redis pub/sub channels, one channel per
// stream. Delivery is best-effort: subscribers that are not connected miss
// the event.
type RedisBus struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisBus(client *redis.Client, log *zap.Logger) *RedisBus {
	return &RedisBus{client: client, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, stream string, event Event) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	receivers, err := b.client.Publish(ctx, stream, data).Result()
	if err != nil {
		b.log.Warn("event publish failed", zap.String("stream", stream), zap.String("type", event.Type), zap.Error(err))
		return err
	}
	b.log.Debug("event published", zap.String("stream", stream), zap.String("type", event.Type), zap.Int64("receivers", receivers))
	return nil
}

// Subscribe confirms the subscription before returning, then delivers
// events on a background goroutine until ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	sub := b.client.Subscribe(ctx, stream)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", stream, err)
	}

	go func() {
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				event, err := Decode([]byte(msg.Payload))
				if err != nil {
					b.log.Warn("dropping malformed event", zap.String("stream", stream), zap.Error(err))
					continue
				}
				handler(event)
			}
		}
	}()
	return nil
}

// Encode is the wire form shared by every bus and the notify bridge.
func Encode(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func Decode(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	if event.Type == "" {
		return Event{}, fmt.Errorf("event without type")
	}
	return event, nil
}
