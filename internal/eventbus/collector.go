package eventbus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"signalcore/internal/model"
	"signalcore/internal/observability"
	"signalcore/internal/schema"
)

// EventStore is the persistence dependency the Collector needs. Satisfied
// by internal/store.Repository; kept as a narrow local interface so this
// package doesn't import the store package's full surface.
type EventStore interface {
	InsertObservedEvent(ctx context.Context, event model.ObservedEvent) error
}

// Collector subscribes to every event published on the observation bus and
// writes normalized rows to the analytics store. Per spec §5: "exactly-once
// into the analytics store is not guaranteed — duplicates tolerated;
// readers should dedupe by event_id" — InsertObservedEvent is expected to
// be an idempotent upsert keyed on event_id.
type Collector struct {
	redis *redis.Client
	store EventStore
}

// NewCollector returns a Collector that persists via store.
func NewCollector(client *redis.Client, store EventStore) *Collector {
	return &Collector{redis: client, store: store}
}

// Run subscribes and processes envelopes until ctx is cancelled. A
// malformed or schema-invalid envelope is logged and skipped: one bad
// message must never stop the collector.
func (c *Collector) Run(ctx context.Context) error {
	sub := c.redis.Subscribe(ctx, outboundChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.handle(ctx, msg.Payload)
		}
	}
}

func (c *Collector) handle(ctx context.Context, payload string) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		observability.Warn(ctx, "eventbus_collector_decode_failed", map[string]any{"error": err})
		return
	}

	if err := schema.Validate(model.EventType(env.EventType), env.Data); err != nil {
		observability.Warn(ctx, "eventbus_collector_schema_invalid", map[string]any{
			"error": err, "event_type": env.EventType, "event_id": env.EventID,
		})
		return
	}

	if err := c.store.InsertObservedEvent(ctx, env.ToObservedEvent()); err != nil {
		observability.Error(ctx, "eventbus_collector_store_failed", map[string]any{
			"error": err, "event_id": env.EventID,
		})
	}
}
