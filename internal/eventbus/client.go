package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"signalcore/internal/model"
	"signalcore/internal/observability"
	"signalcore/internal/schema"
)

// inboundKey is the Redis list every Client LPUSHes to, standing in for the
// spec's "inbound pull socket (producers connect)" — a broker process
// BRPOPs this same key (see Broker.Run).
const inboundKey = "signalcore:events:inbound"

// Client publishes observation events fire-and-forget. Per spec §4.H:
// "Clients publish fire-and-forget via a small client library that
// silently swallows failures (must not affect trading)." Every error path
// here is logged and swallowed, never returned to a trading-path caller.
type Client struct {
	redis  *redis.Client
	source string
}

// NewClient returns a Client that tags every envelope it publishes with
// source (e.g. "fire-router", "confirmation-listener").
func NewClient(redisClient *redis.Client, source string) *Client {
	return &Client{redis: redisClient, source: source}
}

// Publish best-effort delivers an event. Never returns an error to the
// caller; failures, including schema violations, are logged and dropped —
// a publisher error "refuses to publish" (spec §4.A) rather than putting a
// malformed envelope on the bus, but per §4.H that refusal must never
// propagate and break the trading path.
func (c *Client) Publish(ctx context.Context, eventID, eventType, correlationID, userID string, data map[string]any) {
	if err := schema.Validate(model.EventType(eventType), data); err != nil {
		observability.Warn(ctx, "eventbus_publish_schema_invalid", map[string]any{
			"error": err, "event_type": eventType, "event_id": eventID,
		})
		return
	}

	env := Envelope{
		EventID:       eventID,
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		Source:        c.source,
		CorrelationID: correlationID,
		UserID:        userID,
		Data:          data,
	}

	raw, err := json.Marshal(env)
	if err != nil {
		observability.Warn(ctx, "eventbus_publish_marshal_failed", map[string]any{"error": err, "event_type": eventType})
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.redis.LPush(publishCtx, inboundKey, raw).Err(); err != nil {
		observability.Warn(ctx, "eventbus_publish_failed", map[string]any{"error": err, "event_type": eventType})
	}
}
