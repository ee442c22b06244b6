package eventbus

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"signalcore/internal/observability"
)

// outboundChannel is the Redis Pub/Sub channel every Broker PUBLISHes
// decoded envelopes to, standing in for the spec's "outbound publish
// socket (subscribers receive)". Delivery here is at-most-once to
// subscribers by design — see spec §5, "Delivery".
const outboundChannel = "signalcore:events:outbound"

// Broker is the process that bridges the inbound list (PULL side) to the
// outbound pub/sub channel (PUB side). A single broker instance is
// expected to run per deployment; it is stateless and safe to restart.
type Broker struct {
	redis *redis.Client
}

// NewBroker returns a Broker bound to client.
func NewBroker(client *redis.Client) *Broker {
	return &Broker{redis: client}
}

// Run blocks, relaying one inbound envelope to the outbound channel per
// iteration, until ctx is cancelled. An envelope whose PUBLISH fails after
// BRPOP has removed it is logged and dropped, and delivery is lossy to
// subscribers that weren't connected at publish time (Pub/Sub has no
// backlog).
func (b *Broker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := b.redis.BRPop(ctx, 5*time.Second, inboundKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			observability.Warn(ctx, "eventbus_broker_brpop_failed", map[string]any{"error": err})
			time.Sleep(time.Second)
			continue
		}
		// res[0] is the key name, res[1] is the payload.
		if len(res) != 2 {
			continue
		}
		if err := b.redis.Publish(ctx, outboundChannel, res[1]).Err(); err != nil {
			observability.Warn(ctx, "eventbus_broker_publish_failed", map[string]any{"error": err})
		}
	}
}
