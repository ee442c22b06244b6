// Package delivery implements the Signal Delivery Worker and, by
// configuring a second instance against a different consumer group and
// endpoint, the Legacy Relay used during dual-run cutover (spec §4.C,
// §4.D). Both read the signals stream as members of a consumer group and
// POST each entry to a mission-materialization endpoint.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"signalcore/internal/observability"
	"signalcore/internal/resilience"
	"signalcore/internal/streams"
)

// DefaultPendingAge is the threshold past which a pending entry is claimed
// and redelivered to a healthy consumer (spec §4.C, "default 2 min").
const DefaultPendingAge = 2 * time.Minute

// DefaultMaxAttempts is the delivery-count ceiling past which an entry is
// moved to the dead-letter stream instead of being claimed again.
const DefaultMaxAttempts = 5

// deliveryStream is the subset of *streams.Stream the worker needs; kept as
// a narrow interface so tests can substitute an in-memory fake.
type deliveryStream interface {
	ReadGroup(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]streams.Entry, error)
	Ack(ctx context.Context, group, entryID string) error
	Pending(ctx context.Context, group string, minIdle time.Duration, count int64) ([]streams.PendingEntry, error)
	ClaimStale(ctx context.Context, group, consumer string, minIdle time.Duration, entryIDs []string) ([]streams.Entry, error)
	DeadLetter(ctx context.Context, group string, entry streams.Entry, deadLetterKey, reason string) error
}

// Worker reads the signals stream as one consumer in group and posts each
// entry to Endpoint.
type Worker struct {
	Stream        deliveryStream
	Group         string
	Consumer      string
	Endpoint      string
	DeadLetterKey string
	HTTPClient    *http.Client
	Breaker       *resilience.CircuitBreaker
	PendingAge    time.Duration
	MaxAttempts   int
}

// New returns a Worker with the teacher's default HTTP client timeout and
// circuit breaker configuration, named after group so multiple workers
// (relay, legacy) log distinguishably.
func New(stream *streams.Stream, group, consumer, endpoint string) *Worker {
	return &Worker{
		Stream:        stream,
		Group:         group,
		Consumer:      consumer,
		Endpoint:      endpoint,
		DeadLetterKey: stream.Key() + ".dead",
		HTTPClient:    &http.Client{Timeout: 10 * time.Second},
		Breaker:       resilience.NewCircuitBreaker(resilience.DefaultConfig(group)),
		PendingAge:    DefaultPendingAge,
		MaxAttempts:   DefaultMaxAttempts,
	}
}

// ProcessBatch reads and delivers up to count new entries, blocking up to
// block for delivery. Returns the number of entries successfully acked.
func (w *Worker) ProcessBatch(ctx context.Context, count int64, block time.Duration) (int, error) {
	entries, err := w.Stream.ReadGroup(ctx, w.Group, w.Consumer, count, block)
	if err != nil {
		if err == streams.ErrNoEntries {
			return 0, nil
		}
		return 0, fmt.Errorf("delivery: read group %s: %w", w.Group, err)
	}

	acked := 0
	for _, entry := range entries {
		if err := w.deliver(ctx, entry); err != nil {
			observability.Warn(ctx, "delivery_post_failed", map[string]any{"error": err, "entry_id": entry.ID, "group": w.Group})
			continue
		}
		acked++
	}
	return acked, nil
}

// deliver POSTs entry to Endpoint with an Idempotency-Key equal to
// signal_id, under circuit-breaker protection, and acks on a 2xx response.
// Non-2xx and network errors leave the entry unacked for the reclaim scan.
func (w *Worker) deliver(ctx context.Context, entry streams.Entry) error {
	body, err := json.Marshal(entry.Fields)
	if err != nil {
		return fmt.Errorf("delivery: marshal entry %s: %w", entry.ID, err)
	}

	_, err = w.Breaker.ExecuteWithContext(ctx, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", entry.Fields["signal_id"])

		resp, err := w.HTTPClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("post: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	return w.Stream.Ack(ctx, w.Group, entry.ID)
}

// ReclaimStale scans for entries pending longer than PendingAge: entries
// past MaxAttempts deliveries are moved to dead-letter; the rest are
// claimed by this worker and redelivered (spec §4.C's periodic XPENDING
// scan).
func (w *Worker) ReclaimStale(ctx context.Context) (int, error) {
	pending, err := w.Stream.Pending(ctx, w.Group, w.PendingAge, 100)
	if err != nil {
		return 0, fmt.Errorf("delivery: pending scan: %w", err)
	}

	if len(pending) == 0 {
		return 0, nil
	}

	claimed, err := w.Stream.ClaimStale(ctx, w.Group, w.Consumer, w.PendingAge, idsFor(pending))
	if err != nil {
		return 0, fmt.Errorf("delivery: claim stale: %w", err)
	}

	n := 0
	for _, entry := range claimed {
		retryCount := retryCountFor(pending, entry.ID)
		if retryCount > w.MaxAttempts {
			if err := w.Stream.DeadLetter(ctx, w.Group, entry, w.DeadLetterKey, "exceeded max delivery attempts"); err != nil {
				observability.Error(ctx, "delivery_dead_letter_failed", map[string]any{"error": err, "entry_id": entry.ID})
				continue
			}
			observability.Warn(ctx, "delivery_dead_lettered", map[string]any{"entry_id": entry.ID, "attempts": retryCount})
			n++
			continue
		}
		if err := w.deliver(ctx, entry); err != nil {
			observability.Warn(ctx, "delivery_reclaim_post_failed", map[string]any{"error": err, "entry_id": entry.ID})
			continue
		}
		n++
	}
	return n, nil
}

func idsFor(pending []streams.PendingEntry) []string {
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	return ids
}

func retryCountFor(pending []streams.PendingEntry, id string) int {
	for _, p := range pending {
		if p.ID == id {
			return int(p.RetryCount)
		}
	}
	return 0
}
