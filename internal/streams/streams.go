// Package streams wraps Redis Streams (XADD/XREADGROUP/XACK/XPENDING/XCLAIM)
// as the durable, consumer-group delivery primitive used for both the
// signals stream (component B/C) and the per-EA fire streams (component
// E/F). Redis is the only broker dependency the teacher repo already
// carries (go-redis/v9, via libs/marketdata), so streams generalizes that
// same client into the durable-log role the spec asks for instead of
// reaching for an unrelated message broker.
package streams

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxLen is the approximate retention cap applied on every Append,
// per spec §5: "Retention capped at 250 000 entries; approximate trim on
// append."
const DefaultMaxLen = 250_000

// SignalsKey is the shared signals stream every signal-relay and
// legacy-relay consumer group reads from.
const SignalsKey = "signalcore:signals"

// FireKeyPrefix is prefixed to a target_uuid to build that EA's
// per-instance fire stream key (spec §5: "fire.{target_uuid}").
const FireKeyPrefix = "signalcore:fire."

// FireKey returns the per-EA fire stream key for targetUUID.
func FireKey(targetUUID string) string {
	return FireKeyPrefix + targetUUID
}

// RelayGroup and LegacyRelayGroup are the two consumer groups that read
// the signals stream during a shadow-mode dual run (spec §4.D).
const (
	RelayGroup       = "signal-relay"
	LegacyRelayGroup = "legacy-relay"
)

// FireDispatchGroup is the consumer group every per-EA Fire Dispatch
// Bridge instance joins on its own fire stream.
const FireDispatchGroup = "fire-dispatch"

// Entry is one stream record: a delivery ID plus its decoded fields.
type Entry struct {
	ID     string
	Fields map[string]string
}

// Stream wraps a single Redis stream key with consumer-group helpers.
type Stream struct {
	client *redis.Client
	key    string
	// MaxLen overrides DefaultMaxLen when non-zero.
	MaxLen int64
}

// New returns a Stream bound to key on client.
func New(client *redis.Client, key string) *Stream {
	return &Stream{client: client, key: key, MaxLen: DefaultMaxLen}
}

// Key returns the underlying Redis key.
func (s *Stream) Key() string { return s.key }

// EnsureGroup idempotently creates group on the stream, starting from the
// beginning of history ("0") if the stream/group doesn't yet exist. Safe to
// call on every bridge startup, per spec §5: "groups are idempotently
// created at bridge startup."
func (s *Stream) EnsureGroup(ctx context.Context, group string) error {
	err := s.client.XGroupCreateMkStream(ctx, s.key, group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("streams: ensure group %s on %s: %w", group, s.key, err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	// go-redis surfaces "BUSYGROUP Consumer Group name already exists" as a
	// plain *redis.StatusCmd error string; there is no typed sentinel for it.
	const busy = "BUSYGROUP"
	s := err.Error()
	return len(s) >= len(busy) && s[:len(busy)] == busy
}

// Append writes fields as a new entry, applying the approximate MAXLEN
// trim, and returns the assigned entry ID.
func (s *Stream) Append(ctx context.Context, fields map[string]string) (string, error) {
	maxLen := s.MaxLen
	if maxLen == 0 {
		maxLen = DefaultMaxLen
	}
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key,
		MaxLen: maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("streams: append to %s: %w", s.key, err)
	}
	return id, nil
}

// ReadGroup reads up to count new entries for consumer within group,
// blocking up to block for delivery. Returns ErrNoEntries (not an error
// condition) when the block window elapses with nothing delivered.
func (s *Stream) ReadGroup(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{s.key, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoEntries
		}
		return nil, fmt.Errorf("streams: read group %s on %s: %w", group, s.key, err)
	}
	if len(res) == 0 {
		return nil, ErrNoEntries
	}
	return toEntries(res[0].Messages), nil
}

func toEntries(msgs []redis.XMessage) []Entry {
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		fields := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			if s, ok := v.(string); ok {
				fields[k] = s
			} else {
				fields[k] = fmt.Sprintf("%v", v)
			}
		}
		out = append(out, Entry{ID: m.ID, Fields: fields})
	}
	return out
}

// Ack acknowledges entryID for group, removing it from the pending list.
func (s *Stream) Ack(ctx context.Context, group, entryID string) error {
	if err := s.client.XAck(ctx, s.key, group, entryID).Err(); err != nil {
		return fmt.Errorf("streams: ack %s on %s/%s: %w", entryID, s.key, group, err)
	}
	return nil
}

// PendingEntry describes one row of an XPENDING summary used by the
// stuck-entry reclaim scan.
type PendingEntry struct {
	ID         string
	Consumer   string
	IdleTime   time.Duration
	RetryCount int64
}

// Pending lists up to count pending entries for group whose idle time is at
// least minIdle — the periodic XPENDING scan described in spec §4.C.
func (s *Stream) Pending(ctx context.Context, group string, minIdle time.Duration, count int64) ([]PendingEntry, error) {
	res, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.key,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
		Idle:   minIdle,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("streams: pending scan on %s/%s: %w", s.key, group, err)
	}
	out := make([]PendingEntry, 0, len(res))
	for _, p := range res {
		out = append(out, PendingEntry{
			ID:         p.ID,
			Consumer:   p.Consumer,
			IdleTime:   p.Idle,
			RetryCount: p.RetryCount,
		})
	}
	return out, nil
}

// ClaimStale reassigns entryIDs from whichever consumer currently owns them
// to consumer, provided they have been idle at least minIdle. Used to
// redeliver entries abandoned by a crashed consumer.
func (s *Stream) ClaimStale(ctx context.Context, group, consumer string, minIdle time.Duration, entryIDs []string) ([]Entry, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	msgs, err := s.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   s.key,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: entryIDs,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("streams: claim on %s/%s: %w", s.key, group, err)
	}
	return toEntries(msgs), nil
}

// DeadLetter appends entry's fields plus a reason to the dead-letter stream
// deadLetterKey and acks the original entry in group, completing the
// Poisoned-entry handling described in spec §7.
func (s *Stream) DeadLetter(ctx context.Context, group string, entry Entry, deadLetterKey, reason string) error {
	fields := make(map[string]string, len(entry.Fields)+2)
	for k, v := range entry.Fields {
		fields[k] = v
	}
	fields["_original_id"] = entry.ID
	fields["_dead_letter_reason"] = reason

	dl := New(s.client, deadLetterKey)
	if _, err := dl.Append(ctx, fields); err != nil {
		return fmt.Errorf("streams: dead-letter append for %s: %w", entry.ID, err)
	}
	return s.Ack(ctx, group, entry.ID)
}

// Len returns the approximate current length of the stream (XLEN), used by
// the operator CLI's status command and the stream-lag watchdog probe.
func (s *Stream) Len(ctx context.Context) (int64, error) {
	n, err := s.client.XLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("streams: len %s: %w", s.key, err)
	}
	return n, nil
}
