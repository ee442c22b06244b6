// Package firedispatch implements the Fire Dispatch Bridge (spec §4.F): a
// per-EA consumer-group reader on fire.{target_uuid} that hands each fire
// to the EA's IPC channel and advances its status from ENQUEUED to ROUTED.
// Shaped directly on internal/delivery's worker: same ReadGroup/Ack/Pending
// reclaim loop, narrowed interfaces for testability, circuit-breaker-free
// here because the dependency is a local filesystem write, not a remote
// HTTP call.
package firedispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"signalcore/internal/clock"
	"signalcore/internal/model"
	"signalcore/internal/observability"
	"signalcore/internal/streams"
)

// DefaultPendingAge is the threshold past which a pending fire entry is
// claimed and redelivered.
const DefaultPendingAge = 2 * time.Minute

// DefaultMaxAttempts is the delivery-count ceiling past which a fire is
// moved to dead-letter instead of claimed again.
const DefaultMaxAttempts = 5

// EAUnreachableReason is the reject_reason recorded when a fire is
// abandoned because its EA has been stale too long (spec §4.F).
const EAUnreachableReason = "ea_unreachable"

// dispatchStream is the subset of *streams.Stream a Dispatcher needs.
type dispatchStream interface {
	ReadGroup(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]streams.Entry, error)
	Ack(ctx context.Context, group, entryID string) error
	Pending(ctx context.Context, group string, minIdle time.Duration, count int64) ([]streams.PendingEntry, error)
	ClaimStale(ctx context.Context, group, consumer string, minIdle time.Duration, entryIDs []string) ([]streams.Entry, error)
	DeadLetter(ctx context.Context, group string, entry streams.Entry, deadLetterKey, reason string) error
}

// fireStore is the subset of *store.Repository a Dispatcher needs.
type fireStore interface {
	GetEAInstance(ctx context.Context, targetUUID string) (model.EAInstance, error)
	UpdateFireStatus(ctx context.Context, fireID string, status model.FireStatus, ticket, rejectReason string, at time.Time) error
}

// ipcWriter is the subset of *ipc.Writer a Dispatcher needs.
type ipcWriter interface {
	Write(f model.Fire) error
}

// Dispatcher drains exactly one per-EA fire stream. Ordering is enforced by
// running exactly one Dispatcher (one consumer) per target_uuid per group —
// never call ProcessBatch for the same target_uuid from two goroutines.
type Dispatcher struct {
	Stream        dispatchStream
	Group         string
	Consumer      string
	TargetUUID    string
	DeadLetterKey string
	Store         fireStore
	IPC           ipcWriter
	Clock         clock.Clock
	PendingAge    time.Duration
	MaxAttempts   int

	// SkipEnqueue gates whether route actually writes to EA IPC. When true
	// (the observation-only cutover combination, spec §6: bridge_enqueue
	// set to false), every entry is acknowledged without ever reaching the
	// EA — the bridge still drains the stream so it doesn't build up
	// unbounded pending entries, it just never dispatches. Zero value
	// (false) is the normal dispatching behavior.
	SkipEnqueue bool
}

// New builds a Dispatcher for one EA's fire stream. Consumer is always
// targetUUID itself so a crash-restart reattaches to the same logical
// consumer rather than orphaning its pending entries under a new name.
func New(stream *streams.Stream, group, targetUUID string, st fireStore, ipc ipcWriter) *Dispatcher {
	return &Dispatcher{
		Stream:        stream,
		Group:         group,
		Consumer:      targetUUID,
		TargetUUID:    targetUUID,
		DeadLetterKey: stream.Key() + ".dead",
		Store:         st,
		IPC:           ipc,
		Clock:         clock.System{},
		PendingAge:    DefaultPendingAge,
		MaxAttempts:   DefaultMaxAttempts,
	}
}

// ProcessBatch reads and routes up to count new entries, blocking up to
// block for delivery. Returns the number of entries acked (routed,
// rejected for a stale EA, or skipped as dry-run or under SkipEnqueue). An
// entry whose EA lookup, decode, IPC write or status update fails is left
// unacked.
func (d *Dispatcher) ProcessBatch(ctx context.Context, count int64, block time.Duration) (int, error) {
	entries, err := d.Stream.ReadGroup(ctx, d.Group, d.Consumer, count, block)
	if err != nil {
		if err == streams.ErrNoEntries {
			return 0, nil
		}
		return 0, fmt.Errorf("firedispatch: read group %s on %s: %w", d.Group, d.TargetUUID, err)
	}

	acked := 0
	for _, entry := range entries {
		ok, err := d.route(ctx, entry)
		if err != nil {
			observability.Warn(ctx, "dispatch_route_failed", map[string]any{"error": err, "entry_id": entry.ID, "target_uuid": d.TargetUUID})
			continue
		}
		if ok {
			acked++
		}
	}
	return acked, nil
}

// route handles one fire entry: dry-run entries are skipped, fires for a
// stale EA are rejected, everything else is written to the EA's IPC
// channel and transitioned to ROUTED. Returns (true, nil) when the entry
// was acked — by any of the three paths.
func (d *Dispatcher) route(ctx context.Context, entry streams.Entry) (bool, error) {
	fireID := entry.Fields["fire_id"]

	if entry.Fields["dry_run"] == "true" || d.SkipEnqueue {
		return true, d.Stream.Ack(ctx, d.Group, entry.ID)
	}

	ea, err := d.Store.GetEAInstance(ctx, d.TargetUUID)
	if err != nil {
		return false, fmt.Errorf("firedispatch: lookup EA %s: %w", d.TargetUUID, err)
	}
	now := d.Clock.Now()
	if !ea.Fresh(now, model.FreshnessThreshold) {
		if err := d.Store.UpdateFireStatus(ctx, fireID, model.FireStatusRejected, "", EAUnreachableReason, now); err != nil {
			return false, fmt.Errorf("firedispatch: reject stale-EA fire %s: %w", fireID, err)
		}
		observability.Warn(ctx, "dispatch_rejected_stale_ea", map[string]any{"fire_id": fireID, "target_uuid": d.TargetUUID})
		return true, d.Stream.Ack(ctx, d.Group, entry.ID)
	}

	fire, err := fireFromFields(entry.Fields)
	if err != nil {
		return false, fmt.Errorf("firedispatch: decode entry %s: %w", entry.ID, err)
	}

	if err := d.IPC.Write(fire); err != nil {
		// Leave unacked: the periodic reclaim scan will retry or
		// dead-letter once MaxAttempts is exceeded.
		return false, fmt.Errorf("firedispatch: write IPC for fire %s: %w", fireID, err)
	}

	if err := d.Store.UpdateFireStatus(ctx, fireID, model.FireStatusRouted, "", "", now); err != nil {
		return false, fmt.Errorf("firedispatch: mark fire %s routed: %w", fireID, err)
	}
	return true, d.Stream.Ack(ctx, d.Group, entry.ID)
}

// ReclaimStale scans for fire entries pending longer than PendingAge:
// entries past MaxAttempts deliveries are dead-lettered and their fire
// marked REJECTED; the rest are claimed and retried.
func (d *Dispatcher) ReclaimStale(ctx context.Context) (int, error) {
	pending, err := d.Stream.Pending(ctx, d.Group, d.PendingAge, 100)
	if err != nil {
		return 0, fmt.Errorf("firedispatch: pending scan on %s: %w", d.TargetUUID, err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	claimed, err := d.Stream.ClaimStale(ctx, d.Group, d.Consumer, d.PendingAge, idsFor(pending))
	if err != nil {
		return 0, fmt.Errorf("firedispatch: claim stale on %s: %w", d.TargetUUID, err)
	}

	n := 0
	for _, entry := range claimed {
		if retryCountFor(pending, entry.ID) > d.MaxAttempts {
			fireID := entry.Fields["fire_id"]
			if err := d.Store.UpdateFireStatus(ctx, fireID, model.FireStatusRejected, "", "dispatch_retry_exhausted", d.Clock.Now()); err != nil {
				observability.Error(ctx, "dispatch_mark_rejected_failed", map[string]any{"error": err, "fire_id": fireID})
			}
			if err := d.Stream.DeadLetter(ctx, d.Group, entry, d.DeadLetterKey, "exceeded max delivery attempts"); err != nil {
				observability.Error(ctx, "dispatch_dead_letter_failed", map[string]any{"error": err, "entry_id": entry.ID})
				continue
			}
			n++
			continue
		}
		if ok, err := d.route(ctx, entry); err != nil {
			observability.Warn(ctx, "dispatch_reclaim_failed", map[string]any{"error": err, "entry_id": entry.ID})
		} else if ok {
			n++
		}
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

// fireFromFields reconstructs the model.Fire the IPC writer needs from a
// stream entry's flattened string fields (the inverse of the fire command
// router's fireFields).
func fireFromFields(fields map[string]string) (model.Fire, error) {
	lot, err := decimal.NewFromString(fields["lot"])
	if err != nil {
		return model.Fire{}, fmt.Errorf("parse lot: %w", err)
	}
	sl, err := decimal.NewFromString(fields["sl"])
	if err != nil {
		return model.Fire{}, fmt.Errorf("parse sl: %w", err)
	}
	tp, err := decimal.NewFromString(fields["tp"])
	if err != nil {
		return model.Fire{}, fmt.Errorf("parse tp: %w", err)
	}
	dryRun, _ := strconv.ParseBool(fields["dry_run"])

	fire := model.Fire{
		FireID:     fields["fire_id"],
		IdemKey:    fields["idem_key"],
		UserID:     fields["user_id"],
		TargetUUID: fields["target_uuid"],
		Symbol:     fields["symbol"],
		Direction:  model.Direction(fields["direction"]),
		Lot:        lot,
		StopLoss:   sl,
		TakeProfit: tp,
		Comment:    fields["comment"],
		DryRun:     dryRun,
	}
	if signalID := fields["signal_id"]; signalID != "" {
		fire.SignalID = &signalID
	}
	return fire, nil
}
