// Package confirmation implements the Confirmation Listener (spec §4.G):
// it polls for confirmation files the EA writes back after attempting a
// fire, correlates each to its originating fire, applies it idempotently,
// and publishes a trade_executed observation event. Structured the same
// way as internal/delivery's worker — narrow interfaces over the
// concrete store/eventbus/ipc types, one poll-and-handle method driven by
// an external ticker.
package confirmation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signalcore/internal/ipc"
	"signalcore/internal/model"
	"signalcore/internal/observability"
)

// fireStore is the subset of *store.Repository the listener needs.
type fireStore interface {
	GetFireByID(ctx context.Context, fireID string) (model.Fire, error)
	InsertConfirmation(ctx context.Context, c model.Confirmation) (bool, error)
	UpdateFireStatus(ctx context.Context, fireID string, status model.FireStatus, ticket, rejectReason string, at time.Time) error
}

// publisher is the subset of *eventbus.Client the listener needs.
type publisher interface {
	Publish(ctx context.Context, eventID, eventType, correlationID, userID string, data map[string]any)
}

// confirmationPoller is the subset of *ipc.Poller the listener needs.
type confirmationPoller interface {
	Scan(handle func(ipc.ConfirmationPayload) error) error
}

// Listener drains confirmation files across all EAs and applies them to
// the fire they correlate to.
type Listener struct {
	Poller    confirmationPoller
	Store     fireStore
	Events    publisher
	sequences map[string]int
}

// New builds a Listener polling baseDir for confirmation files.
func New(baseDir string, st fireStore, events publisher) *Listener {
	return &Listener{
		Poller:    ipc.NewPoller(baseDir),
		Store:     st,
		Events:    events,
		sequences: make(map[string]int),
	}
}

// Poll runs one scan of the confirmation directory, applying every file
// found. A handler error for one file does not block the others — Scan
// already isolates per-file failures and leaves the offending file in
// place for the next poll.
func (l *Listener) Poll(ctx context.Context) error {
	return l.Poller.Scan(func(payload ipc.ConfirmationPayload) error {
		return l.apply(ctx, payload)
	})
}

// apply correlates one confirmation payload to its fire, records it
// idempotently on (fire_id, sequence), advances the fire's status, and
// publishes a trade_executed event. The sequence number isn't carried by
// the EA's file format, so the listener tracks it per fire_id itself,
// ordering arrivals by file-processing order. The counters live in memory
// on the Listener: they carry across polls but restart at 0 with the
// process.
func (l *Listener) apply(ctx context.Context, payload ipc.ConfirmationPayload) error {
	fire, err := l.Store.GetFireByID(ctx, payload.FireID)
	if err != nil {
		return fmt.Errorf("confirmation: lookup fire %s: %w", payload.FireID, err)
	}

	status := model.ConfirmationStatus(payload.Status)
	final := status == model.ConfirmationFilled || status == model.ConfirmationRejected

	seq := l.sequences[payload.FireID]
	l.sequences[payload.FireID] = seq + 1

	c := model.Confirmation{
		FireID:          payload.FireID,
		Sequence:        seq,
		Status:          status,
		Ticket:          payload.Ticket,
		FillPrice:       payload.Price,
		BrokerTimestamp: payload.Timestamp,
		Final:           final,
	}

	created, err := l.Store.InsertConfirmation(ctx, c)
	if err != nil {
		return fmt.Errorf("confirmation: insert %s/%d: %w", payload.FireID, seq, err)
	}
	if !created {
		observability.LogEvent(ctx, "info", "confirmation_duplicate", map[string]any{"fire_id": payload.FireID, "sequence": seq})
		return nil
	}

	fireStatus := fireStatusFor(status)
	rejectReason := ""
	if status == model.ConfirmationRejected {
		rejectReason = "broker_rejected"
	}
	if err := l.Store.UpdateFireStatus(ctx, payload.FireID, fireStatus, payload.Ticket, rejectReason, payload.Timestamp); err != nil {
		return fmt.Errorf("confirmation: update fire status %s: %w", payload.FireID, err)
	}

	l.Events.Publish(ctx, uuid.NewString(), string(model.EventTradeExecuted), correlationID(fire), fire.UserID, map[string]any{
		"fire_id": fire.FireID, "status": string(status), "ticket": payload.Ticket, "final": final,
	})
	return nil
}

func fireStatusFor(status model.ConfirmationStatus) model.FireStatus {
	switch status {
	case model.ConfirmationFilled:
		return model.FireStatusFilled
	case model.ConfirmationRejected:
		return model.FireStatusRejected
	default:
		return model.FireStatusRouted
	}
}

// correlationID uses the originating signal_id when the fire was dispatched
// from a signal, matching the fire command router's own choice (spec §4.G:
// "correlation_id = signal_id if present else fire_id").
func correlationID(f model.Fire) string {
	if f.SignalID != nil && *f.SignalID != "" {
		return *f.SignalID
	}
	return f.FireID
}
