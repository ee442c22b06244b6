// Package ingest implements the Signal Ingest Bridge (spec §4.B): it dials
// the upstream strategy's publish port as a client (the pull side of a
// push/pull pair), reads newline-delimited signal payloads, and durably
// lands each one in the state store and the signals stream before
// publishing a fire-and-forget observation event.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"signalcore/internal/eventbus"
	"signalcore/internal/model"
	"signalcore/internal/observability"
	"signalcore/internal/resilience"
	"signalcore/internal/schema"
	"signalcore/internal/store"
	"signalcore/internal/streams"
)

// signalPayload is the wire shape read off the upstream socket: the
// signal_generated fields (spec §5, "Upstream signal socket").
type signalPayload struct {
	SignalID   string          `json:"signal_id"`
	Symbol     string          `json:"symbol"`
	Direction  string          `json:"direction"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Confidence float64         `json:"confidence"`
	Pattern    string          `json:"pattern"`
}

// signalStore is the persistence dependency Bridge needs, satisfied by
// *store.Repository.
type signalStore interface {
	InsertSignal(ctx context.Context, sig model.Signal) (bool, error)
	MarkSignalStreamAppended(ctx context.Context, signalID string) error
	ListUnappendedSignals(ctx context.Context, limit int) ([]model.Signal, error)
}

// streamAppender is the durable-append dependency, satisfied by
// *streams.Stream.
type streamAppender interface {
	Append(ctx context.Context, fields map[string]string) (string, error)
}

// publisher is the fire-and-forget observation dependency, satisfied by
// *eventbus.Client.
type publisher interface {
	Publish(ctx context.Context, eventID, eventType, correlationID, userID string, data map[string]any)
}

// Bridge is the Signal Ingest Bridge.
type Bridge struct {
	UpstreamAddr string
	Store        signalStore
	Stream       streamAppender
	Publisher    publisher
	Backoff      resilience.Backoff
}

// New returns a Bridge configured with the teacher's default full-jitter
// backoff (bounded at 30s, matching spec §4.B's reconnect budget).
func New(upstreamAddr string, st *store.Repository, stream *streams.Stream, publisher *eventbus.Client) *Bridge {
	return &Bridge{
		UpstreamAddr: upstreamAddr,
		Store:        st,
		Stream:       stream,
		Publisher:    publisher,
		Backoff:      resilience.DefaultBackoff(),
	}
}

// Run dials UpstreamAddr and processes payloads until ctx is cancelled,
// reconnecting with exponential backoff on every disconnect.
func (b *Bridge) Run(ctx context.Context) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := net.Dial("tcp", b.UpstreamAddr)
		if err != nil {
			attempt++
			delay := b.Backoff.Delay(attempt)
			observability.Warn(ctx, "ingest_upstream_dial_failed", map[string]any{"error": err, "attempt": attempt, "retry_in": delay.String()})
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			continue
		}
		attempt = 0

		observability.Info(ctx, "ingest_upstream_connected", map[string]any{"addr": b.UpstreamAddr})
		err = b.consume(ctx, conn)
		conn.Close()
		if err != nil && err != io.EOF {
			observability.Warn(ctx, "ingest_upstream_disconnected", map[string]any{"error": err})
		}

		attempt++
		delay := b.Backoff.Delay(attempt)
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// consume reads newline-delimited JSON payloads from conn until it closes
// or ctx is cancelled.
func (b *Bridge) consume(ctx context.Context, conn net.Conn) error {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := b.handlePayload(ctx, []byte(line)); err != nil {
			observability.Warn(ctx, "ingest_payload_rejected", map[string]any{"error": err})
		}
	}
	return scanner.Err()
}

// handlePayload validates, persists, and relays a single signal payload.
// Idempotent on signal_id per spec §4.B.
func (b *Bridge) handlePayload(ctx context.Context, raw []byte) error {
	var p signalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("ingest: decode payload: %w", err)
	}

	if p.SignalID == "" {
		p.SignalID = uuid.NewString()
	}
	p.Symbol = strings.ToUpper(p.Symbol)

	data := map[string]any{
		"signal_id":  p.SignalID,
		"symbol":     p.Symbol,
		"direction":  p.Direction,
		"confidence": p.Confidence,
		"pattern":    p.Pattern,
	}
	if err := schema.Validate(model.EventSignalGenerated, data); err != nil {
		return err
	}

	sig := model.Signal{
		SignalID:   p.SignalID,
		Symbol:     p.Symbol,
		Direction:  model.Direction(p.Direction),
		EntryPrice: p.EntryPrice,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Confidence: int(p.Confidence),
		Pattern:    p.Pattern,
		CreatedAt:  time.Now().UTC(),
	}

	created, err := b.Store.InsertSignal(ctx, sig)
	if err != nil {
		return fmt.Errorf("ingest: insert signal %s: %w", sig.SignalID, err)
	}
	if !created {
		// Duplicate delivery: no new row, no new stream entry, no new
		// observation event (spec §4.B idempotency contract).
		return nil
	}

	if err := b.appendAndPublish(ctx, sig); err != nil {
		return err
	}
	return nil
}

func (b *Bridge) appendAndPublish(ctx context.Context, sig model.Signal) error {
	fields := map[string]string{
		"signal_id":   sig.SignalID,
		"symbol":      sig.Symbol,
		"direction":   string(sig.Direction),
		"entry_price": sig.EntryPrice.String(),
		"stop_loss":   sig.StopLoss.String(),
		"take_profit": sig.TakeProfit.String(),
	}
	if _, err := b.Stream.Append(ctx, fields); err != nil {
		return fmt.Errorf("ingest: append signal %s to stream: %w", sig.SignalID, err)
	}
	if err := b.Store.MarkSignalStreamAppended(ctx, sig.SignalID); err != nil {
		return fmt.Errorf("ingest: mark signal %s appended: %w", sig.SignalID, err)
	}

	b.Publisher.Publish(ctx, uuid.NewString(), string(model.EventSignalGenerated), sig.SignalID, "", map[string]any{
		"signal_id":  sig.SignalID,
		"symbol":     sig.Symbol,
		"direction":  string(sig.Direction),
		"confidence": float64(sig.Confidence),
		"pattern":    sig.Pattern,
	})
	return nil
}

// Reconcile appends any signal rows whose stream_appended flag is still
// false — the crash-safety pass described in spec §4.B: "if the process
// dies between DB insert and stream append, restart must detect and append
// missing entries."
func (b *Bridge) Reconcile(ctx context.Context) (int, error) {
	pending, err := b.Store.ListUnappendedSignals(ctx, 500)
	if err != nil {
		return 0, fmt.Errorf("ingest: list unappended signals: %w", err)
	}
	for _, sig := range pending {
		if err := b.appendAndPublish(ctx, sig); err != nil {
			observability.Error(ctx, "ingest_reconcile_append_failed", map[string]any{"error": err, "signal_id": sig.SignalID})
			continue
		}
	}
	return len(pending), nil
}
