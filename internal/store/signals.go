package store

import (
	"context"
	"database/sql"
	"fmt"

	"signalcore/internal/model"
)

const insertSignalQuery = `
	INSERT INTO signals (signal_id, symbol, direction, entry_price, stop_loss, take_profit, confidence, pattern, created_at, stream_appended)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false)
	ON CONFLICT (signal_id) DO NOTHING
`

const selectSignalQuery = `
	SELECT signal_id, symbol, direction, entry_price, stop_loss, take_profit, confidence, pattern, created_at
	FROM signals WHERE signal_id = $1
`

const markSignalAppendedQuery = `
	UPDATE signals SET stream_appended = true WHERE signal_id = $1
`

const listUnappendedSignalsQuery = `
	SELECT signal_id, symbol, direction, entry_price, stop_loss, take_profit, confidence, pattern, created_at
	FROM signals WHERE stream_appended = false ORDER BY created_at ASC LIMIT $1
`

// InsertSignal inserts sig if signal_id is not already present. Returns
// (true, nil) when a new row was created, (false, nil) when sig.SignalID
// already existed (idempotent no-op per spec §4.B).
func (r *Repository) InsertSignal(ctx context.Context, sig model.Signal) (bool, error) {
	res, err := r.db.ExecContext(ctx, insertSignalQuery,
		sig.SignalID, sig.Symbol, sig.Direction, sig.EntryPrice, sig.StopLoss, sig.TakeProfit, sig.Confidence, sig.Pattern, sig.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("store: insert signal %s: %w", sig.SignalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: rows affected for signal %s: %w", sig.SignalID, err)
	}
	return n > 0, nil
}

// GetSignalByID returns the signal, or ErrNotFound.
func (r *Repository) GetSignalByID(ctx context.Context, signalID string) (model.Signal, error) {
	var sig model.Signal
	row := r.db.QueryRowContext(ctx, selectSignalQuery, signalID)
	err := row.Scan(&sig.SignalID, &sig.Symbol, &sig.Direction, &sig.EntryPrice, &sig.StopLoss, &sig.TakeProfit, &sig.Confidence, &sig.Pattern, &sig.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Signal{}, ErrNotFound
	}
	if err != nil {
		return model.Signal{}, fmt.Errorf("store: get signal %s: %w", signalID, err)
	}
	return sig, nil
}

// MarkSignalStreamAppended flips stream_appended once the signal has been
// durably appended to the signals stream.
func (r *Repository) MarkSignalStreamAppended(ctx context.Context, signalID string) error {
	if _, err := r.db.ExecContext(ctx, markSignalAppendedQuery, signalID); err != nil {
		return fmt.Errorf("store: mark signal appended %s: %w", signalID, err)
	}
	return nil
}

// ListUnappendedSignals returns up to limit signals whose stream_appended
// flag is still false — the input to ingest's Bridge.Reconcile pass, which
// detects a crash between the DB insert and the stream append.
func (r *Repository) ListUnappendedSignals(ctx context.Context, limit int) ([]model.Signal, error) {
	rows, err := r.db.QueryContext(ctx, listUnappendedSignalsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list unappended signals: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var sig model.Signal
		if err := rows.Scan(&sig.SignalID, &sig.Symbol, &sig.Direction, &sig.EntryPrice, &sig.StopLoss, &sig.TakeProfit, &sig.Confidence, &sig.Pattern, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan unappended signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
