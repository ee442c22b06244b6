package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"signalcore/internal/model"
)

const insertFireQuery = `
	INSERT INTO fires (fire_id, user_id, idem_key, signal_id, target_uuid, symbol, direction, lot, sl, tp, comment, status, dry_run, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	ON CONFLICT (user_id, idem_key) DO NOTHING
`

const selectFireByIdemKeyQuery = `
	SELECT fire_id, user_id, idem_key, signal_id, target_uuid, symbol, direction, lot, sl, tp, comment, status, COALESCE(ticket, ''), dry_run, COALESCE(reject_reason, ''), created_at, updated_at
	FROM fires WHERE user_id = $1 AND idem_key = $2
`

const selectFireByIDQuery = `
	SELECT fire_id, user_id, idem_key, signal_id, target_uuid, symbol, direction, lot, sl, tp, comment, status, COALESCE(ticket, ''), dry_run, COALESCE(reject_reason, ''), created_at, updated_at
	FROM fires WHERE fire_id = $1
`

const updateFireStatusQuery = `
	UPDATE fires SET status = $2, ticket = NULLIF($3, ''), reject_reason = NULLIF($4, ''), updated_at = $5
	WHERE fire_id = $1
`

const listStuckFiresQuery = `
	SELECT fire_id, user_id, idem_key, signal_id, target_uuid, symbol, direction, lot, sl, tp, comment, status, COALESCE(ticket, ''), dry_run, COALESCE(reject_reason, ''), created_at, updated_at
	FROM fires WHERE status NOT IN ('FILLED', 'REJECTED', 'CANCELLED') AND updated_at < $1
	ORDER BY updated_at ASC LIMIT $2
`

// InsertFire inserts f if (user_id, idem_key) is not already taken. Returns
// (true, nil) for a new row, (false, nil) when the idem_key already existed
// — the caller is expected to then fetch the existing fire and return its
// fire_id with status=deduplicated (spec §4.E, IdempotencyConflict).
func (r *Repository) InsertFire(ctx context.Context, f model.Fire) (bool, error) {
	res, err := r.db.ExecContext(ctx, insertFireQuery,
		f.FireID, f.UserID, f.IdemKey, nullableString(f.SignalID), f.TargetUUID, f.Symbol, f.Direction,
		f.Lot, f.StopLoss, f.TakeProfit, f.Comment, f.Status, f.DryRun, f.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("store: insert fire %s: %w", f.FireID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: rows affected for fire %s: %w", f.FireID, err)
	}
	return n > 0, nil
}

// GetFireByIdemKey returns the fire row matching (userID, idemKey), or
// ErrNotFound.
func (r *Repository) GetFireByIdemKey(ctx context.Context, userID, idemKey string) (model.Fire, error) {
	row := r.db.QueryRowContext(ctx, selectFireByIdemKeyQuery, userID, idemKey)
	return scanFire(row)
}

// GetFireByID returns the fire row matching fireID, or ErrNotFound.
func (r *Repository) GetFireByID(ctx context.Context, fireID string) (model.Fire, error) {
	row := r.db.QueryRowContext(ctx, selectFireByIDQuery, fireID)
	return scanFire(row)
}

func scanFire(row *sql.Row) (model.Fire, error) {
	var f model.Fire
	var signalID sql.NullString
	err := row.Scan(&f.FireID, &f.UserID, &f.IdemKey, &signalID, &f.TargetUUID, &f.Symbol, &f.Direction,
		&f.Lot, &f.StopLoss, &f.TakeProfit, &f.Comment, &f.Status, &f.Ticket, &f.DryRun, &f.RejectReason, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.Fire{}, ErrNotFound
	}
	if err != nil {
		return model.Fire{}, fmt.Errorf("store: scan fire: %w", err)
	}
	if signalID.Valid {
		f.SignalID = &signalID.String
	}
	return f, nil
}

// UpdateFireStatus transitions the fire's status, optionally setting ticket
// (on fill) and rejectReason (on rejection).
func (r *Repository) UpdateFireStatus(ctx context.Context, fireID string, status model.FireStatus, ticket, rejectReason string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, updateFireStatusQuery, fireID, status, ticket, rejectReason, at); err != nil {
		return fmt.Errorf("store: update fire status %s: %w", fireID, err)
	}
	return nil
}

// ListStuckFires returns fires in a non-terminal status whose updated_at
// predates cutoff — input to the stuck-fire watchdog probe (default
// threshold 120s, spec §4.I).
func (r *Repository) ListStuckFires(ctx context.Context, cutoff time.Time, limit int) ([]model.Fire, error) {
	rows, err := r.db.QueryContext(ctx, listStuckFiresQuery, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list stuck fires: %w", err)
	}
	defer rows.Close()

	var out []model.Fire
	for rows.Next() {
		var f model.Fire
		var signalID sql.NullString
		if err := rows.Scan(&f.FireID, &f.UserID, &f.IdemKey, &signalID, &f.TargetUUID, &f.Symbol, &f.Direction,
			&f.Lot, &f.StopLoss, &f.TakeProfit, &f.Comment, &f.Status, &f.Ticket, &f.DryRun, &f.RejectReason, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan stuck fire: %w", err)
		}
		if signalID.Valid {
			f.SignalID = &signalID.String
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
