package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"signalcore/internal/model"
)

const upsertEAInstanceQuery = `
	INSERT INTO ea_instances (target_uuid, user_id, last_seen, balance, equity, symbol_map, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, now(), now())
	ON CONFLICT (target_uuid) DO UPDATE SET
		last_seen = EXCLUDED.last_seen,
		balance = EXCLUDED.balance,
		equity = EXCLUDED.equity,
		symbol_map = EXCLUDED.symbol_map,
		updated_at = now()
`

const selectEAByTargetUUIDQuery = `
	SELECT target_uuid, user_id, last_seen, COALESCE(balance, 0), COALESCE(equity, 0), symbol_map
	FROM ea_instances WHERE target_uuid = $1
`

const selectEAByUserIDQuery = `
	SELECT target_uuid, user_id, last_seen, COALESCE(balance, 0), COALESCE(equity, 0), symbol_map
	FROM ea_instances WHERE user_id = $1
`

const listStaleEAInstancesQuery = `
	SELECT target_uuid, user_id, last_seen, COALESCE(balance, 0), COALESCE(equity, 0), symbol_map
	FROM ea_instances WHERE last_seen < $1 ORDER BY last_seen ASC LIMIT $2
`

const listEAInstancesQuery = `
	SELECT target_uuid, user_id, last_seen, COALESCE(balance, 0), COALESCE(equity, 0), symbol_map
	FROM ea_instances ORDER BY target_uuid ASC
`

// UpsertEAInstance registers or refreshes an EA heartbeat.
func (r *Repository) UpsertEAInstance(ctx context.Context, ea model.EAInstance) error {
	symbolMap, err := json.Marshal(ea.SymbolMap)
	if err != nil {
		return fmt.Errorf("store: marshal symbol_map for %s: %w", ea.TargetUUID, err)
	}
	if _, err := r.db.ExecContext(ctx, upsertEAInstanceQuery, ea.TargetUUID, ea.UserID, ea.LastSeen, ea.Balance, ea.Equity, symbolMap); err != nil {
		return fmt.Errorf("store: upsert EA instance %s: %w", ea.TargetUUID, err)
	}
	return nil
}

// GetEAInstance returns the EA instance bound to targetUUID, or ErrNotFound.
func (r *Repository) GetEAInstance(ctx context.Context, targetUUID string) (model.EAInstance, error) {
	row := r.db.QueryRowContext(ctx, selectEAByTargetUUIDQuery, targetUUID)
	return scanEAInstance(row)
}

// GetEAInstanceByUserID resolves the target_uuid bound to userID — the
// server-side user->EA routing step of the fire command router (spec
// §4.E).
func (r *Repository) GetEAInstanceByUserID(ctx context.Context, userID string) (model.EAInstance, error) {
	row := r.db.QueryRowContext(ctx, selectEAByUserIDQuery, userID)
	return scanEAInstance(row)
}

func scanEAInstance(row *sql.Row) (model.EAInstance, error) {
	var ea model.EAInstance
	var symbolMap []byte
	err := row.Scan(&ea.TargetUUID, &ea.UserID, &ea.LastSeen, &ea.Balance, &ea.Equity, &symbolMap)
	if err == sql.ErrNoRows {
		return model.EAInstance{}, ErrNotFound
	}
	if err != nil {
		return model.EAInstance{}, fmt.Errorf("store: scan EA instance: %w", err)
	}
	if len(symbolMap) > 0 {
		if err := json.Unmarshal(symbolMap, &ea.SymbolMap); err != nil {
			return model.EAInstance{}, fmt.Errorf("store: unmarshal symbol_map: %w", err)
		}
	}
	return ea, nil
}

// ListStaleEAInstances returns EA instances whose last_seen predates cutoff
// — input to the EA-freshness watchdog probe.
func (r *Repository) ListStaleEAInstances(ctx context.Context, cutoff time.Time, limit int) ([]model.EAInstance, error) {
	rows, err := r.db.QueryContext(ctx, listStaleEAInstancesQuery, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list stale EA instances: %w", err)
	}
	defer rows.Close()

	var out []model.EAInstance
	for rows.Next() {
		var ea model.EAInstance
		var symbolMap []byte
		if err := rows.Scan(&ea.TargetUUID, &ea.UserID, &ea.LastSeen, &ea.Balance, &ea.Equity, &symbolMap); err != nil {
			return nil, fmt.Errorf("store: scan stale EA instance: %w", err)
		}
		if len(symbolMap) > 0 {
			if err := json.Unmarshal(symbolMap, &ea.SymbolMap); err != nil {
				return nil, fmt.Errorf("store: unmarshal symbol_map: %w", err)
			}
		}
		out = append(out, ea)
	}
	return out, rows.Err()
}

// ListEAInstances returns every registered EA instance, regardless of
// freshness — the discovery source the Fire Dispatch Bridge supervisor
// polls to learn which per-target_uuid fire streams need a dispatcher.
func (r *Repository) ListEAInstances(ctx context.Context) ([]model.EAInstance, error) {
	rows, err := r.db.QueryContext(ctx, listEAInstancesQuery)
	if err != nil {
		return nil, fmt.Errorf("store: list EA instances: %w", err)
	}
	defer rows.Close()

	var out []model.EAInstance
	for rows.Next() {
		var ea model.EAInstance
		var symbolMap []byte
		if err := rows.Scan(&ea.TargetUUID, &ea.UserID, &ea.LastSeen, &ea.Balance, &ea.Equity, &symbolMap); err != nil {
			return nil, fmt.Errorf("store: scan EA instance: %w", err)
		}
		if len(symbolMap) > 0 {
			if err := json.Unmarshal(symbolMap, &ea.SymbolMap); err != nil {
				return nil, fmt.Errorf("store: unmarshal symbol_map: %w", err)
			}
		}
		out = append(out, ea)
	}
	return out, rows.Err()
}
