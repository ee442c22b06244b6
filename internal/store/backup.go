package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const upsertBackupMarkerQuery = `
	INSERT INTO backup_markers (id, last_backup_at) VALUES (true, $1)
	ON CONFLICT (id) DO UPDATE SET last_backup_at = EXCLUDED.last_backup_at
`

const selectLastBackupAtQuery = `SELECT last_backup_at FROM backup_markers WHERE id = true`

// RecordBackup marks at as the timestamp of the most recent successful
// durable backup — called by whatever job (pg_dump, snapshot) performs the
// backup, not by the watchdog itself.
func (r *Repository) RecordBackup(ctx context.Context, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, upsertBackupMarkerQuery, at); err != nil {
		return fmt.Errorf("store: record backup marker: %w", err)
	}
	return nil
}

// LastBackupAt returns the most recent recorded backup time, or ErrNotFound
// if no backup has ever been recorded — input to the backup-recency
// watchdog probe (spec §4.I).
func (r *Repository) LastBackupAt(ctx context.Context) (time.Time, error) {
	var at time.Time
	err := r.db.QueryRowContext(ctx, selectLastBackupAtQuery).Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("store: last backup at: %w", err)
	}
	return at, nil
}
