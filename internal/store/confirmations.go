package store

import (
	"context"
	"fmt"

	"signalcore/internal/model"
)

const insertConfirmationQuery = `
	INSERT INTO confirmations (fire_id, sequence, ticket, fill_price, fill_volume, status, final, broker_ts)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (fire_id, sequence) DO NOTHING
`

// InsertConfirmation inserts c if (fire_id, sequence) hasn't been seen
// before. Returns (true, nil) for a new row, (false, nil) for a duplicate
// delivery (spec §4.G: "Idempotent on (fire_id, sequence)").
func (r *Repository) InsertConfirmation(ctx context.Context, c model.Confirmation) (bool, error) {
	res, err := r.db.ExecContext(ctx, insertConfirmationQuery,
		c.FireID, c.Sequence, c.Ticket, c.FillPrice, c.FillVolume, c.Status, c.Final, c.BrokerTimestamp)
	if err != nil {
		return false, fmt.Errorf("store: insert confirmation %s/%d: %w", c.FireID, c.Sequence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: rows affected for confirmation %s/%d: %w", c.FireID, c.Sequence, err)
	}
	return n > 0, nil
}
