// Package store is the SQL repository layer over the tables created by
// internal/database/migrations: signals, fires, ea_instances, confirmations,
// and events. Every method takes a context and the *sql.DB handed out by
// internal/database, following the package-level query constant + plain
// function idiom used by the teacher's libs/ingest/sql.go, generalized into
// methods on a Repository so callers don't have to pass db at every call
// site.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"signalcore/internal/model"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// Repository wraps a *sql.DB with the queries every component needs. All
// writes are single-statement transactions (spec §5: "All writes use
// row-level transactions; cross-row invariants ... are enforced by unique
// indexes, not by application-level locks").
type Repository struct {
	db *sql.DB
}

// New returns a Repository backed by db.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}
