package streams

import "errors"

var (
	// ErrNoEntries is returned by ReadGroup when the read timed out with
	// nothing delivered — not a failure, just an empty poll.
	ErrNoEntries = errors.New("streams: no entries")

	// ErrNotFound names an entry ID that is not present in the stream's
	// pending entries list. Ack and ClaimStale do not return it: an unknown
	// ID is acked or skipped without error.
	ErrNotFound = errors.New("streams: entry not found")
)
