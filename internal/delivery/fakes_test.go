package delivery

import (
	"context"
	"time"

	"signalcore/internal/streams"
)

type fakeDeliveryStream struct {
	acked   []string
	pending []streams.PendingEntry
	claimed []streams.Entry
	dead    []streams.Entry
}

func (f *fakeDeliveryStream) ReadGroup(_ context.Context, _, _ string, _ int64, _ time.Duration) ([]streams.Entry, error) {
	return nil, streams.ErrNoEntries
}

func (f *fakeDeliveryStream) Ack(_ context.Context, _, entryID string) error {
	f.acked = append(f.acked, entryID)
	return nil
}

func (f *fakeDeliveryStream) Pending(_ context.Context, _ string, _ time.Duration, _ int64) ([]streams.PendingEntry, error) {
	return f.pending, nil
}

func (f *fakeDeliveryStream) ClaimStale(_ context.Context, _, _ string, _ time.Duration, ids []string) ([]streams.Entry, error) {
	return f.claimed, nil
}

func (f *fakeDeliveryStream) DeadLetter(_ context.Context, _ string, entry streams.Entry, _, _ string) error {
	f.dead = append(f.dead, entry)
	f.acked = append(f.acked, entry.ID)
	return nil
}

func testEntry(id string, fields map[string]string) streams.Entry {
	return streams.Entry{ID: id, Fields: fields}
}

func ctxBG() context.Context {
	return context.Background()
}
