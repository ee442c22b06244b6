package streams

import (
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestToEntries(t *testing.T) {
	msgs := []redis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{"fire_id": "abc", "lot": "0.10"}},
	}
	entries := toEntries(msgs)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID != "1-0" {
		t.Errorf("expected ID 1-0, got %s", entries[0].ID)
	}
	if entries[0].Fields["fire_id"] != "abc" {
		t.Errorf("expected fire_id=abc, got %q", entries[0].Fields["fire_id"])
	}
}

func TestIsBusyGroupErr(t *testing.T) {
	busy := errors.New("BUSYGROUP Consumer Group name already exists")
	if !isBusyGroupErr(busy) {
		t.Error("expected BUSYGROUP error to be recognized")
	}
	other := errors.New("connection refused")
	if isBusyGroupErr(other) {
		t.Error("expected unrelated error not to be recognized as BUSYGROUP")
	}
}

func TestZeroValueStreamLeavesMaxLenUnset(t *testing.T) {
	s := &Stream{key: "test-stream"}
	if s.MaxLen != 0 {
		t.Fatalf("expected zero-value Stream to have MaxLen=0 before Append applies the default")
	}
}
