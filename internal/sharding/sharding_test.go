package sharding

import (
	"testing"

	"github.com/google/uuid"
)

func TestShardFor_Stable(t *testing.T) {
	id := uuid.New()
	first := ShardFor(id, 8)
	for i := 0; i < 100; i++ {
		if got := ShardFor(id, 8); got != first {
			t.Fatalf("ShardFor not stable: got %d, want %d", got, first)
		}
	}
}

func TestShardFor_InRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		got := ShardFor(uuid.New(), 8)
		if got < 0 || got >= 8 {
			t.Fatalf("shard %d out of range", got)
		}
	}
}

func TestShardFor_SingleShard(t *testing.T) {
	if got := ShardFor(uuid.New(), 1); got != 0 {
		t.Fatalf("expected shard 0, got %d", got)
	}
	if got := ShardFor(uuid.New(), 0); got != 0 {
		t.Fatalf("expected shard 0 for degenerate count, got %d", got)
	}
}

func TestShardFor_SpreadsAcrossShards(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 500; i++ {
		seen[ShardFor(uuid.New(), 4)] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected all 4 shards hit, got %d", len(seen))
	}
}
