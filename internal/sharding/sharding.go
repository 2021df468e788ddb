package sharding

import (
	"hash/fnv"

	"github.com/google/uuid"
)

// ShardFor maps a correlation id onto one of n shards. All messages for
// the same id land on the same shard, which keeps per-saga ordering when
// shards process sequentially.
func ShardFor(id uuid.UUID, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write(id[:])
	return int(h.Sum32() % uint32(n))
}
