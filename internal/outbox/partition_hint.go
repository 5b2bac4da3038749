package outbox

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// PartitionHint derives a deterministic partition index in [0, partitions)
// from an ordering key, so records sharing an ordering key always map to
// the same index. No fetcher, relay or transport in this module calls it;
// kafkatransport leaves partitioning to its writer's balancer.
func PartitionHint(orderingKey string, partitions int) int {
	if partitions <= 0 {
		return 0
	}

	sum := blake2b.Sum256([]byte(orderingKey))

	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(partitions))
}
