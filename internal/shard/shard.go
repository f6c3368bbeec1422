// Package shard provides shard key generation for the relation index table.
package shard

import (
	"fmt"
	"hash/fnv"
)

// EdgePK computes the sharded partition key for a relation-index record.
// With numShards=1, every edge of a given "from" endpoint lands on shard
// "00". With numShards>1, edges are distributed across shards by the hash
// of the "to" endpoint, spreading hot from-partitions (an actor followed by
// many recipients) while keeping the shard of any single (from, to) pair
// deterministic for point lookups.
func EdgePK(fromRef, toRef string, numShards int) string {
	if numShards <= 1 {
		return fmt.Sprintf("%s#00", fromRef)
	}
	h := fnv.New32a()
	h.Write([]byte(toRef))
	shardNum := h.Sum32() % uint32(numShards)
	return fmt.Sprintf("%s#%02x", fromRef, shardNum)
}

// EdgePKForShard returns the partition key for one specific shard, used when
// enumerating every edge of a "from" endpoint across all shards.
func EdgePKForShard(fromRef string, shardNum int) string {
	return fmt.Sprintf("%s#%02x", fromRef, shardNum)
}
