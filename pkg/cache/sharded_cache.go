package cache

import (
	"hash/fnv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	exchange "execution-core/pkg/exchanges/common"
)

const numShards = 16

// DefaultCapacity bounds the number of symbols kept across all shards.
const DefaultCapacity = 1024

// ShardedSymbolCache holds contract metadata per symbol. Each shard is a size-bounded LRU
// with expiring entries, so concurrent supervisors do not contend on one lock.
type ShardedSymbolCache struct {
	shards [numShards]*expirable.LRU[string, exchange.SymbolInfo]
}

// NewShardedSymbolCache creates a cache for about capacity symbols whose entries expire
// after ttl. ttl <= 0 keeps entries until they are evicted or deleted.
func NewShardedSymbolCache(capacity int, ttl time.Duration) *ShardedSymbolCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	perShard := (capacity + numShards - 1) / numShards
	c := &ShardedSymbolCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = expirable.NewLRU[string, exchange.SymbolInfo](perShard, nil, ttl)
	}
	return c
}

func (c *ShardedSymbolCache) getShard(key string) *expirable.LRU[string, exchange.SymbolInfo] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores info under its symbol.
func (c *ShardedSymbolCache) Set(info exchange.SymbolInfo) {
	c.getShard(info.Symbol).Add(info.Symbol, info)
}

// Get returns the cached metadata of symbol unless it is missing or expired.
func (c *ShardedSymbolCache) Get(symbol string) (exchange.SymbolInfo, bool) {
	return c.getShard(symbol).Get(symbol)
}

// Delete removes a symbol from the cache.
func (c *ShardedSymbolCache) Delete(symbol string) {
	c.getShard(symbol).Remove(symbol)
}

// Len returns total items across all shards.
func (c *ShardedSymbolCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		total += shard.Len()
	}
	return total
}

// Purge empties every shard.
func (c *ShardedSymbolCache) Purge() {
	for _, shard := range c.shards {
		shard.Purge()
	}
}
