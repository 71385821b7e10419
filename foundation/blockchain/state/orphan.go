package state

import (
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/jellydator/ttlcache/v3"
)

// Defaults for the orphan buffer when the config leaves them unset.
const (
	defaultOrphanTTL      = 10 * time.Minute
	defaultOrphanCapacity = 256
)

// orphanPool holds blocks whose parent isn't known yet, keyed by block hash.
// Entries expire and the oldest is evicted once the capacity is reached so a
// peer can't grow the buffer without bound.
type orphanPool struct {
	cache *ttlcache.Cache[string, database.Block]
}

func newOrphanPool(ttl time.Duration, capacity uint64) *orphanPool {
	if ttl <= 0 {
		ttl = defaultOrphanTTL
	}
	if capacity == 0 {
		capacity = defaultOrphanCapacity
	}

	cache := ttlcache.New[string, database.Block](
		ttlcache.WithTTL[string, database.Block](ttl),
		ttlcache.WithCapacity[string, database.Block](capacity),
		ttlcache.WithDisableTouchOnHit[string, database.Block](),
	)

	return &orphanPool{cache: cache}
}

// add buffers the block.
func (op *orphanPool) add(block database.Block) {
	op.cache.Set(block.Hash(), block, ttlcache.DefaultTTL)
	prometheusOrphanBlocks.Set(float64(op.cache.Len()))
}

// has reports if the block is already buffered.
func (op *orphanPool) has(hash string) bool {
	return op.cache.Get(hash) != nil
}

// children returns the buffered blocks that build on the specified parent.
func (op *orphanPool) children(parentHash string) []database.Block {
	op.cache.DeleteExpired()

	var blocks []database.Block
	for _, item := range op.cache.Items() {
		if item.IsExpired() {
			continue
		}

		if block := item.Value(); block.Header.PrevBlockHash == parentHash {
			blocks = append(blocks, block)
		}
	}

	return blocks
}

// remove drops the block from the buffer.
func (op *orphanPool) remove(hash string) {
	op.cache.Delete(hash)
	prometheusOrphanBlocks.Set(float64(op.cache.Len()))
}

// len returns the number of buffered blocks.
func (op *orphanPool) len() int {
	op.cache.DeleteExpired()
	return op.cache.Len()
}

// purge drops every buffered block.
func (op *orphanPool) purge() {
	op.cache.DeleteAll()
	prometheusOrphanBlocks.Set(0)
}
