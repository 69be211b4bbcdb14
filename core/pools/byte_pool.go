package pools

import (
	"sync"
	"sync/atomic"
)

// BytePool is a tiered pool of byte slices used for socket read chunks.
type BytePool struct {
	pools []*sync.Pool
	sizes []int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Size classes: head read chunks, medium and large buffers.
var defaultSizes = []int{
	2048,
	8192,
	65536,
}

// NewBytePool creates a pool with the default size classes.
func NewBytePool() *BytePool {
	return NewBytePoolWithSizes(defaultSizes)
}

// NewBytePoolWithSizes creates a pool with ascending size classes.
func NewBytePoolWithSizes(sizes []int) *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}
	for i, size := range sizes {
		sz := size
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, sz)
				return &buf
			},
		}
	}
	return bp
}

// Get returns a slice of length size. Sizes above the largest class are
// allocated and never pooled.
func (bp *BytePool) Get(size int) []byte {
	for i, poolSize := range bp.sizes {
		if size <= poolSize {
			bp.hits.Add(1)
			buf := *bp.pools[i].Get().(*[]byte)
			return buf[:size]
		}
	}
	bp.misses.Add(1)
	return make([]byte, size)
}

// Put returns a slice obtained from Get.
func (bp *BytePool) Put(buf []byte) {
	capacity := cap(buf)
	for i, poolSize := range bp.sizes {
		if capacity == poolSize {
			buf = buf[:capacity]
			bp.pools[i].Put(&buf)
			return
		}
	}
}

// BytePoolStats reports how many Gets were served by a size class.
type BytePoolStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Stats returns pool statistics.
func (bp *BytePool) Stats() BytePoolStats {
	return BytePoolStats{Hits: bp.hits.Load(), Misses: bp.misses.Load()}
}

var globalBytePool = NewBytePool()

// GetBytes gets a slice from the process-wide pool.
func GetBytes(size int) []byte {
	return globalBytePool.Get(size)
}

// PutBytes returns a slice to the process-wide pool.
func PutBytes(buf []byte) {
	globalBytePool.Put(buf)
}

// GlobalBytePoolStats returns statistics for the process-wide pool.
func GlobalBytePoolStats() BytePoolStats {
	return globalBytePool.Stats()
}
