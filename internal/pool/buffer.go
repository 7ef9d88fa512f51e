// Package pool provides reusable buffers for part-sized payload staging.
//
// Multipart uploads stage each part in memory so the part can be hashed,
// signed, and re-sent after a transient failure. Pooling those buffers keeps
// allocation pressure flat when many parts are in flight.
package pool

import (
	"sync"
)

// BufferPool hands out byte slices of a fixed capacity.
type BufferPool struct {
	size int64
	pool *sync.Pool
}

// NewBufferPool creates a pool of buffers with capacity size.
func NewBufferPool(size int64) *BufferPool {
	return &BufferPool{
		size: size,
		pool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
	}
}

// Get returns a buffer with length equal to the pool's configured size.
func (bp *BufferPool) Get() []byte {
	bufPtr := bp.pool.Get().(*[]byte)
	return (*bufPtr)[:bp.size]
}

// Put returns a buffer to the pool. The buffer must not be used after Put.
// Buffers that were reallocated to a different capacity are dropped.
func (bp *BufferPool) Put(buf []byte) {
	if int64(cap(buf)) != bp.size {
		return
	}
	buf = buf[:bp.size]
	bp.pool.Put(&buf)
}

// Size returns the configured buffer capacity.
func (bp *BufferPool) Size() int64 {
	return bp.size
}
