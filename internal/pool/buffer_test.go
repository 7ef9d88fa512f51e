package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferPool(t *testing.T) {
	bp := NewBufferPool(1024)
	assert.Equal(t, int64(1024), bp.Size())

	buf := bp.Get()
	assert.Len(t, buf, 1024)

	// A recycled buffer with the right capacity comes back full-length.
	bp.Put(buf[:10])
	again := bp.Get()
	assert.Len(t, again, 1024)
}

func TestBufferPool_DropsForeignBuffers(t *testing.T) {
	bp := NewBufferPool(64)
	bp.Put(make([]byte, 32))
	buf := bp.Get()
	assert.Len(t, buf, 64)
}
