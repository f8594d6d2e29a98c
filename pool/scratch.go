// File: pool/scratch.go
// Package pool provides the byte-buffer pooling used for selector-loop
// scratch space.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

// DefaultScratchSize is the scratch buffer size loops use unless
// configured otherwise.
const DefaultScratchSize = 64 * 1024

// BytePool hands out fixed-size byte buffers backed by sync.Pool.
type BytePool struct {
	size int
	pool sync.Pool
}

// NewBytePool creates a pool of size-byte buffers.
func NewBytePool(size int) *BytePool {
	bp := &BytePool{size: size}
	bp.pool.New = func() any { return make([]byte, size) }
	return bp
}

// Size returns the buffer size this pool hands out.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer from the pool.
func (b *BytePool) GetBuffer() []byte {
	return b.pool.Get().([]byte)
}

// PutBuffer returns a buffer to the pool. Buffers of a foreign size are
// dropped.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	b.pool.Put(buf[:b.size]) //nolint:staticcheck // fixed-size slices, no boxing concern
}

var (
	defaultOnce sync.Once
	defaultPool *BytePool
)

// Default returns a process-wide pool of DefaultScratchSize buffers so
// all loops reuse the same scratch allocations.
func Default() *BytePool {
	defaultOnce.Do(func() {
		defaultPool = NewBytePool(DefaultScratchSize)
	})
	return defaultPool
}
