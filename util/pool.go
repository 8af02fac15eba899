package util

import "sync"

// DefaultBufSize is the standard buffer size for terminal I/O (32 KiB).
const DefaultBufSize = 32 * 1024

// BufPool provides reusable byte buffers of a fixed size, reducing GC
// pressure on hot paths like the PTY read loop.
type BufPool struct {
	size int
	pool sync.Pool
}

// NewBufPool returns a pool handing out buffers of exactly size bytes.
// A non-positive size selects [DefaultBufSize].
func NewBufPool(size int) *BufPool {
	if size <= 0 {
		size = DefaultBufSize
	}
	bp := &BufPool{size: size}
	bp.pool.New = func() interface{} {
		buf := make([]byte, bp.size)
		return &buf
	}
	return bp
}

// Size returns the length of the buffers handed out by the pool.
func (bp *BufPool) Size() int { return bp.size }

// Get retrieves a buffer from the pool.  Callers must return it with
// [BufPool.Put] when finished.
func (bp *BufPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool for reuse.  Buffers of the wrong
// size are dropped.
func (bp *BufPool) Put(buf *[]byte) {
	if buf == nil || len(*buf) != bp.size {
		return
	}
	bp.pool.Put(buf)
}
