package runner

import (
	"sync"
)

// TailBuffer is a fixed-size io.Writer that keeps only the most recent bytes.
// It stops a chatty runner from growing stderr without bound.
type TailBuffer struct {
	buf   []byte
	size  int
	head  int // next write position
	full  bool
	total int64
	mu    sync.Mutex
}

// NewTailBuffer creates a buffer holding at most size bytes.
// Non-positive sizes default to 64KB.
func NewTailBuffer(size int) *TailBuffer {
	if size <= 0 {
		size = 64 * 1024
	}
	return &TailBuffer{
		buf:  make([]byte, size),
		size: size,
	}
}

// Write implements io.Writer. Once full, the oldest bytes are overwritten.
func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	t.total += int64(n)
	if n >= t.size {
		copy(t.buf, p[n-t.size:])
		t.head = 0
		t.full = true
		return n, nil
	}

	written := copy(t.buf[t.head:], p)
	if written < n {
		copy(t.buf, p[written:])
		t.full = true
	}
	next := t.head + n
	if next >= t.size {
		t.full = true
	}
	t.head = next % t.size
	return n, nil
}

// Bytes returns the retained bytes in write order.
func (t *TailBuffer) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		out := make([]byte, t.head)
		copy(out, t.buf[:t.head])
		return out
	}
	out := make([]byte, 0, t.size)
	out = append(out, t.buf[t.head:]...)
	return append(out, t.buf[:t.head]...)
}

// Truncated reports whether bytes were dropped.
func (t *TailBuffer) Truncated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total > int64(t.size)
}
