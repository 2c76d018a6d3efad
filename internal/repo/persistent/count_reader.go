package persistent

import (
	"io"
	"sync/atomic"
)

// countReader forwards reads from the wrapped source while tallying the
// total number of bytes seen, so a payload of unknown length can be
// streamed to the blob store and measured in one pass. Read errors pass
// through untouched; the in-flight put aborts instead of committing a
// short object.
type countReader struct {
	src io.Reader
	n   atomic.Int64
}

func newCountReader(src io.Reader) *countReader {
	return &countReader{src: src}
}

func (c *countReader) Read(p []byte) (int, error) {
	n, err := c.src.Read(p)
	if n > 0 {
		c.n.Add(int64(n))
	}
	return n, err
}

// Total reports the bytes read so far. Meaningful once the transfer that
// consumed the reader has completed.
func (c *countReader) Total() int64 {
	return c.n.Load()
}
