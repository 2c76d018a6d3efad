package persistent

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountReaderCountsAllBytes(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 1<<16)
	cr := newCountReader(bytes.NewReader(payload))

	got, err := io.ReadAll(cr)
	require.NoError(t, err)

	assert.Equal(t, payload, got)
	assert.Equal(t, int64(len(payload)), cr.Total())
}

func TestCountReaderSmallReads(t *testing.T) {
	cr := newCountReader(strings.NewReader("hello world"))

	buf := make([]byte, 3)
	var total int64
	for {
		n, err := cr.Read(buf)
		total += int64(n)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	assert.Equal(t, int64(11), total)
	assert.Equal(t, total, cr.Total())
}

type failingReader struct {
	data []byte
	err  error
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.read {
		return 0, r.err
	}
	r.read = true
	n := copy(p, r.data)
	return n, nil
}

func TestCountReaderPropagatesSourceError(t *testing.T) {
	sourceErr := errors.New("connection reset")
	cr := newCountReader(&failingReader{data: []byte("part"), err: sourceErr})

	_, err := io.ReadAll(cr)
	assert.ErrorIs(t, err, sourceErr)

	// bytes seen before the failure are still counted
	assert.Equal(t, int64(4), cr.Total())
}
