package rfcap

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	frames := [][]byte{
		{0x01, 0xAA, 0xBB, 0xCC},
		{0x02, 0x11, 0x22},
		{0x03},
	}
	base := time.Unix(1700000000, 0).UTC()
	for i, f := range frames {
		require.NoError(t, w.WriteFrame(base.Add(time.Duration(i)*5*time.Millisecond), f))
	}

	r, err := NewReader(&buf)
	require.NoError(t, err)

	for i, want := range frames {
		got, ts, err := r.Next()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, want, got, "frame %d payload", i)
		assert.True(t, ts.After(base.Add(-time.Second)), "frame %d timestamp sane", i)
	}

	_, _, err = r.Next()
	assert.ErrorIs(t, err, io.EOF, "capture should be exhausted after the last frame")
}

func TestWriteEmptyFrame(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(time.Now().UTC(), nil))

	r, err := NewReader(&buf)
	require.NoError(t, err)
	got, _, err := r.Next()
	require.NoError(t, err)
	assert.Empty(t, got)
}
