package bitio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterFlushByte(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, bit := range []int{1, 1, 0, 1, 1, 1, 1, 0} {
		require.NoError(t, w.WriteBit(bit))
	}
	require.NoError(t, w.Flush())
	require.Equal(t, []byte{0xDE}, buf.Bytes())
}

func TestReaderReadsWrittenByte(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xDE}))
	v, err := r.ReadBits(8)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDE), v)
}

func TestRoundTripBits(t *testing.T) {
	type step struct {
		value uint32
		n     int
	}
	steps := []step{
		{0x1, 1}, {0x0, 1}, {0xAB, 8}, {0xFFF, 12}, {0x3, 2}, {0x0, 4},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, s := range steps {
		require.NoError(t, w.WriteBits(s.value, s.n))
	}
	require.NoError(t, w.Flush())

	r := NewReader(bytes.NewReader(buf.Bytes()))
	for _, s := range steps {
		v, err := r.ReadBits(s.n)
		require.NoError(t, err)
		require.Equal(t, s.value, v)
	}
}

func TestFlushIsIdempotentOnEmptyBuffer(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Flush())
	require.Empty(t, buf.Bytes())
}
