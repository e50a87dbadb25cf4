package lzss

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressSingleByteMatchesBitLayout(t *testing.T) {
	out, err := Compress(strings.NewReader("A"))
	require.NoError(t, err)
	// tag=1, literal=0x41, tag=0, index=0x000 (EndOfStream), padded to 3 bytes.
	require.Equal(t, []byte{0xA0, 0x80, 0x00}, out)
}

func TestDecompressSingleByte(t *testing.T) {
	out, err := Decompress(bytes.NewReader([]byte{0xA0, 0x80, 0x00}))
	require.NoError(t, err)
	require.Equal(t, []byte("A"), out)
}

func TestRoundTripEmpty(t *testing.T) {
	packed, err := Compress(bytes.NewReader(nil))
	require.NoError(t, err)
	out, err := Decompress(bytes.NewReader(packed))
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestRoundTripVariousInputs(t *testing.T) {
	cases := []string{
		"A",
		"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		"The quick brown fox jumps over the lazy dog.",
		strings.Repeat("ab", 5000),
		strings.Repeat("Homeworld Remastered ", 300),
	}
	for _, s := range cases {
		packed, err := Compress(strings.NewReader(s))
		require.NoError(t, err)
		out, err := Decompress(bytes.NewReader(packed))
		require.NoError(t, err)
		require.Equal(t, []byte(s), out)
	}
}

func TestRoundTripRandomBytes(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		n := r.Intn(8000)
		data := make([]byte, n)
		r.Read(data)

		packed, err := Compress(bytes.NewReader(data))
		require.NoError(t, err)
		out, err := Decompress(bytes.NewReader(packed))
		require.NoError(t, err)
		require.Equal(t, data, out)
	}
}

func TestCompressMemberGate(t *testing.T) {
	// Highly repetitive data compresses well below the ratio gate.
	repetitive := bytes.Repeat([]byte("0123456789"), 2000)
	stored, compressed, err := CompressMember(repetitive)
	require.NoError(t, err)
	require.True(t, compressed)
	require.Less(t, len(stored), len(repetitive))

	// Random data won't compress past the gate; stored unchanged.
	r := rand.New(rand.NewSource(2))
	random := make([]byte, 2000)
	r.Read(random)
	stored, compressed, err = CompressMember(random)
	require.NoError(t, err)
	require.False(t, compressed)
	require.Equal(t, random, stored)

	stored, compressed, err = CompressMember(nil)
	require.NoError(t, err)
	require.False(t, compressed)
	require.Empty(t, stored)
}
