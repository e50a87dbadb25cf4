package big

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHW1RoundTrip(t *testing.T) {
	f := newMemFile(nil)
	w := CreateHW1(f)
	w.AddFile("data/ships.txt", []byte("carrier, frigate, fighter"), time.Unix(500, 0))
	w.AddFile("readme.txt", []byte("hello"), time.Unix(600, 0))
	require.NoError(t, w.Save())

	r, err := loadHW1(f, false)
	require.NoError(t, err)
	require.Equal(t, FormatHW1, r.Format())
	require.Len(t, r.Members(), 2)

	for _, m := range r.Members() {
		require.True(t, m.StoredSize() <= m.RealSize())
		require.Equal(t, m.Compressed(), m.StoredSize() < m.RealSize())
	}
}

func TestHW1ClassicRoundTrip(t *testing.T) {
	f := newMemFile(nil)
	w := CreateHW1Classic(f)
	w.AddFile("a.txt", []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), time.Unix(0, 0))
	require.NoError(t, w.Save())

	r, err := loadHW1(f, true)
	require.NoError(t, err)
	require.Equal(t, FormatHW1Classic, r.Format())
	require.Len(t, r.Members(), 1)

	data, err := io.ReadAll(mustOpen(t, r, r.Members()[0]))
	require.NoError(t, err)
	require.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", string(data))
}

func TestHW1TocSortedByCRCPair(t *testing.T) {
	f := newMemFile(nil)
	w := CreateHW1(f)
	w.AddFile("zeta.txt", []byte("z"), time.Unix(0, 0))
	w.AddFile("alpha.txt", []byte("a"), time.Unix(0, 0))
	w.AddFile("mid.txt", []byte("m"), time.Unix(0, 0))
	require.NoError(t, w.Save())

	r, err := loadHW1(f, false)
	require.NoError(t, err)

	var lastKey uint64
	for i, e := range r.entries {
		key := hw1SortKey(e.CRCStart, e.CRCEnd)
		if i > 0 {
			require.GreaterOrEqual(t, key, lastKey)
		}
		lastKey = key
	}
}

func TestHW1FilenameEncodeDecodeRoundTrip(t *testing.T) {
	p := "test/path/to/file.ext"
	encoded := encryptHW1Filename(p)
	require.Equal(t, byte(0xD5^'t'), encoded[0])
	require.Equal(t, p, decryptHW1Filename(encoded))
}
