package big

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHW2RoundTripFlat(t *testing.T) {
	f := newMemFile(nil)
	w := CreateHW2(f)
	w.AddFile("readme.txt", []byte("hello from homeworld"), time.Unix(1000, 0))
	w.AddFile("data.bin", []byte{1, 2, 3, 4, 5}, time.Unix(2000, 0))
	require.NoError(t, w.Save())

	r, err := loadHW2(f)
	require.NoError(t, err)
	require.Equal(t, FormatHW2, r.Format())
	require.Len(t, r.Members(), 2)

	byName := map[string]*Member{}
	for _, m := range r.Members() {
		byName[m.Name()] = m
	}

	m := byName["readme.txt"]
	require.NotNil(t, m)
	data, err := io.ReadAll(mustOpen(t, r, m))
	require.NoError(t, err)
	require.Equal(t, "hello from homeworld", string(data))
}

func TestHW2RoundTripNestedFolders(t *testing.T) {
	f := newMemFile(nil)
	w := CreateHW2(f)
	w.AddFile("sub/a/one.txt", []byte("one"), time.Unix(0, 0))
	w.AddFile("sub/b/two.txt", []byte("two"), time.Unix(0, 0))
	require.NoError(t, w.Save())

	r, err := loadHW2(f)
	require.NoError(t, err)
	require.Len(t, r.Members(), 2)

	names := map[string]bool{}
	for _, m := range r.Members() {
		names[m.Name()] = true
	}
	require.True(t, names["sub/a/one.txt"])
	require.True(t, names["sub/b/two.txt"])
}

func TestHW2EveryFileInfoVisitedExactlyOnce(t *testing.T) {
	f := newMemFile(nil)
	w := CreateHW2(f)
	for i := 0; i < 5; i++ {
		w.AddFile("dir/file.txt", []byte("dup-path-by-index-ignored"), time.Unix(0, 0))
	}
	require.NoError(t, w.Save())

	r, err := loadHW2(f)
	require.NoError(t, err)
	require.Equal(t, int(r.sectionHeader.FileInfoCount), len(r.Members()))
}

func TestHW2CRCMismatchIsHardErrorByDefault(t *testing.T) {
	f := newMemFile(nil)
	w := CreateHW2(f)
	w.AddFile("file.txt", []byte("payload"), time.Unix(0, 0))
	require.NoError(t, w.Save())

	r, err := loadHW2(f)
	require.NoError(t, err)
	require.True(t, r.VerifyCRC)

	// Corrupt the file-entry's recorded CRC32.
	fi := r.fileInfos[0]
	dataOffset := int64(r.archiveHeader.FileDataOffset) + int64(fi.FileDataOffset)
	crcOffset := dataOffset - hw2FileEntrySize + hw2MaxFilenameLength + 4
	bad := make([]byte, 4)
	f.WriteAt(bad, crcOffset)

	_, err = r.Open(r.Members()[0])
	require.Error(t, err)
}

func mustOpen(t *testing.T, a Archive, m *Member) io.Reader {
	t.Helper()
	r, err := a.Open(m)
	require.NoError(t, err)
	return r
}
