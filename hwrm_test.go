package big

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHWRMRoundTrip(t *testing.T) {
	f := newMemFile(nil)
	w := CreateHWRM(f)
	w.AddFile("ship.lod", []byte("geometry bytes go here"), time.Unix(12345, 0))
	require.NoError(t, w.Save())

	require.True(t, checkHWRMFormat(f))

	r, err := loadHWRM(f)
	require.NoError(t, err)
	require.Equal(t, FormatHWRM, r.Format())
	require.Len(t, r.Members(), 1)

	data, err := io.ReadAll(mustOpen(t, r, r.Members()[0]))
	require.NoError(t, err)
	require.Equal(t, "geometry bytes go here", string(data))
}

func TestHWRMIsNotMistakenForPlainHW2(t *testing.T) {
	f := newMemFile(nil)
	w := CreateHWRM(f)
	w.AddFile("a.txt", []byte("x"), time.Unix(0, 0))
	require.NoError(t, w.Save())

	require.False(t, checkHW2Format(f))
}
