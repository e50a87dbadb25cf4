package big

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDetectHW2(t *testing.T) {
	f := newMemFile(nil)
	w := CreateHW2(f)
	w.AddFile("a.txt", []byte("x"), time.Unix(0, 0))
	require.NoError(t, w.Save())

	format, err := Detect(f)
	require.NoError(t, err)
	require.Equal(t, FormatHW2, format)
}

func TestDetectHWRM(t *testing.T) {
	f := newMemFile(nil)
	w := CreateHWRM(f)
	w.AddFile("a.txt", []byte("x"), time.Unix(0, 0))
	require.NoError(t, w.Save())

	format, err := Detect(f)
	require.NoError(t, err)
	require.Equal(t, FormatHWRM, format)
}

func TestDetectHW1(t *testing.T) {
	f := newMemFile(nil)
	w := CreateHW1(f)
	w.AddFile("a.txt", []byte("x"), time.Unix(0, 0))
	require.NoError(t, w.Save())

	format, err := Detect(f)
	require.NoError(t, err)
	require.Equal(t, FormatHW1, format)
}

func TestDetectUnknownFormat(t *testing.T) {
	f := newMemFile([]byte("not a big archive at all"))
	_, err := Detect(f)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrValue)
}
