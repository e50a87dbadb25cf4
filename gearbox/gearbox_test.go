package gearbox

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	localKey := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	data := []byte("the quick brown fox jumps over the lazy dog")

	enc := New(int64(len(data)), localKey, DefaultMasterKey)
	cipherText := enc.Encrypt(data, 0)
	require.NotEqual(t, data, cipherText)

	dec := New(int64(len(data)), localKey, DefaultMasterKey)
	plain := dec.Decrypt(cipherText, 0)
	require.Equal(t, data, plain)
}

func TestCipherRoundTripWithOffset(t *testing.T) {
	localKey := bytes.Repeat([]byte{0xAA, 0x55}, 6)
	data := make([]byte, 300)
	r := rand.New(rand.NewSource(7))
	r.Read(data)

	c := New(int64(len(data)), localKey, DefaultMasterKey)
	cipherText := c.Encrypt(data, 17)
	plain := c.Decrypt(cipherText, 17)
	require.Equal(t, data, plain)
}

func TestCombineKeysIsDeterministic(t *testing.T) {
	localKey := []byte{0x10, 0x20, 0x30, 0x40}
	k1 := combineKeys(128, localKey, DefaultMasterKey)
	k2 := combineKeys(128, localKey, DefaultMasterKey)
	require.Equal(t, k1, k2)
	require.Len(t, k1, len(localKey))
}

func TestBuildAndDetectFooterRoundTrip(t *testing.T) {
	localKey := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02}
	body := bytes.Repeat([]byte{0x42}, 64)
	footer := BuildFooter(GenericMarker, localKey, 3)

	var file bytes.Buffer
	file.Write(body)
	file.Write(footer)

	r := bytes.NewReader(file.Bytes())
	got, err := DetectFooter(r, GenericMarker)
	require.NoError(t, err)
	require.Equal(t, localKey, got.LocalKey)
	require.Equal(t, int64(len(body)), got.DataSize)
}

func TestDetectFooterRejectsTooSmallFile(t *testing.T) {
	r := bytes.NewReader([]byte{0x01, 0x02})
	_, err := DetectFooter(r, GenericMarker)
	require.ErrorIs(t, err, ErrFooterTooSmall)
}

func TestDetectFooterRejectsBadMarker(t *testing.T) {
	localKey := []byte{0x01, 0x02}
	footer := BuildFooter(GenericMarker, localKey, 0)
	footer[0] = 0xFF // corrupt the marker

	var file bytes.Buffer
	file.Write(bytes.Repeat([]byte{0}, 32))
	file.Write(footer)

	_, err := DetectFooter(bytes.NewReader(file.Bytes()), GenericMarker)
	require.ErrorIs(t, err, ErrUnexpectedMarker)
}

func TestDetectFooterRejectsWrongExpectedMarker(t *testing.T) {
	localKey := []byte{0x01, 0x02}
	footer := BuildFooter(HWRMMarker, localKey, 0)

	var file bytes.Buffer
	file.Write(bytes.Repeat([]byte{0}, 32))
	file.Write(footer)

	_, err := DetectFooter(bytes.NewReader(file.Bytes()), GenericMarker)
	require.ErrorIs(t, err, ErrUnexpectedMarker)
}
