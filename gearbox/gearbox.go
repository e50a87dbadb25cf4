/*

Package gearbox implements the Gearbox Software stream cipher and key
derivation scheme used to wrap Homeworld Remastered `.big` archives.

A local, per-archive key is combined with a large master key into a
derived encryption key; the archive body is then combined additively (byte
by byte, modulo 256) with that derived key, with the key position tied to
the offset within the encrypted body. The local key, its length, and the
offset of the whole footer are stored in a small footer appended after
the encrypted body; DetectFooter locates and parses that footer from the
tail of a file.

*/
package gearbox

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// GenericMarker is the default 4-byte little-endian sentinel that
// precedes the key-length field in a footer.
const GenericMarker = 0x00000000

// HWRMMarker is the marker value used by Homeworld Remastered archives in
// place of GenericMarker.
const HWRMMarker = 0xDEADBE7A

// EncryptionKeyMaxSize bounds the local key length read from a footer.
const EncryptionKeyMaxSize = 1024

// Sentinel errors surfaced while locating or parsing a footer. Callers in
// the root package wrap these into the encryption error kind.
var (
	ErrFooterTooSmall  = errors.New("gearbox: file too small to hold a footer")
	ErrInvalidOffset   = errors.New("gearbox: invalid marker offset")
	ErrUnexpectedMarker = errors.New("gearbox: unexpected marker value")
	ErrKeyTooLarge     = errors.New("gearbox: local key exceeds maximum size")
)

// DefaultMasterKey is a deterministically generated 1024-byte placeholder
// for the real Gearbox/Relic master key, which is proprietary constant
// data not present in this codebase. It has the shape the derivation
// algorithm requires (at least 256 32-bit words) and makes the cipher and
// its round-trip properties fully exercisable; callers holding the real
// key should pass it to New explicitly instead.
var DefaultMasterKey = generateDefaultMasterKey()

func generateDefaultMasterKey() []byte {
	const size = 1024
	key := make([]byte, size)
	var state uint32 = 0x9E3779B9
	for i := range key {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		key[i] = byte(state)
	}
	return key
}

// Cipher holds a derived encryption key for one archive body.
type Cipher struct {
	dataSize      int64
	keySize       int
	encryptionKey []byte
}

// New derives the encryption key for a body of dataSize bytes from
// localKey and masterKey, following the same word-splitting and
// byte-substitution procedure Gearbox's tools use.
func New(dataSize int64, localKey, masterKey []byte) *Cipher {
	return &Cipher{
		dataSize:      dataSize,
		keySize:       len(localKey),
		encryptionKey: combineKeys(dataSize, localKey, masterKey),
	}
}

// EncryptionKey returns the derived key bytes (len(localKey) long).
func (c *Cipher) EncryptionKey() []byte { return c.encryptionKey }

// Decrypt returns data with each key byte added to it (modulo 256),
// starting at the given offset within the encrypted body.
func (c *Cipher) Decrypt(data []byte, offset int) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		k := c.encryptionKey[(offset+i)%c.keySize]
		out[i] = b + k
	}
	return out
}

// Encrypt returns data with each key byte subtracted from it (modulo 256),
// starting at the given offset within the encrypted body.
func (c *Cipher) Encrypt(data []byte, offset int) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		k := c.encryptionKey[(offset+i)%c.keySize]
		out[i] = b - k
	}
	return out
}

// combineKeys implements the local/master key combination: both keys are
// read as arrays of little-endian 32-bit words, and each output byte of
// the local key is replaced by repeatedly rotating and substituting
// through the master key's word table.
func combineKeys(dataSize int64, localKey, masterKey []byte) []byte {
	keySize := len(localKey)
	localWords := wordsLE(localKey)
	masterWords := wordsLE(masterKey)
	combined := make([]byte, keySize)

	for i := 0; i < keySize; i += 4 {
		c := localWords[i/4]
		for b := 0; b < 4 && i+b < keySize; b++ {
			bts := splitToBytes(rotl32(c+uint32(dataSize), 8))
			for j := 0; j < 4; j++ {
				idx := byte((c ^ uint32(bts[j])) & 0xFF)
				c = masterWords[idx] ^ (c >> 8)
			}
			combined[i+b] = byte(c)
		}
	}
	return combined
}

func wordsLE(b []byte) []uint32 {
	n := len(b) / 4
	words := make([]uint32, n)
	for i := 0; i < n; i++ {
		words[i] = binary.LittleEndian.Uint32(b[i*4 : i*4+4])
	}
	return words
}

func splitToBytes(v uint32) [4]byte {
	return [4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func rotl32(v uint32, bits uint) uint32 {
	return (v << bits) | (v >> (32 - bits))
}

// Footer is the parsed tail structure of a Gearbox-encrypted archive: the
// local key, the body size the key was derived for, and the stored marker
// offset. The marker itself is checked by DetectFooter and not kept.
type Footer struct {
	LocalKey []byte
	// DataSize is the byte offset where the footer begins, i.e. the
	// length of the encrypted body that precedes it.
	DataSize int64
	// MarkerOffset is the distance from the start of the footer to the
	// very end of the file, as stored on disk.
	MarkerOffset uint32
}

// DetectFooter locates and parses the footer at the tail of r, checking
// the marker field against the given expected marker value (GenericMarker
// or HWRMMarker), and returns the encrypted body size and local key
// needed to construct a Cipher. r's position is left undefined on
// return; callers should re-seek.
func DetectFooter(r io.ReadSeeker, marker uint32) (*Footer, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if size < 10 {
		return nil, ErrFooterTooSmall
	}

	lastIntLoc := size - 4
	if _, err := r.Seek(-4, io.SeekEnd); err != nil {
		return nil, err
	}
	var buf4 [4]byte
	if _, err := io.ReadFull(r, buf4[:]); err != nil {
		return nil, err
	}
	markerOffset := binary.LittleEndian.Uint32(buf4[:])
	if int64(markerOffset) >= lastIntLoc-6 {
		return nil, errors.Wrapf(ErrInvalidOffset, "marker offset %d", markerOffset)
	}

	footerStart := size - int64(markerOffset)
	if footerStart < 0 {
		return nil, ErrInvalidOffset
	}
	if _, err := r.Seek(footerStart, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, buf4[:]); err != nil {
		return nil, err
	}
	gotMarker := binary.LittleEndian.Uint32(buf4[:])
	if gotMarker != marker {
		return nil, errors.Wrapf(ErrUnexpectedMarker, "0x%08X", gotMarker)
	}

	var buf2 [2]byte
	if _, err := io.ReadFull(r, buf2[:]); err != nil {
		return nil, err
	}
	keyLen := binary.LittleEndian.Uint16(buf2[:])
	if keyLen > EncryptionKeyMaxSize {
		return nil, errors.Wrapf(ErrKeyTooLarge, "%d > %d", keyLen, EncryptionKeyMaxSize)
	}
	localKey := make([]byte, keyLen)
	if _, err := io.ReadFull(r, localKey); err != nil {
		return nil, err
	}

	return &Footer{LocalKey: localKey, DataSize: footerStart, MarkerOffset: markerOffset}, nil
}

// BuildFooter encodes a footer for a newly written archive: marker, key
// length, the local key itself, paddingLen zero bytes, and finally the
// marker offset counted back from the end of the footer.
func BuildFooter(marker uint32, localKey []byte, paddingLen int) []byte {
	body := make([]byte, 0, 4+2+len(localKey)+paddingLen+4)
	var mk [4]byte
	binary.LittleEndian.PutUint32(mk[:], marker)
	body = append(body, mk[:]...)

	var kl [2]byte
	binary.LittleEndian.PutUint16(kl[:], uint16(len(localKey)))
	body = append(body, kl[:]...)
	body = append(body, localKey...)
	body = append(body, make([]byte, paddingLen)...)

	total := len(body) + 4
	var mo [4]byte
	binary.LittleEndian.PutUint32(mo[:], uint32(total))
	return append(body, mo[:]...)
}
