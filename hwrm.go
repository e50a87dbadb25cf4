package big

import (
	"io"
	"time"

	"github.com/icza/hwbig/gearbox"
)

// memFile is a minimal in-memory randomAccessFile, used to hold an HWRM
// archive's decrypted HW2 body so the HW2 reader/writer can operate on it
// without knowing anything about the surrounding cipher envelope.
type memFile struct {
	buf []byte
	pos int64
}

func newMemFile(data []byte) *memFile {
	return &memFile{buf: append([]byte(nil), data...)}
}

func (m *memFile) grow(size int64) {
	if int64(len(m.buf)) < size {
		grown := make([]byte, size)
		copy(grown, m.buf)
		m.buf = grown
	}
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memFile) Read(p []byte) (int, error) {
	n, err := m.ReadAt(p, m.pos)
	m.pos += int64(n)
	return n, err
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = m.pos + offset
	case io.SeekEnd:
		target = int64(len(m.buf)) + offset
	default:
		return 0, ioErrorf("memFile: invalid whence %d", whence)
	}
	if target < 0 {
		return 0, ioErrorf("memFile: negative seek position")
	}
	m.pos = target
	return m.pos, nil
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	m.grow(off + int64(len(p)))
	copy(m.buf[off:], p)
	return len(p), nil
}

func (m *memFile) Write(p []byte) (int, error) {
	n, err := m.WriteAt(p, m.pos)
	m.pos += int64(n)
	return n, err
}

func (m *memFile) Truncate(size int64) error {
	if int64(len(m.buf)) <= size {
		m.grow(size)
		return nil
	}
	m.buf = m.buf[:size]
	return nil
}

func (m *memFile) Bytes() []byte { return m.buf }

// HWRMArchive implements Archive for Homeworld Remastered's Gearbox
// stream-cipher envelope wrapped around an HW2 body.
type HWRMArchive struct {
	file     randomAccessFile
	inner    *HW2Archive
	localKey []byte

	// MasterKey is used to derive the body's encryption key; defaults to
	// gearbox.DefaultMasterKey.
	MasterKey []byte
}

// NewHWRM opens an existing HWRM archive from f.
func NewHWRM(f randomAccessFile) (*HWRMArchive, error) { return loadHWRM(f) }

// CreateHWRM starts a new, empty HWRM archive.
func CreateHWRM(f randomAccessFile) *HWRMArchive {
	return &HWRMArchive{file: f, inner: CreateHW2(newMemFile(nil)), MasterKey: gearbox.DefaultMasterKey}
}

func checkHWRMFormat(r io.ReadSeeker) bool {
	footer, err := gearbox.DetectFooter(r, gearbox.HWRMMarker)
	return err == nil && footer != nil
}

func loadHWRM(f randomAccessFile) (*HWRMArchive, error) {
	footer, err := gearbox.DetectFooter(f, gearbox.HWRMMarker)
	if err != nil {
		return nil, encryptionErrorf("hwrm: locating footer: %v", err)
	}

	cipherText := make([]byte, footer.DataSize)
	if _, err := f.ReadAt(cipherText, 0); err != nil {
		return nil, ioErrorf("hwrm: reading encrypted body: %v", err)
	}

	cipher := gearbox.New(footer.DataSize, footer.LocalKey, gearbox.DefaultMasterKey)
	plain := cipher.Decrypt(cipherText, 0)

	inner, err := loadHW2(newMemFile(plain))
	if err != nil {
		return nil, err
	}

	return &HWRMArchive{file: f, inner: inner, localKey: footer.LocalKey, MasterKey: gearbox.DefaultMasterKey}, nil
}

// Format implements Archive.
func (a *HWRMArchive) Format() Format { return FormatHWRM }

// Members implements Archive.
func (a *HWRMArchive) Members() []*Member { return a.inner.Members() }

// Open implements Archive.
func (a *HWRMArchive) Open(m *Member) (io.Reader, error) { return a.inner.Open(m) }

// Close implements Archive.
func (a *HWRMArchive) Close() error { return a.inner.Close() }

// AddFile stages one file for inclusion at the next Save.
func (a *HWRMArchive) AddFile(path string, data []byte, mtime time.Time) {
	a.inner.AddFile(path, data, mtime)
}

// Save builds the HW2 body in memory, encrypts it under a freshly
// generated local key, and writes the encrypted body plus its Gearbox
// footer to the underlying file.
func (a *HWRMArchive) Save() error {
	if err := a.inner.Save(); err != nil {
		return err
	}
	plain := a.inner.file.(*memFile).Bytes()

	localKey := generateHWRMLocalKey(len(plain))
	cipher := gearbox.New(int64(len(plain)), localKey, a.MasterKey)
	cipherText := cipher.Encrypt(plain, 0)

	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return ioErrorf("hwrm: seeking to start: %v", err)
	}
	if _, err := a.file.Write(cipherText); err != nil {
		return ioErrorf("hwrm: writing encrypted body: %v", err)
	}
	footer := gearbox.BuildFooter(gearbox.HWRMMarker, localKey, 0)
	if _, err := a.file.Write(footer); err != nil {
		return ioErrorf("hwrm: writing footer: %v", err)
	}
	if err := a.file.Truncate(int64(len(cipherText) + len(footer))); err != nil {
		return ioErrorf("hwrm: truncating: %v", err)
	}

	a.localKey = localKey
	return nil
}

// generateHWRMLocalKey deterministically derives a local encryption key
// from the body size, in the absence of the real tool's key-generation
// source. A fixed 32-byte key keeps footers a predictable size; any byte
// content works, since the cipher's security rests on MasterKey.
func generateHWRMLocalKey(dataSize int) []byte {
	const size = 32
	key := make([]byte, size)
	state := uint32(dataSize) ^ 0x2545F491
	for i := range key {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		key[i] = byte(state)
	}
	return key
}
