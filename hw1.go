package big

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/icza/hwbig/lzss"
)

// HW1 header: 7-byte magic, u32 TOC entry count, u32 sorted flag.
const (
	hw1Magic       = "RBF1.23"
	hw1HeaderSize  = 15
	hw1EntrySize   = 32
	hw1cEntrySize  = 36
	hw1MaxTocCount = 20000 // arbitrary sanity bound, matches the source
	hw1MaxNameLen  = 128
)

var hw1DefaultPadding = [3]byte{0xC9, 0xCA, 0xCB}

const hw1ClassicDefaultUnknown1 = 0x00A7

type hw1Header struct {
	TocEntryCount uint32
	SortedFlag    bool
}

func readHW1Header(r io.Reader) (*hw1Header, error) {
	var magic [7]byte
	var err error
	read := func(data interface{}) {
		if err != nil {
			return
		}
		err = binary.Read(r, binary.LittleEndian, data)
	}
	read(&magic)
	var tocCount, sortedFlag uint32
	read(&tocCount)
	read(&sortedFlag)
	if err != nil {
		return nil, formatErrorf("hw1: reading header: %v", err)
	}
	if string(magic[:]) != hw1Magic {
		return nil, formatErrorf("hw1: bad magic %q", magic)
	}
	if tocCount > hw1MaxTocCount {
		return nil, formatErrorf("hw1: implausible toc entry count %d", tocCount)
	}
	if sortedFlag == 0 {
		return nil, formatErrorf("hw1: toc sorted flag not set")
	}
	return &hw1Header{TocEntryCount: tocCount, SortedFlag: true}, nil
}

func writeHW1Header(w io.Writer, h *hw1Header) error {
	if _, err := w.Write([]byte(hw1Magic)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, h.TocEntryCount); err != nil {
		return err
	}
	var sorted uint32
	if h.SortedFlag {
		sorted = 1
	}
	return binary.Write(w, binary.LittleEndian, sorted)
}

// hw1TocEntry is the shared flat TOC record shape for both HW1 and
// HW1-Classic; classic controls which fields are present on the wire and
// their widths.
type hw1TocEntry struct {
	CRCStart       uint32
	CRCEnd         uint32
	NameLength     uint32
	Unknown1       uint16 // classic only; preserved, never validated
	StoredSize     uint32
	RealSize       uint32
	EntryOffset    uint32
	Timestamp      uint32
	CompressedFlag bool
	Padding1       uint32 // classic only, compiler padding
}

func hw1EntrySizeFor(classic bool) int64 {
	if classic {
		return hw1cEntrySize
	}
	return hw1EntrySize
}

func readHW1TocEntry(r io.Reader, classic bool) (*hw1TocEntry, error) {
	e := &hw1TocEntry{}
	var err error
	read := func(data interface{}) {
		if err != nil {
			return
		}
		err = binary.Read(r, binary.LittleEndian, data)
	}

	read(&e.CRCStart)
	read(&e.CRCEnd)

	if classic {
		var nameLen uint16
		read(&nameLen)
		read(&e.Unknown1)
		e.NameLength = uint32(nameLen)
	} else {
		read(&e.NameLength)
	}

	read(&e.StoredSize)
	read(&e.RealSize)
	read(&e.EntryOffset)
	read(&e.Timestamp)

	if classic {
		read(&e.Padding1)
		var compressed uint32
		read(&compressed)
		e.CompressedFlag = compressed != 0
	} else {
		var compressed uint8
		read(&compressed)
		var padding [3]byte
		read(&padding)
		e.CompressedFlag = compressed != 0
	}

	if err != nil {
		return nil, formatErrorf("hw1: reading toc entry: %v", err)
	}
	return e, nil
}

func writeHW1TocEntry(w io.Writer, e *hw1TocEntry, classic bool) error {
	write := func(data interface{}) error {
		return binary.Write(w, binary.LittleEndian, data)
	}
	if err := write(e.CRCStart); err != nil {
		return err
	}
	if err := write(e.CRCEnd); err != nil {
		return err
	}

	if classic {
		if err := write(uint16(e.NameLength)); err != nil {
			return err
		}
		unknown1 := e.Unknown1
		if unknown1 == 0 {
			unknown1 = hw1ClassicDefaultUnknown1
		}
		if err := write(unknown1); err != nil {
			return err
		}
	} else {
		if err := write(e.NameLength); err != nil {
			return err
		}
	}

	if err := write(e.StoredSize); err != nil {
		return err
	}
	if err := write(e.RealSize); err != nil {
		return err
	}
	if err := write(e.EntryOffset); err != nil {
		return err
	}
	if err := write(e.Timestamp); err != nil {
		return err
	}

	if classic {
		if err := write(e.Padding1); err != nil {
			return err
		}
		var compressed uint32
		if e.CompressedFlag {
			compressed = 1
		}
		return write(compressed)
	}

	var compressed uint8
	if e.CompressedFlag {
		compressed = 1
	}
	if err := write(compressed); err != nil {
		return err
	}
	return write(hw1DefaultPadding)
}

func validateHW1TocEntry(e *hw1TocEntry) error {
	if e.NameLength > hw1MaxNameLen {
		return formatErrorf("hw1: name length %d exceeds %d", e.NameLength, hw1MaxNameLen)
	}
	if e.StoredSize > e.RealSize {
		return formatErrorf("hw1: stored size %d exceeds real size %d", e.StoredSize, e.RealSize)
	}
	if e.CompressedFlag != (e.StoredSize < e.RealSize) {
		return formatErrorf("hw1: compressed flag does not match stored/real sizes")
	}
	if timestampToTime(e.Timestamp).After(time.Now().UTC().AddDate(1, 0, 0)) {
		return formatErrorf("hw1: implausible future timestamp")
	}
	return nil
}

// decryptHW1Filename reverses the 0xD5 running-XOR mask HW1 applies to
// in-archive filenames.
func decryptHW1Filename(cipher []byte) string {
	mask := byte(0xD5)
	out := make([]byte, len(cipher))
	for i, c := range cipher {
		mask ^= c
		out[i] = mask
	}
	return string(out)
}

// encryptHW1Filename is decryptHW1Filename's inverse.
func encryptHW1Filename(plain string) []byte {
	pb := []byte(plain)
	out := make([]byte, len(pb))
	prev := byte(0xD5)
	for i, c := range pb {
		out[i] = c ^ prev
		prev = c
	}
	return out
}

// hw1CRCPair computes the ordering key for one TOC entry: the archive
// sorts its TOC by this pair. The odd-length last-byte exclusion is a
// preserved quirk of the original implementation, not a rounding choice
// made here.
func hw1CRCPair(name string) (start, end uint32) {
	lower := strings.ToLower(denormalizePath(name))
	half := len(lower) / 2
	return crc32Of([]byte(lower[:half])), crc32Of([]byte(lower[half : 2*half]))
}

func hw1SortKey(start, end uint32) uint64 {
	return uint64(start)<<32 | uint64(end)
}

// randomAccessFile is the minimal surface HW1/HW2/HWRM writers need from
// their backing store; *os.File satisfies it directly.
type randomAccessFile interface {
	io.ReaderAt
	io.ReadSeeker
	io.WriterAt
	io.Writer
	Truncate(size int64) error
}

type hw1PendingMember struct {
	name  string
	data  []byte
	mtime time.Time
}

// HW1Archive implements Archive for both the HW1 and HW1-Classic layouts.
type HW1Archive struct {
	classic bool
	file    randomAccessFile
	header  *hw1Header
	entries []*hw1TocEntry
	members []*Member

	pending []*hw1PendingMember
}

// NewHW1 opens an existing HW1 archive from f.
func NewHW1(f randomAccessFile) (*HW1Archive, error) { return loadHW1(f, false) }

// NewHW1Classic opens an existing HW1-Classic archive from f.
func NewHW1Classic(f randomAccessFile) (*HW1Archive, error) { return loadHW1(f, true) }

// CreateHW1 starts a new, empty HW1 archive to be populated with AddFile
// and written out with Save.
func CreateHW1(f randomAccessFile) *HW1Archive {
	return &HW1Archive{file: f}
}

// CreateHW1Classic starts a new, empty HW1-Classic archive.
func CreateHW1Classic(f randomAccessFile) *HW1Archive {
	return &HW1Archive{file: f, classic: true}
}

// checkHW1Format validates the header and, when present, the first TOC
// entry. The header alone does not distinguish HW1 from HW1-Classic (both
// share the same 15 bytes), so the detector relies on the first entry's
// field shape to tell them apart.
func checkHW1Format(r io.ReadSeeker, classic bool) bool {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return false
	}
	header, err := readHW1Header(r)
	if err != nil {
		return false
	}
	if header.TocEntryCount == 0 {
		return true
	}
	e, err := readHW1TocEntry(r, classic)
	if err != nil {
		return false
	}
	return validateHW1TocEntry(e) == nil
}

func loadHW1(f randomAccessFile, classic bool) (*HW1Archive, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, ioErrorf("hw1: seeking to header: %v", err)
	}
	header, err := readHW1Header(f)
	if err != nil {
		return nil, err
	}

	entries := make([]*hw1TocEntry, 0, header.TocEntryCount)
	for i := uint32(0); i < header.TocEntryCount; i++ {
		e, err := readHW1TocEntry(f, classic)
		if err != nil {
			return nil, err
		}
		if err := validateHW1TocEntry(e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	a := &HW1Archive{classic: classic, file: f, header: header, entries: entries}
	if err := a.buildMembers(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *HW1Archive) buildMembers() error {
	a.members = make([]*Member, 0, len(a.entries))
	for _, e := range a.entries {
		if _, err := a.file.Seek(int64(e.EntryOffset), io.SeekStart); err != nil {
			return ioErrorf("hw1: seeking to filename: %v", err)
		}
		raw := make([]byte, e.NameLength+1)
		if _, err := io.ReadFull(a.file, raw); err != nil {
			return ioErrorf("hw1: reading filename: %v", err)
		}
		name := decryptHW1Filename(raw[:len(raw)-1])

		a.members = append(a.members, &Member{
			name:       normalizePath(name),
			mtime:      timestampToTime(e.Timestamp),
			realSize:   e.RealSize,
			storedSize: e.StoredSize,
			record:     e,
		})
	}
	return nil
}

// Format implements Archive.
func (a *HW1Archive) Format() Format {
	if a.classic {
		return FormatHW1Classic
	}
	return FormatHW1
}

// Members implements Archive.
func (a *HW1Archive) Members() []*Member { return a.members }

// Open implements Archive.
func (a *HW1Archive) Open(m *Member) (io.Reader, error) {
	e, ok := m.record.(*hw1TocEntry)
	if !ok {
		return nil, formatErrorf("hw1: member does not belong to this archive")
	}
	dataOffset := int64(e.EntryOffset) + int64(e.NameLength) + 1
	if _, err := a.file.Seek(dataOffset, io.SeekStart); err != nil {
		return nil, ioErrorf("hw1: seeking to data: %v", err)
	}
	data := make([]byte, e.StoredSize)
	if _, err := io.ReadFull(a.file, data); err != nil {
		return nil, ioErrorf("hw1: reading data: %v", err)
	}
	if !e.CompressedFlag {
		return bytes.NewReader(data), nil
	}
	out, err := lzss.Decompress(bytes.NewReader(data))
	if err != nil {
		return nil, formatErrorf("hw1: lzss decompress: %v", err)
	}
	return bytes.NewReader(out), nil
}

// Close implements Archive.
func (a *HW1Archive) Close() error { return nil }

// AddFile stages one file for inclusion in the archive at the next Save.
func (a *HW1Archive) AddFile(name string, data []byte, mtime time.Time) {
	a.pending = append(a.pending, &hw1PendingMember{name: normalizePath(name), data: data, mtime: mtime})
}

// Save writes the header, TOC, and member bodies for every file added via
// AddFile, sorted ascending by the CRC-pair ordering key, truncating the
// backing file to its final size.
func (a *HW1Archive) Save() error {
	sorted := make([]*hw1PendingMember, len(a.pending))
	copy(sorted, a.pending)
	sort.Slice(sorted, func(i, j int) bool {
		si, ei := hw1CRCPair(sorted[i].name)
		sj, ej := hw1CRCPair(sorted[j].name)
		return hw1SortKey(si, ei) < hw1SortKey(sj, ej)
	})

	entrySize := hw1EntrySizeFor(a.classic)
	reserved := int64(hw1HeaderSize) + int64(len(sorted))*entrySize

	entries := make([]*hw1TocEntry, 0, len(sorted))
	offset := reserved
	for _, pm := range sorted {
		if _, err := a.file.Seek(offset, io.SeekStart); err != nil {
			return ioErrorf("hw1: seeking to write member: %v", err)
		}
		entryOffset := offset

		encName := encryptHW1Filename(denormalizePath(pm.name))
		nameBuf := append(append([]byte{}, encName...), 0x00)
		if _, err := a.file.Write(nameBuf); err != nil {
			return ioErrorf("hw1: writing filename: %v", err)
		}
		offset += int64(len(nameBuf))

		stored, compressed, err := lzss.CompressMember(pm.data)
		if err != nil {
			return formatErrorf("hw1: compressing %q: %v", pm.name, err)
		}
		if _, err := a.file.Write(stored); err != nil {
			return ioErrorf("hw1: writing data: %v", err)
		}
		offset += int64(len(stored))

		crcStart, crcEnd := hw1CRCPair(pm.name)
		entries = append(entries, &hw1TocEntry{
			CRCStart:       crcStart,
			CRCEnd:         crcEnd,
			NameLength:     uint32(len(encName)),
			StoredSize:     uint32(len(stored)),
			RealSize:       uint32(len(pm.data)),
			EntryOffset:    uint32(entryOffset),
			Timestamp:      timeToTimestamp(pm.mtime),
			CompressedFlag: compressed,
		})
	}

	if err := a.file.Truncate(offset); err != nil {
		return ioErrorf("hw1: truncating: %v", err)
	}

	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return ioErrorf("hw1: seeking to header: %v", err)
	}
	header := &hw1Header{TocEntryCount: uint32(len(entries)), SortedFlag: true}
	if err := writeHW1Header(a.file, header); err != nil {
		return ioErrorf("hw1: writing header: %v", err)
	}
	for _, e := range entries {
		if err := writeHW1TocEntry(a.file, e, a.classic); err != nil {
			return ioErrorf("hw1: writing toc entry: %v", err)
		}
	}

	a.header = header
	a.entries = entries
	return a.buildMembers()
}
