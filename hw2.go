package big

import (
	"bytes"
	"compress/zlib"
	"crypto/md5"
	"encoding/binary"
	"io"
	"path"
	"time"
	"unicode/utf16"
)

const (
	hw2Magic              = "_ARCHIVE"
	hw2ArchiveHeaderSize  = 180
	hw2SectionHeaderSize  = 24
	hw2TocRootSize        = 138
	hw2FolderEntrySize    = 12
	hw2FileInfoEntrySize  = 17
	hw2FileEntrySize     = 264
	hw2MaxFilenameLength = 256
)

// DefaultToolKey and DefaultRootKey are documented placeholders for the
// Relic HW2 tool/root security keys, proprietary constant data not
// present in this codebase (see gearbox.DefaultMasterKey for the same
// situation on the HWRM side). They make the key-hash fields always
// computable on write; a caller holding the real keys can set
// HW2Archive.ToolKey/RootKey before Save.
var (
	DefaultToolKey = []byte("hwbig-placeholder-tool-security-key")
	DefaultRootKey = []byte("hwbig-placeholder-root-security-key")
)

type hw2ArchiveHeader struct {
	ToolKeyHash       [16]byte
	ArchiveName       string
	RootKeyHash       [16]byte
	SectionHeaderSize uint32
	FileDataOffset    uint32
}

type hw2SectionHeader struct {
	TocOffset      uint32
	TocCount       uint16
	FolderOffset   uint32
	FolderCount    uint16
	FileInfoOffset uint32
	FileInfoCount  uint16
	FilenameOffset uint32
	FilenameCount  uint16
}

type hw2TocRoot struct {
	Namespace     string
	Filename      string
	FirstFolder   uint16
	LastFolder    uint16
	FirstFileInfo uint16
	LastFileInfo  uint16
	StartFolder   uint16
}

type hw2FolderEntry struct {
	FilenameOffset   uint32
	FirstSubfolder   uint16
	LastSubfolder    uint16
	FirstFileInfo    uint16
	LastFileInfo     uint16
}

type hw2FileInfoEntry struct {
	FilenameOffset  uint32
	CompressionFlag uint8
	FileDataOffset  uint32
	StoredSize      uint32
	RealSize        uint32
}

type hw2FileEntry struct {
	Filename  string
	Timestamp uint32
	CRC32     uint32
}

func trimNullString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func padNullString(s string, n int) []byte {
	buf := make([]byte, n)
	copy(buf, s)
	return buf
}

func decodeUTF16LE(b []byte) string {
	n := len(b) / 2
	units := make([]uint16, 0, n)
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint16(b[i*2 : i*2+2])
		if v == 0 {
			break
		}
		units = append(units, v)
	}
	return string(utf16.Decode(units))
}

func encodeUTF16LE(s string, totalBytes int) []byte {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, totalBytes)
	pos := 0
	for _, v := range units {
		if pos+2 > totalBytes {
			break
		}
		binary.LittleEndian.PutUint16(buf[pos:pos+2], v)
		pos += 2
	}
	return buf
}

func readHW2ArchiveHeader(r io.Reader) (*hw2ArchiveHeader, error) {
	var magic [8]byte
	var err error
	read := func(p []byte) {
		if err != nil {
			return
		}
		_, err = io.ReadFull(r, p)
	}
	read(magic[:])
	var version [4]byte
	read(version[:])
	var toolKeyHash [16]byte
	read(toolKeyHash[:])
	var nameBuf [128]byte
	read(nameBuf[:])
	var rootKeyHash [16]byte
	read(rootKeyHash[:])
	var sectionHeaderSize [4]byte
	read(sectionHeaderSize[:])
	var fileDataOffset [4]byte
	read(fileDataOffset[:])
	if err != nil {
		return nil, formatErrorf("hw2: reading archive header: %v", err)
	}
	if string(magic[:]) != hw2Magic {
		return nil, formatErrorf("hw2: bad magic %q", magic)
	}
	return &hw2ArchiveHeader{
		ToolKeyHash:       toolKeyHash,
		ArchiveName:       decodeUTF16LE(nameBuf[:]),
		RootKeyHash:       rootKeyHash,
		SectionHeaderSize: binary.LittleEndian.Uint32(sectionHeaderSize[:]),
		FileDataOffset:    binary.LittleEndian.Uint32(fileDataOffset[:]),
	}, nil
}

func writeHW2ArchiveHeader(w io.Writer, h *hw2ArchiveHeader) error {
	if _, err := w.Write([]byte(hw2Magic)); err != nil {
		return err
	}
	var version [4]byte
	binary.LittleEndian.PutUint32(version[:], 2)
	if _, err := w.Write(version[:]); err != nil {
		return err
	}
	if _, err := w.Write(h.ToolKeyHash[:]); err != nil {
		return err
	}
	if _, err := w.Write(encodeUTF16LE(h.ArchiveName, 128)); err != nil {
		return err
	}
	if _, err := w.Write(h.RootKeyHash[:]); err != nil {
		return err
	}
	var sectionHeaderSize, fileDataOffset [4]byte
	binary.LittleEndian.PutUint32(sectionHeaderSize[:], h.SectionHeaderSize)
	binary.LittleEndian.PutUint32(fileDataOffset[:], h.FileDataOffset)
	if _, err := w.Write(sectionHeaderSize[:]); err != nil {
		return err
	}
	_, err := w.Write(fileDataOffset[:])
	return err
}

func readHW2SectionHeader(r io.Reader) (*hw2SectionHeader, error) {
	s := &hw2SectionHeader{}
	var err error
	read := func(data interface{}) {
		if err != nil {
			return
		}
		err = binary.Read(r, binary.LittleEndian, data)
	}
	read(&s.TocOffset)
	read(&s.TocCount)
	read(&s.FolderOffset)
	read(&s.FolderCount)
	read(&s.FileInfoOffset)
	read(&s.FileInfoCount)
	read(&s.FilenameOffset)
	read(&s.FilenameCount)
	if err != nil {
		return nil, formatErrorf("hw2: reading section header: %v", err)
	}
	return s, nil
}

func writeHW2SectionHeader(w io.Writer, s *hw2SectionHeader) error {
	for _, v := range []interface{}{
		s.TocOffset, s.TocCount, s.FolderOffset, s.FolderCount,
		s.FileInfoOffset, s.FileInfoCount, s.FilenameOffset, s.FilenameCount,
	} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readHW2TocRoot(r io.Reader) (*hw2TocRoot, error) {
	var namespace, filename [64]byte
	var err error
	read := func(p []byte) {
		if err != nil {
			return
		}
		_, err = io.ReadFull(r, p)
	}
	read(namespace[:])
	read(filename[:])
	t := &hw2TocRoot{Namespace: trimNullString(namespace[:]), Filename: trimNullString(filename[:])}
	readInt := func(data interface{}) {
		if err != nil {
			return
		}
		err = binary.Read(r, binary.LittleEndian, data)
	}
	readInt(&t.FirstFolder)
	readInt(&t.LastFolder)
	readInt(&t.FirstFileInfo)
	readInt(&t.LastFileInfo)
	readInt(&t.StartFolder)
	if err != nil {
		return nil, formatErrorf("hw2: reading toc root: %v", err)
	}
	return t, nil
}

func writeHW2TocRoot(w io.Writer, t *hw2TocRoot) error {
	if _, err := w.Write(padNullString(t.Namespace, 64)); err != nil {
		return err
	}
	if _, err := w.Write(padNullString(t.Filename, 64)); err != nil {
		return err
	}
	for _, v := range []interface{}{t.FirstFolder, t.LastFolder, t.FirstFileInfo, t.LastFileInfo, t.StartFolder} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readHW2FolderEntry(r io.Reader) (*hw2FolderEntry, error) {
	f := &hw2FolderEntry{}
	var err error
	read := func(data interface{}) {
		if err != nil {
			return
		}
		err = binary.Read(r, binary.LittleEndian, data)
	}
	read(&f.FilenameOffset)
	read(&f.FirstSubfolder)
	read(&f.LastSubfolder)
	read(&f.FirstFileInfo)
	read(&f.LastFileInfo)
	if err != nil {
		return nil, formatErrorf("hw2: reading folder entry: %v", err)
	}
	return f, nil
}

func writeHW2FolderEntry(w io.Writer, f *hw2FolderEntry) error {
	for _, v := range []interface{}{f.FilenameOffset, f.FirstSubfolder, f.LastSubfolder, f.FirstFileInfo, f.LastFileInfo} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readHW2FileInfoEntry(r io.Reader) (*hw2FileInfoEntry, error) {
	fi := &hw2FileInfoEntry{}
	var err error
	read := func(data interface{}) {
		if err != nil {
			return
		}
		err = binary.Read(r, binary.LittleEndian, data)
	}
	read(&fi.FilenameOffset)
	read(&fi.CompressionFlag)
	read(&fi.FileDataOffset)
	read(&fi.StoredSize)
	read(&fi.RealSize)
	if err != nil {
		return nil, formatErrorf("hw2: reading file-info entry: %v", err)
	}
	return fi, nil
}

func writeHW2FileInfoEntry(w io.Writer, fi *hw2FileInfoEntry) error {
	if err := binary.Write(w, binary.LittleEndian, fi.FilenameOffset); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, fi.CompressionFlag); err != nil {
		return err
	}
	for _, v := range []interface{}{fi.FileDataOffset, fi.StoredSize, fi.RealSize} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readHW2FileEntry(r io.Reader) (*hw2FileEntry, error) {
	var nameBuf [hw2MaxFilenameLength]byte
	var err error
	if _, err = io.ReadFull(r, nameBuf[:]); err != nil {
		return nil, formatErrorf("hw2: reading file entry name: %v", err)
	}
	fe := &hw2FileEntry{Filename: trimNullString(nameBuf[:])}
	read := func(data interface{}) {
		if err != nil {
			return
		}
		err = binary.Read(r, binary.LittleEndian, data)
	}
	read(&fe.Timestamp)
	read(&fe.CRC32)
	if err != nil {
		return nil, formatErrorf("hw2: reading file entry: %v", err)
	}
	return fe, nil
}

func writeHW2FileEntry(w io.Writer, fe *hw2FileEntry) error {
	if _, err := w.Write(padNullString(fe.Filename, hw2MaxFilenameLength)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, fe.Timestamp); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, fe.CRC32)
}

// HW2Archive implements Archive for the HW2 / HW2-Classic layout (the two
// are byte-for-byte identical; HW2-Classic has no Format value or detector
// candidate of its own and is reported as FormatHW2).
type HW2Archive struct {
	file          randomAccessFile
	archiveHeader *hw2ArchiveHeader
	sectionHeader *hw2SectionHeader
	tocRoots      []*hw2TocRoot
	folders       []*hw2FolderEntry
	fileInfos     []*hw2FileInfoEntry
	members       []*Member

	// VerifyCRC controls whether Open checks the preceding file-entry's
	// CRC32 against the decompressed data; defaults to true (hard error
	// on mismatch) per the format's error-handling policy.
	VerifyCRC bool

	// ToolKey/RootKey are used to compute the key-hash fields on Save.
	// Default to the package's documented placeholders.
	ToolKey []byte
	RootKey []byte

	pending []*hw2PendingFile
}

type hw2PendingFile struct {
	path  string
	data  []byte
	mtime time.Time
}

// NewHW2 opens an existing HW2 (or HW2-Classic) archive from f.
func NewHW2(f randomAccessFile) (*HW2Archive, error) { return loadHW2(f) }

// CreateHW2 starts a new, empty HW2 archive.
func CreateHW2(f randomAccessFile) *HW2Archive {
	return &HW2Archive{file: f, VerifyCRC: true, ToolKey: DefaultToolKey, RootKey: DefaultRootKey}
}

func checkHW2Format(r io.ReadSeeker) bool {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return false
	}
	_, err := readHW2ArchiveHeader(r)
	return err == nil
}

func loadHW2(f randomAccessFile) (*HW2Archive, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, ioErrorf("hw2: seeking to header: %v", err)
	}
	archiveHeader, err := readHW2ArchiveHeader(f)
	if err != nil {
		return nil, err
	}
	sectionHeader, err := readHW2SectionHeader(f)
	if err != nil {
		return nil, err
	}

	a := &HW2Archive{
		file: f, archiveHeader: archiveHeader, sectionHeader: sectionHeader,
		VerifyCRC: true, ToolKey: DefaultToolKey, RootKey: DefaultRootKey,
	}

	if _, err := f.Seek(hw2ArchiveHeaderSize+int64(sectionHeader.TocOffset), io.SeekStart); err != nil {
		return nil, ioErrorf("hw2: seeking to toc: %v", err)
	}
	for i := 0; i < int(sectionHeader.TocCount); i++ {
		t, err := readHW2TocRoot(f)
		if err != nil {
			return nil, err
		}
		a.tocRoots = append(a.tocRoots, t)
	}

	if _, err := f.Seek(hw2ArchiveHeaderSize+int64(sectionHeader.FolderOffset), io.SeekStart); err != nil {
		return nil, ioErrorf("hw2: seeking to folders: %v", err)
	}
	for i := 0; i < int(sectionHeader.FolderCount); i++ {
		fo, err := readHW2FolderEntry(f)
		if err != nil {
			return nil, err
		}
		a.folders = append(a.folders, fo)
	}

	if _, err := f.Seek(hw2ArchiveHeaderSize+int64(sectionHeader.FileInfoOffset), io.SeekStart); err != nil {
		return nil, ioErrorf("hw2: seeking to file infos: %v", err)
	}
	for i := 0; i < int(sectionHeader.FileInfoCount); i++ {
		fi, err := readHW2FileInfoEntry(f)
		if err != nil {
			return nil, err
		}
		a.fileInfos = append(a.fileInfos, fi)
	}

	if err := a.buildMembers(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *HW2Archive) readNameAtOffset(offset uint32) (string, error) {
	absolute := int64(hw2ArchiveHeaderSize) + int64(a.sectionHeader.FilenameOffset) + int64(offset)
	if _, err := a.file.Seek(absolute, io.SeekStart); err != nil {
		return "", ioErrorf("hw2: seeking to filename: %v", err)
	}
	buf := make([]byte, hw2MaxFilenameLength)
	n, err := io.ReadFull(a.file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", ioErrorf("hw2: reading filename: %v", err)
	}
	return trimNullString(buf[:n]), nil
}

// buildMembers performs the depth-first folder walk described in §4.F:
// each folder contributes its own name to the accumulated path of every
// file and subfolder beneath it, and the TOC root's filename anchors the
// whole tree.
func (a *HW2Archive) buildMembers() error {
	paths := make(map[int]string, len(a.fileInfos))
	for _, root := range a.tocRoots {
		if err := a.walkFolder(int(root.StartFolder), root.Filename, paths); err != nil {
			return err
		}
	}

	a.members = make([]*Member, 0, len(a.fileInfos))
	for i, fi := range a.fileInfos {
		dataOffset := int64(a.archiveHeader.FileDataOffset) + int64(fi.FileDataOffset)
		if _, err := a.file.Seek(dataOffset-hw2FileEntrySize, io.SeekStart); err != nil {
			return ioErrorf("hw2: seeking to file entry: %v", err)
		}
		fe, err := readHW2FileEntry(a.file)
		if err != nil {
			return err
		}
		name, ok := paths[i]
		if !ok {
			name = fe.Filename
		}
		a.members = append(a.members, &Member{
			name:       normalizePath(name),
			mtime:      timestampToTime(fe.Timestamp),
			realSize:   fi.RealSize,
			storedSize: fi.StoredSize,
			record:     fi,
		})
	}
	return nil
}

func (a *HW2Archive) walkFolder(folderIdx int, parentPath string, paths map[int]string) error {
	if folderIdx < 0 || folderIdx >= len(a.folders) {
		return formatErrorf("hw2: folder index %d out of range", folderIdx)
	}
	folder := a.folders[folderIdx]
	name, err := a.readNameAtOffset(folder.FilenameOffset)
	if err != nil {
		return err
	}
	folderPath := joinPath(parentPath, name)

	if folder.FirstSubfolder != folder.LastSubfolder {
		for i := int(folder.FirstSubfolder); i < int(folder.LastSubfolder); i++ {
			if err := a.walkFolder(i, folderPath, paths); err != nil {
				return err
			}
		}
	}
	for i := int(folder.FirstFileInfo); i < int(folder.LastFileInfo); i++ {
		if i < 0 || i >= len(a.fileInfos) {
			return formatErrorf("hw2: file-info index %d out of range", i)
		}
		fiName, err := a.readNameAtOffset(a.fileInfos[i].FilenameOffset)
		if err != nil {
			return err
		}
		paths[i] = joinPath(folderPath, fiName)
	}
	return nil
}

// Format implements Archive.
func (a *HW2Archive) Format() Format { return FormatHW2 }

// Members implements Archive.
func (a *HW2Archive) Members() []*Member { return a.members }

// Open implements Archive.
func (a *HW2Archive) Open(m *Member) (io.Reader, error) {
	fi, ok := m.record.(*hw2FileInfoEntry)
	if !ok {
		return nil, formatErrorf("hw2: member does not belong to this archive")
	}
	dataOffset := int64(a.archiveHeader.FileDataOffset) + int64(fi.FileDataOffset)
	if _, err := a.file.Seek(dataOffset-hw2FileEntrySize, io.SeekStart); err != nil {
		return nil, ioErrorf("hw2: seeking to file entry: %v", err)
	}
	fe, err := readHW2FileEntry(a.file)
	if err != nil {
		return nil, err
	}
	if _, err := a.file.Seek(dataOffset, io.SeekStart); err != nil {
		return nil, ioErrorf("hw2: seeking to data: %v", err)
	}
	stored := make([]byte, fi.StoredSize)
	if _, err := io.ReadFull(a.file, stored); err != nil {
		return nil, ioErrorf("hw2: reading data: %v", err)
	}

	var real []byte
	if fi.CompressionFlag != 0 {
		zr, err := zlib.NewReader(bytes.NewReader(stored))
		if err != nil {
			return nil, formatErrorf("hw2: zlib: %v", err)
		}
		defer zr.Close()
		real, err = io.ReadAll(zr)
		if err != nil {
			return nil, formatErrorf("hw2: zlib: %v", err)
		}
	} else {
		real = stored
	}

	if a.VerifyCRC && crc32Of(real) != fe.CRC32 {
		return nil, integrityErrorf("hw2: crc32 mismatch for %q", m.Name())
	}
	return bytes.NewReader(real), nil
}

// Close implements Archive.
func (a *HW2Archive) Close() error { return nil }

// VerifyKeyHashes recomputes the tool-key and root-key MD5 hashes over
// the currently loaded archive and compares them against the stored
// values. Not called automatically on load: per the format's design,
// reading tolerates these fields without verifying them.
func (a *HW2Archive) VerifyKeyHashes() error {
	toolHash, rootHash, err := a.computeKeyHashes()
	if err != nil {
		return err
	}
	if toolHash != a.archiveHeader.ToolKeyHash {
		return integrityErrorf("hw2: tool key hash mismatch")
	}
	if rootHash != a.archiveHeader.RootKeyHash {
		return integrityErrorf("hw2: root key hash mismatch")
	}
	return nil
}

func (a *HW2Archive) computeKeyHashes() (toolHash, rootHash [16]byte, err error) {
	size, err := a.file.Seek(0, io.SeekEnd)
	if err != nil {
		return toolHash, rootHash, ioErrorf("hw2: seeking to end: %v", err)
	}

	toolSum := md5.New()
	toolSum.Write(a.ToolKey)
	toolView := NewFileInFile(a.file, hw2ArchiveHeaderSize, size-hw2ArchiveHeaderSize)
	if _, err := copyChunked(toolSum, toolView, 4096); err != nil {
		return toolHash, rootHash, ioErrorf("hw2: hashing tool key region: %v", err)
	}
	copy(toolHash[:], toolSum.Sum(nil))

	rootSum := md5.New()
	rootSum.Write(a.RootKey)
	rootSize := int64(a.archiveHeader.FileDataOffset) - hw2ArchiveHeaderSize
	rootView := NewFileInFile(a.file, hw2ArchiveHeaderSize, rootSize)
	if _, err := copyChunked(rootSum, rootView, 4096); err != nil {
		return toolHash, rootHash, ioErrorf("hw2: hashing root key region: %v", err)
	}
	copy(rootHash[:], rootSum.Sum(nil))

	return toolHash, rootHash, nil
}

// AddFile stages one file, identified by its full slash-separated
// in-archive path, for inclusion at the next Save.
func (a *HW2Archive) AddFile(filePath string, data []byte, mtime time.Time) {
	a.pending = append(a.pending, &hw2PendingFile{path: normalizePath(filePath), data: data, mtime: mtime})
}

type hw2FolderBuilder struct {
	name     string
	children []*hw2FolderBuilder
	files    []*hw2PendingFile
	index    int
}

func buildHW2FolderTree(files []*hw2PendingFile) *hw2FolderBuilder {
	root := &hw2FolderBuilder{name: ""}
	byPath := map[string]*hw2FolderBuilder{"": root}

	var getOrCreate func(dir string) *hw2FolderBuilder
	getOrCreate = func(dir string) *hw2FolderBuilder {
		if f, ok := byPath[dir]; ok {
			return f
		}
		parentDir, name := path.Dir(dir), path.Base(dir)
		if parentDir == "." {
			parentDir = ""
		}
		parent := getOrCreate(parentDir)
		f := &hw2FolderBuilder{name: name}
		parent.children = append(parent.children, f)
		byPath[dir] = f
		return f
	}

	for _, pf := range files {
		dir := path.Dir(pf.path)
		if dir == "." {
			dir = ""
		}
		folder := getOrCreate(dir)
		folder.files = append(folder.files, pf)
	}
	return root
}

// Save builds the folder tree from every path added via AddFile (under a
// single, unnamed TOC root), writes the full HW2 layout, and computes the
// tool/root key-hash fields over the freshly written bytes.
func (a *HW2Archive) Save() error {
	root := buildHW2FolderTree(a.pending)

	var folders []*hw2FolderEntry
	var folderBuilders []*hw2FolderBuilder
	var fileInfos []*hw2FileInfoEntry
	var fileInfoFiles []*hw2PendingFile

	root.index = 0
	folders = append(folders, &hw2FolderEntry{})
	folderBuilders = append(folderBuilders, root)
	queue := []*hw2FolderBuilder{root}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		firstSub := len(folders)
		for _, child := range cur.children {
			child.index = len(folders)
			folders = append(folders, &hw2FolderEntry{})
			folderBuilders = append(folderBuilders, child)
			queue = append(queue, child)
		}
		lastSub := len(folders)

		firstFI := len(fileInfos)
		for _, pf := range cur.files {
			fileInfos = append(fileInfos, &hw2FileInfoEntry{})
			fileInfoFiles = append(fileInfoFiles, pf)
		}
		lastFI := len(fileInfos)

		folders[cur.index].FirstSubfolder = uint16(firstSub)
		folders[cur.index].LastSubfolder = uint16(lastSub)
		folders[cur.index].FirstFileInfo = uint16(firstFI)
		folders[cur.index].LastFileInfo = uint16(lastFI)
	}

	// Filename pool: offset 0 is the shared empty name, used by the root
	// folder and any unnamed entry.
	pool := []byte{0x00}
	internPool := func(name string) uint32 {
		if name == "" {
			return 0
		}
		offset := uint32(len(pool))
		pool = append(pool, []byte(name)...)
		pool = append(pool, 0x00)
		return offset
	}

	for i, fb := range folderBuilders {
		folders[i].FilenameOffset = internPool(fb.name)
	}
	for i, pf := range fileInfoFiles {
		fileInfos[i].FilenameOffset = internPool(path.Base(pf.path))
	}

	tocRoots := []*hw2TocRoot{{
		Namespace:     "",
		Filename:      "",
		FirstFolder:   0,
		LastFolder:    uint16(len(folders)),
		FirstFileInfo: 0,
		LastFileInfo:  uint16(len(fileInfos)),
		StartFolder:   0,
	}}

	sectionHeader := &hw2SectionHeader{
		TocOffset:      0,
		TocCount:       uint16(len(tocRoots)),
		FolderOffset:   uint32(len(tocRoots) * hw2TocRootSize),
		FolderCount:    uint16(len(folders)),
		FileInfoOffset: uint32(len(tocRoots)*hw2TocRootSize + len(folders)*hw2FolderEntrySize),
		FileInfoCount:  uint16(len(fileInfos)),
		FilenameOffset: uint32(len(tocRoots)*hw2TocRootSize + len(folders)*hw2FolderEntrySize + len(fileInfos)*hw2FileInfoEntrySize),
		FilenameCount:  0,
	}

	fileDataOffset := hw2ArchiveHeaderSize + hw2SectionHeaderSize +
		int64(len(tocRoots))*hw2TocRootSize + int64(len(folders))*hw2FolderEntrySize +
		int64(len(fileInfos))*hw2FileInfoEntrySize + int64(len(pool))

	archiveHeader := &hw2ArchiveHeader{
		ArchiveName:       a.archiveHeader.archiveNameOr("DataArchive"),
		SectionHeaderSize: hw2SectionHeaderSize,
		FileDataOffset:    uint32(fileDataOffset),
	}

	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return ioErrorf("hw2: seeking to start: %v", err)
	}
	if err := writeHW2ArchiveHeader(a.file, archiveHeader); err != nil {
		return ioErrorf("hw2: writing archive header: %v", err)
	}
	if err := writeHW2SectionHeader(a.file, sectionHeader); err != nil {
		return ioErrorf("hw2: writing section header: %v", err)
	}
	for _, t := range tocRoots {
		if err := writeHW2TocRoot(a.file, t); err != nil {
			return ioErrorf("hw2: writing toc root: %v", err)
		}
	}
	for _, f := range folders {
		if err := writeHW2FolderEntry(a.file, f); err != nil {
			return ioErrorf("hw2: writing folder entry: %v", err)
		}
	}
	for _, fi := range fileInfos {
		if err := writeHW2FileInfoEntry(a.file, fi); err != nil {
			return ioErrorf("hw2: writing file-info entry: %v", err)
		}
	}
	if _, err := a.file.Write(pool); err != nil {
		return ioErrorf("hw2: writing filename pool: %v", err)
	}

	offset := fileDataOffset
	for i, pf := range fileInfoFiles {
		stored, compressed, err := compressHW2Member(pf.data)
		if err != nil {
			return formatErrorf("hw2: compressing %q: %v", pf.path, err)
		}

		fe := &hw2FileEntry{Filename: path.Base(pf.path), Timestamp: timeToTimestamp(pf.mtime), CRC32: crc32Of(pf.data)}
		if err := writeHW2FileEntry(a.file, fe); err != nil {
			return ioErrorf("hw2: writing file entry: %v", err)
		}
		offset += hw2FileEntrySize

		if _, err := a.file.Write(stored); err != nil {
			return ioErrorf("hw2: writing file data: %v", err)
		}

		fileInfos[i].FileDataOffset = uint32(offset - fileDataOffset)
		fileInfos[i].StoredSize = uint32(len(stored))
		fileInfos[i].RealSize = uint32(len(pf.data))
		if compressed {
			fileInfos[i].CompressionFlag = 1
		}
		offset += int64(len(stored))
	}

	if err := a.file.Truncate(offset); err != nil {
		return ioErrorf("hw2: truncating: %v", err)
	}

	// Second pass: fileInfos' data offsets/sizes changed after they were
	// first written as zero-valued placeholders, so rewrite that section.
	if _, err := a.file.Seek(hw2ArchiveHeaderSize+int64(sectionHeader.FileInfoOffset), io.SeekStart); err != nil {
		return ioErrorf("hw2: seeking to rewrite file infos: %v", err)
	}
	for _, fi := range fileInfos {
		if err := writeHW2FileInfoEntry(a.file, fi); err != nil {
			return ioErrorf("hw2: rewriting file-info entry: %v", err)
		}
	}

	a.archiveHeader = archiveHeader
	a.sectionHeader = sectionHeader
	a.tocRoots = tocRoots
	a.folders = folders
	a.fileInfos = fileInfos

	toolHash, rootHash, err := a.computeKeyHashes()
	if err != nil {
		return err
	}
	a.archiveHeader.ToolKeyHash = toolHash
	a.archiveHeader.RootKeyHash = rootHash
	if _, err := a.file.Seek(12, io.SeekStart); err != nil {
		return ioErrorf("hw2: seeking to tool key hash: %v", err)
	}
	if _, err := a.file.Write(toolHash[:]); err != nil {
		return ioErrorf("hw2: writing tool key hash: %v", err)
	}
	if _, err := a.file.Seek(156, io.SeekStart); err != nil {
		return ioErrorf("hw2: seeking to root key hash: %v", err)
	}
	if _, err := a.file.Write(rootHash[:]); err != nil {
		return ioErrorf("hw2: writing root key hash: %v", err)
	}

	return a.buildMembers()
}

func (h *hw2ArchiveHeader) archiveNameOr(def string) string {
	if h == nil || h.ArchiveName == "" {
		return def
	}
	return h.ArchiveName
}

// compressHW2Member zlib-compresses data and keeps the compressed form
// only when it is strictly smaller than data, so small or incompressible
// members are stored raw.
func compressHW2Member(data []byte) (stored []byte, compressed bool, err error) {
	if len(data) == 0 {
		return data, false, nil
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, false, err
	}
	if err := zw.Close(); err != nil {
		return nil, false, err
	}
	if buf.Len() < len(data) {
		return buf.Bytes(), true, nil
	}
	return data, false, nil
}
