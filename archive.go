/*

Package big reads, writes, and inspects the `.big` archive container
family used by the Homeworld game lineage: the original Homeworld 1 and
Classic layouts, Homeworld 2 and its Classic variant, and the Gearbox
stream-cipher-wrapped Homeworld Remastered layout.

A file is opened with Open, which sniffs the format by trying each known
reader in turn (see Detect), or constructed directly with NewHW1,
NewHW2, or NewHWRM when the format is already known. An Archive is then
iterated with Members and individual entries extracted with Open.

*/
package big

import (
	"io"
	"strings"
	"time"
)

// Format identifies one of the concrete container layouts this package
// understands.
type Format int

const (
	FormatUnknown Format = iota
	FormatHW1
	FormatHW1Classic
	FormatHW2
	FormatHWRM
)

func (f Format) String() string {
	switch f {
	case FormatHW1:
		return "hw1"
	case FormatHW1Classic:
		return "hw1c"
	case FormatHW2:
		return "hw2"
	case FormatHWRM:
		return "hwrm"
	default:
		return "unknown"
	}
}

// Member is one logical file stored in an archive. It is immutable once
// produced by an Archive when the archive is opened or saved.
type Member struct {
	name       string
	mtime      time.Time
	realSize   uint32
	storedSize uint32

	// record is an opaque, format-specific back-reference (a *hw1TocEntry
	// or *hw2FileInfoEntry) used by the owning Archive's Open method.
	record interface{}
}

// Name returns the member's forward-slash normalized in-archive path.
func (m *Member) Name() string { return m.name }

// ModTime returns the member's modification time (UTC, second resolution).
func (m *Member) ModTime() time.Time { return m.mtime }

// RealSize returns the uncompressed size of the member's data.
func (m *Member) RealSize() uint32 { return m.realSize }

// StoredSize returns the on-disk size of the member's data.
func (m *Member) StoredSize() uint32 { return m.storedSize }

// Compressed reports whether the member is stored smaller than its real
// size.
func (m *Member) Compressed() bool { return m.storedSize < m.realSize }

// Archive is the common surface every concrete container format
// implements: enumerate members and stream one member's decompressed
// bytes on demand.
type Archive interface {
	// Format reports the concrete container layout.
	Format() Format

	// Members returns every logical entry, in the order the container's
	// table of contents lists them.
	Members() []*Member

	// Open returns a reader over m's decompressed bytes. The member's
	// data is read into memory before Open returns, so the reader stays
	// valid across later calls to Open on the same Archive.
	Open(m *Member) (io.Reader, error)

	// Close releases the archive's underlying byte store.
	Close() error
}

// normalizePath converts an in-archive, backslash-separated path to the
// package's canonical forward-slash form.
func normalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// denormalizePath is normalizePath's inverse, used when writing a path
// back into an archive's on-disk encoding.
func denormalizePath(p string) string {
	return strings.ReplaceAll(p, "/", `\`)
}

// joinPath joins in-archive path segments with the canonical separator,
// skipping empty segments (e.g. a root folder with no name).
func joinPath(segments ...string) string {
	var nonEmpty []string
	for _, s := range segments {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.Join(nonEmpty, "/")
}
