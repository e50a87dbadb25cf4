/*

Package lzss implements the fixed-window LZSS variant used for per-file
compression in the HW1-family `.big` containers: a 4096-byte sliding
window addressed by a 12-bit index, match lengths encoded in 4 bits, and a
binary-tree string index used by the encoder to find the longest prior
match in the window.

The bit-level token stream (1-bit tag, plus either an 8-bit literal or a
12-bit index + 4-bit length) is carried over package bitio.

*/
package lzss

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/icza/hwbig/bitio"
)

// Fixed parameters of the codec. See package doc and spec §4.C.
const (
	IndexBits       = 12
	LengthBits      = 4
	WindowSize      = 1 << IndexBits // 4096
	rawLookAhead    = 1 << LengthBits
	BreakEven       = (1 + IndexBits + LengthBits) / 9 // 1
	LookAheadSize   = rawLookAhead + BreakEven          // 17
	TreeRoot        = WindowSize
	EndOfStream     = 0x000
	unused          = 0
	windowMask      = WindowSize - 1
)

// MinCompressionRatio is the gate applied by callers (e.g. HW1's writer):
// a member is kept compressed only when stored/real falls below this.
const MinCompressionRatio = 0.95

func mod(v int) int { return v & windowMask }

// Compress encodes all bytes read from r into the LZSS bit-stream format
// described in spec §4.C, returning the compressed bytes.
func Compress(r io.Reader) ([]byte, error) {
	var out bytes.Buffer
	if err := CompressStream(r, &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// CompressStream streams the LZSS encoding of r into w.
func CompressStream(r io.Reader, w io.Writer) error {
	var window [WindowSize]byte

	currentPosition := 1
	matchLength := 0
	matchPosition := 0

	lookAheadBytes := 0
	buf := make([]byte, 1)
	for ; lookAheadBytes < LookAheadSize; lookAheadBytes++ {
		n, err := r.Read(buf)
		if n == 0 || err != nil {
			break
		}
		window[currentPosition+lookAheadBytes] = buf[0]
	}

	tree := newTree(currentPosition, &window)
	bw := bitio.NewWriter(w)

	for lookAheadBytes > 0 {
		if matchLength > lookAheadBytes {
			matchLength = lookAheadBytes
		}

		var replaceCount int
		if matchLength <= BreakEven {
			replaceCount = 1
			if err := bw.WriteBit(1); err != nil {
				return err
			}
			if err := bw.WriteBits(uint32(window[currentPosition]), 8); err != nil {
				return err
			}
		} else {
			if err := bw.WriteBit(0); err != nil {
				return err
			}
			if err := bw.WriteBits(uint32(matchPosition), IndexBits); err != nil {
				return err
			}
			if err := bw.WriteBits(uint32(matchLength-(BreakEven+1)), LengthBits); err != nil {
				return err
			}
			replaceCount = matchLength
		}

		for i := 0; i < replaceCount; i++ {
			tree.deleteString(mod(currentPosition + LookAheadSize))

			n, err := r.Read(buf)
			if n == 0 || err != nil {
				lookAheadBytes--
			} else {
				window[mod(currentPosition+LookAheadSize)] = buf[0]
			}

			currentPosition = mod(currentPosition + 1)
			if lookAheadBytes > 0 {
				matchLength, matchPosition = tree.addString(currentPosition, matchPosition)
			}
		}
	}

	if err := bw.WriteBit(0); err != nil {
		return err
	}
	if err := bw.WriteBits(EndOfStream, IndexBits); err != nil {
		return err
	}
	return bw.Flush()
}

// Decompress decodes the LZSS bit-stream read from r until the
// end-of-stream sentinel (or EOF, which is tolerated for a trailing
// partial byte) and returns the decoded bytes.
func Decompress(r io.Reader) ([]byte, error) {
	var out bytes.Buffer
	if err := DecompressStream(r, &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// DecompressStream streams the LZSS decoding of r into w.
func DecompressStream(r io.Reader, w io.Writer) error {
	var window [WindowSize]byte
	currentPosition := 1

	br := bitio.NewReader(r)
	for {
		tag, err := br.ReadBit()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return errors.Wrap(err, "lzss: reading token tag")
		}

		if tag == 1 {
			c, err := br.ReadBits(8)
			if err != nil {
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					return nil
				}
				return errors.Wrap(err, "lzss: reading literal byte")
			}
			if _, err := w.Write([]byte{byte(c)}); err != nil {
				return err
			}
			window[currentPosition] = byte(c)
			currentPosition = mod(currentPosition + 1)
			continue
		}

		index, err := br.ReadBits(IndexBits)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return errors.Wrap(err, "lzss: reading match index")
		}
		if index == EndOfStream {
			return nil
		}
		length, err := br.ReadBits(LengthBits)
		if err != nil {
			return errors.Wrap(err, "lzss: reading match length")
		}
		length += BreakEven

		for i := uint32(0); i <= length; i++ {
			c := window[mod(int(index)+int(i))]
			if _, err := w.Write([]byte{c}); err != nil {
				return err
			}
			window[currentPosition] = c
			currentPosition = mod(currentPosition + 1)
		}
	}
}

// CompressMember applies the compression-ratio gate (spec §4.C): it
// compresses data and returns the compressed form when it is strictly
// smaller by MinCompressionRatio, otherwise it returns data unchanged
// with compressed=false.
func CompressMember(data []byte) (stored []byte, compressed bool, err error) {
	packed, err := Compress(bytes.NewReader(data))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return data, false, nil
	}
	ratio := float64(len(packed)) / float64(len(data))
	if ratio < MinCompressionRatio {
		return packed, true, nil
	}
	return data, false, nil
}

// tree node indices: nodes[TreeRoot] is the sentinel root; nodes[0..WindowSize-1]
// index window positions 1:1.
type node struct {
	parent, smaller, larger int
}

type tree struct {
	nodes  [WindowSize + 1]node
	window *[WindowSize]byte
}

func newTree(rootIdx int, window *[WindowSize]byte) *tree {
	t := &tree{window: window}
	t.nodes[TreeRoot].larger = rootIdx
	t.nodes[rootIdx].parent = TreeRoot
	t.nodes[rootIdx].larger = unused
	t.nodes[rootIdx].smaller = unused
	return t
}

func (t *tree) contractNode(oldNode, newNode int) {
	t.nodes[newNode].parent = t.nodes[oldNode].parent
	parent := t.nodes[oldNode].parent
	if t.nodes[parent].larger == oldNode {
		t.nodes[parent].larger = newNode
	} else {
		t.nodes[parent].smaller = newNode
	}
	t.nodes[oldNode].parent = unused
}

func (t *tree) replaceNode(oldNode, newNode int) {
	parent := t.nodes[oldNode].parent
	if t.nodes[parent].smaller == oldNode {
		t.nodes[parent].smaller = newNode
	} else {
		t.nodes[parent].larger = newNode
	}
	t.nodes[newNode] = t.nodes[oldNode]
	t.nodes[t.nodes[newNode].smaller].parent = newNode
	t.nodes[t.nodes[newNode].larger].parent = newNode
	t.nodes[oldNode].parent = unused
}

func (t *tree) findNextNode(n int) int {
	next := t.nodes[n].smaller
	for t.nodes[next].larger != unused {
		next = t.nodes[next].larger
	}
	return next
}

// deleteString removes a position from the index before its window bytes
// get overwritten by the sliding window.
func (t *tree) deleteString(p int) {
	if t.nodes[p].parent == unused {
		return
	}
	switch {
	case t.nodes[p].larger == unused:
		t.contractNode(p, t.nodes[p].smaller)
	case t.nodes[p].smaller == unused:
		t.contractNode(p, t.nodes[p].larger)
	default:
		replacement := t.findNextNode(p)
		t.deleteString(replacement)
		t.replaceNode(p, replacement)
	}
}

// addString both searches for the longest prefix match of the 17-byte
// suffix starting at newNode and inserts newNode into the tree.
func (t *tree) addString(newNode, matchPosition int) (length, position int) {
	if newNode == EndOfStream {
		return 0, matchPosition
	}

	testNode := t.nodes[TreeRoot].larger
	matchLength := 0
	window := t.window

	for {
		i := 0
		delta := 0
		for ; i < LookAheadSize; i++ {
			delta = int(window[mod(newNode+i)]) - int(window[mod(testNode+i)])
			if delta != 0 {
				break
			}
		}

		if i >= matchLength {
			matchLength = i
			matchPosition = testNode
			if matchLength >= LookAheadSize {
				t.replaceNode(testNode, newNode)
				return matchLength, matchPosition
			}
		}

		larger := delta >= 0
		var child int
		if larger {
			child = t.nodes[testNode].larger
		} else {
			child = t.nodes[testNode].smaller
		}

		if child == unused {
			if larger {
				t.nodes[testNode].larger = newNode
			} else {
				t.nodes[testNode].smaller = newNode
			}
			t.nodes[newNode].parent = testNode
			t.nodes[newNode].larger = unused
			t.nodes[newNode].smaller = unused
			return matchLength, matchPosition
		}
		testNode = child
	}
}
