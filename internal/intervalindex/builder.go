// Package intervalindex builds and queries the on-disk interval index
// over sorted (cell code, object id) pairs. The file is a byte-digit
// trie: a fixed header, a per-level offset table, internal node levels
// in bitmap or list form, and a leaf level of low-order key bytes with
// varint value deltas. Everything is little-endian.
package intervalindex

import (
	"encoding/binary"
	"os"
	"sort"

	"github.com/mapsme/geocore/internal/errs"
)

const (
	// VersionV1 uses 32-bit level offsets; VersionV2 64-bit. V2 is
	// required once the sorted corpus exceeds 4 GB.
	VersionV1 = 1
	VersionV2 = 2

	bitsPerLevel = 8
	trieLevels   = 6
	leafBytes    = 2

	childMaskBytes = (1 << bitsPerLevel) / 8
)

// CellValuePair is the unit fed to the builder.
type CellValuePair struct {
	Cell  uint64
	Value uint64
}

// childSpan is one serialized child of a trie node: the child's key
// prefix and its byte size in the level below.
type childSpan struct {
	prefix uint64
	size   uint64
}

// Build sorts the pairs and writes the index file. Single-threaded: its
// input is the concatenation of per-thread local covers.
func Build(path string, pairs []CellValuePair) error {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Cell != pairs[j].Cell {
			return pairs[i].Cell < pairs[j].Cell
		}
		return pairs[i].Value < pairs[j].Value
	})

	levels := buildLevels(pairs)

	var total uint64
	for _, l := range levels {
		total += uint64(len(l))
	}
	version := byte(VersionV1)
	if total > 1<<32-1 {
		version = VersionV2
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return errs.Fatalf(err, errs.ErrIO, "open interval index %s", path)
	}
	defer f.Close()

	header := []byte{version, bitsPerLevel, trieLevels, leafBytes}
	// offset table: start of each level block relative to the end of
	// the header, root level first, leaf level last, end sentinel after
	offsets := make([]uint64, len(levels)+1)
	var acc uint64
	for i, l := range levels {
		offsets[i] = acc
		acc += uint64(len(l))
	}
	offsets[len(levels)] = acc

	for _, off := range offsets {
		if version == VersionV1 {
			header = binary.LittleEndian.AppendUint32(header, uint32(off))
		} else {
			header = binary.LittleEndian.AppendUint64(header, off)
		}
	}
	if _, err := f.Write(header); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "write interval index header %s", path)
	}
	for _, l := range levels {
		if _, err := f.Write(l); err != nil {
			return errs.Fatalf(err, errs.ErrIO, "write interval index level %s", path)
		}
	}
	return nil
}

// buildLevels serialises the trie bottom-up. Index 0 is the root level,
// index trieLevels is the leaf level.
func buildLevels(pairs []CellValuePair) [][]byte {
	levels := make([][]byte, trieLevels+1)

	// leaf level: one run per distinct trie prefix; each pair stores
	// its low key bytes and a zigzag delta from the previous value in
	// the run
	var spans []childSpan
	leaf := make([]byte, 0, len(pairs)*4)
	for i := 0; i < len(pairs); {
		prefix := pairs[i].Cell >> (bitsPerLevel * leafBytes)
		runStart := len(leaf)
		var prevValue uint64
		for ; i < len(pairs) && pairs[i].Cell>>(bitsPerLevel*leafBytes) == prefix; i++ {
			low := pairs[i].Cell & (1<<(bitsPerLevel*leafBytes) - 1)
			var lowBuf [leafBytes]byte
			binary.LittleEndian.PutUint16(lowBuf[:], uint16(low))
			leaf = append(leaf, lowBuf[:]...)
			leaf = binary.AppendVarint(leaf, int64(pairs[i].Value)-int64(prevValue))
			prevValue = pairs[i].Value
		}
		spans = append(spans, childSpan{prefix: prefix, size: uint64(len(leaf) - runStart)})
	}
	levels[trieLevels] = leaf

	// internal levels, deepest first: group spans by the parent prefix
	// and emit one node per parent
	for level := trieLevels - 1; level >= 0; level-- {
		var nodeBuf []byte
		var nextSpans []childSpan
		var childOffset uint64
		for i := 0; i < len(spans); {
			nodePrefix := spans[i].prefix >> bitsPerLevel
			nodeStart := len(nodeBuf)
			nodeBaseOffset := childOffset

			var children []childSpan
			for ; i < len(spans) && spans[i].prefix>>bitsPerLevel == nodePrefix; i++ {
				children = append(children, spans[i])
				childOffset += spans[i].size
			}
			nodeBuf = appendNode(nodeBuf, nodeBaseOffset, children)
			nextSpans = append(nextSpans, childSpan{
				prefix: nodePrefix,
				size:   uint64(len(nodeBuf) - nodeStart),
			})
		}
		levels[level] = nodeBuf
		spans = nextSpans
	}
	return levels
}

// appendNode emits the node in whichever of the two forms is shorter.
//
// Bitmap form: varint((offset<<1)|1), a 2^bitsPerLevel/8-byte mask of
// non-empty children, then varint child sizes in mask order.
//
// List form: varint((offset<<1)|0), varint(childCount), then per child
// (digit uint8, varint size).
func appendNode(buf []byte, offset uint64, children []childSpan) []byte {
	bitmap := make([]byte, 0, childMaskBytes+16)
	bitmap = binary.AppendUvarint(bitmap, offset<<1|1)
	var mask [childMaskBytes]byte
	for _, c := range children {
		digit := byte(c.prefix & (1<<bitsPerLevel - 1))
		mask[digit/8] |= 1 << (digit % 8)
	}
	bitmap = append(bitmap, mask[:]...)
	for _, c := range children {
		bitmap = binary.AppendUvarint(bitmap, c.size)
	}

	list := make([]byte, 0, len(children)*3+8)
	list = binary.AppendUvarint(list, offset<<1|0)
	list = binary.AppendUvarint(list, uint64(len(children)))
	for _, c := range children {
		list = append(list, byte(c.prefix&(1<<bitsPerLevel-1)))
		list = binary.AppendUvarint(list, c.size)
	}

	if len(bitmap) < len(list) {
		return append(buf, bitmap...)
	}
	return append(buf, list...)
}
