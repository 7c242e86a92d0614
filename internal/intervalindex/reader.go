package intervalindex

import (
	"encoding/binary"
	"math/bits"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/mapsme/geocore/internal/errs"
)

// Reader queries a built index through a read-only mapping.
type Reader struct {
	file    *os.File
	mm      mmap.MMap
	data    []byte
	version byte
	// absolute byte offsets of each level block, root first, leaf
	// last, then the end sentinel
	levelOffsets []uint64
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Fatalf(err, errs.ErrIO, "open interval index %s", path)
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errs.Fatalf(err, errs.ErrIO, "mmap interval index %s", path)
	}
	r := &Reader{file: f, mm: mm, data: mm}
	if err := r.parseHeader(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) parseHeader() error {
	if len(r.data) < 4 {
		return errs.Fatalf(nil, errs.ErrBadFormat, "interval index %s too short", r.file.Name())
	}
	r.version = r.data[0]
	if r.version != VersionV1 && r.version != VersionV2 {
		return errs.Fatalf(nil, errs.ErrUnsupportedVersion,
			"interval index %s has version %d", r.file.Name(), r.version)
	}
	if r.data[1] != bitsPerLevel || r.data[2] != trieLevels || r.data[3] != leafBytes {
		return errs.Fatalf(nil, errs.ErrBadFormat,
			"interval index %s has layout (%d,%d,%d), want (%d,%d,%d)",
			r.file.Name(), r.data[1], r.data[2], r.data[3], bitsPerLevel, trieLevels, leafBytes)
	}
	entrySize := 4
	if r.version == VersionV2 {
		entrySize = 8
	}
	tableLen := (trieLevels + 2) * entrySize
	if len(r.data) < 4+tableLen {
		return errs.Fatalf(nil, errs.ErrBadFormat, "interval index %s header truncated", r.file.Name())
	}
	base := uint64(4 + tableLen)
	r.levelOffsets = make([]uint64, trieLevels+2)
	for i := range r.levelOffsets {
		if r.version == VersionV1 {
			r.levelOffsets[i] = base + uint64(binary.LittleEndian.Uint32(r.data[4+i*entrySize:]))
		} else {
			r.levelOffsets[i] = base + binary.LittleEndian.Uint64(r.data[4+i*entrySize:])
		}
	}
	return nil
}

func (r *Reader) Close() error {
	if r.mm != nil {
		r.mm.Unmap()
		r.mm = nil
	}
	return r.file.Close()
}

// node is the parsed form of one internal trie node.
type node struct {
	offset uint64 // base offset of the first child within the next level
	digits []byte
	sizes  []uint64
}

func (r *Reader) parseNode(buf []byte) (node, error) {
	var n node
	v, consumed := binary.Uvarint(buf)
	if consumed <= 0 {
		return n, errs.Fatalf(nil, errs.ErrBadFormat, "bad trie node in %s", r.file.Name())
	}
	n.offset = v >> 1
	buf = buf[consumed:]

	if v&1 == 1 { // bitmap form
		if len(buf) < childMaskBytes {
			return n, errs.Fatalf(nil, errs.ErrBadFormat, "truncated node mask in %s", r.file.Name())
		}
		mask := buf[:childMaskBytes]
		buf = buf[childMaskBytes:]
		for d := 0; d < 1<<bitsPerLevel; d++ {
			if mask[d/8]&(1<<(d%8)) == 0 {
				continue
			}
			size, consumed := binary.Uvarint(buf)
			if consumed <= 0 {
				return n, errs.Fatalf(nil, errs.ErrBadFormat, "truncated node sizes in %s", r.file.Name())
			}
			buf = buf[consumed:]
			n.digits = append(n.digits, byte(d))
			n.sizes = append(n.sizes, size)
		}
		return n, nil
	}

	count, consumed := binary.Uvarint(buf)
	if consumed <= 0 {
		return n, errs.Fatalf(nil, errs.ErrBadFormat, "truncated node list in %s", r.file.Name())
	}
	buf = buf[consumed:]
	for i := uint64(0); i < count; i++ {
		if len(buf) < 1 {
			return n, errs.Fatalf(nil, errs.ErrBadFormat, "truncated node entry in %s", r.file.Name())
		}
		digit := buf[0]
		buf = buf[1:]
		size, consumed := binary.Uvarint(buf)
		if consumed <= 0 {
			return n, errs.Fatalf(nil, errs.ErrBadFormat, "truncated node entry in %s", r.file.Name())
		}
		buf = buf[consumed:]
		n.digits = append(n.digits, digit)
		n.sizes = append(n.sizes, size)
	}
	return n, nil
}

// child locates digit inside the node: its byte range in the next level
// relative to that level's start.
func (n *node) child(digit byte) (start, size uint64, ok bool) {
	off := n.offset
	for i, d := range n.digits {
		if d == digit {
			return off, n.sizes[i], true
		}
		off += n.sizes[i]
	}
	return 0, 0, false
}

// keyDigit extracts the i-th byte digit (0 = most significant).
func keyDigit(key uint64, i int) byte {
	return byte(key >> (bitsPerLevel * (trieLevels + leafBytes - 1 - i)))
}

// ForEachAtKey walks root to leaf for one exact cell code and yields
// every value stored under it.
func (r *Reader) ForEachAtKey(key uint64, fn func(value uint64)) error {
	start := r.levelOffsets[0]
	size := r.levelOffsets[1] - start
	if size == 0 {
		return nil
	}
	for level := 0; level < trieLevels; level++ {
		n, err := r.parseNode(r.data[start : start+size])
		if err != nil {
			return err
		}
		childStart, childSize, ok := n.child(keyDigit(key, level))
		if !ok {
			return nil
		}
		start = r.levelOffsets[level+1] + childStart
		size = childSize
	}
	target := uint16(key & (1<<(bitsPerLevel*leafBytes) - 1))
	return r.scanLeafRun(r.data[start:start+size], func(low uint16, value uint64) {
		if low == target {
			fn(value)
		}
	})
}

// ForEachInRange enumerates every (cell, value) pair with beg <= cell <=
// end.
func (r *Reader) ForEachInRange(beg, end uint64, fn func(cell, value uint64)) error {
	start := r.levelOffsets[0]
	size := r.levelOffsets[1] - start
	if size == 0 {
		return nil
	}
	return r.rangeWalk(0, 0, start, size, beg, end, fn)
}

func (r *Reader) rangeWalk(level int, prefix uint64, start, size uint64, beg, end uint64,
	fn func(cell, value uint64)) error {

	if level == trieLevels {
		return r.scanLeafRun(r.data[start:start+size], func(low uint16, value uint64) {
			cell := prefix<<(bitsPerLevel*leafBytes) | uint64(low)
			if cell >= beg && cell <= end {
				fn(cell, value)
			}
		})
	}

	n, err := r.parseNode(r.data[start : start+size])
	if err != nil {
		return err
	}
	remBits := uint(bitsPerLevel * (trieLevels + leafBytes - 1 - level))
	off := n.offset
	for i, d := range n.digits {
		childPrefix := prefix<<bitsPerLevel | uint64(d)
		lo := childPrefix << remBits
		hi := lo | (1<<remBits - 1)
		if hi >= beg && lo <= end {
			childStart := r.levelOffsets[level+1] + off
			if err := r.rangeWalk(level+1, childPrefix, childStart, n.sizes[i], beg, end, fn); err != nil {
				return err
			}
		}
		off += n.sizes[i]
	}
	return nil
}

func (r *Reader) scanLeafRun(buf []byte, fn func(low uint16, value uint64)) error {
	var prev uint64
	for len(buf) > 0 {
		if len(buf) < leafBytes {
			return errs.Fatalf(nil, errs.ErrBadFormat, "truncated leaf run in %s", r.file.Name())
		}
		low := binary.LittleEndian.Uint16(buf)
		buf = buf[leafBytes:]
		delta, consumed := binary.Varint(buf)
		if consumed <= 0 {
			return errs.Fatalf(nil, errs.ErrBadFormat, "truncated leaf delta in %s", r.file.Name())
		}
		buf = buf[consumed:]
		value := uint64(int64(prev) + delta)
		prev = value
		fn(low, value)
	}
	return nil
}

// AncestorKeys lists the cell codes of a leaf code's ancestors, the leaf
// itself first and the root last. A point query runs ForEachAtKey over
// these: every covering cell containing the point is one of them.
func AncestorKeys(leafCode uint64) []uint64 {
	// the marker bit position gives the level; walking up repeatedly
	// clears two path bits and moves the marker
	keys := []uint64{leafCode}
	code := leafCode
	for bits.TrailingZeros64(code) < 60 {
		lsb := code & (^code + 1)
		code = (code &^ (lsb<<3 - 1)) | lsb<<2
		keys = append(keys, code)
	}
	return keys
}
