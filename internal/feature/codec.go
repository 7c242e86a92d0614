package feature

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/geometry"
	"github.com/mapsme/geocore/internal/osmmodel"
)

// All records are little-endian. Strings and slices are uvarint-length
// prefixed. The layout is append-only within a record: readers consume
// fields in write order and must not seek inside a record.

// Encode serialises the builder into buf and returns the extended slice.
func (fb *Builder) Encode(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(fb.ID))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(fb.Class))
	buf = append(buf, uint8(fb.AdminLevel), fb.Rank, uint8(fb.geomKind))
	buf = appendString(buf, fb.PlaceKind)
	buf = appendString(buf, fb.ISOCode)
	buf = appendString(buf, fb.Street)
	buf = appendString(buf, fb.HouseNumber)
	buf = binary.AppendUvarint(buf, uint64(fb.LabelOSMID))
	buf = binary.AppendUvarint(buf, fb.Population)

	locales := make([]string, 0, len(fb.Names))
	for loc := range fb.Names {
		locales = append(locales, loc)
	}
	sort.Strings(locales)
	buf = binary.AppendUvarint(buf, uint64(len(locales)))
	for _, loc := range locales {
		buf = appendString(buf, loc)
		buf = appendString(buf, fb.Names[loc])
	}

	switch fb.geomKind {
	case GeomPoint:
		buf = appendPoint(buf, fb.point)
	case GeomLine:
		buf = appendRing(buf, fb.line)
	case GeomArea:
		buf = appendRing(buf, fb.outer)
		buf = binary.AppendUvarint(buf, uint64(len(fb.holes)))
		for _, h := range fb.holes {
			buf = appendRing(buf, h)
		}
	}
	return buf
}

// Decode parses one encoded record. The input must hold exactly one
// record (the tmp store frames records with a length prefix).
func Decode(buf []byte) (*Builder, error) {
	d := decoder{buf: buf}
	fb := &Builder{Names: make(map[string]string)}

	fb.ID = osmmodel.ObjectID(d.uint64())
	fb.Class = Class(d.uint32())
	fb.AdminLevel = int(d.byte())
	fb.Rank = d.byte()
	kind := GeomKind(d.byte())
	fb.PlaceKind = d.string()
	fb.ISOCode = d.string()
	fb.Street = d.string()
	fb.HouseNumber = d.string()
	fb.LabelOSMID = int64(d.uvarint())
	fb.Population = d.uvarint()

	nameCount := int(d.uvarint())
	for i := 0; i < nameCount && d.err == nil; i++ {
		loc := d.string()
		fb.Names[loc] = d.string()
	}

	switch kind {
	case GeomPoint:
		fb.geomKind = GeomPoint
		fb.point = d.point()
	case GeomLine:
		fb.geomKind = GeomLine
		fb.line = d.ring()
	case GeomArea:
		fb.geomKind = GeomArea
		fb.outer = d.ring()
		holeCount := int(d.uvarint())
		for i := 0; i < holeCount && d.err == nil; i++ {
			fb.holes = append(fb.holes, d.ring())
		}
	}

	if d.err != nil {
		return nil, d.err
	}
	return fb, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendPoint(buf []byte, p geometry.Point) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Lat))
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Lon))
}

func appendRing(buf []byte, ring []geometry.Point) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(ring)))
	for _, p := range ring {
		buf = appendPoint(buf, p)
	}
	return buf
}

type decoder struct {
	buf []byte
	pos int
	err error
}

func (d *decoder) fail() {
	if d.err == nil {
		d.err = errs.Warnf(nil, errs.ErrBadFormat, "truncated feature record at byte %d", d.pos)
	}
}

func (d *decoder) byte() uint8 {
	if d.err != nil || d.pos+1 > len(d.buf) {
		d.fail()
		return 0
	}
	b := d.buf[d.pos]
	d.pos++
	return b
}

func (d *decoder) uint32() uint32 {
	if d.err != nil || d.pos+4 > len(d.buf) {
		d.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v
}

func (d *decoder) uint64() uint64 {
	if d.err != nil || d.pos+8 > len(d.buf) {
		d.fail()
		return 0
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		d.fail()
		return 0
	}
	d.pos += n
	return v
}

func (d *decoder) string() string {
	n := int(d.uvarint())
	if d.err != nil || d.pos+n > len(d.buf) {
		d.fail()
		return ""
	}
	s := string(d.buf[d.pos : d.pos+n])
	d.pos += n
	return s
}

func (d *decoder) point() geometry.Point {
	lat := math.Float64frombits(d.uint64())
	lon := math.Float64frombits(d.uint64())
	return geometry.Point{Lat: lat, Lon: lon}
}

func (d *decoder) ring() []geometry.Point {
	n := int(d.uvarint())
	if d.err != nil || n > (len(d.buf)-d.pos)/16 {
		d.fail()
		return nil
	}
	ring := make([]geometry.Point, n)
	for i := range ring {
		ring[i] = d.point()
	}
	return ring
}
