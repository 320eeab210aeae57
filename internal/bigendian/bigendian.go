// Package bigendian decodes the big-endian fixed-layout records used
// throughout the HFS+ on-disk format.
//
// Rather than the teacher repository's call-site pattern of
// binary.BigEndian.Uint32(buf[off:]) sprinkled through the code, this
// package expresses "decode this struct big-endian" as a typed schema: a
// Cursor tracks position and a sticky error, and Decode walks a struct's
// fields by reflection, so a truncated buffer is caught once instead of at
// every field access.
package bigendian

import (
	"reflect"

	"github.com/macfs/hfsplus/internal/hfserr"
)

// Cursor is a bounds-checked reader over a fixed byte slice. Once any read
// runs past the end of buf, every subsequent read returns zero and Err
// becomes non-nil; callers check Err once after a batch of reads, the same
// shape as the teacher's "n != len(buf)" checks after each 512-byte node
// fetch.
type Cursor struct {
	buf []byte
	pos int
	err error
}

// NewCursor wraps buf for sequential decoding starting at offset 0.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Err returns the first out-of-bounds error encountered, if any.
func (c *Cursor) Err() error { return c.err }

// Pos returns the current read offset.
func (c *Cursor) Pos() int { return c.pos }

// Seek repositions the cursor to an absolute offset within buf.
func (c *Cursor) Seek(off int) {
	if off < 0 || off > len(c.buf) {
		c.err = hfserr.New(hfserr.Truncated, "bigendian.Seek", "")
		return
	}
	c.pos = off
}

func (c *Cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.pos+n > len(c.buf) || n < 0 {
		c.err = hfserr.New(hfserr.Truncated, "bigendian.read", "")
		return nil
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b
}

// U8 reads one byte.
func (c *Cursor) U8() uint8 {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// U16 reads a big-endian uint16.
func (c *Cursor) U16() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

// U32 reads a big-endian uint32.
func (c *Cursor) U32() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// U64 reads a big-endian uint64.
func (c *Cursor) U64() uint64 {
	hi := uint64(c.U32())
	lo := uint64(c.U32())
	return hi<<32 | lo
}

// Bytes reads n raw bytes.
func (c *Cursor) Bytes(n int) []byte {
	b := c.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Skip advances the cursor by n bytes without interpreting them.
func (c *Cursor) Skip(n int) {
	c.take(n)
}

// Decode walks the exported fields of the struct pointed to by dst, in
// declaration order, reading a big-endian value of the matching width for
// each uint8/uint16/uint32/uint64 field and a byte slice for each
// fixed-size [N]byte field. It handles only such flat layouts: any other
// field kind (a nested struct, an array of wider integers) panics. The
// volume header and catalog decoders in this module read their records
// field by field through a Cursor and do not call Decode.
func Decode(c *Cursor, dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		panic("bigendian.Decode: dst must be a pointer to struct")
	}
	s := v.Elem()
	t := s.Type()
	for i := 0; i < s.NumField(); i++ {
		field := s.Field(i)
		if !field.CanSet() {
			continue
		}
		switch field.Kind() {
		case reflect.Uint8:
			field.SetUint(uint64(c.U8()))
		case reflect.Uint16:
			field.SetUint(uint64(c.U16()))
		case reflect.Uint32:
			field.SetUint(uint64(c.U32()))
		case reflect.Uint64:
			field.SetUint(uint64(c.U64()))
		case reflect.Array:
			elemType := t.Field(i).Type.Elem()
			if elemType.Kind() != reflect.Uint8 {
				panic("bigendian.Decode: unsupported array element type " + elemType.String())
			}
			n := field.Len()
			b := c.Bytes(n)
			for j := 0; j < n && j < len(b); j++ {
				field.Index(j).SetUint(uint64(b[j]))
			}
		default:
			panic("bigendian.Decode: unsupported field kind " + field.Kind().String())
		}
	}
	return c.Err()
}
