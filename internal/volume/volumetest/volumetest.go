// Package volumetest builds synthetic in-memory HFS+ volume images for unit
// tests, the same way the teacher's internal/hfs/hfs_test.go fixtures an
// embedded test volume rather than shelling out to a real disk image.
package volumetest

import (
	"encoding/binary"
	"io"

	"github.com/macfs/hfsplus/internal/device"
	"github.com/macfs/hfsplus/internal/volume"
)

// NodeSize is the B-tree node size (and allocation block size) every
// fixture in this package uses.
const NodeSize = 4096

// MemReaderAt is an io.ReaderAt over an in-memory byte slice, standing in
// for a block device.
type MemReaderAt struct{ Buf []byte }

func (m *MemReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.Buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.Buf[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func PutBE16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func PutBE32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func PutBE64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// PutTreeNode writes one B-tree node at the given allocation-block index:
// records back-to-front via the offset table, kind as the node descriptor's
// kind byte (leaf nodes use -1, the header node uses 1), with fLink/bLink
// sibling pointers.
func PutTreeNode(buf []byte, blockNum int, kind int8, fLink, bLink uint32, records [][]byte) {
	base := blockNum * NodeSize
	nb := buf[base : base+NodeSize]
	PutBE32(nb[0:4], fLink)
	PutBE32(nb[4:8], bLink)
	nb[8] = byte(kind)
	nb[9] = 0
	PutBE16(nb[10:12], uint16(len(records)))

	pos := 14
	offsets := make([]int, len(records))
	for i, r := range records {
		copy(nb[pos:], r)
		offsets[i] = pos
		pos += len(r)
	}
	freeOffset := pos
	tableStart := NodeSize - 2*(len(records)+1)
	PutBE16(nb[tableStart:tableStart+2], uint16(freeOffset))
	for i, off := range offsets {
		tablePos := tableStart + 2*(len(records)-i)
		PutBE16(nb[tablePos:tablePos+2], uint16(off))
	}
}

// PutTreeHeaderNode writes a minimal header node (node 0 of a tree) whose
// single header record names rootNode/leafRecords/firstLeaf/lastLeaf.
func PutTreeHeaderNode(buf []byte, blockNum int, rootNode, leafRecords, firstLeaf, lastLeaf uint32) {
	rec := make([]byte, 106)
	PutBE16(rec[0:2], 1)
	PutBE32(rec[2:6], rootNode)
	PutBE32(rec[6:10], leafRecords)
	PutBE32(rec[10:14], firstLeaf)
	PutBE32(rec[14:18], lastLeaf)
	PutBE16(rec[18:20], NodeSize)
	PutBE16(rec[20:22], 255)
	PutBE32(rec[22:26], 8)
	PutTreeNode(buf, blockNum, 1, 0, 0, [][]byte{rec})
}

// CatalogKeyBytes builds a Catalog B-tree key {parent_cnid, name}.
func CatalogKeyBytes(parentCNID uint32, name string) []byte {
	units := []byte(name)
	b := make([]byte, 8+2*len(units))
	PutBE16(b[0:2], uint16(6+2*len(units)))
	PutBE32(b[2:6], parentCNID)
	PutBE16(b[6:8], uint16(len(units)))
	for i, ch := range units {
		PutBE16(b[8+2*i:10+2*i], uint16(ch))
	}
	return b
}

// ThreadRecordBytes builds a folder/file thread record payload.
func ThreadRecordBytes(recType uint16, parentCNID uint32, name string) []byte {
	units := []byte(name)
	b := make([]byte, 8+2*len(units))
	PutBE16(b[0:2], recType)
	PutBE32(b[4:8], parentCNID)
	PutBE16(b[8:10], uint16(len(units)))
	for i, ch := range units {
		PutBE16(b[10+2*i:12+2*i], uint16(ch))
	}
	return b
}

// Header offsets within the 512-byte Volume Header at device offset 1024,
// per SPEC_FULL.md §3's fixed-offset table.
const (
	OffSignature     = 0
	OffAttributes    = 4
	OffBlockSize     = 40
	OffTotalBlocks   = 44
	OffNextCatalogID = 64
	OffFinderInfo    = 80
	OffExtentsFile   = 192
	OffCatalogFile   = 272
)

// ForkData field offsets relative to a ForkData block's start.
const (
	ForkOffLogicalSize = 0
	ForkOffTotalBlocks = 12
	ForkOffExtent0     = 16
)

// Open wraps buf as a device and opens it as a Volume, failing the test via
// the given fail func (ordinarily t.Fatalf) on error.
func Open(buf []byte, fail func(format string, args ...any)) *volume.Volume {
	dev := device.WrapReaderAt(&MemReaderAt{Buf: buf}, NodeSize, device.WithCache(0, 0))
	v, err := volume.Open(dev)
	if err != nil {
		fail("volume.Open: %v", err)
		return nil
	}
	return v
}
