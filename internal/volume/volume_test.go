package volume

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/macfs/hfsplus/internal/device"
)

const testNodeSize = 512

type memReaderAt struct{ buf []byte }

func (m *memReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func putBE16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func putBE32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func putBE64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// putTreeNode writes one nodeSize-byte B-tree node (descriptor, records, and
// the back-to-front record-offset table) at block index blockNum within buf,
// matching internal/btree's on-disk layout expectations.
func putTreeNode(buf []byte, blockNum int, kind int8, fLink, bLink uint32, records [][]byte) {
	base := blockNum * testNodeSize
	nb := buf[base : base+testNodeSize]
	putBE32(nb[0:4], fLink)
	putBE32(nb[4:8], bLink)
	nb[8] = byte(kind)
	nb[9] = 0
	putBE16(nb[10:12], uint16(len(records)))

	pos := 14
	offsets := make([]int, len(records))
	for i, r := range records {
		copy(nb[pos:], r)
		offsets[i] = pos
		pos += len(r)
	}
	freeOffset := pos
	tableStart := testNodeSize - 2*(len(records)+1)
	putBE16(nb[tableStart:tableStart+2], uint16(freeOffset))
	for i, off := range offsets {
		tablePos := tableStart + 2*(len(records)-i)
		putBE16(nb[tablePos:tablePos+2], uint16(off))
	}
}

func putTreeHeaderNode(buf []byte, blockNum int, rootNode, leafRecords, firstLeaf, lastLeaf uint32) {
	rec := make([]byte, 106)
	putBE16(rec[0:2], 1)
	putBE32(rec[2:6], rootNode)
	putBE32(rec[6:10], leafRecords)
	putBE32(rec[10:14], firstLeaf)
	putBE32(rec[14:18], lastLeaf)
	putBE16(rec[18:20], testNodeSize)
	putBE16(rec[20:22], 255)
	putBE32(rec[22:26], 8)
	putBE32(rec[26:30], 0)
	putTreeNode(buf, blockNum, kindHeaderForTest, 0, 0, [][]byte{rec})
}

const kindHeaderForTest = 1
const kindLeafForTest = -1 // 0xFF as int8

func catalogThreadKey(cnid uint32) []byte {
	b := make([]byte, 8)
	putBE16(b[0:2], 6) // key_length: parent_cnid(4) + name_length(2)
	putBE32(b[2:6], cnid)
	putBE16(b[6:8], 0)
	return b
}

func catalogThreadRecord(recordType uint16, parentCNID uint32, name string) []byte {
	units := []byte(name) // ASCII subset: identical to UTF-16BE code units high byte 0
	b := make([]byte, 8+2*len(name))
	putBE16(b[0:2], recordType)
	putBE16(b[2:4], 0)
	putBE32(b[4:8], parentCNID)
	putBE16(b[8:10], uint16(len(name)))
	for i, ch := range units {
		putBE16(b[10+2*i:12+2*i], uint16(ch))
	}
	return b
}

func writeForkData(buf []byte, off int, logicalSize uint64, totalBlocks uint32, extents [8][2]uint32) {
	putBE64(buf[off:off+8], logicalSize)
	putBE32(buf[off+8:off+12], 0) // clump size
	putBE32(buf[off+12:off+16], totalBlocks)
	p := off + 16
	for _, e := range extents {
		putBE32(buf[p:p+4], e[0])
		putBE32(buf[p+4:p+8], e[1])
		p += 8
	}
}

// buildTestVolume lays out a minimal but complete HFS+ image: boot blocks,
// a Volume Header at device offset 1024, a 2-node Extents Overflow tree
// (empty leaf) and a 2-node Catalog tree holding only the root folder's
// thread record, which is all Volume.Open and Volume.Name need.
func buildTestVolume(t *testing.T) *device.Device {
	t.Helper()
	const totalBlocks = 8
	buf := make([]byte, totalBlocks*testNodeSize)

	// The Volume Header occupies block 2 (device offset 1024..1536)
	// exactly, so the trees start at block 4.
	// Extents Overflow fork: blocks 4-5 (node 0 header, node 1 empty leaf).
	putTreeHeaderNode(buf, 4, 1, 0, 1, 1)
	putTreeNode(buf, 5, kindLeafForTest, 0, 0, nil)

	// Catalog fork: blocks 6-7 (node 0 header, node 1 leaf with one record).
	threadKey := catalogThreadKey(CNIDRootFolder)
	threadRec := catalogThreadRecord(3, CNIDRootParent, "TestVolume")
	leafRecord := append(append([]byte{}, threadKey...), threadRec...)
	putTreeHeaderNode(buf, 6, 1, 1, 1, 1)
	putTreeNode(buf, 7, kindLeafForTest, 0, 0, [][]byte{leafRecord})

	hdr := buf[1024 : 1024+512]
	putBE16(hdr[0:2], 0x482B) // "H+"
	putBE16(hdr[2:4], 4)
	putBE32(hdr[4:8], AttrUnmounted)
	putBE32(hdr[40:44], testNodeSize) // block size
	putBE32(hdr[44:48], totalBlocks)
	putBE32(hdr[64:68], CNIDFirstUser) // next catalog ID

	writeForkData(hdr, 192, uint64(2*testNodeSize), 2, [8][2]uint32{{4, 2}}) // ExtentsFile
	writeForkData(hdr, 272, uint64(2*testNodeSize), 2, [8][2]uint32{{6, 2}}) // CatalogFile

	return device.WrapReaderAt(&memReaderAt{buf: buf}, testNodeSize, device.WithCache(0, 0))
}

func TestOpenDecodesHeaderAndTrees(t *testing.T) {
	dev := buildTestVolume(t)
	v, err := Open(dev)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if v.CaseSensitive() {
		t.Fatal("expected a case-insensitive \"H+\" volume")
	}
	if v.BlockSize() != testNodeSize {
		t.Fatalf("BlockSize = %d, want %d", v.BlockSize(), testNodeSize)
	}
	if v.Header().Dirty() {
		t.Fatal("expected a cleanly unmounted volume")
	}

	name, err := v.Name()
	if err != nil {
		t.Fatalf("Name: %v", err)
	}
	if name != "TestVolume" {
		t.Fatalf("Name = %q, want TestVolume", name)
	}
}

func TestOpenRejectsBadSignature(t *testing.T) {
	buf := make([]byte, 4*testNodeSize)
	dev := device.WrapReaderAt(&memReaderAt{buf: buf}, testNodeSize, device.WithCache(0, 0))
	if _, err := Open(dev); err == nil {
		t.Fatal("expected NotHfs for a zeroed image")
	}
}

func TestLocateVolumePlainOffsetZero(t *testing.T) {
	buf := make([]byte, 3*testNodeSize)
	dev := device.WrapReaderAt(&memReaderAt{buf: buf}, testNodeSize, device.WithCache(0, 0))
	off, err := locateVolume(dev)
	if err != nil {
		t.Fatalf("locateVolume: %v", err)
	}
	if off != 0 {
		t.Fatalf("offset = %d, want 0", off)
	}
}

func TestLocateVolumeWrapperWithoutEmbeddedVolume(t *testing.T) {
	buf := make([]byte, 3*testNodeSize)
	mdb := buf[volumeHeaderOffset:]
	putBE16(mdb[0:2], 0x4244) // "BD"
	dev := device.WrapReaderAt(&memReaderAt{buf: buf}, testNodeSize, device.WithCache(0, 0))
	if _, err := locateVolume(dev); err == nil {
		t.Fatal("expected NotHfs for a wrapper with no embedded HFS+ signature")
	}
}

func TestLocateVolumeWrapperWithEmbeddedVolume(t *testing.T) {
	buf := make([]byte, 3*testNodeSize)
	mdb := buf[volumeHeaderOffset:]
	putBE16(mdb[0:2], 0x4244) // "BD"
	putBE32(mdb[20:24], 1024) // drAlBlkSiz
	putBE16(mdb[28:30], 2)    // drAlBlSt, in 512-byte sectors
	putBE16(mdb[124:126], 0x482B)
	putBE16(mdb[126:128], 3) // embedded start block

	dev := device.WrapReaderAt(&memReaderAt{buf: buf}, testNodeSize, device.WithCache(0, 0))
	off, err := locateVolume(dev)
	if err != nil {
		t.Fatalf("locateVolume: %v", err)
	}
	want := int64(2)*512 + int64(3)*1024
	if off != want {
		t.Fatalf("offset = %d, want %d", off, want)
	}
}

func TestCompareCatalogKeyOrdersByParentThenName(t *testing.T) {
	v := &Volume{caseSensitive: false}
	a := CatalogKey{ParentCNID: 2, NameUTF16: []uint16{'a'}}
	b := CatalogKey{ParentCNID: 2, NameUTF16: []uint16{'b'}}
	if v.compareCatalogKey(a, b) >= 0 {
		t.Fatal("expected a < b")
	}
	c := CatalogKey{ParentCNID: 3, NameUTF16: nil}
	if v.compareCatalogKey(a, c) >= 0 {
		t.Fatal("expected parent CNID 2 to sort before parent CNID 3")
	}
}

func TestDecodeExtentRecordStopsAtSentinel(t *testing.T) {
	rec := make([]byte, 8*8)
	putBE32(rec[0:4], 10)
	putBE32(rec[4:8], 5)
	// remaining seven extents left zeroed: the sentinel.
	got, err := decodeExtentRecord(rec)
	if err != nil {
		t.Fatalf("decodeExtentRecord: %v", err)
	}
	if len(got) != 1 || got[0].StartBlock != 10 || got[0].BlockCount != 5 {
		t.Fatalf("got %+v", got)
	}
}
