package btree

import (
	"cmp"
	"io"
	"testing"
)

// memDevice is an in-memory io.ReaderAt backing a hand-built tree image,
// standing in for a real HFS+ fork in these tests.
type memDevice struct{ buf []byte }

func (m *memDevice) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

const testNodeSize = 512

func putNode(buf []byte, nodeNum int, kind int8, height uint8, fLink, bLink uint32, records [][]byte) {
	base := nodeNum * testNodeSize
	nb := buf[base : base+testNodeSize]
	putBE32(nb[0:4], fLink)
	putBE32(nb[4:8], bLink)
	nb[8] = byte(kind)
	nb[9] = height
	putBE16(nb[10:12], uint16(len(records)))

	pos := 14
	offsets := make([]int, len(records))
	for i, r := range records {
		copy(nb[pos:], r)
		offsets[i] = pos
		pos += len(r)
	}
	freeOffset := pos

	// table stored back-to-front: table[0] = freeOffset, ..., table[n] = offsets[0]
	tableStart := testNodeSize - 2*(len(records)+1)
	putBE16(nb[tableStart:tableStart+2], uint16(freeOffset))
	for i, off := range offsets {
		// offsets[len-1-i] in table order corresponds to record i
		tablePos := tableStart + 2*(len(records)-i)
		putBE16(nb[tablePos:tablePos+2], uint16(off))
	}
}

func putBE16(b []byte, v uint16) { b[0] = byte(v >> 8); b[1] = byte(v) }
func putBE32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func putHeaderNode(buf []byte, rootNode uint32, leafRecords uint32, firstLeaf, lastLeaf uint32) {
	rec := make([]byte, 106)
	putBE16(rec[0:2], 1) // tree depth
	putBE32(rec[2:6], rootNode)
	putBE32(rec[6:10], leafRecords)
	putBE32(rec[10:14], firstLeaf)
	putBE32(rec[14:18], lastLeaf)
	putBE16(rec[18:20], testNodeSize)
	putBE16(rec[20:22], 255)
	putBE32(rec[22:26], 8)
	putBE32(rec[26:30], 0)
	putNode(buf, 0, kindHeader, 0, 0, 0, [][]byte{rec})
}

// u32Key is a minimal key type: a 4-byte big-endian integer with no key
// data beyond it, trailed by a small string payload.
func decodeU32Key(record []byte) (uint32, int, error) {
	return be32(record[0:4]), 4, nil
}

func compareU32(a, b uint32) int { return cmp.Compare(a, b) }

func recordFor(key uint32, payload string) []byte {
	b := make([]byte, 4+len(payload))
	putBE32(b[0:4], key)
	copy(b[4:], payload)
	return b
}

func buildSingleLeafTree(t *testing.T, keys []uint32, payloads []string) *memDevice {
	t.Helper()
	buf := make([]byte, 2*testNodeSize)
	recs := make([][]byte, len(keys))
	for i, k := range keys {
		recs[i] = recordFor(k, payloads[i])
	}
	putNode(buf, 1, kindLeaf, 0, 0, 0, recs)
	putHeaderNode(buf, 1, uint32(len(keys)), 1, 1)
	return &memDevice{buf: buf}
}

func TestTreeFindExact(t *testing.T) {
	dev := buildSingleLeafTree(t, []uint32{1, 5, 10, 20}, []string{"a", "b", "c", "d"})
	tree, hdr, err := New[uint32](dev, decodeU32Key, compareU32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if hdr.RootNode != 1 {
		t.Fatalf("RootNode = %d, want 1", hdr.RootNode)
	}

	rec, found, err := tree.Find(10)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !found {
		t.Fatal("expected to find key 10")
	}
	if string(rec) != "c" {
		t.Fatalf("payload = %q, want c", rec)
	}

	_, found, err = tree.Find(99)
	if err != nil {
		t.Fatalf("Find(99): %v", err)
	}
	if found {
		t.Fatal("expected key 99 to be absent")
	}
}

func TestTreeIteratorWalksInOrder(t *testing.T) {
	dev := buildSingleLeafTree(t, []uint32{1, 5, 10, 20}, []string{"a", "b", "c", "d"})
	tree, _, err := New[uint32](dev, decodeU32Key, compareU32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	it, err := tree.FindFirstGE(5)
	if err != nil {
		t.Fatalf("FindFirstGE: %v", err)
	}
	var got []uint32
	for it.Valid() {
		k, err := it.Key()
		if err != nil {
			t.Fatalf("Key: %v", err)
		}
		got = append(got, k)
		if err := it.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	want := []uint32{5, 10, 20}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestParseNodeRejectsBadOffsetTable(t *testing.T) {
	buf := make([]byte, testNodeSize)
	putBE32(buf[0:4], 0)
	putBE32(buf[4:8], 0)
	buf[8] = 0xFF // kindLeaf (-1) as an unsigned byte
	buf[9] = 0
	putBE16(buf[10:12], 1)
	// Corrupt the offset table: put an offset pointing before the
	// descriptor (< 14), which must be rejected.
	tableStart := testNodeSize - 4
	putBE16(buf[tableStart:tableStart+2], 20)
	putBE16(buf[tableStart+2:tableStart+4], 2)

	if _, err := parseNode(buf); err == nil {
		t.Fatal("expected corrupt-node error for an invalid offset table")
	}
}
