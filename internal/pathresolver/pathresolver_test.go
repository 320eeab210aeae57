package pathresolver

import (
	"encoding/binary"
	"io"
	"sync"
	"testing"

	"github.com/macfs/hfsplus/internal/catalog"
	"github.com/macfs/hfsplus/internal/device"
	"github.com/macfs/hfsplus/internal/volume"
)

const testNodeSize = 4096

const (
	recTypeFolder       uint16 = 1
	recTypeFile         uint16 = 2
	recTypeFolderThread uint16 = 3
)

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
	putTreeNode(buf, blockNum, 1, 0, 0, [][]byte{rec})
}

func catalogKeyBytes(parentCNID uint32, name string) []byte {
	units := []byte(name)
	b := make([]byte, 8+2*len(units))
	putBE16(b[0:2], uint16(6+2*len(units)))
	putBE32(b[2:6], parentCNID)
	putBE16(b[6:8], uint16(len(units)))
	for i, ch := range units {
		putBE16(b[8+2*i:10+2*i], uint16(ch))
	}
	return b
}

func threadRecordBytes(recType uint16, parentCNID uint32, name string) []byte {
	units := []byte(name)
	b := make([]byte, 8+2*len(units))
	putBE16(b[0:2], recType)
	putBE16(b[2:4], 0)
	putBE32(b[4:8], parentCNID)
	putBE16(b[8:10], uint16(len(units)))
	for i, ch := range units {
		putBE16(b[10+2*i:12+2*i], uint16(ch))
	}
	return b
}

func folderRecordBytes(cnid uint32) []byte {
	b := make([]byte, 2+2+4+4+20+16+16+16+4)
	putBE16(b[0:2], recTypeFolder)
	putBE32(b[8:12], cnid)
	return b
}

// fileRecordBytes builds a File catalog record. special is the permissions
// block's union field (an inode number for a hard-link sentinel).
func fileRecordBytes(cnid uint32, userInfoType, userInfoCreator string, special uint32) []byte {
	b := make([]byte, 2+2+4+4+20+16+16+16+4+4+80+80)
	putBE16(b[0:2], recTypeFile)
	putBE32(b[8:12], cnid)
	putBE32(b[44:48], special) // permissions.Special: offset 32 (permissions start) + 12
	ui := b[48:64]
	copy(ui[0:4], userInfoType)
	copy(ui[4:8], userInfoCreator)
	return b
}

type entry struct {
	parentCNID uint32
	name       string
	record     []byte
}

// buildTestVolume lays out a small catalog: root (2) holding "afile.txt",
// "hlink.txt" (file-hardlink stub, inode 99), "dirlink" (dir-hardlink stub,
// inode 77), and folder "sub" (20) holding "nested.txt"; plus the private
// hard-link directories (30 for files, 31 for folders) the volume header's
// finder-info words point at.
func buildTestVolume(t *testing.T) *volume.Volume {
	t.Helper()
	const totalBlocks = 16
	buf := make([]byte, totalBlocks*testNodeSize)

	entries := []entry{
		{1, "Root", folderRecordBytes(2)},
		{2, "", threadRecordBytes(recTypeFolderThread, volume.CNIDRootParent, "Root")},
		{2, "afile.txt", fileRecordBytes(21, "TEXT", "doNE", 0)},
		{2, "dirlink", fileRecordBytes(24, "fdrp", "MACS", 77)},
		{2, "hlink.txt", fileRecordBytes(23, "hlnk", "hfs+", 99)},
		{2, "sub", folderRecordBytes(20)},
		{20, "nested.txt", fileRecordBytes(22, "TEXT", "doNE", 0)},
		{30, "iNode99", fileRecordBytes(40, "TEXT", "doNE", 0)},
		{31, "dir_77", folderRecordBytes(50)},
	}

	leafRecords := make([][]byte, len(entries))
	for i, e := range entries {
		leafRecords[i] = append(append([]byte{}, catalogKeyBytes(e.parentCNID, e.name)...), e.record...)
	}

	putTreeHeaderNode(buf, 8, 1, 0, 1, 1)
	putTreeNode(buf, 9, -1, 0, 0, nil)

	putTreeHeaderNode(buf, 10, 1, uint32(len(leafRecords)), 1, 1)
	putTreeNode(buf, 11, -1, 0, 0, leafRecords)

	hdr := buf[1024 : 1024+512]
	putBE16(hdr[0:2], 0x482B)
	putBE16(hdr[2:4], 4)
	putBE32(hdr[4:8], 0x100) // AttrUnmounted
	putBE32(hdr[40:44], testNodeSize)
	putBE32(hdr[44:48], totalBlocks)
	putBE32(hdr[64:68], 16)
	// finder-info words live at header offset 80 (after encodingsBitmap,
	// 8 x u32); word[3] and word[5] name the private hard-link metadata
	// directories.
	const finderInfoOff = 80
	putBE32(hdr[finderInfoOff+3*4:finderInfoOff+4*4], 30)
	putBE32(hdr[finderInfoOff+5*4:finderInfoOff+6*4], 31)

	putBE64(hdr[192:200], uint64(2*testNodeSize))
	putBE32(hdr[200:204], 0)
	putBE32(hdr[204:208], 2)
	putBE32(hdr[208:212], 8)
	putBE32(hdr[212:216], 2)

	putBE64(hdr[272:280], uint64(2*testNodeSize))
	putBE32(hdr[280:284], 0)
	putBE32(hdr[284:288], 2)
	putBE32(hdr[288:292], 10)
	putBE32(hdr[292:296], 2)

	dev := device.WrapReaderAt(&memReaderAt{buf: buf}, testNodeSize, device.WithCache(0, 0))
	v, err := volume.Open(dev)
	if err != nil {
		t.Fatalf("volume.Open: %v", err)
	}
	return v
}

func newTestResolver(t *testing.T) *Resolver {
	v := buildTestVolume(t)
	return New(catalog.New(v))
}

func TestResolveNestedFile(t *testing.T) {
	r := newTestResolver(t)
	res, err := r.Resolve("sub/nested.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Record.File == nil || res.Record.File.CNID != 22 {
		t.Fatalf("got %+v", res.Record)
	}
	if res.Resource {
		t.Fatal("did not expect the resource-fork flag set")
	}
}

func TestResolveFileHardlink(t *testing.T) {
	r := newTestResolver(t)
	res, err := r.Resolve("hlink.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Record.File == nil || res.Record.File.CNID != 40 {
		t.Fatalf("expected the resolved hardlink target (cnid 40), got %+v", res.Record.File)
	}
}

func TestResolveDirHardlink(t *testing.T) {
	r := newTestResolver(t)
	res, err := r.Resolve("dirlink")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Record.Folder == nil || res.Record.Folder.CNID != 50 {
		t.Fatalf("expected the resolved directory hardlink target (cnid 50), got %+v", res.Record)
	}
}

func TestResolveResourceForkSuffix(t *testing.T) {
	r := newTestResolver(t)
	res, err := r.Resolve("afile.txt/rsrc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Resource {
		t.Fatal("expected the resource-fork flag set")
	}
	if res.Record.File == nil || res.Record.File.CNID != 21 {
		t.Fatalf("got %+v", res.Record)
	}
}

func TestResolveResourceForkOfDirectoryFails(t *testing.T) {
	r := newTestResolver(t)
	if _, err := r.Resolve("sub/rsrc"); err == nil {
		t.Fatal("expected an error resolving a resource fork of a directory")
	}
}

func TestResolveIntermediateNonFolderFails(t *testing.T) {
	r := newTestResolver(t)
	if _, err := r.Resolve("afile.txt/nested.txt"); err == nil {
		t.Fatal("expected NotADirectory descending through a file")
	}
}

func TestResolveMissingFails(t *testing.T) {
	r := newTestResolver(t)
	if _, err := r.Resolve("nope.txt"); err == nil {
		t.Fatal("expected NotFound")
	}
}

func TestResolveCachesNonResourceLookups(t *testing.T) {
	r := newTestResolver(t)
	first, err := r.Resolve("sub/nested.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := r.cache.lookup("sub/nested.txt"); !ok {
		t.Fatal("expected the lookup to have been cached")
	}
	second, err := r.Resolve("sub/nested.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.Record.File.CNID != second.Record.File.CNID {
		t.Fatalf("cached result diverged: %+v vs %+v", first, second)
	}
}

func TestResolveDoesNotCacheResourceForkLookups(t *testing.T) {
	r := newTestResolver(t)
	if _, err := r.Resolve("afile.txt/rsrc"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := r.cache.lookup("afile.txt/rsrc"); ok {
		t.Fatal("resource-fork lookups must not be cached")
	}
}

// TestResolveConcurrentLookupsAreLinearizable exercises spec.md §8's
// "concurrent lookups of the same path from N threads return bitwise-equal
// records" invariant against the ring cache's reader-writer lock.
func TestResolveConcurrentLookupsAreLinearizable(t *testing.T) {
	r := newTestResolver(t)
	const n = 32
	var wg sync.WaitGroup
	results := make([]*Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve("sub/nested.txt")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
		if results[i].Record.File.CNID != 22 {
			t.Fatalf("goroutine %d: got CNID %d, want 22", i, results[i].Record.File.CNID)
		}
	}
}
