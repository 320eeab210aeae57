// Package btree implements the generic read side of an HFS+ B-tree: node
// decoding, leaf iteration, and key lookup. The catalog, extents overflow,
// and attributes trees are all instances of this same on-disk structure,
// differing only in key and record layout, so the type parameter K
// (decoded key) lets internal/volume open the Catalog and Extents Overflow
// trees on one engine; records are returned as raw bytes past the key for
// callers such as internal/catalog to decode, the way the teacher's
// parseBTree / parseBNode pair is itself reused across its one tree kind.
package btree

import (
	"io"

	"github.com/macfs/hfsplus/internal/hfserr"
)

// nodeKind mirrors the BTNodeDescriptor.kind values from spec.md §3. The
// on-disk byte 0xFF for a leaf node is the signed value -1, so these are
// typed int8 rather than the raw hex byte.
const (
	kindLeaf   int8 = -1
	kindIndex  int8 = 0
	kindHeader int8 = 1
	kindMap    int8 = 2
)

// node is one decoded B-tree node: its kind, its height, and its records as
// raw byte slices (key+data still packed together; callers decode with
// their own KeyFunc/RecordFunc).
type node struct {
	kind    int8
	height  uint8
	fLink   uint32
	bLink   uint32
	records [][]byte
}

// KeyFunc decodes a node record's leading bytes into a typed key and
// reports how many bytes the key occupied, so the caller can locate the
// start of the trailing data payload (for leaf nodes) or the child node
// number (for index nodes).
type KeyFunc[K any] func(record []byte) (key K, keyLen int, err error)

// Tree is a read-only handle onto one HFS+ B-tree (catalog, extents
// overflow, or attributes). Reads go through src, which is expected to
// already be scoped to the fork's bytes (internal/extents.ForkReader
// satisfies io.ReaderAt directly).
type Tree[K any] struct {
	src        io.ReaderAt
	nodeSize   int
	rootNode   uint32
	compare    func(a, b K) int
	decodeKey  KeyFunc[K]
}

// Header carries the B-tree header node fields a caller needs to validate
// and drive traversal (spec.md §3 BTHeaderRec).
type Header struct {
	TreeDepth    uint16
	RootNode     uint32
	LeafRecords  uint32
	FirstLeafNode uint32
	LastLeafNode uint32
	NodeSize     uint16
	MaxKeyLength uint16
	TotalNodes   uint32
	FreeNodes    uint32
}

// New builds a Tree from its fork reader, a key decoder, and a key
// comparison function. It reads and validates the header node (node 0)
// immediately, the way the teacher's parseBTree inspects node 0 before
// trusting anything else in the tree.
//
// Node 0's header record is decoded directly at its fixed offset (14 bytes
// of descriptor, then the header record itself) rather than through
// parseNode's generic offset-table logic: the configured node size — which
// parseNode needs to locate that table — is itself one of the header
// record's fields, so bootstrapping reads only the guaranteed-minimum
// first 512 bytes that every HFS+ B-tree node occupies at least.
func New[K any](src io.ReaderAt, decodeKey KeyFunc[K], compare func(a, b K) int) (*Tree[K], *Header, error) {
	buf := make([]byte, 512)
	if _, err := io.ReadFull(io.NewSectionReader(src, 0, 512), buf); err != nil {
		return nil, nil, hfserr.Wrap(hfserr.Io, "btree.New", "", err)
	}
	if int8(buf[8]) != kindHeader {
		return nil, nil, hfserr.New(hfserr.Corrupt, "btree.New", "node 0 is not a header node")
	}
	hb := buf[14:]
	if len(hb) < 106 {
		return nil, nil, hfserr.New(hfserr.Corrupt, "btree.New", "header record too short")
	}
	h := &Header{
		TreeDepth:     be16(hb[0:2]),
		RootNode:      be32(hb[2:6]),
		LeafRecords:   be32(hb[6:10]),
		FirstLeafNode: be32(hb[10:14]),
		LastLeafNode:  be32(hb[14:18]),
		NodeSize:      be16(hb[18:20]),
		MaxKeyLength:  be16(hb[20:22]),
		TotalNodes:    be32(hb[22:26]),
		FreeNodes:     be32(hb[26:30]),
	}
	if h.NodeSize == 0 || h.NodeSize&(h.NodeSize-1) != 0 {
		return nil, nil, hfserr.New(hfserr.Corrupt, "btree.New", "node size not a power of two")
	}

	t := &Tree[K]{
		src:       src,
		nodeSize:  int(h.NodeSize),
		rootNode:  h.RootNode,
		compare:   compare,
		decodeKey: decodeKey,
	}
	return t, h, nil
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// readNode fetches and parses node number n, sized nodeSize bytes, applying
// the same bounds/monotonicity checks on the record-offset table the
// teacher's parseBNode uses to reject a corrupt or adversarial node.
func readNode(src io.ReaderAt, nodeSize, n int) (*node, error) {
	buf := make([]byte, nodeSize)
	if _, err := io.ReadFull(io.NewSectionReader(src, int64(n)*int64(nodeSize), int64(nodeSize)), buf); err != nil {
		return nil, hfserr.Wrap(hfserr.Io, "btree.readNode", "", err)
	}
	return parseNode(buf)
}

// parseNode decodes a single raw node buffer: the 14-byte BTNodeDescriptor
// followed by numRecords records located via a big-endian offset table at
// the tail of the buffer, strictly increasing toward the front (the table
// itself grows backward from the end of the node, one entry per record
// plus a sentinel trailing past the last record's end).
func parseNode(buf []byte) (*node, error) {
	if len(buf) < 14 {
		return nil, hfserr.New(hfserr.Corrupt, "btree.parseNode", "node shorter than descriptor")
	}
	fLink := be32(buf[0:4])
	bLink := be32(buf[4:8])
	kind := int8(buf[8])
	height := buf[9]
	numRecords := int(be16(buf[10:12]))

	n := &node{kind: kind, height: height, fLink: fLink, bLink: bLink}
	if numRecords == 0 {
		return n, nil
	}

	offTableStart := len(buf) - 2*(numRecords+1)
	if offTableStart < 14 {
		return nil, hfserr.New(hfserr.Corrupt, "btree.parseNode", "offset table overlaps descriptor")
	}

	offsets := make([]int, numRecords+1)
	for i := 0; i <= numRecords; i++ {
		offsets[i] = int(be16(buf[offTableStart+2*i : offTableStart+2*i+2]))
	}

	// offsets[0] (stored at the lowest address, right after the records) is
	// the free-space boundary past the last record; offsets[numRecords] is
	// record 0's start (== 14, right after the descriptor). Reading toward
	// higher table addresses must strictly decrease the stored value, or
	// the node is corrupt.
	lowLimit := 14
	highLimit := offTableStart
	prev := highLimit + 1
	for i := 0; i <= numRecords; i++ {
		off := offsets[i]
		if off < lowLimit || off > highLimit || off >= prev {
			return nil, hfserr.New(hfserr.Corrupt, "btree.parseNode", "bad record offset table")
		}
		prev = off
	}

	// recOff[i] is record i's start offset, recOff[numRecords] is the
	// free-space boundary ending the last record — the reverse of the
	// on-disk table order.
	recOff := make([]int, numRecords+1)
	for i := 0; i <= numRecords; i++ {
		recOff[i] = offsets[numRecords-i]
	}

	n.records = make([][]byte, numRecords)
	for i := 0; i < numRecords; i++ {
		start, end := recOff[i], recOff[i+1]
		if start > end {
			return nil, hfserr.New(hfserr.Corrupt, "btree.parseNode", "inverted record bounds")
		}
		n.records[i] = buf[start:end]
	}
	return n, nil
}
