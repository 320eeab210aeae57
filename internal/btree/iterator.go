package btree

import "github.com/macfs/hfsplus/internal/hfserr"

// Iterator walks leaf records in key order, starting from wherever
// FindFirstGE positioned it. It transparently follows each leaf's forward
// link (fLink) to move past a node boundary, the same sibling-chain walk
// internal/catalog.ListDirectory uses to enumerate a folder's children
// without holding the whole tree in memory.
type Iterator[K any] struct {
	t       *Tree[K]
	node    *node
	nodeNum uint32
	idx     int
	seen    map[uint32]bool
	done    bool
}

// Valid reports whether the iterator is positioned on a record.
func (it *Iterator[K]) Valid() bool {
	return !it.done && it.node != nil && it.idx < len(it.node.records)
}

// Key decodes the current record's key.
func (it *Iterator[K]) Key() (K, error) {
	var zero K
	if !it.Valid() {
		return zero, hfserr.New(hfserr.NotFound, "btree.Iterator.Key", "")
	}
	k, _, err := it.t.decodeKey(it.node.records[it.idx])
	return k, err
}

// Record returns the current record's raw trailing data, past its key.
func (it *Iterator[K]) Record() ([]byte, error) {
	if !it.Valid() {
		return nil, hfserr.New(hfserr.NotFound, "btree.Iterator.Record", "")
	}
	rec := it.node.records[it.idx]
	_, keyLen, err := it.t.decodeKey(rec)
	if err != nil {
		return nil, err
	}
	if keyLen > len(rec) {
		return nil, hfserr.New(hfserr.Corrupt, "btree.Iterator.Record", "key longer than record")
	}
	return rec[keyLen:], nil
}

// Next advances to the following leaf record, crossing into the next leaf
// node via fLink when the current node is exhausted.
func (it *Iterator[K]) Next() error {
	if it.done {
		return nil
	}
	it.idx++
	for it.node != nil && it.idx >= len(it.node.records) {
		if it.node.fLink == 0 {
			it.done = true
			return nil
		}
		next := it.node.fLink
		if it.seen[next] {
			return hfserr.New(hfserr.Corrupt, "btree.Iterator.Next", "leaf chain loop")
		}
		it.seen[next] = true
		nd, err := readNode(it.t.src, it.t.nodeSize, int(next))
		if err != nil {
			return err
		}
		if nd.kind != kindLeaf {
			return hfserr.New(hfserr.Corrupt, "btree.Iterator.Next", "fLink did not reach a leaf")
		}
		it.node = nd
		it.nodeNum = next
		it.idx = 0
	}
	return nil
}

// FindFirstGE descends from the root to the leaf that would contain key,
// and positions an Iterator at the first record whose key is >= key
// (by the tree's comparator). This covers both exact lookups (compare the
// returned key) and range scans (e.g. every catalog record for one parent
// CNID, found by seeking to the parent's thread key and iterating while
// the parent CNID matches).
func (t *Tree[K]) FindFirstGE(key K) (*Iterator[K], error) {
	nodeNum := t.rootNode
	seen := map[uint32]bool{}

	for {
		if seen[nodeNum] {
			return nil, hfserr.New(hfserr.Corrupt, "btree.FindFirstGE", "node loop")
		}
		seen[nodeNum] = true

		nd, err := readNode(t.src, t.nodeSize, int(nodeNum))
		if err != nil {
			return nil, err
		}

		if nd.kind == kindLeaf {
			idx := 0
			for idx < len(nd.records) {
				k, _, err := t.decodeKey(nd.records[idx])
				if err != nil {
					return nil, err
				}
				if t.compare(k, key) >= 0 {
					break
				}
				idx++
			}
			it := &Iterator[K]{t: t, node: nd, nodeNum: nodeNum, idx: idx, seen: seen}
			if idx == len(nd.records) {
				// Every key in this leaf is below key: the first record >= key,
				// if any, opens the next leaf in the sibling chain.
				it.idx = idx - 1
				if err := it.Next(); err != nil {
					return nil, err
				}
			}
			return it, nil
		}

		if nd.kind != kindIndex {
			return nil, hfserr.New(hfserr.Corrupt, "btree.FindFirstGE", "unexpected node kind")
		}

		childIdx := 0
		for i, rec := range nd.records {
			k, _, err := t.decodeKey(rec)
			if err != nil {
				return nil, err
			}
			if t.compare(k, key) <= 0 {
				childIdx = i
			} else {
				break
			}
		}
		if len(nd.records) == 0 {
			return nil, hfserr.New(hfserr.Corrupt, "btree.FindFirstGE", "empty index node")
		}

		rec := nd.records[childIdx]
		_, keyLen, err := t.decodeKey(rec)
		if err != nil {
			return nil, err
		}
		if keyLen+4 > len(rec) {
			return nil, hfserr.New(hfserr.Corrupt, "btree.FindFirstGE", "truncated index record")
		}
		nodeNum = be32(rec[keyLen : keyLen+4])
	}
}

// Find looks up key exactly, returning its record and true, or false if no
// such key exists (which is not itself an error).
func (t *Tree[K]) Find(key K) ([]byte, bool, error) {
	it, err := t.FindFirstGE(key)
	if err != nil {
		return nil, false, err
	}
	if !it.Valid() {
		return nil, false, nil
	}
	k, err := it.Key()
	if err != nil {
		return nil, false, err
	}
	if t.compare(k, key) != 0 {
		return nil, false, nil
	}
	rec, err := it.Record()
	return rec, err == nil, err
}
