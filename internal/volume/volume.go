// Package volume loads and validates the HFS+ Volume Header, locates the
// special files, and owns the Catalog/Extents Overflow B-trees.
package volume

import (
	"sync"
	"sync/atomic"
	"unicode/utf16"

	"github.com/macfs/hfsplus/internal/bigendian"
	"github.com/macfs/hfsplus/internal/btree"
	"github.com/macfs/hfsplus/internal/device"
	"github.com/macfs/hfsplus/internal/extents"
	"github.com/macfs/hfsplus/internal/hfserr"
	"github.com/macfs/hfsplus/internal/hfsunicode"
)

// CatalogKey is the decoded {parent_cnid, name} catalog/extents key used to
// order the Catalog tree (spec.md §3).
type CatalogKey struct {
	ParentCNID uint32
	NameUTF16  []uint16
}

// Volume is an open HFS+ (or HFSX) volume: a validated header and the
// Catalog / Extents Overflow trees, each read through a fork reader built
// from the header's ForkData. No fork reader is built for the allocation,
// attributes or startup files, and the Attributes tree is not opened.
type Volume struct {
	dev        *device.Device
	volOffset  int64 // byte offset of this volume's block 0 within dev
	header     Header
	caseSensitive bool

	closed atomic.Bool

	CatalogTree *btree.Tree[CatalogKey]
	ExtentsTree *btree.Tree[ExtentKey]

	nameOnce sync.Once
	name     string
	nameErr  error
}

// ExtentKey orders the Extents Overflow tree (spec.md §3).
type ExtentKey struct {
	ForkType   uint8
	FileCNID   uint32
	StartBlock uint32
}

const volumeHeaderOffset = 1024

// Open reads and validates the Volume Header from dev, following an
// HFS-wrapper indirection first if offset 1024 holds a plain-HFS Master
// Directory Block rather than an HFS+ Volume Header.
func Open(dev *device.Device) (*Volume, error) {
	volOffset, err := locateVolume(dev)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 512)
	if _, err := dev.ReadAt(buf, volOffset+volumeHeaderOffset); err != nil {
		return nil, hfserr.Wrap(hfserr.Io, "volume.Open", "", err)
	}

	hdr, caseSensitive, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}

	if hdr.BlockSize == 0 || hdr.BlockSize&(hdr.BlockSize-1) != 0 || hdr.BlockSize < 512 || hdr.BlockSize > 1<<20 {
		return nil, hfserr.New(hfserr.Corrupt, "volume.Open", "block size not a power of two in [512, 1<<20]")
	}

	v := &Volume{dev: dev, volOffset: volOffset, header: *hdr, caseSensitive: caseSensitive}

	extentsFR := extents.NewForkReader(dev, volOffset, hdr.BlockSize, hdr.ExtentsFile.ForkData, CNIDExtentsFile, extents.ForkTypeData, nil)
	catalogExtTree, _, err := btree.New[ExtentKey](extentsFR, decodeExtentKey, compareExtentKey)
	if err != nil {
		return nil, err
	}
	v.ExtentsTree = catalogExtTree

	catalogFR := extents.NewForkReader(dev, volOffset, hdr.BlockSize, hdr.CatalogFile.ForkData, CNIDCatalogFile, extents.ForkTypeData, v.chaseOverflow)
	catTree, _, err := btree.New[CatalogKey](catalogFR, decodeCatalogKey, v.compareCatalogKey)
	if err != nil {
		return nil, err
	}
	v.CatalogTree = catTree

	return v, nil
}

// chaseOverflow resolves additional extents for cnid/forkType beyond the
// inline eight, by querying the Extents Overflow tree starting from
// startBlock, matching spec.md §4.7's chaseOverflow/Extents Overflow walk.
func (v *Volume) chaseOverflow(forkType uint8, cnid uint32, startBlock uint32) ([]extents.ExtentDescriptor, error) {
	key := ExtentKey{ForkType: forkType, FileCNID: cnid, StartBlock: startBlock}
	it, err := v.ExtentsTree.FindFirstGE(key)
	if err != nil {
		return nil, err
	}
	if !it.Valid() {
		return nil, nil
	}
	gotKey, err := it.Key()
	if err != nil {
		return nil, err
	}
	if gotKey.ForkType != forkType || gotKey.FileCNID != cnid {
		return nil, nil
	}
	rec, err := it.Record()
	if err != nil {
		return nil, err
	}
	return decodeExtentRecord(rec)
}

// Header returns the decoded Volume Header.
func (v *Volume) Header() Header { return v.header }

// CaseSensitive reports whether this is an "HX" volume.
func (v *Volume) CaseSensitive() bool { return v.caseSensitive }

// BlockSize returns the volume's allocation block size in bytes.
func (v *Volume) BlockSize() uint32 { return v.header.BlockSize }

// VolumeOffset returns the byte offset of this volume's block 0 on dev.
func (v *Volume) VolumeOffset() int64 { return v.volOffset }

// Device returns the underlying device, for building additional fork
// readers (e.g. a file's data/resource fork in hfsfs and internal/xattr).
func (v *Volume) Device() *device.Device { return v.dev }

// ChaseOverflow exposes the Extents Overflow lookup used by
// internal/extents.ForkReader for a fork belonging to any catalog file.
func (v *Volume) ChaseOverflow(forkType uint8, cnid, startBlock uint32) ([]extents.ExtentDescriptor, error) {
	return v.chaseOverflow(forkType, cnid, startBlock)
}

// Name returns the volume name, read lazily from the root folder's thread
// record on first call and cached thereafter.
func (v *Volume) Name() (string, error) {
	v.nameOnce.Do(func() {
		key := CatalogKey{ParentCNID: CNIDRootFolder, NameUTF16: nil}
		rec, found, err := v.CatalogTree.Find(key)
		if err != nil {
			v.nameErr = err
			return
		}
		if !found || len(rec) < 2 {
			v.nameErr = hfserr.New(hfserr.Corrupt, "volume.Name", "missing root thread record")
			return
		}
		parentCNID, name, err := decodeThreadRecord(rec)
		_ = parentCNID
		if err != nil {
			v.nameErr = err
			return
		}
		v.name = name
	})
	return v.name, v.nameErr
}

// Close releases the underlying device. Any outstanding extent readers or
// iterators a caller holds become invalid, matching spec.md §4.5.
func (v *Volume) Close() error {
	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}
	return v.dev.Close()
}

// Closed reports whether Close has already been called.
func (v *Volume) Closed() bool { return v.closed.Load() }

func decodeHeader(buf []byte) (*Header, bool, error) {
	if len(buf) < 512 {
		return nil, false, hfserr.New(hfserr.Truncated, "volume.decodeHeader", "")
	}
	c := bigendian.NewCursor(buf)
	sig := c.U16()
	caseSensitive := false
	switch sig {
	case 0x482B: // "H+"
	case 0x4858: // "HX"
		caseSensitive = true
	default:
		return nil, false, hfserr.New(hfserr.NotHfs, "volume.decodeHeader", "")
	}

	h := &Header{Signature: sig}
	h.Version = c.U16()
	h.Attributes = c.U32()
	h.LastMountedVersion = c.U32()
	h.JournalInfoBlock = c.U32()
	h.CreateDate = c.U32()
	h.ModifyDate = c.U32()
	h.BackupDate = c.U32()
	h.CheckedDate = c.U32()
	h.FileCount = c.U32()
	h.FolderCount = c.U32()
	h.BlockSize = c.U32()
	h.TotalBlocks = c.U32()
	h.FreeBlocks = c.U32()
	h.NextAllocation = c.U32()
	h.RsrcClumpSize = c.U32()
	h.DataClumpSize = c.U32()
	h.NextCatalogID = c.U32()
	h.WriteCount = c.U32()
	h.EncodingsBitmap = c.U64()
	for i := range h.FinderInfo {
		h.FinderInfo[i] = c.U32()
	}
	h.AllocationFile = decodeForkData(c)
	h.ExtentsFile = decodeForkData(c)
	h.CatalogFile = decodeForkData(c)
	h.AttributesFile = decodeForkData(c)
	h.StartupFile = decodeForkData(c)

	if err := c.Err(); err != nil {
		return nil, false, hfserr.Wrap(hfserr.Truncated, "volume.decodeHeader", "", err)
	}
	return h, caseSensitive, nil
}

func decodeForkData(c *bigendian.Cursor) ForkData {
	var fd ForkData
	fd.LogicalSize = c.U64()
	fd.ClumpSize = c.U32()
	fd.TotalBlocks = c.U32()
	for i := range fd.Extents {
		fd.Extents[i].StartBlock = c.U32()
		fd.Extents[i].BlockCount = c.U32()
	}
	return fd
}

// decodeExtentKey decodes an Extents Overflow key record: {fork_type,
// pad, file_cnid, start_block} followed by the 8-extent record itself
// (spec.md §3).
func decodeExtentKey(record []byte) (ExtentKey, int, error) {
	if len(record) < 10 {
		return ExtentKey{}, 0, hfserr.New(hfserr.Truncated, "volume.decodeExtentKey", "")
	}
	c := bigendian.NewCursor(record)
	keyLen := int(c.U16())
	forkType := c.U8()
	c.Skip(1)
	fileCNID := c.U32()
	startBlock := c.U32()
	if err := c.Err(); err != nil {
		return ExtentKey{}, 0, hfserr.Wrap(hfserr.Truncated, "volume.decodeExtentKey", "", err)
	}
	return ExtentKey{ForkType: forkType, FileCNID: fileCNID, StartBlock: startBlock}, 2 + keyLen, nil
}

func compareExtentKey(a, b ExtentKey) int {
	if a.ForkType != b.ForkType {
		if a.ForkType < b.ForkType {
			return -1
		}
		return 1
	}
	if a.FileCNID != b.FileCNID {
		if a.FileCNID < b.FileCNID {
			return -1
		}
		return 1
	}
	if a.StartBlock != b.StartBlock {
		if a.StartBlock < b.StartBlock {
			return -1
		}
		return 1
	}
	return 0
}

// decodeExtentRecord decodes the up-to-8 ExtentDescriptors that make up an
// Extents Overflow leaf record's value, stopping at the first zero-sentinel
// extent or the end of the record.
func decodeExtentRecord(rec []byte) ([]extents.ExtentDescriptor, error) {
	c := bigendian.NewCursor(rec)
	var out []extents.ExtentDescriptor
	for i := 0; i < 8 && len(rec)-c.Pos() >= 8; i++ {
		start := c.U32()
		count := c.U32()
		if start == 0 && count == 0 {
			break
		}
		out = append(out, extents.ExtentDescriptor{StartBlock: start, BlockCount: count})
	}
	if err := c.Err(); err != nil {
		return nil, hfserr.Wrap(hfserr.Truncated, "volume.decodeExtentRecord", "", err)
	}
	return out, nil
}

// decodeCatalogKey decodes a Catalog key: {key_length, parent_cnid,
// name_length, name as UTF-16BE code units} (spec.md §3). The returned
// record offset is 2 (the key_length field itself) plus key_length, so
// callers can slice past the key to reach the catalog record payload.
func decodeCatalogKey(record []byte) (CatalogKey, int, error) {
	if len(record) < 8 {
		return CatalogKey{}, 0, hfserr.New(hfserr.Truncated, "volume.decodeCatalogKey", "")
	}
	c := bigendian.NewCursor(record)
	keyLen := int(c.U16())
	parentCNID := c.U32()
	nameLen := int(c.U16())
	units := make([]uint16, nameLen)
	for i := range units {
		units[i] = c.U16()
	}
	if err := c.Err(); err != nil {
		return CatalogKey{}, 0, hfserr.Wrap(hfserr.Truncated, "volume.decodeCatalogKey", "", err)
	}
	return CatalogKey{ParentCNID: parentCNID, NameUTF16: units}, 2 + keyLen, nil
}

// compareCatalogKey orders catalog keys first by parent CNID, then by name
// using the volume's case-sensitivity setting, matching the on-disk B-tree
// ordering HFS+ requires (spec.md §3, §4.6).
func (v *Volume) compareCatalogKey(a, b CatalogKey) int {
	if a.ParentCNID != b.ParentCNID {
		if a.ParentCNID < b.ParentCNID {
			return -1
		}
		return 1
	}
	if len(a.NameUTF16) == 0 || len(b.NameUTF16) == 0 {
		return len(a.NameUTF16) - len(b.NameUTF16)
	}
	an := utf16ToString(a.NameUTF16)
	bn := utf16ToString(b.NameUTF16)
	return hfsunicode.Compare(an, bn, v.caseSensitive)
}

func utf16ToString(units []uint16) string {
	return string(utf16.Decode(units))
}

// decodeThreadRecord decodes a folder/file thread record's payload: record
// type, reserved, parent CNID, and the parent-relative name (spec.md §3).
// Used only for Volume.Name, which reads the root folder's thread record.
func decodeThreadRecord(rec []byte) (uint32, string, error) {
	if len(rec) < 10 {
		return 0, "", hfserr.New(hfserr.Truncated, "volume.decodeThreadRecord", "")
	}
	c := bigendian.NewCursor(rec)
	c.Skip(2) // record type
	c.Skip(2) // reserved
	parentCNID := c.U32()
	nameLen := int(c.U16())
	units := make([]uint16, nameLen)
	for i := range units {
		units[i] = c.U16()
	}
	if err := c.Err(); err != nil {
		return 0, "", hfserr.Wrap(hfserr.Truncated, "volume.decodeThreadRecord", "", err)
	}
	return parentCNID, utf16ToString(units), nil
}
