// Package catalog decodes Catalog B-tree records (folders, files, and
// threads) and implements the lookup/enumeration/hard-link operations
// spec.md §4.6 describes on top of a volume's Catalog tree.
package catalog

import (
	"strconv"
	"unicode/utf16"

	"github.com/macfs/hfsplus/internal/bigendian"
	"github.com/macfs/hfsplus/internal/extents"
	"github.com/macfs/hfsplus/internal/hfserr"
	"github.com/macfs/hfsplus/internal/volume"
)

// Catalog record types (spec.md §3).
const (
	RecordTypeFolder       uint16 = 1
	RecordTypeFile         uint16 = 2
	RecordTypeFolderThread uint16 = 3
	RecordTypeFileThread   uint16 = 4
)

// FileHasThreadFlag is FileRecord.Flags' bit 0x0080: the file has its own
// thread record (spec.md §3).
const FileHasThreadFlag uint16 = 0x0080

// Dates is the five-timestamp block every catalog record carries, still in
// HFS+'s 1904-epoch on-disk form; callers convert with PosixTime.
type Dates struct {
	Create, Content, Attr, Access, Backup uint32
}

// macEpochOffset converts HFS+'s 1904-01-01 UTC epoch to POSIX time.
const macEpochOffset = 2082844800

// PosixTime converts an HFS+ 1904-epoch timestamp to POSIX seconds.
func PosixTime(v uint32) int64 { return int64(v) - macEpochOffset }

// Permissions is the BSD permissions block embedded in every file/folder
// record. Special's meaning depends on FileMode: a raw device number for
// char/block special files, a link count otherwise, or (for a hard-link
// sentinel) the inode number naming the indirection (spec.md §3).
type Permissions struct {
	OwnerID    uint32
	GroupID    uint32
	AdminFlags uint8
	OwnerFlags uint8
	FileMode   uint16
	Special    uint32
}

// FolderRecord is a decoded Catalog folder leaf record.
type FolderRecord struct {
	Flags        uint16
	Valence      uint32
	CNID         uint32
	Dates        Dates
	Permissions  Permissions
	UserInfo     [16]byte
	FinderInfo   [16]byte
	TextEncoding uint32
}

// FileRecord is a decoded Catalog file leaf record, including both forks'
// ForkData so a caller can build data/resource extents.ForkReaders.
type FileRecord struct {
	Flags        uint16
	CNID         uint32
	Dates        Dates
	Permissions  Permissions
	UserInfo     [16]byte
	FinderInfo   [16]byte
	TextEncoding uint32
	DataFork     extents.ForkData
	ResourceFork extents.ForkData
}

// ThreadRecord is a decoded folder/file thread record: the (parent_cnid,
// name) back-pointer for a given CNID.
type ThreadRecord struct {
	ParentCNID uint32
	NameUTF16  []uint16
}

// IsFileHardlink reports whether this file is an HFS+ file-hardlink stub
// (UserInfo.file_creator="hfs+", file_type="hlnk"), per spec.md §3.
func (f *FileRecord) IsFileHardlink() bool {
	return string(f.UserInfo[0:4]) == "hlnk" && string(f.UserInfo[4:8]) == "hfs+"
}

// IsDirHardlink reports whether this file is a directory-hardlink sentinel
// (UserInfo.file_creator="MACS", file_type="fdrp"), per spec.md §3.
func (f *FileRecord) IsDirHardlink() bool {
	return string(f.UserInfo[0:4]) == "fdrp" && string(f.UserInfo[4:8]) == "MACS"
}

// Record is one decoded Catalog leaf record; exactly one of Folder, File,
// or Thread is non-nil depending on Type.
type Record struct {
	Type   uint16
	Folder *FolderRecord
	File   *FileRecord
	Thread *ThreadRecord
}

// CNID returns the record's own catalog node id (meaningless for a thread
// record, which instead names its *parent* in Thread.ParentCNID).
func (r *Record) CNID() uint32 {
	switch {
	case r.Folder != nil:
		return r.Folder.CNID
	case r.File != nil:
		return r.File.CNID
	default:
		return 0
	}
}

// IsDir reports whether the record is a folder.
func (r *Record) IsDir() bool { return r.Folder != nil }

func decodeDates(c *bigendian.Cursor) Dates {
	var d Dates
	d.Create = c.U32()
	d.Content = c.U32()
	d.Attr = c.U32()
	d.Access = c.U32()
	d.Backup = c.U32()
	return d
}

func decodePermissions(c *bigendian.Cursor) Permissions {
	var p Permissions
	p.OwnerID = c.U32()
	p.GroupID = c.U32()
	p.AdminFlags = c.U8()
	p.OwnerFlags = c.U8()
	p.FileMode = c.U16()
	p.Special = c.U32()
	return p
}

func decodeForkData(c *bigendian.Cursor) extents.ForkData {
	var fd extents.ForkData
	fd.LogicalSize = c.U64()
	c.Skip(4) // clump size: an allocation hint, irrelevant to a read-only driver
	fd.TotalBlocks = c.U32()
	for i := range fd.Extents {
		fd.Extents[i].StartBlock = c.U32()
		fd.Extents[i].BlockCount = c.U32()
	}
	return fd
}

func decodeUTF16Name(c *bigendian.Cursor) []uint16 {
	n := int(c.U16())
	units := make([]uint16, n)
	for i := range units {
		units[i] = c.U16()
	}
	return units
}

// DecodeRecord decodes a Catalog leaf record's raw payload (past its key)
// into a typed Record, dispatching on the leading record-type u16.
func DecodeRecord(rec []byte) (*Record, error) {
	if len(rec) < 2 {
		return nil, hfserr.New(hfserr.Truncated, "catalog.DecodeRecord", "")
	}
	c := bigendian.NewCursor(rec)
	recType := c.U16()

	var out *Record
	switch recType {
	case RecordTypeFolder:
		fr := &FolderRecord{}
		fr.Flags = c.U16()
		fr.Valence = c.U32()
		fr.CNID = c.U32()
		fr.Dates = decodeDates(c)
		fr.Permissions = decodePermissions(c)
		copy(fr.UserInfo[:], c.Bytes(16))
		copy(fr.FinderInfo[:], c.Bytes(16))
		fr.TextEncoding = c.U32()
		out = &Record{Type: recType, Folder: fr}

	case RecordTypeFile:
		file := &FileRecord{}
		file.Flags = c.U16()
		c.Skip(4) // reserved1
		file.CNID = c.U32()
		file.Dates = decodeDates(c)
		file.Permissions = decodePermissions(c)
		copy(file.UserInfo[:], c.Bytes(16))
		copy(file.FinderInfo[:], c.Bytes(16))
		file.TextEncoding = c.U32()
		c.Skip(4) // reserved2
		file.DataFork = decodeForkData(c)
		file.ResourceFork = decodeForkData(c)
		out = &Record{Type: recType, File: file}

	case RecordTypeFolderThread, RecordTypeFileThread:
		th := &ThreadRecord{}
		c.Skip(2) // reserved
		th.ParentCNID = c.U32()
		th.NameUTF16 = decodeUTF16Name(c)
		out = &Record{Type: recType, Thread: th}

	default:
		return nil, hfserr.New(hfserr.Corrupt, "catalog.DecodeRecord", "unknown catalog record type")
	}

	if err := c.Err(); err != nil {
		return nil, hfserr.Wrap(hfserr.Truncated, "catalog.DecodeRecord", "", err)
	}
	return out, nil
}

// Catalog is the lookup/enumeration surface over one open volume's Catalog
// tree (spec.md §4.6).
type Catalog struct {
	vol *volume.Volume
}

// New builds a Catalog bound to vol's already-open Catalog tree.
func New(vol *volume.Volume) *Catalog { return &Catalog{vol: vol} }

// FindByKey performs a direct leaf lookup by {parent_cnid, name}.
func (c *Catalog) FindByKey(parentCNID uint32, nameUTF16 []uint16) (*Record, error) {
	key := volume.CatalogKey{ParentCNID: parentCNID, NameUTF16: nameUTF16}
	rec, found, err := c.vol.CatalogTree.Find(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, hfserr.New(hfserr.NotFound, "catalog.FindByKey", "")
	}
	return DecodeRecord(rec)
}

// FindByCNID synthesizes a thread-record key {cnid, name_length=0}, looks
// it up, then follows the thread's (parent_cnid, name) back-pointer to the
// actual file/folder record, returning both the record and its key.
func (c *Catalog) FindByCNID(cnid uint32) (*Record, volume.CatalogKey, error) {
	threadKey := volume.CatalogKey{ParentCNID: cnid, NameUTF16: nil}
	rec, found, err := c.vol.CatalogTree.Find(threadKey)
	if err != nil {
		return nil, volume.CatalogKey{}, err
	}
	if !found {
		return nil, volume.CatalogKey{}, hfserr.New(hfserr.NotFound, "catalog.FindByCNID", "")
	}
	thread, err := DecodeRecord(rec)
	if err != nil {
		return nil, volume.CatalogKey{}, err
	}
	if thread.Thread == nil {
		return nil, volume.CatalogKey{}, hfserr.New(hfserr.Corrupt, "catalog.FindByCNID", "expected a thread record")
	}
	key := volume.CatalogKey{ParentCNID: thread.Thread.ParentCNID, NameUTF16: thread.Thread.NameUTF16}
	actual, err := c.FindByKey(key.ParentCNID, key.NameUTF16)
	if err != nil {
		return nil, volume.CatalogKey{}, err
	}
	return actual, key, nil
}

// DirEntry is one (name, record) pair yielded by ListDirectory.
type DirEntry struct {
	Name   string
	Record *Record
}

// ListDirectory enumerates folderCNID's children in catalog key order:
// find_first_ge({folderCNID, ""}) then iterate while the parent CNID
// matches, skipping the folder's own thread record (which shares the same
// parent CNID but an empty name).
func (c *Catalog) ListDirectory(folderCNID uint32) ([]DirEntry, error) {
	key := volume.CatalogKey{ParentCNID: folderCNID, NameUTF16: nil}
	it, err := c.vol.CatalogTree.FindFirstGE(key)
	if err != nil {
		return nil, err
	}

	var out []DirEntry
	for it.Valid() {
		k, err := it.Key()
		if err != nil {
			return nil, err
		}
		if k.ParentCNID != folderCNID {
			break
		}
		if len(k.NameUTF16) == 0 {
			if err := it.Next(); err != nil {
				return nil, err
			}
			continue
		}
		rec, err := it.Record()
		if err != nil {
			return nil, err
		}
		decoded, err := DecodeRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, DirEntry{Name: utf16ToString(k.NameUTF16), Record: decoded})
		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const fileHardlinkNamePrefix = "iNode"
const dirHardlinkNamePrefix = "dir_"

// ResolveFileHardlink looks up the indirect data-file node under the
// private file-hardlink metadata directory (its CNID lives in the volume
// header's finder-info word 3), named "iNode" + decimal(inodeNum)
// (spec.md §4.6).
func (c *Catalog) ResolveFileHardlink(inodeNum uint32) (*Record, error) {
	parentCNID := c.vol.Header().FinderInfo[3]
	name := fileHardlinkNamePrefix + strconv.FormatUint(uint64(inodeNum), 10)
	return c.FindByKey(parentCNID, stringToUTF16(name))
}

// ResolveDirHardlink looks up the indirect target folder under the private
// directory-hardlink metadata directory (its CNID lives in finder-info
// word 5), named "dir_" + decimal(inodeNum) (spec.md §4.6).
func (c *Catalog) ResolveDirHardlink(inodeNum uint32) (*Record, error) {
	parentCNID := c.vol.Header().FinderInfo[5]
	name := dirHardlinkNamePrefix + strconv.FormatUint(uint64(inodeNum), 10)
	return c.FindByKey(parentCNID, stringToUTF16(name))
}

func stringToUTF16(s string) []uint16 { return utf16.Encode([]rune(s)) }
func utf16ToString(units []uint16) string { return string(utf16.Decode(units)) }
