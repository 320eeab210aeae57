// Package xattr surfaces the virtual extended attributes spec.md §4.9
// defines over a catalog record: the raw FinderInfo bytes, a resource-fork
// byte-range reader, and a handful of timestamp keys. The volume is
// read-only, so every Set call fails hfserr.ReadOnly.
package xattr

import (
	"encoding/binary"

	"github.com/macfs/hfsplus/internal/catalog"
	"github.com/macfs/hfsplus/internal/extents"
	"github.com/macfs/hfsplus/internal/hfserr"
	"github.com/macfs/hfsplus/internal/volume"
)

// NameFinderInfo is the 32-byte UserInfo+FinderInfo blob, already stored
// on-disk in declared field order for both the file and folder layouts
// (spec.md §6), so serializing it is a plain concatenation of the two
// 16-byte arrays the catalog record already decoded.
const NameFinderInfo = "com.apple.FinderInfo"

// NameResourceFork exposes a file's resource fork as a byte range.
const NameResourceFork = "com.apple.ResourceFork"

// Timestamp xattr names, each an 8-byte big-endian POSIX time (spec.md
// §4.9). kMDItemFSBackupDate has no Spotlight-standard counterpart but
// names the fifth on-disk date field for symmetry with the other four.
const (
	NameCreationDate       = "com.apple.metadata:kMDItemFSCreationDate"
	NameContentChangeDate  = "com.apple.metadata:kMDItemFSContentChangeDate"
	NameAttributeChangeDate = "com.apple.metadata:kMDItemAttributeChangeDate"
	NameLastUsedDate       = "com.apple.metadata:kMDItemLastUsedDate"
	NameBackupDate         = "com.apple.metadata:kMDItemFSBackupDate"
)

var timestampNames = []string{
	NameCreationDate,
	NameContentChangeDate,
	NameAttributeChangeDate,
	NameLastUsedDate,
	NameBackupDate,
}

// Bridge reads virtual xattrs off catalog records belonging to vol.
type Bridge struct {
	vol *volume.Volume
}

// New builds a Bridge bound to vol.
func New(vol *volume.Volume) *Bridge { return &Bridge{vol: vol} }

func recordDates(rec *catalog.Record) (catalog.Dates, bool) {
	switch {
	case rec.Folder != nil:
		return rec.Folder.Dates, true
	case rec.File != nil:
		return rec.File.Dates, true
	default:
		return catalog.Dates{}, false
	}
}

func finderInfoBytes(rec *catalog.Record) ([32]byte, bool) {
	var out [32]byte
	switch {
	case rec.Folder != nil:
		copy(out[0:16], rec.Folder.UserInfo[:])
		copy(out[16:32], rec.Folder.FinderInfo[:])
		return out, true
	case rec.File != nil:
		copy(out[0:16], rec.File.UserInfo[:])
		copy(out[16:32], rec.File.FinderInfo[:])
		return out, true
	default:
		return out, false
	}
}

func dateForName(d catalog.Dates, name string) (uint32, bool) {
	switch name {
	case NameCreationDate:
		return d.Create, true
	case NameContentChangeDate:
		return d.Content, true
	case NameAttributeChangeDate:
		return d.Attr, true
	case NameLastUsedDate:
		return d.Access, true
	case NameBackupDate:
		return d.Backup, true
	default:
		return 0, false
	}
}

// List returns the xattr names applicable to rec: FinderInfo and the
// timestamp keys always, ResourceFork only for file records.
func (b *Bridge) List(rec *catalog.Record) []string {
	names := []string{NameFinderInfo}
	if rec.File != nil {
		names = append(names, NameResourceFork)
	}
	names = append(names, timestampNames...)
	return names
}

// Get reads one xattr's value off rec.
func (b *Bridge) Get(rec *catalog.Record, name string) ([]byte, error) {
	if name == NameFinderInfo {
		fi, ok := finderInfoBytes(rec)
		if !ok {
			return nil, hfserr.New(hfserr.NotFound, "xattr.Get", name)
		}
		return fi[:], nil
	}

	if name == NameResourceFork {
		if rec.File == nil {
			return nil, hfserr.New(hfserr.NotFound, "xattr.Get", name)
		}
		fr := b.resourceForkReader(rec.File)
		buf := make([]byte, fr.Size())
		if len(buf) == 0 {
			return buf, nil
		}
		if _, err := fr.ReadAt(buf, 0); err != nil {
			return nil, err
		}
		return buf, nil
	}

	dates, ok := recordDates(rec)
	if !ok {
		return nil, hfserr.New(hfserr.NotFound, "xattr.Get", name)
	}
	raw, ok := dateForName(dates, name)
	if !ok {
		return nil, hfserr.New(hfserr.NotFound, "xattr.Get", name)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(catalog.PosixTime(raw)))
	return buf, nil
}

// ResourceFork returns an io.ReaderAt over a file record's resource fork,
// for callers that want to stream it rather than load it whole via Get.
func (b *Bridge) ResourceFork(file *catalog.FileRecord) *extents.ForkReader {
	return b.resourceForkReader(file)
}

func (b *Bridge) resourceForkReader(file *catalog.FileRecord) *extents.ForkReader {
	return extents.NewForkReader(
		b.vol.Device(), b.vol.VolumeOffset(), b.vol.BlockSize(),
		file.ResourceFork, file.CNID, extents.ForkTypeResource, b.vol.ChaseOverflow,
	)
}

// Set always fails: the volume is read-only (spec.md §4.9).
func (b *Bridge) Set(rec *catalog.Record, name string, value []byte) error {
	return hfserr.New(hfserr.ReadOnly, "xattr.Set", name)
}
