// Package hfsfs adapts an open HFS+ volume to io/fs.FS, the mount-side API
// spec.md §6 describes conceptually as the surface a FUSE bridge would
// consume. It is the runnable stand-in for that bridge: cmd/hfsdav serves
// it over WebDAV via internal/webdavfs, and cmd/hfsinspect walks it
// directly.
package hfsfs

import (
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/macfs/hfsplus/internal/catalog"
	"github.com/macfs/hfsplus/internal/pathresolver"
	"github.com/macfs/hfsplus/internal/volume"
	"github.com/macfs/hfsplus/internal/xattr"
)

// FS adapts one open Volume to io/fs.FS, io/fs.ReadDirFS, io/fs.StatFS, and
// the local GetxattrFS/ListxattrFS pair, the same shape as the teacher's
// top-level hfs.FS (Open/ReadDir/Stat via an openfile implementing
// fs.File+fs.ReadDirFile+fs.FileInfo), generalized to a lazy, device-backed
// volume and HFS+'s CNID/thread/extents-overflow model.
type FS struct {
	vol      *volume.Volume
	cat      *catalog.Catalog
	resolver *pathresolver.Resolver
	xattr    *xattr.Bridge
}

// New builds an FS over an already-open volume.
func New(vol *volume.Volume) *FS {
	cat := catalog.New(vol)
	return &FS{
		vol:      vol,
		cat:      cat,
		resolver: pathresolver.New(cat),
		xattr:    xattr.New(vol),
	}
}

// Sys is the dynamic type fs.FileInfo.Sys() returns for every entry in this
// FS, exactly as the teacher's dumpfs.go/main.go expect i.Sys().(*hfs.Sys).
type Sys struct {
	CNID        uint32
	Flags       uint16
	Nlink       uint32
	Permissions catalog.Permissions
	Dates       catalog.Dates
}

var (
	_ fs.FS        = (*FS)(nil)
	_ fs.ReadDirFS = (*FS)(nil)
	_ fs.StatFS    = (*FS)(nil)
	_ GetxattrFS   = (*FS)(nil)
	_ ListxattrFS  = (*FS)(nil)
)

// GetxattrFS is implemented by a file system that surfaces extended
// attributes (spec.md §4.9, §6's getxattr mount-side operation).
type GetxattrFS interface {
	Getxattr(name, attr string) ([]byte, error)
}

// ListxattrFS is implemented by a file system that can enumerate a path's
// extended attribute names (spec.md §6's listxattr mount-side operation).
type ListxattrFS interface {
	Listxattr(name string) ([]string, error)
}

// toFSPath converts an io/fs-shaped path ("." for the root, no leading
// slash) to the pathresolver's POSIX-rooted form.
func toFSPath(name string) string {
	if name == "." {
		return "/"
	}
	return "/" + name
}

func (f *FS) resolve(op, name string) (*pathresolver.Result, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	res, err := f.resolver.Resolve(toFSPath(name))
	if err != nil {
		return nil, toPathError(op, name, err)
	}
	return res, nil
}

// Open implements fs.FS.
func (f *FS) Open(name string) (fs.File, error) {
	res, err := f.resolve("open", name)
	if err != nil {
		return nil, err
	}
	base := basePathClean(name)
	if res.Record.IsDir() {
		return f.openDir(name, base, res)
	}
	return f.openFile(name, base, res)
}

// Stat implements fs.StatFS.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	res, err := f.resolve("stat", name)
	if err != nil {
		return nil, err
	}
	return newFileInfo(basePathClean(name), res), nil
}

// ReadDir implements fs.ReadDirFS.
func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	res, err := f.resolve("readdir", name)
	if err != nil {
		return nil, err
	}
	if !res.Record.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: errNotADirectory}
	}
	entries, err := f.cat.ListDirectory(res.Record.CNID())
	if err != nil {
		return nil, toPathError("readdir", name, err)
	}
	out := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		out[i] = dirEntry{newFileInfo(e.Name, &pathresolver.Result{Record: e.Record})}
	}
	return out, nil
}

// Getxattr implements GetxattrFS.
func (f *FS) Getxattr(name, attr string) ([]byte, error) {
	res, err := f.resolve("getxattr", name)
	if err != nil {
		return nil, err
	}
	v, err := f.xattr.Get(res.Record, attr)
	if err != nil {
		return nil, toPathError("getxattr", name, err)
	}
	return v, nil
}

// Listxattr implements ListxattrFS.
func (f *FS) Listxattr(name string) ([]string, error) {
	res, err := f.resolve("listxattr", name)
	if err != nil {
		return nil, err
	}
	return f.xattr.List(res.Record), nil
}

func recordDates(rec *catalog.Record) catalog.Dates {
	switch {
	case rec.Folder != nil:
		return rec.Folder.Dates
	case rec.File != nil:
		return rec.File.Dates
	default:
		return catalog.Dates{}
	}
}

func recordPermissions(rec *catalog.Record) catalog.Permissions {
	switch {
	case rec.Folder != nil:
		return rec.Folder.Permissions
	case rec.File != nil:
		return rec.File.Permissions
	default:
		return catalog.Permissions{}
	}
}

func recordFlags(rec *catalog.Record) uint16 {
	switch {
	case rec.Folder != nil:
		return rec.Folder.Flags
	case rec.File != nil:
		return rec.File.Flags
	default:
		return 0
	}
}

// recordSize returns the logical size of the fork stat/readdir should
// report: the resource fork's when res.Resource is set, else the data
// fork's (zero for folders).
func recordSize(res *pathresolver.Result) int64 {
	if res.Record.File == nil {
		return 0
	}
	if res.Resource {
		return int64(res.Record.File.ResourceFork.LogicalSize)
	}
	return int64(res.Record.File.DataFork.LogicalSize)
}

type fileInfo struct {
	name string
	res  *pathresolver.Result
}

func newFileInfo(name string, res *pathresolver.Result) fileInfo {
	return fileInfo{name: name, res: res}
}

func (i fileInfo) Name() string { return i.name }
func (i fileInfo) Size() int64  { return recordSize(i.res) }

func (i fileInfo) Mode() fs.FileMode {
	perm := recordPermissions(i.res.Record)
	mode := fs.FileMode(perm.FileMode & 0o777)
	if i.res.Record.IsDir() {
		mode |= fs.ModeDir
	}
	return mode
}

func (i fileInfo) ModTime() time.Time {
	return time.Unix(catalog.PosixTime(recordDates(i.res.Record).Content), 0).UTC()
}

func (i fileInfo) IsDir() bool  { return i.res.Record.IsDir() }
func (i fileInfo) Sys() any {
	rec := i.res.Record
	nlink := uint32(1)
	switch {
	case rec.Folder != nil:
		nlink = rec.Folder.Valence + 2
	case rec.File != nil:
		if rec.File.Permissions.Special > 0 {
			nlink = rec.File.Permissions.Special
		}
	}
	return &Sys{
		CNID:        rec.CNID(),
		Flags:       recordFlags(rec),
		Nlink:       nlink,
		Permissions: recordPermissions(rec),
		Dates:       recordDates(rec),
	}
}

type dirEntry struct{ fileInfo }

func (d dirEntry) Type() fs.FileMode          { return d.Mode().Type() }
func (d dirEntry) Info() (fs.FileInfo, error) { return d.fileInfo, nil }

// basePathClean mirrors path.Base but returns "." for an already-root name
// ("." or "/"), matching the io/fs convention that the root's base is ".".
func basePathClean(name string) string {
	if name == "." || name == "/" {
		return "."
	}
	return path.Base(strings.TrimRight(name, "/"))
}
