package hfsfs

import (
	"io/fs"

	"github.com/macfs/hfsplus/internal/catalog"
	"github.com/macfs/hfsplus/internal/pathresolver"
)

// openDirHandle is an open directory handle, its children loaded eagerly on
// Open (the teacher's hfs.FS does the same: a catalog listing is one btree
// scan, not worth paging).
type openDirHandle struct {
	info    fileInfo
	entries []catalog.DirEntry
	pos     int
}

func (f *FS) openDir(path, base string, res *pathresolver.Result) (fs.File, error) {
	entries, err := f.cat.ListDirectory(res.Record.CNID())
	if err != nil {
		return nil, toPathError("open", path, err)
	}
	return &openDirHandle{info: newFileInfo(base, res), entries: entries}, nil
}

func (h *openDirHandle) Stat() (fs.FileInfo, error) { return h.info, nil }
func (h *openDirHandle) Close() error                { return nil }

func (h *openDirHandle) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: h.info.name, Err: errIsADirectory}
}

// ReadDir implements fs.ReadDirFile. n<=0 returns all remaining entries; n>0
// returns at most n, with io.EOF once exhausted, per io/fs's contract.
func (h *openDirHandle) ReadDir(n int) ([]fs.DirEntry, error) {
	remaining := len(h.entries) - h.pos
	if n <= 0 {
		out := make([]fs.DirEntry, remaining)
		for i, e := range h.entries[h.pos:] {
			out[i] = dirEntry{newFileInfo(e.Name, &pathresolver.Result{Record: e.Record})}
		}
		h.pos = len(h.entries)
		return out, nil
	}
	if remaining == 0 {
		return nil, errEOFDir
	}
	if n > remaining {
		n = remaining
	}
	out := make([]fs.DirEntry, n)
	for i, e := range h.entries[h.pos : h.pos+n] {
		out[i] = dirEntry{newFileInfo(e.Name, &pathresolver.Result{Record: e.Record})}
	}
	h.pos += n
	return out, nil
}

var (
	_ fs.File         = (*openDirHandle)(nil)
	_ fs.ReadDirFile  = (*openDirHandle)(nil)
)
