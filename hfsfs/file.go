package hfsfs

import (
	"io"
	"io/fs"

	"github.com/macfs/hfsplus/internal/extents"
	"github.com/macfs/hfsplus/internal/pathresolver"
)

// openFileHandle is an open regular-file (or resource-fork) handle: an
// io.ReadSeeker over the fork's ForkReader, so webdavfs's http.ServeContent
// call can seek it.
type openFileHandle struct {
	info fileInfo
	fr   *extents.ForkReader
	pos  int64
}

func (f *FS) openFile(path, base string, res *pathresolver.Result) (fs.File, error) {
	file := res.Record.File
	if file == nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: errNotADirectory}
	}
	var fr *extents.ForkReader
	if res.Resource {
		fr = extents.NewForkReader(f.vol.Device(), f.vol.VolumeOffset(), f.vol.BlockSize(),
			file.ResourceFork, file.CNID, extents.ForkTypeResource, f.vol.ChaseOverflow)
	} else {
		fr = extents.NewForkReader(f.vol.Device(), f.vol.VolumeOffset(), f.vol.BlockSize(),
			file.DataFork, file.CNID, extents.ForkTypeData, f.vol.ChaseOverflow)
	}
	return &openFileHandle{info: newFileInfo(base, res), fr: fr}, nil
}

func (h *openFileHandle) Stat() (fs.FileInfo, error) { return h.info, nil }
func (h *openFileHandle) Close() error               { return nil }

func (h *openFileHandle) Read(p []byte) (int, error) {
	n, err := h.fr.ReadAt(p, h.pos)
	h.pos += int64(n)
	return n, err
}

func (h *openFileHandle) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = h.pos
	case io.SeekEnd:
		base = h.fr.Size()
	default:
		return 0, &fs.PathError{Op: "seek", Path: h.info.name, Err: fs.ErrInvalid}
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, &fs.PathError{Op: "seek", Path: h.info.name, Err: fs.ErrInvalid}
	}
	h.pos = newPos
	return h.pos, nil
}

var (
	_ fs.File     = (*openFileHandle)(nil)
	_ io.ReadSeeker = (*openFileHandle)(nil)
)
