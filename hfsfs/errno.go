package hfsfs

import (
	"errors"
	"io"
	"io/fs"
	"syscall"

	"github.com/macfs/hfsplus/internal/hfserr"
)

// errno maps the driver's error taxonomy to the errno a mount-side bridge
// would return, the way internal/device's platform-specific files map a
// block-size ioctl's result to a Go type: one table, no per-GOOS branching,
// because syscall.Errno's named constants (ENOENT, EIO, ...) are defined on
// every platform Go supports, including Windows' POSIX emulation layer.
func errno(kind hfserr.Kind) syscall.Errno {
	switch kind {
	case hfserr.Io:
		return syscall.EIO
	case hfserr.NotHfs:
		return syscall.EINVAL
	case hfserr.Corrupt:
		return syscall.EIO
	case hfserr.NotFound:
		return syscall.ENOENT
	case hfserr.NotADirectory:
		return syscall.ENOTDIR
	case hfserr.InvalidName:
		return syscall.EINVAL
	case hfserr.ReadOnly:
		return syscall.EROFS
	case hfserr.NoMemory:
		return syscall.ENOMEM
	case hfserr.Truncated:
		return syscall.EIO
	default:
		return syscall.EIO
	}
}

// toPathError wraps err as an *fs.PathError carrying the errno a mount-side
// caller (or testing/fstest, via errors.Is against fs.ErrNotExist etc.)
// expects, per spec.md §7.
func toPathError(op, path string, err error) error {
	var herr *hfserr.Error
	if errors.As(err, &herr) {
		return &fs.PathError{Op: op, Path: path, Err: errno(herr.Kind)}
	}
	return &fs.PathError{Op: op, Path: path, Err: err}
}

var (
	errNotADirectory = syscall.ENOTDIR
	errIsADirectory  = syscall.EISDIR
	errEOFDir        = io.EOF
)
