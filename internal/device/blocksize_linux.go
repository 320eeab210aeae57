//go:build linux

package device

import (
	"os"

	"golang.org/x/sys/unix"
)

// discoverBlockSize asks the kernel for the device's optimal I/O size and
// physical block size via ioctl (when f is a block device) and keeps the
// larger, falling back to Stat-reported preferred I/O size, then to 512.
// This mirrors the build-tag-per-platform split the teacher uses for
// internal/fileid.
func discoverBlockSize(f *os.File) int {
	fd := int(f.Fd())

	optimal, oerr := unix.IoctlGetInt(fd, unix.BLKIOOPT)
	physical, perr := unix.IoctlGetInt(fd, unix.BLKPBSZGET)
	if oerr != nil {
		optimal = 0
	}
	if perr != nil {
		physical = 0
	}
	if bs := max(optimal, physical); bs > 0 {
		return bs
	}

	if st, err := f.Stat(); err == nil {
		if bs := blksizeFromStat(st); bs > 0 {
			return bs
		}
	}
	return 512
}
