//go:build !linux

package device

import "os"

// discoverBlockSize falls back to the Stat-reported preferred I/O size on
// platforms where no block-device ioctl is wired, then to 512.
func discoverBlockSize(f *os.File) int {
	if st, err := f.Stat(); err == nil {
		if bs := blksizeFromStat(st); bs > 0 {
			return bs
		}
	}
	return 512
}
