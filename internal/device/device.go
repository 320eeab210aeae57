// Package device provides a byte-addressable random-access reader over a
// disk image or block device, with block-size discovery and an optional
// bounded read-coalescing cache in front of it.
package device

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/macfs/hfsplus/internal/hfserr"
)

// Device is a read-only, positioned-read source for volume bytes. All
// offsets passed to ReadAt are device offsets; applying a partition/volume
// start offset is the caller's job (internal/volume does this).
type Device struct {
	closer    io.Closer
	ra        io.ReaderAt
	blockSize int
	logger    *slog.Logger
}

type config struct {
	cacheBlocks int
	graceBlocks int
	logger      *slog.Logger
}

// Option configures Open.
type Option func(*config)

// WithCache enables the coalescing cache with room for blocks entries and
// graceBlocks of read-ahead beyond each cold read. Pass blocks<=0 to
// disable caching entirely.
func WithCache(blocks, graceBlocks int) Option {
	return func(c *config) { c.cacheBlocks, c.graceBlocks = blocks, graceBlocks }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Open opens path read-only. If the optimal I/O size and physical block
// size can be discovered (via ioctl on a Linux block device, or via Stat
// elsewhere), the larger of the two is used as the device's native block
// size, defaulting to 512 when neither is available, per spec.md §4.1.
//
// A path ending in ".xz" is transparently decompressed with
// github.com/therootcompany/xz so a compressed fixture image can be opened
// directly; this is a convenience, not part of the HFS+ format itself.
func Open(path string, opts ...Option) (*Device, error) {
	cfg := config{cacheBlocks: 256, graceBlocks: 4, logger: slog.Default()}
	for _, o := range opts {
		o(&cfg)
	}

	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, hfserr.Wrap(hfserr.Io, "device.Open", path, err)
	}

	blockSize := discoverBlockSize(f)

	var raw io.ReaderAt = f
	if strings.HasSuffix(path, ".xz") {
		ra, xzErr := openXZ(f)
		if xzErr != nil {
			f.Close()
			return nil, hfserr.Wrap(hfserr.Io, "device.Open", path, xzErr)
		}
		raw = ra
	}

	dev := &Device{closer: f, blockSize: blockSize, logger: cfg.logger}
	if cfg.cacheBlocks > 0 {
		dev.ra = NewCachedReaderAt(raw, int64(blockSize), cfg.cacheBlocks, cfg.graceBlocks)
	} else {
		dev.ra = raw
	}
	return dev, nil
}

// WrapReaderAt builds a Device around an already-open io.ReaderAt, used by
// tests and by callers that already have an in-memory or embedded image.
func WrapReaderAt(ra io.ReaderAt, blockSize int, opts ...Option) *Device {
	cfg := config{cacheBlocks: 256, graceBlocks: 4, logger: slog.Default()}
	for _, o := range opts {
		o(&cfg)
	}
	if blockSize <= 0 {
		blockSize = 512
	}
	dev := &Device{blockSize: blockSize, logger: cfg.logger}
	if cfg.cacheBlocks > 0 {
		dev.ra = NewCachedReaderAt(ra, int64(blockSize), cfg.cacheBlocks, cfg.graceBlocks)
	} else {
		dev.ra = ra
	}
	return dev
}

// BlockSize returns the device's native I/O block size.
func (d *Device) BlockSize() int { return d.blockSize }

// ReadAt delivers exactly len(p) bytes at device offset off, retrying on
// short reads until satisfied or an error surfaces.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	total := 0
	for total < len(p) {
		n, err := d.ra.ReadAt(p[total:], off+int64(total))
		total += n
		if err != nil {
			if total == len(p) && err == io.EOF {
				return total, nil
			}
			return total, hfserr.Wrap(hfserr.Io, "device.ReadAt", "", err)
		}
		if n == 0 {
			return total, hfserr.New(hfserr.Io, "device.ReadAt", "")
		}
	}
	return total, nil
}

// Close releases the underlying file, if any (WrapReaderAt devices have
// nothing to close).
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
