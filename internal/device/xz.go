package device

import (
	"io"

	"github.com/therootcompany/xz"
)

// accumReaderAt adapts a sequential io.Reader to io.ReaderAt by buffering
// everything read so far and growing the buffer on demand. It mirrors the
// teacher's internal/hfs accumReader, used there to let a purely sequential
// decompression stream stand in for a seekable disk image. Like that
// original, it is not safe for concurrent use; with the block cache enabled
// (the default) callers reach it through CachedReaderAt's mutex, while
// WithCache(0, …) hands it to the Device without that serialization.
type accumReaderAt struct {
	r      io.Reader
	buffer []byte
	eof    bool
}

func newAccumReaderAt(r io.Reader) *accumReaderAt {
	return &accumReaderAt{r: r}
}

func (a *accumReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.ErrShortBuffer
	}
	need := off + int64(len(p))

	for int64(len(a.buffer)) < need && !a.eof {
		chunk := make([]byte, 32*1024)
		n, err := a.r.Read(chunk)
		if n > 0 {
			a.buffer = append(a.buffer, chunk[:n]...)
		}
		if err != nil {
			a.eof = true
			if err != io.EOF {
				return 0, err
			}
		}
	}

	if off >= int64(len(a.buffer)) {
		return 0, io.EOF
	}
	end := need
	if end > int64(len(a.buffer)) {
		end = int64(len(a.buffer))
	}
	n := copy(p, a.buffer[off:end])
	if end < need {
		return n, io.EOF
	}
	return n, nil
}

// openXZ wraps r, a raw ".xz" stream, so a compressed fixture image can be
// opened as though it were an ordinary seekable device.
func openXZ(r io.Reader) (io.ReaderAt, error) {
	xr, err := xz.NewReader(r, 0)
	if err != nil {
		return nil, err
	}
	return newAccumReaderAt(xr), nil
}
