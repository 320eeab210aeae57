package device

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"
)

// CachedReaderAt wraps a backing io.ReaderAt with a fixed-size admission
// cache of fixed-size blocks plus a few blocks of grace read-ahead beyond
// every cold fetch. It is grounded on the teacher's internal/spinner
// concurrent block pool, which served B-tree node and fork reads from a
// github.com/dgryski/go-tinylfu cache behind a job-multiplexing goroutine;
// this reimplementation keeps the tinylfu admission policy and the
// read-ahead idea but serializes through a plain sync.Mutex instead of a
// channel-based worker, since the HFS+ driver has no analogous "many
// readers sharing one seekable disk handle" contention to amortize.
type CachedReaderAt struct {
	mu        sync.Mutex
	backing   io.ReaderAt
	blockSize int64
	grace     int
	cache     *tinylfu.T[int64, []byte]
}

// NewCachedReaderAt builds a cache over backing with blockSize-sized
// entries, room for nBlocks of them, and graceBlocks of read-ahead issued
// after every cache miss.
func NewCachedReaderAt(backing io.ReaderAt, blockSize int64, nBlocks, graceBlocks int) *CachedReaderAt {
	if blockSize <= 0 {
		blockSize = 4096
	}
	if nBlocks <= 0 {
		nBlocks = 256
	}
	return &CachedReaderAt{
		backing:   backing,
		blockSize: blockSize,
		grace:     graceBlocks,
		cache:     tinylfu.New[int64, []byte](nBlocks, nBlocks*10, hashBlockKey),
	}
}

func hashBlockKey(k int64) uint64 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(k))
	return xxhash.Sum64(b[:])
}

// ReadAt satisfies io.ReaderAt by carving the request into cache-sized
// blocks, each served from the cache or fetched and admitted on a miss.
func (c *CachedReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.ErrShortBuffer
	}
	total := 0
	for total < len(p) {
		pos := off + int64(total)
		block := pos / c.blockSize
		blockOff := int(pos % c.blockSize)

		data, err := c.readBlock(block)
		if blockOff >= len(data) {
			if err == nil {
				err = io.EOF
			}
			return total, err
		}

		n := copy(p[total:], data[blockOff:])
		total += n

		if len(data) < int(c.blockSize) && total < len(p) {
			// the backing reader ran out mid-block: short final block.
			return total, io.EOF
		}
	}
	return total, nil
}

// readBlock returns the cached contents of the given block index, fetching
// and admitting it (plus grace read-ahead) on a miss. A non-nil error is
// only ever io.EOF for a final partial block, or a genuine backing error.
func (c *CachedReaderAt) readBlock(block int64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.cache.Get(block); ok {
		return data, nil
	}

	buf, err := c.fetch(block)
	c.cache.Add(block, buf)
	if err != nil && err != io.EOF {
		return buf, err
	}

	for g := 1; g <= c.grace; g++ {
		ahead := block + int64(g)
		if _, ok := c.cache.Get(ahead); ok {
			continue
		}
		aheadBuf, aerr := c.fetch(ahead)
		if len(aheadBuf) > 0 {
			c.cache.Add(ahead, aheadBuf)
		}
		if aerr != nil {
			break
		}
	}

	return buf, err
}

func (c *CachedReaderAt) fetch(block int64) ([]byte, error) {
	buf := make([]byte, c.blockSize)
	n, err := c.backing.ReadAt(buf, block*c.blockSize)
	buf = buf[:n]
	if err != nil && err != io.EOF {
		return buf, err
	}
	if n < int(c.blockSize) {
		return buf, io.EOF
	}
	return buf, nil
}
