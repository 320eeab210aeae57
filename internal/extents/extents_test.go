package extents

import (
	"bytes"
	"io"
	"testing"

	"github.com/macfs/hfsplus/internal/device"
)

func fillBlocks(size int, pattern byte) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = pattern
	}
	return b
}

func TestForkReaderReadsInlineExtent(t *testing.T) {
	const blockSize = 512
	data := fillBlocks(blockSize*4, 0)
	copy(data[blockSize:], bytes.Repeat([]byte("hello world!"), 20))

	dev := device.WrapReaderAt(&sliceReaderAt{data}, blockSize, device.WithCache(0, 0))
	fork := ForkData{
		LogicalSize: 100,
		TotalBlocks: 1,
		Extents:     [8]ExtentDescriptor{{StartBlock: 1, BlockCount: 1}},
	}
	fr := NewForkReader(dev, 0, blockSize, fork, 20, ForkTypeData, nil)

	buf := make([]byte, 12)
	n, err := fr.ReadAt(buf, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 12 || string(buf) != "hello world!" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestForkReaderClipsToLogicalSize(t *testing.T) {
	const blockSize = 512
	data := fillBlocks(blockSize*2, 0xAA)
	dev := device.WrapReaderAt(&sliceReaderAt{data}, blockSize, device.WithCache(0, 0))
	fork := ForkData{
		LogicalSize: 10,
		TotalBlocks: 1,
		Extents:     [8]ExtentDescriptor{{StartBlock: 0, BlockCount: 1}},
	}
	fr := NewForkReader(dev, 0, blockSize, fork, 20, ForkTypeData, nil)

	buf := make([]byte, 100)
	n, err := fr.ReadAt(buf, 0)
	if n != 10 {
		t.Fatalf("n = %d, want 10", n)
	}
	if err == nil {
		t.Fatal("expected an error for a read extending past logical size")
	}
}

func TestForkReaderChasesOverflow(t *testing.T) {
	const blockSize = 512
	data := fillBlocks(blockSize*4, 0)
	copy(data[0:], bytes.Repeat([]byte{1}, blockSize))
	copy(data[blockSize:], bytes.Repeat([]byte{2}, blockSize))

	dev := device.WrapReaderAt(&sliceReaderAt{data}, blockSize, device.WithCache(0, 0))

	chase := func(forkType uint8, cnid, startBlock uint32) ([]ExtentDescriptor, error) {
		if startBlock != 1 {
			t.Fatalf("unexpected startBlock %d", startBlock)
		}
		return []ExtentDescriptor{{StartBlock: 1, BlockCount: 1}}, nil
	}

	fork := ForkData{
		LogicalSize: blockSize * 2,
		TotalBlocks: 2,
		Extents:     [8]ExtentDescriptor{{StartBlock: 0, BlockCount: 1}},
	}
	fr := NewForkReader(dev, 0, blockSize, fork, 20, ForkTypeData, chase)

	buf := make([]byte, blockSize*2)
	n, err := fr.ReadAt(buf, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != blockSize*2 {
		t.Fatalf("n = %d", n)
	}
	if buf[0] != 1 || buf[blockSize] != 2 {
		t.Fatalf("extent ordering wrong: %v / %v", buf[0], buf[blockSize])
	}
}

func TestForkReaderRejectsExtentBeyondVolume(t *testing.T) {
	const blockSize = 512
	dev := device.WrapReaderAt(&sliceReaderAt{fillBlocks(blockSize*2, 0)}, blockSize, device.WithCache(0, 0))
	fork := ForkData{
		LogicalSize: blockSize,
		TotalBlocks: 1,
		Extents:     [8]ExtentDescriptor{{StartBlock: 100, BlockCount: 1}},
	}
	fr := NewForkReader(dev, 0, blockSize, fork, 20, ForkTypeData, nil)
	if err := fr.ValidateAgainst(10); err == nil {
		t.Fatal("expected Corrupt for an extent beyond total volume blocks")
	}
}

type sliceReaderAt struct{ data []byte }

func (s *sliceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
