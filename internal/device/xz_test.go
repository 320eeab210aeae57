package device

import (
	"bytes"
	"strings"
	"testing"
)

func TestAccumReaderAtGrowsOnDemand(t *testing.T) {
	src := strings.NewReader("the quick brown fox jumps over the lazy dog")
	a := newAccumReaderAt(src)

	first := make([]byte, 9)
	n, err := a.ReadAt(first, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 9 || string(first) != "the quick" {
		t.Fatalf("got %q, want %q", first[:n], "the quick")
	}

	second := make([]byte, 5)
	n, err = a.ReadAt(second, 10)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(second[:n]) != "brown" {
		t.Fatalf("got %q, want %q", second[:n], "brown")
	}
}

func TestAccumReaderAtEOF(t *testing.T) {
	a := newAccumReaderAt(strings.NewReader("short"))
	buf := make([]byte, 20)
	n, err := a.ReadAt(buf, 0)
	if n != 5 {
		t.Fatalf("n = %d, want 5", n)
	}
	if err == nil {
		t.Fatal("expected EOF on a too-long read")
	}
	if !bytes.Equal(buf[:n], []byte("short")) {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestAccumReaderAtPastEOF(t *testing.T) {
	a := newAccumReaderAt(strings.NewReader("abc"))
	buf := make([]byte, 4)
	n, err := a.ReadAt(buf, 10)
	if n != 0 || err == nil {
		t.Fatalf("ReadAt past EOF = (%d, %v), want (0, non-nil)", n, err)
	}
}
