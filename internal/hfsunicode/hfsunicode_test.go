package hfsunicode

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []string{
		"hello world",
		"café",
		"日本語",
		"a:b", // POSIX-presented colon
	}
	for _, name := range cases {
		raw, err := EncodeName(name)
		if err != nil {
			t.Fatalf("EncodeName(%q): %v", name, err)
		}
		got, err := DecodeName(raw)
		if err != nil {
			t.Fatalf("DecodeName(%q): %v", name, err)
		}
		if got != name {
			t.Errorf("round trip %q -> %q, want %q", name, got, name)
		}
	}
}

func TestDecodeNameSlashBecomesColon(t *testing.T) {
	raw, err := EncodeName("weird:name")
	if err != nil {
		t.Fatalf("EncodeName: %v", err)
	}
	// On disk this is stored with a literal '/' in place of the POSIX ':'.
	got, err := DecodeName(raw)
	if err != nil {
		t.Fatalf("DecodeName: %v", err)
	}
	if got != "weird:name" {
		t.Fatalf("got %q, want weird:name", got)
	}
}

func TestDecodeNameOddLength(t *testing.T) {
	_, err := DecodeName([]byte{0x00})
	if err == nil {
		t.Fatal("expected error for odd-length UTF-16 buffer")
	}
}

func TestDecomposeCafe(t *testing.T) {
	precomposed := "café" // e-acute as a single code point
	decomposed := "café" // plain e + combining acute accent
	got := Decompose(precomposed)
	if got != decomposed {
		t.Errorf("Decompose(%q) = %q, want %q", precomposed, got, decomposed)
	}
	// Decomposing an already-decomposed string is idempotent.
	if got2 := Decompose(got); got2 != got {
		t.Errorf("Decompose not idempotent: %q -> %q", got, got2)
	}
}

func TestDecomposeExcludesCompatibilityIdeograph(t *testing.T) {
	s := "豈" // CJK COMPATIBILITY IDEOGRAPH-F900
	got := Decompose(s)
	if got != s {
		t.Errorf("Decompose(%q) = %q, want unchanged (gated out of decomposition)", s, got)
	}
}

func TestCompareCaseInsensitiveByDefault(t *testing.T) {
	if Compare("README", "readme", false) != 0 {
		t.Error("expected case-insensitive equality on H+ volumes")
	}
	if Compare("README", "readme", true) == 0 {
		t.Error("expected case-sensitive inequality on HFSX volumes")
	}
}

func TestCompareOrdersByCodeUnit(t *testing.T) {
	if Compare("apple", "banana", false) >= 0 {
		t.Error("expected apple < banana")
	}
	if Compare("file1", "file10", false) >= 0 {
		t.Error("expected file1 < file10 (shorter prefix sorts first)")
	}
}

func TestCompareTreatsPrecomposedAndDecomposedAsEqual(t *testing.T) {
	precomposed := "café"
	decomposed := "café"
	if Compare(precomposed, decomposed, false) != 0 {
		t.Error("expected precomposed and decomposed forms to compare equal")
	}
}
