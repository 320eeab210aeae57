// Package hfsunicode implements the Unicode handling HFS+ requires for
// catalog names: UTF-16BE transcoding, the HFS+-specific (non-standard)
// canonical decomposition used for key comparison, case folding, and the
// resulting key ordering consumed by internal/btree.
package hfsunicode

import (
	"unicode/utf16"

	"github.com/macfs/hfsplus/internal/hfserr"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var be16 = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// DecodeName converts an on-disk catalog/attribute key name — UTF-16BE code
// units, as stored in HFSUniStr255 — into a Go string. HFS+ reserves ':' as
// the only disallowed character in a stored name (Mac OS used it as a path
// separator); POSIX layers instead forbid '/', so a stored name containing
// literal '/' is presented here as ':' and vice versa in EncodeName,
// matching the classic Mac OS X translation behavior at the filesystem
// boundary.
func DecodeName(raw []byte) (string, error) {
	if len(raw)%2 != 0 {
		return "", hfserr.New(hfserr.InvalidName, "hfsunicode.DecodeName", "")
	}
	dec := be16.NewDecoder()
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", hfserr.Wrap(hfserr.InvalidName, "hfsunicode.DecodeName", "", err)
	}
	runes := []rune(string(out))
	for i, r := range runes {
		if r == '/' {
			runes[i] = ':'
		}
	}
	return string(runes), nil
}

// EncodeName converts a POSIX-presented name back into on-disk UTF-16BE
// bytes for key construction, applying the inverse ':' -> '/' mapping.
func EncodeName(name string) ([]byte, error) {
	runes := []rune(name)
	for i, r := range runes {
		if r == ':' {
			runes[i] = '/'
		}
	}
	enc := be16.NewEncoder()
	out, _, err := transform.Bytes(enc, []byte(string(runes)))
	if err != nil {
		return nil, hfserr.Wrap(hfserr.InvalidName, "hfsunicode.EncodeName", name, err)
	}
	return out, nil
}

// rawUTF16Units returns the UTF-16 code units of s without any decoding
// validation, used internally by Compare where s has already round-tripped
// through DecodeName.
func rawUTF16Units(s string) []uint16 {
	return utf16.Encode([]rune(s))
}
