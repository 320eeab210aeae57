package hfsunicode

import "golang.org/x/text/unicode/norm"

// inRange reports whether r takes part in HFS+'s variant canonical
// decomposition at all: all of U+0000..U+FFFF except U+2000..U+2FFF and
// U+F900..U+FAFF (TN1150's gating ranges). Codepoints outside the BMP pass
// through completely unchanged, neither decomposed nor reordered, and act
// as fixed barriers the same way a base character does — matching a
// standard Unicode NFD implementation would decompose the CJK
// Compatibility Ideographs block and the General Punctuation block, which
// is exactly the divergence this driver must reproduce bit for bit.
func inRange(r rune) bool {
	if r > 0xFFFF {
		return false
	}
	if r >= 0x2000 && r <= 0x2FFF {
		return false
	}
	if r >= 0xF900 && r <= 0xFAFF {
		return false
	}
	return true
}

// Decompose applies HFS+'s gated canonical decomposition to s, then stably
// reorders the resulting combining marks by canonical combining class
// (Unicode's canonical ordering algorithm), skipping any rune outside the
// decomposition range as a reordering barrier. The decomposition mapping
// and combining-class values themselves are read through
// golang.org/x/text/unicode/norm's per-rune Properties accessor — a data
// source, not the NFD transform — so the gating logic above and the
// ordering loop below are this package's own algorithm, not a delegated
// normalization call. See DESIGN.md for the exact boundary.
func Decompose(s string) string {
	var out []rune
	for _, r := range s {
		if !inRange(r) {
			out = append(out, r)
			continue
		}
		if d := decomposition(r); len(d) > 0 {
			out = append(out, d...)
		} else {
			out = append(out, r)
		}
	}
	return string(reorderCombining(out))
}

func decomposition(r rune) []rune {
	p := norm.NFD.Properties([]byte(string(r)))
	d := p.Decomposition()
	if len(d) == 0 {
		return nil
	}
	return []rune(string(d))
}

// effectiveCCC returns r's canonical combining class for reordering
// purposes: 0 (a fixed barrier) for any rune outside the HFS+ decomposition
// range, regardless of its real Unicode combining class.
func effectiveCCC(r rune) uint8 {
	if !inRange(r) {
		return 0
	}
	return norm.NFD.Properties([]byte(string(r))).CCC()
}

// reorderCombining stably sorts each maximal run of non-zero effective
// combining class runes by that class, leaving class-0 runes (including
// every out-of-range rune) as run boundaries.
func reorderCombining(runes []rune) []rune {
	out := make([]rune, len(runes))
	copy(out, runes)

	i := 0
	for i < len(out) {
		if effectiveCCC(out[i]) == 0 {
			i++
			continue
		}
		j := i
		for j < len(out) && effectiveCCC(out[j]) != 0 {
			j++
		}
		run := out[i:j]
		// insertion sort: stable, and runs are always short.
		for k := 1; k < len(run); k++ {
			v := run[k]
			vc := effectiveCCC(v)
			m := k - 1
			for m >= 0 && effectiveCCC(run[m]) > vc {
				run[m+1] = run[m]
				m--
			}
			run[m+1] = v
		}
		i = j
	}
	return out
}
