package hfsunicode

import "unicode"

// caseFoldExceptions lists runes where Apple's HFS+ case-fold table (TN1150
// Appendix, derived from Unicode's CaseFolding.txt as it stood for Mac OS
// 8.1) diverges from unicode.ToLower. The canonical table is a verbatim
// 65536-entry mapping; transcribing it in full isn't practical here, so
// this package folds via unicode.ToLower plus the handful of exceptions
// that matter for the common scripts this driver is tested against. See
// DESIGN.md for the precise scope of this gap.
var caseFoldExceptions = map[rune]rune{
	0x0130: 0x0069, // LATIN CAPITAL LETTER I WITH DOT ABOVE -> 'i'
	0x0131: 0x0131, // LATIN SMALL LETTER DOTLESS I folds to itself
	0x00DF: 0x00DF, // LATIN SMALL LETTER SHARP S is not uppercased by HFS+ folding
}

func foldRune(r rune) rune {
	if f, ok := caseFoldExceptions[r]; ok {
		return f
	}
	return unicode.ToLower(r)
}

// CaseFold applies HFS+ case folding to an already-decomposed string, used
// for the default (case-insensitive, case-preserving) "H+" catalog key
// ordering. HFSX volumes skip this and compare the decomposed form as-is.
func CaseFold(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		runes[i] = foldRune(r)
	}
	return string(runes)
}
