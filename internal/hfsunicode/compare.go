package hfsunicode

// Compare orders two names the way an HFS+ B-tree key comparison does: both
// names are decomposed, case-folded unless caseSensitive (an HFSX volume)
// requests otherwise, then compared UTF-16 code unit by code unit, which is
// the ordering the on-disk B-tree was built with.
func Compare(a, b string, caseSensitive bool) int {
	da := Decompose(a)
	db := Decompose(b)
	if !caseSensitive {
		da = CaseFold(da)
		db = CaseFold(db)
	}

	ua := rawUTF16Units(da)
	ub := rawUTF16Units(db)

	n := len(ua)
	if len(ub) < n {
		n = len(ub)
	}
	for i := 0; i < n; i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	default:
		return 0
	}
}

// Equal reports whether a and b name the same catalog entry under the given
// volume's comparison rule.
func Equal(a, b string, caseSensitive bool) bool {
	return Compare(a, b, caseSensitive) == 0
}

// Comparator is a Compare closed over a volume's case-sensitivity, in the
// shape internal/btree's generic tree wants for ordering string keys.
type Comparator func(a, b string) int

// NewComparator returns a Comparator bound to caseSensitive.
func NewComparator(caseSensitive bool) Comparator {
	return func(a, b string) int { return Compare(a, b, caseSensitive) }
}
