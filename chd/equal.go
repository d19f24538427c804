package chd

// Equal reports whether a and b archive the same (key, value) multiset,
// regardless of internal slot permutation: spec.md §4.4 "Equality of two
// archived maps: same length and, for every (k,v) in one, other.get(k)
// yields an equal value. Key-wise order irrelevant." V must be comparable
// since the archive only ever hands back decoded values, not a
// user-supplied equality function.
func Equal[K any, V comparable](a, b *View[K, V]) bool {
	if a.Len() != b.Len() {
		return false
	}
	it := a.Iter()
	for it.Next() {
		k, v := it.KeyValue()
		ov, ok := b.Get(k)
		if !ok || ov != v {
			return false
		}
	}
	return true
}
