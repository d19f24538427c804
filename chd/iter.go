package chd

// Iter walks every archived entry in slot order. Slot order is an
// implementation artifact of the CHD placement, not insertion order or any
// sorted order (spec.md §4.4 "Iteration", §9) — every one of the map's n
// entry-table slots holds exactly one entry, since Build assigns exactly n
// items to exactly n slots, so Iter never has to skip holes.
type Iter[K any, V any] struct {
	v    *View[K, V]
	slot int
}

// Iter returns a fresh iterator positioned before the first entry.
func (v *View[K, V]) Iter() *Iter[K, V] {
	return &Iter[K, V]{v: v, slot: -1}
}

// Next advances the iterator and reports whether an entry was found.
func (it *Iter[K, V]) Next() bool {
	it.slot++
	return it.slot < it.v.len
}

// Key returns the current entry's archived key. Valid only after a Next
// that returned true.
func (it *Iter[K, V]) Key() K {
	pos := it.v.entryPos(it.slot)
	return it.v.kc.Read(it.v.archive, pos)
}

// Value returns the current entry's archived value. Valid only after a
// Next that returned true.
func (it *Iter[K, V]) Value() V {
	pos := it.v.entryPos(it.slot)
	return it.v.vc.Read(it.v.archive, pos+int64(it.v.kc.Size()))
}

// KeyValue returns both the current entry's key and value in one call.
func (it *Iter[K, V]) KeyValue() (K, V) {
	return it.Key(), it.Value()
}

// Keys returns every archived key, in slot order.
func (v *View[K, V]) Keys() []K {
	out := make([]K, 0, v.len)
	it := v.Iter()
	for it.Next() {
		out = append(out, it.Key())
	}
	return out
}

// Values returns every archived value, in slot order.
func (v *View[K, V]) Values() []V {
	out := make([]V, 0, v.len)
	it := v.Iter()
	for it.Next() {
		out = append(out, it.Value())
	}
	return out
}

// PinIter walks every archived entry with mutable access to its value,
// mirroring rkyv's RawIterPin / IterPin family (spec.md §4.4, §7).
type PinIter[K any, V any] struct {
	v    *FixedView[K, V]
	slot int
}

// PinIter returns a fresh pinned iterator positioned before the first
// entry.
func (v *FixedView[K, V]) PinIter() *PinIter[K, V] {
	return &PinIter[K, V]{v: v, slot: -1}
}

// Next advances the pinned iterator.
func (it *PinIter[K, V]) Next() bool {
	it.slot++
	return it.slot < it.v.len
}

// Key returns the current entry's archived key.
func (it *PinIter[K, V]) Key() K {
	pos := it.v.entryPos(it.slot)
	return it.v.kc.Read(it.v.archive, pos)
}

// Pinned returns a mutable handle onto the current entry's value.
func (it *PinIter[K, V]) Pinned() PinnedValue[V] {
	pos := it.v.entryPos(it.slot)
	return PinnedValue[V]{
		archive: it.v.archive,
		pos:     pos + int64(it.v.kc.Size()),
		vc:      it.v.fvc,
	}
}
