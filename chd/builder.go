package chd

import (
	"encoding/binary"
	"sort"

	"github.com/opencoff/go-archive/relptr"
	"github.com/opencoff/go-archive/serialize"
)

const (
	seedLowBit           = uint32(0x8000_0000)
	sentinelDisplacement = uint32(0xFFFF_FFFF)
	maxEntries           = 1 << 31
)

// HeaderSize is the fixed byte size of an archived map header: len (4
// bytes) + displace_ptr (4 bytes) + entries_ptr (4 bytes), per spec.md §6.
const HeaderSize = 4 + relptr.Size32 + relptr.Size32

// seedTrial tracks entry-table slot occupancy during Build's placement
// loop: taken holds every slot a prior bucket has permanently claimed, and
// trial marks which slots the bucket currently under seed search has
// tentatively claimed this attempt, stamped with attempt's own id so a
// fresh attempt never needs to zero anything out. A multi-member bucket
// retries with a new seed until every one of its members lands on a slot
// that is neither permanently taken nor already claimed earlier in the
// same attempt.
type seedTrial struct {
	taken []bool
	trial []int32
	id    int32
}

func newSeedTrial(n int) *seedTrial {
	trial := make([]int32, n)
	for i := range trial {
		trial[i] = -1
	}
	return &seedTrial{taken: make([]bool, n), trial: trial, id: -1}
}

// start begins a fresh tentative seed attempt.
func (s *seedTrial) start() { s.id++ }

// claim tentatively claims slot for the current attempt, reporting false
// if the slot is already permanently taken or was already claimed earlier
// in this same attempt.
func (s *seedTrial) claim(slot int) bool {
	if s.taken[slot] || s.trial[slot] == s.id {
		return false
	}
	s.trial[slot] = s.id
	return true
}

// commit permanently takes every slot in slots, the ones the just-finished
// attempt claimed.
func (s *seedTrial) commit(slots []int) {
	for _, slot := range slots {
		s.taken[slot] = true
	}
}

// take permanently claims slot outside of any attempt, for the
// single-member bucket path which never needs a tentative phase.
func (s *seedTrial) take(slot int) { s.taken[slot] = true }

// Resolver carries the byte positions Build wrote its two blocks at. It is
// the Go realization of rkyv's HashMapResolver, handed to WriteHeader once
// the header's own position is known (spec.md §4.3 "Serialize").
type Resolver struct {
	Len         int
	DisplacePos int64
	EntriesPos  int64
}

// Build runs the compress-hash-displace construction over items (spec.md
// §4.3) and serializes the resulting displacements and entries blocks via
// ser. Keys in items must be unique and len(items) must be < 2^31; neither
// is checked beyond the count, matching spec.md's stated precondition.
func Build[K any, V any](items []KV[K, V], kc serialize.Codec[K], vc serialize.Codec[V], ser serialize.Serializer) (*Resolver, error) {
	n := len(items)
	if n >= maxEntries {
		return nil, ErrTooManyEntries
	}
	if n == 0 {
		return buildEmpty(kc, vc, ser)
	}

	// Step 1: bucket every key by its first-level hash.
	bucketOf := make([]uint32, n)
	bucketSize := make([]uint32, n)
	for i := range items {
		d := uint32(h1[K](kc, items[i].Key, n))
		bucketOf[i] = d
		bucketSize[d]++
	}

	// Step 2: order items by (descending bucket size, ascending bucket
	// id), stable so items within one bucket keep input order.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		di, dj := bucketOf[order[i]], bucketOf[order[j]]
		si, sj := bucketSize[di], bucketSize[dj]
		if si != sj {
			return si > sj
		}
		return di < dj
	})

	// Step 3: initialize placement state.
	slotOf := make([]int, n) // slotOf[slot] = item index, -1 if empty
	for i := range slotOf {
		slotOf[i] = -1
	}
	displacements := make([]uint32, n)
	for i := range displacements {
		displacements[i] = sentinelDisplacement
	}

	trial := newSeedTrial(n)
	assign := make([]int, 0, 8)

	// Step 4: place buckets in the chosen order.
	firstEmpty := 0
	start := 0
	for start < n {
		d := bucketOf[order[start]]
		size := int(bucketSize[d])
		bucket := order[start : start+size]
		start += size

		switch {
		case size > 1:
			seed, placed := seedLowBit, false
			for {
				trial.start()
				assign = assign[:0]
				ok := true
				for _, itemIdx := range bucket {
					slot := h2[K](kc, seed, items[itemIdx].Key, n)
					if !trial.claim(slot) {
						ok = false
						break
					}
					assign = append(assign, slot)
				}
				if ok {
					trial.commit(assign)
					for i, itemIdx := range bucket {
						slotOf[assign[i]] = itemIdx
					}
					displacements[d] = seed
					placed = true
					break
				}
				if seed == 0xFFFF_FFFF {
					break
				}
				seed++
			}
			if !placed {
				return nil, &SeedExhaustedError{Bucket: int(d), Size: size}
			}

		default: // size == 1
			for slotOf[firstEmpty] != -1 {
				firstEmpty++
			}
			idx := firstEmpty
			slotOf[idx] = bucket[0]
			displacements[d] = uint32(idx) // high bit clear: idx < n < 2^31
			trial.take(idx)
			firstEmpty++
		}
	}

	return serializeMap(items, slotOf, displacements, kc, vc, ser)
}

func buildEmpty[K any, V any](kc serialize.Codec[K], vc serialize.Codec[V], ser serialize.Serializer) (*Resolver, error) {
	displacePos, err := ser.AlignFor(4)
	if err != nil {
		return nil, err
	}
	entriesPos, err := ser.AlignFor(entryAlign(kc, vc))
	if err != nil {
		return nil, err
	}
	return &Resolver{Len: 0, DisplacePos: displacePos, EntriesPos: entriesPos}, nil
}

func entryAlign[K any, V any](kc serialize.Codec[K], vc serialize.Codec[V]) int {
	a := kc.Align()
	if vc.Align() > a {
		a = vc.Align()
	}
	return a
}

// resolverPair holds the two per-entry resolvers returned by the keys' and
// values' Serialize, kept around until the entries block's final position
// is known.
type resolverPair struct {
	key any
	val any
}

func serializeMap[K any, V any](items []KV[K, V], slotOf []int, displacements []uint32, kc serialize.Codec[K], vc serialize.Codec[V], ser serialize.Serializer) (*Resolver, error) {
	n := len(slotOf)

	// Archive entries' out-of-line data first (in final slot order), the
	// way rkyv's serialize_from_iter archives resolvers before writing
	// the displacements or entries blocks.
	resolvers := make([]resolverPair, n)
	for slot, itemIdx := range slotOf {
		kr, err := kc.Serialize(items[itemIdx].Key, ser)
		if err != nil {
			return nil, err
		}
		vr, err := vc.Serialize(items[itemIdx].Val, ser)
		if err != nil {
			return nil, err
		}
		resolvers[slot] = resolverPair{key: kr, val: vr}
	}

	displacePos, err := ser.AlignFor(4)
	if err != nil {
		return nil, err
	}
	dbuf := make([]byte, 4*n)
	for i, d := range displacements {
		binary.LittleEndian.PutUint32(dbuf[i*4:], d)
	}
	if _, err := ser.Write(dbuf); err != nil {
		return nil, err
	}

	entrySize := kc.Size() + vc.Size()
	entriesPos, err := ser.AlignFor(entryAlign(kc, vc))
	if err != nil {
		return nil, err
	}

	buf := make([]byte, entrySize)
	for slot, itemIdx := range slotOf {
		pos := entriesPos + int64(slot)*int64(entrySize)
		kc.Resolve(pos, items[itemIdx].Key, resolvers[slot].key, buf[0:kc.Size()])
		vc.Resolve(pos+int64(kc.Size()), items[itemIdx].Val, resolvers[slot].val, buf[kc.Size():entrySize])
		if _, err := ser.Write(buf); err != nil {
			return nil, err
		}
	}

	return &Resolver{Len: n, DisplacePos: displacePos, EntriesPos: entriesPos}, nil
}

// WriteHeader resolves and writes the archived map's fixed 3-field header
// (spec.md §3 "Archived map header") at the serializer's current
// (4-byte-aligned) position, returning that position — the value callers
// pass to Open as the map's header position.
func WriteHeader(ser serialize.Serializer, r *Resolver) (int64, error) {
	pos, err := ser.AlignFor(4)
	if err != nil {
		return 0, err
	}

	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Len))

	displaceField := pos + 4
	if err := relptr.Emplace32(displaceField, r.DisplacePos, buf[4:8]); err != nil {
		return 0, err
	}
	entriesField := pos + 8
	if err := relptr.Emplace32(entriesField, r.EntriesPos, buf[8:12]); err != nil {
		return 0, err
	}

	if _, err := ser.Write(buf[:]); err != nil {
		return 0, err
	}
	return pos, nil
}
