package dataflow

import (
	"fmt"
	"sort"
)

// Key identifies an access by its offset into the region and its size in
// bytes. Offsets are 64-bit wrapped, so a negative displacement off a small
// offset shows up as a very large Offset.
type Key struct {
	Offset uint64
	Size   int
}

func (k Key) String() string {
	return fmt.Sprintf("(%#x, %d)", k.Offset, k.Size)
}

// Observation is one instruction making an access, together with the offset
// its base register held at the time.
type Observation struct {
	Addr  uint64
	Delta int64
}

// Accesses maps each (offset, size) to the set of observations of it. A nil
// Accesses is empty and read-only.
type Accesses map[Key]map[Observation]struct{}

// NewAccesses returns an empty, writable access record.
func NewAccesses() Accesses {
	return make(Accesses)
}

// Add records one observation.
func (a Accesses) Add(k Key, o Observation) {
	set, ok := a[k]
	if !ok {
		set = make(map[Observation]struct{})
		a[k] = set
	}
	set[o] = struct{}{}
}

// Merge unions other into a.
func (a Accesses) Merge(other Accesses) {
	for k, set := range other {
		for o := range set {
			a.Add(k, o)
		}
	}
}

// Len is the number of distinct keys.
func (a Accesses) Len() int {
	return len(a)
}

// Keys returns the keys ordered by offset, then size.
func (a Accesses) Keys() []Key {
	keys := make([]Key, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Offset != keys[j].Offset {
			return keys[i].Offset < keys[j].Offset
		}
		return keys[i].Size < keys[j].Size
	})
	return keys
}

// Observations returns the observations of k ordered by address, then delta.
func (a Accesses) Observations(k Key) []Observation {
	set := a[k]
	out := make([]Observation, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Addr != out[j].Addr {
			return out[i].Addr < out[j].Addr
		}
		return out[i].Delta < out[j].Delta
	})
	return out
}

// Equal reports whether a and b hold the same keys and observation sets.
func (a Accesses) Equal(b Accesses) bool {
	if len(a) != len(b) {
		return false
	}
	for k, set := range a {
		other, ok := b[k]
		if !ok || len(other) != len(set) {
			return false
		}
		for o := range set {
			if _, ok := other[o]; !ok {
				return false
			}
		}
	}
	return true
}

// Addresses projects the record onto instruction addresses, dropping deltas.
// Each address list is sorted and free of duplicates.
func Addresses(a Accesses) map[Key][]uint64 {
	out := make(map[Key][]uint64, len(a))
	for k := range a {
		var addrs []uint64
		for _, o := range a.Observations(k) {
			if n := len(addrs); n > 0 && addrs[n-1] == o.Addr {
				continue
			}
			addrs = append(addrs, o.Addr)
		}
		out[k] = addrs
	}
	return out
}
