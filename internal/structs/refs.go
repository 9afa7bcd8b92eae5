package structs

import (
	"fmt"
	"sort"

	"structflow/internal/dataflow"
)

// OperandRefs maps each accessing instruction to the struct references its
// memory operand resolves to, written "name.field_x" or "name.field_x-0x8"
// when the base register pointed 8 bytes into the struct. References per
// instruction are sorted and unique.
func OperandRefs(acc dataflow.Accesses, name string) map[uint64][]string {
	sets := make(map[uint64]map[string]struct{})
	for _, k := range acc.Keys() {
		field := name + "." + FieldName(k.Offset)
		for _, o := range acc.Observations(k) {
			ref := field
			if o.Delta != 0 {
				ref = fmt.Sprintf("%s-%#x", field, o.Delta)
			}
			if sets[o.Addr] == nil {
				sets[o.Addr] = make(map[string]struct{})
			}
			sets[o.Addr][ref] = struct{}{}
		}
	}

	out := make(map[uint64][]string, len(sets))
	for addr, set := range sets {
		refs := make([]string, 0, len(set))
		for r := range set {
			refs = append(refs, r)
		}
		sort.Strings(refs)
		out[addr] = refs
	}
	return out
}
