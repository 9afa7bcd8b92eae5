// Package structs turns recovered accesses into a struct layout with one
// member per accessed (offset, size) and renders it as C.
package structs

import (
	"errors"
	"fmt"
	"strings"

	"structflow/internal/dataflow"
)

// DefaultMaxDelta bounds seed deltas and field offsets.
const DefaultMaxDelta = 0x1000000

// ErrBadDelta is returned for seed deltas outside [0, limit].
var ErrBadDelta = errors.New("invalid delta")

// ValidateDelta checks a seed delta against the allowed range [0, limit].
func ValidateDelta(delta, limit int64) error {
	if delta < 0 || delta > limit {
		return fmt.Errorf("%w %#x: must be within [0, %#x]", ErrBadDelta, delta, limit)
	}
	return nil
}

// FieldName is the name given to the member at offset.
func FieldName(offset uint64) string {
	return fmt.Sprintf("field_%x", offset)
}

// Field is one struct member.
type Field struct {
	Name   string
	Offset uint64
	Size   int
	// Addrs are the instructions that access the field, ascending.
	Addrs []uint64
}

// End is the offset just past the field.
func (f Field) End() uint64 {
	return f.Offset + uint64(f.Size)
}

func (f Field) overlaps(o Field) bool {
	return f.Offset < o.End() && o.Offset < f.End()
}

// Rejection is an access that could not become a member.
type Rejection struct {
	Field  Field
	Reason string
}

// Layout is a struct built from accesses. Fields are sorted by offset and
// never overlap.
type Layout struct {
	Name     string
	Fields   []Field
	Rejected []Rejection
}

// FromAccesses builds a layout from acc. Keys are taken in (offset, size)
// order; a key overlapping an earlier member, or lying past maxOffset, is
// rejected rather than added. A zero maxOffset means DefaultMaxDelta.
func FromAccesses(name string, acc dataflow.Accesses, maxOffset uint64) *Layout {
	if maxOffset == 0 {
		maxOffset = DefaultMaxDelta
	}
	addrs := dataflow.Addresses(acc)
	l := &Layout{Name: name}
	for _, k := range acc.Keys() {
		f := Field{Name: FieldName(k.Offset), Offset: k.Offset, Size: k.Size, Addrs: addrs[k]}
		if f.Offset > maxOffset || f.End() < f.Offset {
			l.Rejected = append(l.Rejected, Rejection{Field: f, Reason: "offset out of range"})
			continue
		}
		if prev, ok := l.overlapping(f); ok {
			l.Rejected = append(l.Rejected, Rejection{
				Field:  f,
				Reason: fmt.Sprintf("overlaps %s (%#x, %d)", prev.Name, prev.Offset, prev.Size),
			})
			continue
		}
		l.Fields = append(l.Fields, f)
	}
	return l
}

func (l *Layout) overlapping(f Field) (Field, bool) {
	// Keys arrive in offset order, so only the last member can overlap.
	if n := len(l.Fields); n > 0 && l.Fields[n-1].overlaps(f) {
		return l.Fields[n-1], true
	}
	return Field{}, false
}

// Size is the offset just past the last member.
func (l *Layout) Size() uint64 {
	if len(l.Fields) == 0 {
		return 0
	}
	return l.Fields[len(l.Fields)-1].End()
}

// Field returns the member starting at offset.
func (l *Layout) Field(offset uint64) (Field, bool) {
	for _, f := range l.Fields {
		if f.Offset == offset {
			return f, true
		}
	}
	return Field{}, false
}

var cTypes = map[int]string{
	1: "uint8_t",
	2: "uint16_t",
	4: "uint32_t",
	8: "uint64_t",
}

// CDecl renders the layout as a C struct, filling gaps with byte arrays.
func (l *Layout) CDecl() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "struct %s {\n", l.Name)
	var at uint64
	for _, f := range l.Fields {
		if f.Offset > at {
			fmt.Fprintf(&sb, "\tuint8_t  pad_%x[%#x];\n", at, f.Offset-at)
		}
		if typ, ok := cTypes[f.Size]; ok {
			fmt.Fprintf(&sb, "\t%-8s %s;\t// +%#x\n", typ, f.Name, f.Offset)
		} else {
			fmt.Fprintf(&sb, "\tuint8_t  %s[%d];\t// +%#x\n", f.Name, f.Size, f.Offset)
		}
		at = f.End()
	}
	sb.WriteString("};\n")
	return sb.String()
}
