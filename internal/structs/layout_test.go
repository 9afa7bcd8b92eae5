package structs

import (
	"errors"
	"reflect"
	"testing"

	"structflow/internal/dataflow"
)

func sample() dataflow.Accesses {
	acc := dataflow.NewAccesses()
	acc.Add(dataflow.Key{Offset: 0, Size: 8}, dataflow.Observation{Addr: 0x1000})
	acc.Add(dataflow.Key{Offset: 0xc, Size: 4}, dataflow.Observation{Addr: 0x1008, Delta: 8})
	acc.Add(dataflow.Key{Offset: 0xc, Size: 2}, dataflow.Observation{Addr: 0x1004})
	acc.Add(dataflow.Key{Offset: 0x10, Size: 1}, dataflow.Observation{Addr: 0x100c})
	acc.Add(dataflow.Key{Offset: 0x10, Size: 1}, dataflow.Observation{Addr: 0x1010})
	acc.Add(dataflow.Key{Offset: 0xfffffffffffffff8, Size: 8}, dataflow.Observation{Addr: 0x1014})
	return acc
}

func TestFromAccesses(t *testing.T) {
	l := FromAccesses("foo", sample(), 0)

	want := []Field{
		{Name: "field_0", Offset: 0, Size: 8, Addrs: []uint64{0x1000}},
		{Name: "field_c", Offset: 0xc, Size: 2, Addrs: []uint64{0x1004}},
		{Name: "field_10", Offset: 0x10, Size: 1, Addrs: []uint64{0x100c, 0x1010}},
	}
	if !reflect.DeepEqual(l.Fields, want) {
		t.Errorf("fields = %+v, want %+v", l.Fields, want)
	}
	if len(l.Rejected) != 2 {
		t.Fatalf("rejected = %+v, want 2 entries", l.Rejected)
	}
	if r := l.Rejected[0]; r.Field.Offset != 0xc || r.Field.Size != 4 {
		t.Errorf("first rejection = %+v, want the 4-byte access at 0xc", r)
	}
	if r := l.Rejected[1]; r.Reason != "offset out of range" {
		t.Errorf("second rejection = %+v, want out of range", r)
	}
	if got := l.Size(); got != 0x11 {
		t.Errorf("Size = %#x, want 0x11", got)
	}
	if f, ok := l.Field(0xc); !ok || f.Size != 2 {
		t.Errorf("Field(0xc) = %+v, %v", f, ok)
	}
}

func TestCDecl(t *testing.T) {
	l := FromAccesses("foo", sample(), 0)
	want := "struct foo {\n" +
		"\tuint64_t field_0;\t// +0x0\n" +
		"\tuint8_t  pad_8[0x4];\n" +
		"\tuint16_t field_c;\t// +0xc\n" +
		"\tuint8_t  pad_e[0x2];\n" +
		"\tuint8_t  field_10;\t// +0x10\n" +
		"};\n"
	if got := l.CDecl(); got != want {
		t.Errorf("CDecl =\n%s\nwant\n%s", got, want)
	}

	empty := FromAccesses("empty", dataflow.NewAccesses(), 0)
	if got := empty.CDecl(); got != "struct empty {\n};\n" {
		t.Errorf("empty CDecl = %q", got)
	}
}

func TestOperandRefs(t *testing.T) {
	refs := OperandRefs(sample(), "foo")
	tests := []struct {
		addr uint64
		want []string
	}{
		{addr: 0x1000, want: []string{"foo.field_0"}},
		{addr: 0x1008, want: []string{"foo.field_c-0x8"}},
		{addr: 0x1010, want: []string{"foo.field_10"}},
	}
	for _, tt := range tests {
		if got := refs[tt.addr]; !reflect.DeepEqual(got, tt.want) {
			t.Errorf("refs[%#x] = %v, want %v", tt.addr, got, tt.want)
		}
	}
	if _, ok := refs[0x2000]; ok {
		t.Error("unexpected reference for unaccessed instruction")
	}
}

func TestValidateDelta(t *testing.T) {
	tests := []struct {
		name  string
		delta int64
		ok    bool
	}{
		{name: "zero", delta: 0, ok: true},
		{name: "max", delta: DefaultMaxDelta, ok: true},
		{name: "negative", delta: -1},
		{name: "too large", delta: DefaultMaxDelta + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDelta(tt.delta, DefaultMaxDelta)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrBadDelta) {
				t.Errorf("error = %v, want ErrBadDelta", err)
			}
		})
	}
}
