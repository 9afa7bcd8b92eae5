package disasm

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"structflow/internal/isa"
)

func words(ws ...uint32) []byte {
	out := make([]byte, 4*len(ws))
	for i, w := range ws {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}

func TestDecodeMisaligned(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		va   uint64
	}{
		{name: "unaligned start", code: words(0xd503201f), va: 0x1002},
		{name: "partial word", code: []byte{0x1f, 0x20, 0x03}, va: 0x1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.code, tt.va, nil)
			if !errors.Is(err, ErrMisaligned) {
				t.Fatalf("Decode error = %v, want ErrMisaligned", err)
			}
		})
	}
}

func TestDecodeClasses(t *testing.T) {
	tests := []struct {
		name   string
		word   uint32
		class  OpClass
		target uint64
	}{
		{name: "ret", word: 0xd65f03c0, class: Return},
		{name: "nop", word: 0xd503201f, class: Other},
		{name: "mov x1, x0", word: 0xaa0003e1, class: Move},
		{name: "add x1, x0, #0x10", word: 0x91004001, class: AddImm},
		{name: "bl +8", word: 0x94000002, class: Call, target: 0x1008},
		{name: "blr x8", word: 0xd63f0100, class: Call},
		{name: "br x16", word: 0xd61f0200, class: IndirectBranch},
		{name: "b +8", word: 0x14000002, class: Branch, target: 0x1008},
		{name: "cbz x3, +8", word: 0xb4000043, class: CondBranch, target: 0x1008},
		{name: "movz x0, #1", word: 0xd2800020, class: Other},
		{name: "blraaz x8", word: 0xd63f091f, class: Call},
		{name: "blrab x8, x9", word: 0xd73f0d09, class: Call},
		{name: "braaz x16", word: 0xd61f0a1f, class: IndirectBranch},
		{name: "brab x16, x17", word: 0xd71f0e11, class: IndirectBranch},
		{name: "retaa", word: 0xd65f0bff, class: Return},
		{name: "retab", word: 0xd65f0fff, class: Return},
		{name: "eretaa", word: 0xd69f0bff, class: Return},
		{name: "ldraa x2, [x0, #8]", word: 0xf8201402, class: Other},
		{name: "swp x3, x0, [x1]", word: 0xf8238020, class: Other},
		{name: "autda x16, x17", word: 0xdac11a30, class: Other},
		{name: "sve", word: 0x04603000, class: Undecoded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decode(words(tt.word), 0x1000, nil)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if len(s) != 1 {
				t.Fatalf("got %d instructions, want 1", len(s))
			}
			if s[0].Class != tt.class {
				t.Errorf("class = %v, want %v (%s)", s[0].Class, tt.class, s[0].Text)
			}
			if s[0].Target != tt.target {
				t.Errorf("target = %#x, want %#x", s[0].Target, tt.target)
			}
		})
	}
}

func TestDecodeOperands(t *testing.T) {
	tests := []struct {
		name      string
		word      uint32
		writeBack bool
		mem       isa.Operand
		dest      isa.Register
		destWrite bool
	}{
		{
			name: "ldr x2, [x0, #8]", word: 0xf9400402,
			mem: isa.MemOp(isa.X0, 8, isa.Qword), dest: isa.X2, destWrite: true,
		},
		{
			name: "ldr w2, [x0, #4]", word: 0xb9400402,
			mem: isa.MemOp(isa.X0, 4, isa.Dword), dest: isa.X2, destWrite: true,
		},
		{
			name: "ldrb w2, [x0, #3]", word: 0x39400c02,
			mem: isa.MemOp(isa.X0, 3, isa.Byte), dest: isa.X2, destWrite: true,
		},
		{
			name: "str x1, [x0, #16]", word: 0xf9000801,
			mem: isa.MemOp(isa.X0, 16, isa.Qword).Writes(), dest: isa.X1, destWrite: false,
		},
		{
			name: "ldr x2, [x0], #8", word: 0xf8408402, writeBack: true,
			mem: isa.MemOp(isa.X0, 0, isa.Qword), dest: isa.X2, destWrite: true,
		},
		{
			name: "ldr x2, [x0, #8]!", word: 0xf8408c02, writeBack: true,
			mem: isa.MemOp(isa.X0, 8, isa.Qword), dest: isa.X2, destWrite: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decode(words(tt.word), 0x2000, nil)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			in := s[0]
			if in.WriteBack != tt.writeBack {
				t.Errorf("WriteBack = %v, want %v", in.WriteBack, tt.writeBack)
			}
			if len(in.Args) != 2 {
				t.Fatalf("got %d operands (%v), want 2", len(in.Args), in.Args)
			}
			if in.Args[0].Kind != isa.Reg || in.Args[0].Reg != tt.dest {
				t.Errorf("operand 0 = %v, want register %v", in.Args[0], tt.dest)
			}
			if in.Args[0].Written != tt.destWrite {
				t.Errorf("operand 0 written = %v, want %v", in.Args[0].Written, tt.destWrite)
			}
			if in.Args[1] != tt.mem {
				t.Errorf("operand 1 = %+v, want %+v", in.Args[1], tt.mem)
			}
		})
	}
}

func TestDecodeExtensions(t *testing.T) {
	tests := []struct {
		name      string
		word      uint32
		op        string
		writeBack bool
		args      []isa.Operand
	}{
		{
			name: "ldraa x2, [x0, #8]", word: 0xf8201402, op: "ldraa",
			args: []isa.Operand{isa.RegOp(isa.X2, isa.Qword).Writes(), isa.MemOp(isa.X0, 8, isa.Qword)},
		},
		{
			name: "ldrab x1, [x2, #-8]!", word: 0xf8fffc41, op: "ldrab", writeBack: true,
			args: []isa.Operand{isa.RegOp(isa.X1, isa.Qword).Writes(), isa.MemOp(isa.X2, -8, isa.Qword)},
		},
		{
			name: "swp x3, x0, [x1]", word: 0xf8238020, op: "swp",
			args: []isa.Operand{
				isa.RegOp(isa.X3, isa.Qword),
				isa.RegOp(isa.X0, isa.Qword).Writes(),
				isa.MemOp(isa.X1, 0, isa.Qword).Writes(),
			},
		},
		{
			name: "ldaddal w1, w2, [x3]", word: 0xb8e10062, op: "ldaddal",
			args: []isa.Operand{
				isa.RegOp(isa.X1, isa.Dword),
				isa.RegOp(isa.X2, isa.Dword).Writes(),
				isa.MemOp(isa.X3, 0, isa.Dword).Writes(),
			},
		},
		{
			name: "casal x1, x2, [x3]", word: 0xc8e1fc62, op: "casal",
			args: []isa.Operand{
				isa.RegOp(isa.X1, isa.Qword).Writes(),
				isa.RegOp(isa.X2, isa.Qword),
				isa.MemOp(isa.X3, 0, isa.Qword).Writes(),
			},
		},
		{
			name: "autda x16, x17", word: 0xdac11a30, op: "autda",
			args: []isa.Operand{isa.RegOp(isa.X16, isa.Qword).Writes(), isa.RegOp(isa.X17, isa.Qword)},
		},
		{
			name: "xpacd x5", word: 0xdac147e5, op: "xpacd",
			args: []isa.Operand{isa.RegOp(isa.X5, isa.Qword).Writes()},
		},
		{
			name: "blraa x8, sp", word: 0xd73f091f, op: "blraa",
			args: []isa.Operand{isa.RegOp(isa.X8, isa.Qword), isa.RegOp(isa.SP, isa.Qword)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decode(words(tt.word), 0x3000, nil)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			in := s[0]
			if in.Op != tt.op {
				t.Errorf("op = %q, want %q", in.Op, tt.op)
			}
			if in.WriteBack != tt.writeBack {
				t.Errorf("WriteBack = %v, want %v", in.WriteBack, tt.writeBack)
			}
			if !reflect.DeepEqual(in.Args, tt.args) {
				t.Errorf("args = %+v, want %+v", in.Args, tt.args)
			}
			if in.Raw != [4]byte(words(tt.word)) {
				t.Errorf("raw = %x, want %#08x", in.Raw, tt.word)
			}
		})
	}
}

func TestDecodeUndecodedKeepsStream(t *testing.T) {
	s, err := Decode(words(0x04603000, 0xd65f03c0), 0x1000, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(s) != 2 || s[1].VA != 0x1004 || s[1].Class != Return {
		t.Fatalf("stream = %v", s)
	}
	if s[0].Class != Undecoded || s[0].Text != ".word 0x04603000" {
		t.Errorf("first = %+v", s[0])
	}
}

func TestDecodeBigEndian(t *testing.T) {
	code := make([]byte, 8)
	binary.BigEndian.PutUint32(code, 0xf9400402)
	binary.BigEndian.PutUint32(code[4:], 0xd65f03c0)

	s, err := Decode(code, 0x1000, binary.BigEndian)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(s) != 2 || s[1].Class != Return {
		t.Fatalf("stream = %v", s)
	}
	if s[0].Args[1] != isa.MemOp(isa.X0, 8, isa.Qword) {
		t.Errorf("operand 1 = %+v, want [x0,#8]", s[0].Args[1])
	}
}

func TestDecodeAddImmediate(t *testing.T) {
	s, err := Decode(words(0x91004001), 0, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	in := s[0]
	if len(in.Args) != 3 {
		t.Fatalf("got operands %v, want 3", in.Args)
	}
	if !in.Args[0].FullWidth() || in.Args[0].Reg != isa.X1 || !in.Args[0].Written {
		t.Errorf("destination = %+v", in.Args[0])
	}
	if !in.Args[1].FullWidth() || in.Args[1].Reg != isa.X0 {
		t.Errorf("source = %+v", in.Args[1])
	}
	if in.Args[2].Kind != isa.Imm || in.Args[2].Imm != 0x10 {
		t.Errorf("immediate = %+v, want #0x10", in.Args[2])
	}
}

func TestParseImmediate(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"#0x10", 0x10, true},
		{"#-8", -8, true},
		{"#16]", 16, true},
		{"#-16]!", -16, true},
		{"#0x1, LSL #12", 0x1000, true},
		{"#0x1, MSL #8", 0, false},
		{"x0", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseImmediate(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseImmediate(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStreamBetween(t *testing.T) {
	s, err := Decode(words(0xd503201f, 0xd503201f, 0xd503201f, 0xd65f03c0), 0x100, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got := s.Between(0x104, 0x10c)
	if len(got) != 2 || got[0].VA != 0x104 || got[1].VA != 0x108 {
		t.Errorf("Between(0x104, 0x10c) = %v", got)
	}
}

func TestMemoryTypeAuthenticatedLoad(t *testing.T) {
	for _, m := range []string{"LDRAA", "LDRAB"} {
		if got := memoryType(m, isa.Unknown); got != isa.Qword {
			t.Errorf("memoryType(%s) = %v, want qword", m, got)
		}
	}
	if got := memoryType("LDRB", isa.Dword); got != isa.Byte {
		t.Errorf("memoryType(LDRB) = %v, want byte", got)
	}
}
