package isa

import "fmt"

// DataType is the access-size code attached to register and memory operands.
type DataType uint8

const (
	Unknown DataType = iota
	Byte             // 1 byte
	Word             // 2 bytes
	Dword            // 4 bytes
	Qword            // 8 bytes
	Oword            // 16 bytes, SIMD Q registers
)

// widths is the fixed size table. Oword is deliberately absent: accesses
// through Q registers are not recorded.
var widths = map[DataType]int{
	Byte:  1,
	Word:  2,
	Dword: 4,
	Qword: 8,
}

// Width returns the byte width of dt, or false if dt has no recognized width.
func Width(dt DataType) (int, bool) {
	w, ok := widths[dt]
	return w, ok
}

// DataTypeOfWidth is the inverse of Width for 1, 2, 4, 8 and 16 bytes.
func DataTypeOfWidth(n int) DataType {
	switch n {
	case 1:
		return Byte
	case 2:
		return Word
	case 4:
		return Dword
	case 8:
		return Qword
	case 16:
		return Oword
	}
	return Unknown
}

func (dt DataType) String() string {
	switch dt {
	case Byte:
		return "byte"
	case Word:
		return "word"
	case Dword:
		return "dword"
	case Qword:
		return "qword"
	case Oword:
		return "oword"
	}
	return "unknown"
}

// OperandKind tags the Operand union.
type OperandKind uint8

const (
	Absent OperandKind = iota
	Reg
	Mem
	Imm
)

func (k OperandKind) String() string {
	switch k {
	case Absent:
		return "absent"
	case Reg:
		return "reg"
	case Mem:
		return "mem"
	case Imm:
		return "imm"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Operand is a decoded instruction operand. Which fields are meaningful
// depends on Kind:
//
//	Reg: Reg, Type (register width)
//	Mem: Reg (base), Disp, Type (access size)
//	Imm: Imm
//
// Written marks operands the instruction modifies. For a memory operand
// that means the memory, not the base register.
type Operand struct {
	Kind    OperandKind
	Reg     Register
	Disp    int64
	Imm     int64
	Type    DataType
	Written bool
}

// RegOp builds a register operand.
func RegOp(r Register, dt DataType) Operand {
	return Operand{Kind: Reg, Reg: r, Type: dt}
}

// MemOp builds a base+displacement memory operand.
func MemOp(base Register, disp int64, dt DataType) Operand {
	return Operand{Kind: Mem, Reg: base, Disp: disp, Type: dt}
}

// ImmOp builds an immediate operand.
func ImmOp(v int64) Operand {
	return Operand{Kind: Imm, Imm: v}
}

// Writes returns a copy of op flagged as written.
func (op Operand) Writes() Operand {
	op.Written = true
	return op
}

// FullWidth reports whether op is a 64-bit register (X registers and SP).
func (op Operand) FullWidth() bool {
	return op.Kind == Reg && op.Type == Qword
}

func (op Operand) String() string {
	switch op.Kind {
	case Absent:
		return "-"
	case Reg:
		if op.Type == Dword && op.Reg <= X30 {
			return fmt.Sprintf("w%d", uint8(op.Reg))
		}
		return op.Reg.String()
	case Mem:
		if op.Disp == 0 {
			return fmt.Sprintf("[%s]", op.Reg)
		}
		return fmt.Sprintf("[%s,#%d]", op.Reg, op.Disp)
	case Imm:
		return fmt.Sprintf("#%#x", op.Imm)
	}
	panic(fmt.Sprintf("isa: unhandled operand kind %v", op.Kind))
}
