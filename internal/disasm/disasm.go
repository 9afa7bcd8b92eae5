// Package disasm defines a common instruction representation used by the
// CFG builder and the data-flow engine, and decodes ARM64 code into it.
package disasm

import (
	"errors"
	"fmt"
	"strings"

	"structflow/internal/isa"
)

// InsnSize is the fixed ARM64 instruction width.
const InsnSize = 4

// ErrMisaligned is returned when a decode range does not start and end on
// instruction boundaries.
var ErrMisaligned = errors.New("range not aligned to instruction boundary")

// OpClass is the coarse opcode classification the analyses dispatch on.
type OpClass uint8

const (
	Other          OpClass = iota
	Move                   // MOV Xd, Xn
	AddImm                 // ADD Xd, Xn, #imm
	Call                   // BL, BLR, BLRAA...
	IndirectBranch         // BR, BRAA...
	Branch                 // B label
	CondBranch             // B.cond, CBZ, CBNZ, TBZ, TBNZ
	Return                 // RET, RETAA...
	Undecoded              // word the decoder does not know
)

func (c OpClass) String() string {
	switch c {
	case Other:
		return "other"
	case Move:
		return "move"
	case AddImm:
		return "add-imm"
	case Call:
		return "call"
	case IndirectBranch:
		return "indirect-branch"
	case Branch:
		return "branch"
	case CondBranch:
		return "cond-branch"
	case Return:
		return "return"
	case Undecoded:
		return "undecoded"
	}
	return fmt.Sprintf("opclass(%d)", uint8(c))
}

// EndsBlock reports whether an instruction of class c terminates a basic block.
func (c OpClass) EndsBlock() bool {
	switch c {
	case IndirectBranch, Branch, CondBranch, Return:
		return true
	}
	return false
}

// Inst is a simplified decoded instruction.
type Inst struct {
	VA        uint64        // virtual address of instruction
	Class     OpClass       // opcode classification
	Op        string        // mnemonic in lowercase
	Text      string        // formatted disassembly string
	Args      []isa.Operand // operands in encoding order, no Absent entries
	WriteBack bool          // pre/post-indexed addressing updates the base register
	Target    uint64        // direct branch or call target, 0 if none
	Raw       [4]byte       // raw encoding
}

// Next is the address of the following instruction.
func (i Inst) Next() uint64 {
	return i.VA + InsnSize
}

func (i Inst) String() string {
	if i.Text != "" {
		return fmt.Sprintf("%x  %s", i.VA, i.Text)
	}
	args := make([]string, 0, len(i.Args))
	for _, a := range i.Args {
		args = append(args, a.String())
	}
	return fmt.Sprintf("%x  %s %s", i.VA, i.Op, strings.Join(args, ", "))
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// Between returns the instructions with start <= VA < end. The stream must be
// sorted by address.
func (s Stream) Between(start, end uint64) Stream {
	lo := 0
	for lo < len(s) && s[lo].VA < start {
		lo++
	}
	hi := lo
	for hi < len(s) && s[hi].VA < end {
		hi++
	}
	return s[lo:hi]
}
