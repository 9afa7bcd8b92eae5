package disasm

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"

	"structflow/internal/isa"
)

// Decode disassembles code, which is loaded at va and stores its instruction
// words in order (little endian when nil). Both va and len(code) must be
// multiples of the instruction size. Words that cannot be decoded are kept as
// Undecoded instructions so the stream stays contiguous.
func Decode(code []byte, va uint64, order binary.ByteOrder) (Stream, error) {
	if va%InsnSize != 0 || len(code)%InsnSize != 0 {
		return nil, fmt.Errorf("decode %#x+%#x: %w", va, len(code), ErrMisaligned)
	}
	if order == nil {
		order = binary.LittleEndian
	}

	out := make(Stream, 0, len(code)/InsnSize)
	for i := 0; i+InsnSize <= len(code); i += InsnSize {
		pc := va + uint64(i)
		word := order.Uint32(code[i:])
		var raw [4]byte
		binary.LittleEndian.PutUint32(raw[:], word)

		if in, ok := decodeExtension(pc, word); ok {
			in.Raw = raw
			out = append(out, in)
			continue
		}
		inst, err := arm64asm.Decode(raw[:])
		if err != nil {
			out = append(out, Inst{
				VA:    pc,
				Class: Undecoded,
				Op:    ".word",
				Text:  fmt.Sprintf(".word %#08x", word),
				Raw:   raw,
			})
			continue
		}
		out = append(out, translate(pc, raw, inst))
	}
	return out, nil
}

// translate converts an arm64asm instruction into an Inst.
func translate(pc uint64, raw [4]byte, inst arm64asm.Inst) Inst {
	mnemonic := inst.Op.String()
	out := Inst{
		VA:   pc,
		Op:   strings.ToLower(mnemonic),
		Text: strings.ToLower(inst.String()),
		Raw:  raw,
	}

	// Width of the transfer register, for memory operands whose size is not
	// implied by the mnemonic.
	transfer := isa.Unknown
	if r, ok := inst.Args[0].(arm64asm.Reg); ok {
		transfer = regWidth(r)
	}
	memType := memoryType(mnemonic, transfer)

	for _, arg := range inst.Args {
		if arg == nil {
			break
		}
		switch a := arg.(type) {
		case arm64asm.Reg:
			if r, dt, ok := gpr(a); ok {
				out.Args = append(out.Args, isa.RegOp(r, dt))
			}
		case arm64asm.RegSP:
			r, dt := gprSP(a)
			out.Args = append(out.Args, isa.RegOp(r, dt))
		case arm64asm.MemImmediate:
			base, _ := gprSP(a.Base)
			var disp int64
			switch a.Mode {
			case arm64asm.AddrOffset, arm64asm.AddrPreIndex:
				disp = memDisplacement(a.String())
			case arm64asm.AddrPostIndex, arm64asm.AddrPostReg:
				// The access uses the unmodified base.
			}
			if a.Mode != arm64asm.AddrOffset {
				out.WriteBack = true
			}
			out.Args = append(out.Args, isa.MemOp(base, disp, memType))
		case arm64asm.Imm:
			out.Args = append(out.Args, isa.ImmOp(int64(a.Imm)))
		case arm64asm.Imm64:
			out.Args = append(out.Args, isa.ImmOp(int64(a.Imm)))
		case arm64asm.ImmShift:
			if v, ok := parseImmediate(a.String()); ok {
				out.Args = append(out.Args, isa.ImmOp(v))
			}
		case arm64asm.PCRel:
			out.Target = uint64(int64(pc) + int64(a))
			out.Args = append(out.Args, isa.ImmOp(int64(out.Target)))
		default:
			// Conditions, shifted/extended registers, register-offset memory and
			// SIMD arrangements are not modeled.
		}
	}

	out.Class = classify(mnemonic, inst, out.Args)
	markWritten(mnemonic, &out)
	return out
}

// classify maps a mnemonic and its operands onto an OpClass.
func classify(mnemonic string, inst arm64asm.Inst, args []isa.Operand) OpClass {
	switch mnemonic {
	case "BL", "BLR":
		return Call
	case "BR":
		return IndirectBranch
	case "RET", "ERET":
		return Return
	case "CBZ", "CBNZ", "TBZ", "TBNZ":
		return CondBranch
	case "B":
		if _, ok := inst.Args[0].(arm64asm.Cond); ok {
			return CondBranch
		}
		return Branch
	case "MOV":
		if inst.Args[2] == nil && len(args) == 2 && args[0].Kind == isa.Reg && args[1].Kind == isa.Reg {
			return Move
		}
	case "ADD":
		if inst.Args[3] == nil && len(args) == 3 &&
			args[0].Kind == isa.Reg && args[1].Kind == isa.Reg && args[2].Kind == isa.Imm {
			if _, shifted := inst.Args[2].(arm64asm.ImmShift); shifted {
				return AddImm
			}
		}
	}
	return Other
}

var noDestination = map[string]bool{
	"CMP": true, "CMN": true, "TST": true, "CCMP": true, "CCMN": true,
	"FCMP": true, "FCMPE": true, "FCCMP": true, "FCCMPE": true,
	"NOP": true, "HINT": true, "YIELD": true, "WFE": true, "WFI": true, "SEV": true, "SEVL": true,
	"PRFM": true, "PRFUM": true, "DMB": true, "DSB": true, "ISB": true, "CLREX": true,
	"SVC": true, "HVC": true, "SMC": true, "BRK": true, "HLT": true, "MSR": true, "SYS": true,
}

// markWritten flags the operands the instruction modifies.
func markWritten(mnemonic string, in *Inst) {
	if len(in.Args) == 0 {
		return
	}
	mark := func(i int) {
		if i < len(in.Args) && in.Args[i].Kind == isa.Reg {
			in.Args[i] = in.Args[i].Writes()
		}
	}

	switch {
	case in.Class == Move || in.Class == AddImm:
		mark(0)
	case in.Class != Other:
		// Calls and branches: handled by their own rules.
	case noDestination[mnemonic]:
	case strings.HasPrefix(mnemonic, "ST"):
		// Exclusive stores report a status register; everything else only
		// writes memory.
		if strings.Contains(mnemonic, "XR") || strings.Contains(mnemonic, "XP") {
			mark(0)
		}
		for i := range in.Args {
			if in.Args[i].Kind == isa.Mem {
				in.Args[i] = in.Args[i].Writes()
			}
		}
	case mnemonic == "LDP" || mnemonic == "LDNP" || mnemonic == "LDPSW" ||
		mnemonic == "LDXP" || mnemonic == "LDAXP":
		mark(0)
		mark(1)
	default:
		mark(0)
	}
}

// memoryType is the access size of a load or store, from the mnemonic suffix
// or else the transfer register.
func memoryType(mnemonic string, transfer isa.DataType) isa.DataType {
	if !strings.HasPrefix(mnemonic, "LD") && !strings.HasPrefix(mnemonic, "ST") {
		return transfer
	}
	switch {
	case mnemonic == "LDRAA" || mnemonic == "LDRAB":
		// The suffix names the PAC key, not a byte access.
		return isa.Qword
	case strings.HasSuffix(mnemonic, "SW"):
		return isa.Dword
	case strings.HasSuffix(mnemonic, "B"):
		return isa.Byte
	case strings.HasSuffix(mnemonic, "H"):
		return isa.Word
	}
	return transfer
}

// gpr maps an arm64asm general purpose register. SIMD and FP registers are
// not general purpose and report false.
func gpr(r arm64asm.Reg) (isa.Register, isa.DataType, bool) {
	switch {
	case r >= arm64asm.W0 && r <= arm64asm.W30:
		return isa.Register(r - arm64asm.W0), isa.Dword, true
	case r == arm64asm.WZR:
		return isa.XZR, isa.Dword, true
	case r >= arm64asm.X0 && r <= arm64asm.X30:
		return isa.Register(r - arm64asm.X0), isa.Qword, true
	case r == arm64asm.XZR:
		return isa.XZR, isa.Qword, true
	}
	return 0, isa.Unknown, false
}

// gprSP maps a register in a context where encoding 31 means the stack pointer.
func gprSP(r arm64asm.RegSP) (isa.Register, isa.DataType) {
	switch reg := arm64asm.Reg(r); {
	case reg == arm64asm.WZR:
		return isa.SP, isa.Dword
	case reg == arm64asm.XZR:
		return isa.SP, isa.Qword
	default:
		if g, dt, ok := gpr(reg); ok {
			return g, dt
		}
	}
	return isa.SP, isa.Unknown
}

// regWidth is the data type moved through register r.
func regWidth(r arm64asm.Reg) isa.DataType {
	if _, dt, ok := gpr(r); ok {
		return dt
	}
	switch {
	case r >= arm64asm.B0 && r <= arm64asm.B31:
		return isa.Byte
	case r >= arm64asm.H0 && r <= arm64asm.H31:
		return isa.Word
	case r >= arm64asm.Q0 && r <= arm64asm.Q31:
		return isa.Oword
	}
	// S and D registers hold floating point values, which the size table
	// does not cover.
	return isa.Unknown
}

// memDisplacement extracts the immediate from "[X0,#8]" or "[X0,#-16]!".
func memDisplacement(s string) int64 {
	idx := strings.Index(s, "#")
	if idx < 0 {
		return 0
	}
	v, ok := parseImmediate(s[idx:])
	if !ok {
		return 0
	}
	return v
}

// parseImmediate parses "#0x10", "#-8" or "#0x1, LSL #12".
func parseImmediate(s string) (int64, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	shift := 0
	if i := strings.Index(s, ","); i >= 0 {
		rest := strings.TrimSpace(s[i+1:])
		s = s[:i]
		if strings.HasPrefix(rest, "LSL #") {
			n, err := strconv.Atoi(strings.TrimPrefix(rest, "LSL #"))
			if err != nil {
				return 0, false
			}
			shift = n
		} else {
			return 0, false
		}
	}
	s = strings.TrimRight(s, "]!")
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(s, 0, 64)
		if uerr != nil {
			return 0, false
		}
		v = int64(u)
	}
	return v << shift, true
}
