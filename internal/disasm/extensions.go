package disasm

import (
	"strings"

	"structflow/internal/isa"
)

// arm64asm stops at ARMv8.0. arm64e code leans on two later extensions it
// cannot decode: pointer authentication (v8.3) and the LSE atomics (v8.1).
// decodeExtension handles those encodings before arm64asm is consulted.
func decodeExtension(pc uint64, w uint32) (Inst, bool) {
	rd := field(w, 0, 5)
	rn := field(w, 5, 5)
	keyB := w&(1<<10) != 0

	switch {
	case w&0xfffffbe0 == 0xd63f081f: // BLRAAZ, BLRABZ
		return authBranch(pc, pick(keyB, "blrabz", "blraaz"), Call, xreg(rn)), true
	case w&0xfffff800 == 0xd73f0800: // BLRAA, BLRAB
		return authBranch(pc, pick(keyB, "blrab", "blraa"), Call, xreg(rn), xregSP(rd)), true
	case w&0xfffffbe0 == 0xd61f081f: // BRAAZ, BRABZ
		return authBranch(pc, pick(keyB, "brabz", "braaz"), IndirectBranch, xreg(rn)), true
	case w&0xfffff800 == 0xd71f0800: // BRAA, BRAB
		return authBranch(pc, pick(keyB, "brab", "braa"), IndirectBranch, xreg(rn), xregSP(rd)), true
	case w&0xfffffbff == 0xd65f0bff: // RETAA, RETAB
		return authBranch(pc, pick(keyB, "retab", "retaa"), Return), true
	case w&0xfffffbff == 0xd69f0bff: // ERETAA, ERETAB
		return authBranch(pc, pick(keyB, "eretab", "eretaa"), Return), true
	case w&0xff200400 == 0xf8200400: // LDRAA, LDRAB
		return loadAuth(pc, w), true
	case w&0xffff8000 == 0xdac10000: // PACIA...XPACD
		return pacData(pc, w)
	case w&0xffe0fc00 == 0x9ac03000: // PACGA
		in := Inst{VA: pc, Op: "pacga", Args: []isa.Operand{
			xreg(rd).Writes(), xreg(rn), xregSP(field(w, 16, 5)),
		}}
		return withText(in), true
	case w&0x3f200c00 == 0x38200000:
		return atomic(pc, w)
	case w&0x3fa07c00 == 0x08a07c00:
		return compareSwap(pc, w), true
	case w&0xbfa07c00 == 0x08207c00:
		return compareSwapPair(pc, w)
	}
	return Inst{}, false
}

func field(w uint32, lsb, width uint) int {
	return int(w >> lsb & (1<<width - 1))
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

// xreg is a 64-bit register where encoding 31 is the zero register.
func xreg(n int) isa.Operand {
	if n == 31 {
		return isa.RegOp(isa.XZR, isa.Qword)
	}
	return isa.RegOp(isa.Register(n), isa.Qword)
}

// xregSP is a 64-bit register where encoding 31 is the stack pointer.
func xregSP(n int) isa.Operand {
	if n == 31 {
		return isa.RegOp(isa.SP, isa.Qword)
	}
	return isa.RegOp(isa.Register(n), isa.Qword)
}

func sizedReg(n int, dt isa.DataType) isa.Operand {
	op := xreg(n)
	op.Type = dt
	return op
}

func baseReg(n int) isa.Register {
	return xregSP(n).Reg
}

func withText(in Inst) Inst {
	args := make([]string, 0, len(in.Args))
	for _, a := range in.Args {
		args = append(args, a.String())
	}
	in.Text = strings.TrimSpace(in.Op + " " + strings.Join(args, ", "))
	return in
}

func authBranch(pc uint64, op string, class OpClass, args ...isa.Operand) Inst {
	return withText(Inst{VA: pc, Class: class, Op: op, Args: args})
}

// loadAuth decodes LDRAA/LDRAB: a 64-bit load from [Xn + simm10*8] after
// authenticating Xn, pre-indexed when bit 11 is set.
func loadAuth(pc uint64, w uint32) Inst {
	imm := field(w, 22, 1)<<9 | field(w, 12, 9)
	if imm&0x200 != 0 {
		imm -= 0x400
	}
	disp := int64(imm) * 8
	in := Inst{
		VA:        pc,
		Op:        pick(w&(1<<23) != 0, "ldrab", "ldraa"),
		WriteBack: w&(1<<11) != 0,
		Args: []isa.Operand{
			xreg(field(w, 0, 5)).Writes(),
			isa.MemOp(baseReg(field(w, 5, 5)), disp, isa.Qword),
		},
	}
	in = withText(in)
	if in.WriteBack {
		in.Text += "!"
	}
	return in
}

var pacDataOps = [...]string{
	"pacia", "pacib", "pacda", "pacdb", "autia", "autib", "autda", "autdb",
	"paciza", "pacizb", "pacdza", "pacdzb", "autiza", "autizb", "autdza", "autdzb",
	"xpaci", "xpacd",
}

// pacData decodes the one-source PAC instructions. All of them rewrite Xd.
func pacData(pc uint64, w uint32) (Inst, bool) {
	opcode := field(w, 10, 6)
	if opcode >= len(pacDataOps) {
		return Inst{}, false
	}
	rd, rn := field(w, 0, 5), field(w, 5, 5)
	in := Inst{VA: pc, Op: pacDataOps[opcode], Args: []isa.Operand{xreg(rd).Writes()}}
	if opcode < 8 {
		in.Args = append(in.Args, xregSP(rn))
	} else if rn != 31 {
		return Inst{}, false
	}
	return withText(in), true
}

var atomicOps = [...]string{"ldadd", "ldclr", "ldeor", "ldset", "ldsmax", "ldsmin", "ldumax", "ldumin"}

// atomic decodes the LSE read-modify-write family and SWP. Rt receives the
// old memory value.
func atomic(pc uint64, w uint32) (Inst, bool) {
	size := field(w, 30, 2)
	acquire, release := w&(1<<23) != 0, w&(1<<22) != 0
	rs, o3, opc := field(w, 16, 5), field(w, 15, 1), field(w, 12, 3)
	rn, rt := field(w, 5, 5), field(w, 0, 5)

	regType := isa.Dword
	if size == 3 {
		regType = isa.Qword
	}
	mem := isa.MemOp(baseReg(rn), 0, isa.DataTypeOfWidth(1<<size))

	var op string
	switch {
	case o3 == 0:
		op = atomicOps[opc]
	case opc == 0:
		op = "swp"
	case opc == 4 && acquire && !release && rs == 31:
		in := Inst{VA: pc, Op: "ldapr" + sizeSuffix(size), Args: []isa.Operand{
			sizedReg(rt, regType).Writes(), mem,
		}}
		return withText(in), true
	default:
		return Inst{}, false
	}
	op += pick(acquire, "a", "") + pick(release, "l", "") + sizeSuffix(size)

	in := Inst{VA: pc, Op: op, Args: []isa.Operand{
		sizedReg(rs, regType), sizedReg(rt, regType).Writes(), mem.Writes(),
	}}
	return withText(in), true
}

func sizeSuffix(size int) string {
	switch size {
	case 0:
		return "b"
	case 1:
		return "h"
	}
	return ""
}

// compareSwap decodes CAS: Rs receives the old memory value.
func compareSwap(pc uint64, w uint32) Inst {
	size := field(w, 30, 2)
	regType := isa.Dword
	if size == 3 {
		regType = isa.Qword
	}
	op := "cas" + pick(w&(1<<22) != 0, "a", "") + pick(w&(1<<15) != 0, "l", "") + sizeSuffix(size)
	return withText(Inst{VA: pc, Op: op, Args: []isa.Operand{
		sizedReg(field(w, 16, 5), regType).Writes(),
		sizedReg(field(w, 0, 5), regType),
		isa.MemOp(baseReg(field(w, 5, 5)), 0, isa.DataTypeOfWidth(1<<size)).Writes(),
	}})
}

// compareSwapPair decodes CASP on an even register pair.
func compareSwapPair(pc uint64, w uint32) (Inst, bool) {
	rs, rt := field(w, 16, 5), field(w, 0, 5)
	if rs%2 != 0 || rt%2 != 0 {
		return Inst{}, false
	}
	regType, width := isa.Dword, 8
	if w&(1<<30) != 0 {
		regType, width = isa.Qword, 16
	}
	op := "casp" + pick(w&(1<<22) != 0, "a", "") + pick(w&(1<<15) != 0, "l", "")
	return withText(Inst{VA: pc, Op: op, Args: []isa.Operand{
		sizedReg(rs, regType).Writes(),
		sizedReg(rs+1, regType).Writes(),
		sizedReg(rt, regType),
		sizedReg(rt+1, regType),
		isa.MemOp(baseReg(field(w, 5, 5)), 0, isa.DataTypeOfWidth(width)).Writes(),
	}}), true
}
