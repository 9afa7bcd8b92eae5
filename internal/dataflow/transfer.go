package dataflow

import (
	"fmt"

	"github.com/charmbracelet/log"

	"structflow/internal/disasm"
	"structflow/internal/isa"
)

// rule recognizes one instruction idiom and applies its effect on the
// register state. match must not modify anything.
type rule struct {
	name  string
	match func(in disasm.Inst, st RegisterState) bool
	apply func(in disasm.Inst, st RegisterState, lg *log.Logger)
}

// rules are tried in order and the first match wins. The last rule matches
// every instruction.
var rules = []rule{
	{name: "mov", match: matchMove, apply: applyMove},
	{name: "add-imm", match: matchAddImm, apply: applyAddImm},
	{name: "call", match: matchCall, apply: applyCall},
	{name: "clobber", match: matchAny, apply: applyClobber},
}

// MOV Xd, Xn
func matchMove(in disasm.Inst, st RegisterState) bool {
	if in.Class != disasm.Move || len(in.Args) != 2 {
		return false
	}
	dst, src := in.Args[0], in.Args[1]
	if !dst.FullWidth() || !src.FullWidth() {
		return false
	}
	_, known := st[src.Reg]
	return known
}

func applyMove(in disasm.Inst, st RegisterState, lg *log.Logger) {
	dst, src := in.Args[0].Reg, in.Args[1].Reg
	st[dst] = st[src]
	lg.Debug("set", "addr", hex(in.VA), "reg", dst, "delta", hex(st[dst]))
}

// ADD Xd, Xn, #imm
func matchAddImm(in disasm.Inst, st RegisterState) bool {
	if in.Class != disasm.AddImm || len(in.Args) != 3 {
		return false
	}
	dst, src, imm := in.Args[0], in.Args[1], in.Args[2]
	if !dst.FullWidth() || !src.FullWidth() || imm.Kind != isa.Imm {
		return false
	}
	_, known := st[src.Reg]
	return known
}

func applyAddImm(in disasm.Inst, st RegisterState, lg *log.Logger) {
	dst, src, imm := in.Args[0].Reg, in.Args[1].Reg, in.Args[2].Imm
	// int64 addition wraps, matching the address width.
	st[dst] = st[src] + imm
	lg.Debug("set", "addr", hex(in.VA), "reg", dst, "delta", hex(st[dst]))
}

func matchCall(in disasm.Inst, _ RegisterState) bool {
	return in.Class == disasm.Call
}

// applyCall drops every caller-saved register: the callee may have
// overwritten any of them.
func applyCall(in disasm.Inst, st RegisterState, lg *log.Logger) {
	for _, r := range isa.CallerSavedRegisters() {
		delete(st, r)
	}
	lg.Debug("clear temporaries", "addr", hex(in.VA))
}

func matchAny(disasm.Inst, RegisterState) bool { return true }

// applyClobber forgets every register the instruction writes, including the
// base register of a write-back memory operand. A word the decoder could not
// read may write anything, so it forgets everything.
func applyClobber(in disasm.Inst, st RegisterState, lg *log.Logger) {
	if in.Class == disasm.Undecoded {
		if len(st) > 0 {
			clear(st)
			lg.Debug("clear all", "addr", hex(in.VA), "word", in.Text)
		}
		return
	}
	for _, op := range in.Args {
		var drop bool
		switch op.Kind {
		case isa.Reg:
			drop = op.Written
		case isa.Mem:
			drop = in.WriteBack
		case isa.Imm, isa.Absent:
		default:
			panic(fmt.Sprintf("dataflow: unhandled operand kind %v", op.Kind))
		}
		if !drop {
			continue
		}
		if _, ok := st[op.Reg]; ok {
			delete(st, op.Reg)
			lg.Debug("clear", "addr", hex(in.VA), "reg", op.Reg)
		}
	}
}

// selectRule returns the first rule matching in.
func selectRule(in disasm.Inst, st RegisterState) rule {
	for _, r := range rules {
		if r.match(in, st) {
			return r
		}
	}
	panic("dataflow: no rule matched")
}

// ProcessBlock runs the transfer function over the instructions of one
// block. It starts from a copy of entry, applies pins from init, records
// accesses into sink and returns the exit state. entry is not modified.
// Offsets wrap at arch's word size; the zero Arch is 64-bit.
func ProcessBlock(insts disasm.Stream, init Initialization, entry RegisterState, sink Accesses, arch isa.Arch, lg *log.Logger) RegisterState {
	lg = orDiscard(lg)
	st := entry.Clone()
	for _, in := range insts {
		for r, d := range init[in.VA] {
			st[r] = d
			lg.Debug("fix", "addr", hex(in.VA), "reg", r, "delta", hex(d))
		}
		if !in.WriteBack {
			recordAccesses(in, st, sink, arch, lg)
		}
		r := selectRule(in, st)
		r.apply(in, st, lg)
	}
	return st
}

// recordAccesses adds an observation for each memory operand whose base
// register is tracked. Operands without a recognized width are skipped.
func recordAccesses(in disasm.Inst, st RegisterState, sink Accesses, arch isa.Arch, lg *log.Logger) {
	for _, op := range in.Args {
		switch op.Kind {
		case isa.Mem:
		case isa.Reg, isa.Imm, isa.Absent:
			continue
		default:
			panic(fmt.Sprintf("dataflow: unhandled operand kind %v", op.Kind))
		}
		delta, ok := st[op.Reg]
		if !ok {
			continue
		}
		size, ok := isa.Width(op.Type)
		if !ok {
			continue
		}
		k := Key{Offset: arch.Wrap(uint64(delta) + uint64(op.Disp)), Size: size}
		sink.Add(k, Observation{Addr: in.VA, Delta: delta})
		lg.Debug("access", "addr", hex(in.VA), "reg", op.Reg, "offset", hex(k.Offset), "size", size)
	}
}

type hexValue uint64

func (h hexValue) String() string { return fmt.Sprintf("%#x", uint64(h)) }

func hex[T int64 | uint64](v T) fmt.Stringer {
	return hexValue(uint64(v))
}
