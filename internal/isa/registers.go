// Package isa describes the parts of the ARM64 architecture the data-flow
// engine reasons about: general purpose registers, their calling-convention
// class, operand kinds and the access-size table.
package isa

import (
	"fmt"
	"strconv"
	"strings"
)

// Register names a 64-bit general purpose register. The 32-bit W views share
// the identifier of their X register; width is carried by the operand.
type Register uint8

const (
	X0 Register = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
	SP
	XZR

	NumRegisters = int(XZR) + 1
)

// Conventional aliases.
const (
	FP = X29
	LR = X30
)

func (r Register) String() string {
	switch {
	case r <= X30:
		return "x" + strconv.Itoa(int(r))
	case r == SP:
		return "sp"
	case r == XZR:
		return "xzr"
	}
	return fmt.Sprintf("reg(%d)", uint8(r))
}

// RegClass is the AAPCS64 classification of a register across a call.
type RegClass int

const (
	// CallerSaved registers (arguments, results, temporaries, IP0/IP1 and
	// the platform register) may hold anything after a call returns.
	CallerSaved RegClass = iota
	// CalleeSaved registers keep their value across a call.
	CalleeSaved
	// Special registers (SP, XZR) are never tracked across calls either way.
	Special
)

func (c RegClass) String() string {
	switch c {
	case CallerSaved:
		return "caller-saved"
	case CalleeSaved:
		return "callee-saved"
	case Special:
		return "special"
	}
	return "unknown"
}

// Class returns the calling-convention class of r.
func Class(r Register) RegClass {
	switch {
	case r <= X18:
		return CallerSaved
	case r <= X30:
		return CalleeSaved
	}
	return Special
}

var callerSaved = func() []Register {
	var regs []Register
	for r := X0; int(r) < NumRegisters; r++ {
		if Class(r) == CallerSaved {
			regs = append(regs, r)
		}
	}
	return regs
}()

// CallerSavedRegisters lists the registers a call clobbers, in order.
func CallerSavedRegisters() []Register {
	out := make([]Register, len(callerSaved))
	copy(out, callerSaved)
	return out
}

// ParseRegister accepts x0-x30, w0-w30, sp, wsp, fp, lr, xzr and wzr in any case.
func ParseRegister(s string) (Register, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "sp", "wsp":
		return SP, nil
	case "xzr", "wzr":
		return XZR, nil
	case "fp":
		return FP, nil
	case "lr":
		return LR, nil
	}
	if len(name) >= 2 && (name[0] == 'x' || name[0] == 'w') {
		n, err := strconv.Atoi(name[1:])
		if err == nil && n >= 0 && n <= 30 {
			return Register(n), nil
		}
	}
	return 0, fmt.Errorf("invalid register %q", s)
}
