// Package dataflow tracks which registers point into a memory region of
// interest and records every load or store made through them.
//
// The analysis is a forward pass over a CFG. Each block has one entry state
// mapping registers to a byte offset into the region. States merge across
// edges first-wins: once a register has an entry value for a block, later
// predecessors never change it. This bounds the work to one addition per
// (block, register) pair and keeps loops that advance a pointer from
// producing an unbounded struct.
package dataflow

import (
	"fmt"
	"sort"
	"strings"

	"structflow/internal/isa"
)

// RegisterState maps each register known to point into the region to its
// offset from the region start. Registers not in the map have unknown
// provenance.
type RegisterState map[isa.Register]int64

// Clone returns an independent copy of s.
func (s RegisterState) Clone() RegisterState {
	out := make(RegisterState, len(s))
	for r, d := range s {
		out[r] = d
	}
	return out
}

// Registers returns the tracked registers in enumeration order.
func (s RegisterState) Registers() []isa.Register {
	regs := make([]isa.Register, 0, len(s))
	for r := range s {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })
	return regs
}

func (s RegisterState) String() string {
	if len(s) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(s))
	for _, r := range s.Registers() {
		parts = append(parts, fmt.Sprintf("%s=%#x", r, s[r]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Initialization pins register offsets at instruction addresses. At a pinned
// address the listed registers are overwritten before the instruction runs,
// whatever the propagated state says.
type Initialization map[uint64]RegisterState

// Addresses returns the pinned instruction addresses in ascending order.
func (init Initialization) Addresses() []uint64 {
	addrs := make([]uint64, 0, len(init))
	for a := range init {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// EntryInitialization pins reg to offset 0 at entry, the usual seed for a
// function that receives a struct pointer as an argument.
func EntryInitialization(entry uint64, reg isa.Register) Initialization {
	return Initialization{entry: {reg: 0}}
}
