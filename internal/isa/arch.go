package isa

import "encoding/binary"

// Arch describes the machine word: pointer width in bits and the byte order
// instruction words are stored in.
type Arch struct {
	Bits  int
	Order binary.ByteOrder
}

var (
	// ARM64 is plain AArch64.
	ARM64 = Arch{Bits: 64, Order: binary.LittleEndian}
	// ARM64_32 is AArch64 code with 32-bit pointers, as in arm64_32 images.
	ARM64_32 = Arch{Bits: 32, Order: binary.LittleEndian}
)

// Wrap truncates an address or offset to the pointer width. A zero Arch
// behaves as ARM64.
func (a Arch) Wrap(v uint64) uint64 {
	if a.Bits <= 0 || a.Bits >= 64 {
		return v
	}
	return v & (1<<uint(a.Bits) - 1)
}

// ByteOrder is a.Order, defaulting to little endian.
func (a Arch) ByteOrder() binary.ByteOrder {
	if a.Order == nil {
		return binary.LittleEndian
	}
	return a.Order
}
