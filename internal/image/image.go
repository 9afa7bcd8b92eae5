// Package image loads executable images (ELF, Mach-O kernelcaches, raw
// blobs) and exposes the code bytes and function symbols the CFG builder
// needs.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
)

// ErrUnknownFormat is returned by Open for files that are neither ELF nor Mach-O.
var ErrUnknownFormat = errors.New("unknown image format")

// Format names the container an image was loaded from.
type Format string

const (
	FormatELF   Format = "elf"
	FormatMachO Format = "macho"
	FormatRaw   Format = "raw"
)

// Section is a named virtual address range.
type Section struct {
	Name     string
	VA, Size uint64
}

// Contains reports whether va lies inside s.
func (s Section) Contains(va uint64) bool {
	return s.Size != 0 && va >= s.VA && va < s.VA+s.Size
}

// End is the first address after s.
func (s Section) End() uint64 {
	return s.VA + s.Size
}

// Symbol is a named code address.
type Symbol struct {
	Name string
	Addr uint64
}

// Image is a loaded executable.
type Image interface {
	Format() Format
	// ReadBytesVA reads exactly size bytes from a virtual address.
	ReadBytesVA(va uint64, size int) ([]byte, bool)
	// Text is the primary executable region.
	Text() Section
	// Symbols returns the function symbols sorted by address.
	Symbols() []Symbol
	Close() error
}

var (
	elfMagic    = []byte{0x7f, 'E', 'L', 'F'}
	machoMagics = [][]byte{
		{0xcf, 0xfa, 0xed, 0xfe}, // MH_MAGIC_64, little endian
		{0xfe, 0xed, 0xfa, 0xcf}, // MH_MAGIC_64, big endian
	}
)

// Open sniffs the file magic and loads the image with the matching backend.
func Open(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	magic := make([]byte, 4)
	_, err = f.ReadAt(magic, 0)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}

	switch {
	case bytes.Equal(magic, elfMagic):
		return OpenELF(path)
	default:
		for _, m := range machoMagics {
			if bytes.Equal(magic, m) {
				return OpenMachO(path)
			}
		}
	}
	return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}

// FunctionContaining finds the function symbol covering va. The function is
// assumed to extend to the next symbol or the end of the text region.
func FunctionContaining(img Image, va uint64) (Symbol, uint64, bool) {
	text := img.Text()
	syms := img.Symbols()
	i := sort.Search(len(syms), func(i int) bool { return syms[i].Addr > va })
	if i == 0 {
		return Symbol{}, 0, false
	}
	sym := syms[i-1]
	end := text.End()
	if i < len(syms) && syms[i].Addr < end {
		end = syms[i].Addr
	}
	if va >= end || !text.Contains(sym.Addr) {
		return Symbol{}, 0, false
	}
	return sym, end, true
}

// sortSymbols orders symbols by address and removes duplicate addresses,
// keeping the first name seen.
func sortSymbols(syms []Symbol) []Symbol {
	sort.SliceStable(syms, func(i, j int) bool { return syms[i].Addr < syms[j].Addr })
	out := syms[:0]
	for _, s := range syms {
		if len(out) > 0 && out[len(out)-1].Addr == s.Addr {
			continue
		}
		out = append(out, s)
	}
	return out
}
