package image

import (
	"debug/elf"
	"fmt"
	"os"
	"syscall"
)

type segment struct {
	vaddr, off, filesz uint64
	flags              elf.ProgFlag
}

// ELF is an mmap-backed ELF image.
type ELF struct {
	Path  string
	File  *elf.File
	all   []byte
	loads []segment
	text  Section
	syms  []Symbol
	f     *os.File
}

var _ Image = (*ELF)(nil)

// OpenELF maps the file read-only and indexes its segments and symbols.
func OpenELF(path string) (*ELF, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}
	if f.Machine != elf.EM_AARCH64 {
		f.Close()
		return nil, fmt.Errorf("open elf: unsupported machine %v", f.Machine)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}
	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im := &ELF{Path: path, File: f, all: all, f: of}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.loads = append(im.loads, segment{
			vaddr:  p.Vaddr,
			off:    p.Off,
			filesz: p.Filesz,
			flags:  p.Flags,
		})
	}

	if s := f.Section(".text"); s != nil {
		im.text = Section{Name: s.Name, VA: s.Addr, Size: s.Size}
	} else {
		// Stripped section headers: fall back to the first executable segment.
		for _, l := range im.loads {
			if l.flags&elf.PF_X != 0 && l.filesz > 0 {
				im.text = Section{Name: "LOAD(exec)", VA: l.vaddr, Size: l.filesz}
				break
			}
		}
	}

	im.loadSymbols()
	return im, nil
}

// loadSymbols collects defined function symbols from .symtab and .dynsym.
func (im *ELF) loadSymbols() {
	var syms []Symbol
	add := func(list []elf.Symbol) {
		for _, s := range list {
			if s.Value == 0 || elf.ST_TYPE(s.Info) != elf.STT_FUNC {
				continue
			}
			syms = append(syms, Symbol{Name: s.Name, Addr: s.Value})
		}
	}
	if static, err := im.File.Symbols(); err == nil {
		add(static)
	}
	if dynamic, err := im.File.DynamicSymbols(); err == nil {
		add(dynamic)
	}
	im.syms = sortSymbols(syms)
}

func (im *ELF) Format() Format    { return FormatELF }
func (im *ELF) Text() Section     { return im.text }
func (im *ELF) Symbols() []Symbol { return im.syms }

// va2Off translates a virtual address into a file offset using PT_LOAD
// segments.
func (im *ELF) va2Off(va uint64) (uint64, bool) {
	for _, l := range im.loads {
		if va >= l.vaddr && va < l.vaddr+l.filesz {
			return l.off + (va - l.vaddr), true
		}
	}
	return 0, false
}

// ReadBytesVA returns a subslice of the mapped file. It returns false if the
// VA is unmapped or the range runs past the end of the file.
func (im *ELF) ReadBytesVA(va uint64, size int) ([]byte, bool) {
	if size <= 0 {
		return []byte{}, true
	}
	off, ok := im.va2Off(va)
	if !ok {
		return nil, false
	}
	end := off + uint64(size)
	if end > uint64(len(im.all)) {
		return nil, false
	}
	return im.all[off:end], true
}

// Close unmaps the memory and closes the underlying files.
func (im *ELF) Close() error {
	var err1, err2 error
	if im.all != nil {
		err1 = syscall.Munmap(im.all)
		im.all = nil
	}
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		if err3 := im.File.Close(); err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}
