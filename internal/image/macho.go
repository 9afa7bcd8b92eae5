package image

import (
	"fmt"
	"strings"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
)

// MachO is a Mach-O image, typically an iOS kernelcache.
type MachO struct {
	Path string
	File *macho.File
	text Section
	syms []Symbol
}

var _ Image = (*MachO)(nil)

// textSections are searched in order; kernelcaches keep code in __TEXT_EXEC.
var textSections = [][2]string{
	{"__TEXT_EXEC", "__text"},
	{"__TEXT", "__text"},
}

// OpenMachO parses the file and indexes its code section and symbols.
func OpenMachO(path string) (*MachO, error) {
	f, err := macho.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open macho: %w", err)
	}

	im := &MachO{Path: path, File: f}
	for _, name := range textSections {
		if s := f.Section(name[0], name[1]); s != nil {
			im.text = Section{Name: s.Seg + "." + s.Name, VA: s.Addr, Size: s.Size}
			break
		}
	}
	if im.text.Size == 0 {
		f.Close()
		return nil, fmt.Errorf("open macho: no text section in %s", path)
	}

	if f.Symtab != nil {
		var syms []Symbol
		for _, sym := range f.Symtab.Syms {
			if sym.Value == 0 || sym.Type&types.N_TYPE != types.N_SECT {
				continue
			}
			if !im.text.Contains(sym.Value) {
				continue
			}
			syms = append(syms, Symbol{Name: strings.TrimPrefix(sym.Name, "_"), Addr: sym.Value})
		}
		im.syms = sortSymbols(syms)
	}
	if len(im.syms) == 0 {
		// Stripped kernelcaches still carry LC_FUNCTION_STARTS.
		im.syms = startSymbols(f.GetFunctions(), im.text)
	}
	return im, nil
}

// startSymbols names each function start inside text sub_<hex>.
func startSymbols(fns []types.Function, text Section) []Symbol {
	var syms []Symbol
	for _, fn := range fns {
		if !text.Contains(fn.StartAddr) {
			continue
		}
		name := fn.Name
		if name == "" {
			name = fmt.Sprintf("sub_%x", fn.StartAddr)
		}
		syms = append(syms, Symbol{Name: name, Addr: fn.StartAddr})
	}
	return sortSymbols(syms)
}

func (im *MachO) Format() Format    { return FormatMachO }
func (im *MachO) Text() Section     { return im.text }
func (im *MachO) Symbols() []Symbol { return im.syms }

// ReadBytesVA reads through the file offset of va.
func (im *MachO) ReadBytesVA(va uint64, size int) ([]byte, bool) {
	if size <= 0 {
		return []byte{}, true
	}
	off, err := im.File.GetOffset(va)
	if err != nil {
		return nil, false
	}
	buf := make([]byte, size)
	if n, err := im.File.ReadAt(buf, int64(off)); err != nil || n != size {
		return nil, false
	}
	return buf, true
}

func (im *MachO) Close() error {
	if im.File == nil {
		return nil
	}
	err := im.File.Close()
	im.File = nil
	return err
}
