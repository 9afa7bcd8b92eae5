package image

// Memory is an image backed by a byte slice loaded at a fixed base. It is
// used for raw code dumps.
type Memory struct {
	base uint64
	data []byte
	syms []Symbol
}

var _ Image = (*Memory)(nil)

// NewMemory wraps data loaded at base. The whole blob is treated as text.
func NewMemory(base uint64, data []byte, syms []Symbol) *Memory {
	cp := append([]Symbol(nil), syms...)
	return &Memory{base: base, data: data, syms: sortSymbols(cp)}
}

func (m *Memory) Format() Format    { return FormatRaw }
func (m *Memory) Symbols() []Symbol { return m.syms }
func (m *Memory) Close() error      { return nil }

func (m *Memory) Text() Section {
	return Section{Name: "raw", VA: m.base, Size: uint64(len(m.data))}
}

func (m *Memory) ReadBytesVA(va uint64, size int) ([]byte, bool) {
	if size <= 0 {
		return []byte{}, true
	}
	if va < m.base {
		return nil, false
	}
	off := va - m.base
	end := off + uint64(size)
	if end > uint64(len(m.data)) || end < off {
		return nil, false
	}
	return m.data[off:end], true
}
