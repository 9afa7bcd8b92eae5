// Package cfg splits decoded ARM64 code into basic blocks and successor
// edges, for a whole function or an explicit address range.
package cfg

import (
	"errors"
	"fmt"
	"sort"

	"structflow/internal/disasm"
	"structflow/internal/image"
	"structflow/internal/isa"
)

var (
	// ErrNoFunction means no function symbol covers the requested address.
	ErrNoFunction = errors.New("no function at address")
	// ErrBadRange means the bounds are empty, inverted or unreadable.
	ErrBadRange = errors.New("invalid code range")
)

// Block is a basic block covering [Start, End).
type Block struct {
	ID    int
	Start uint64
	End   uint64
	Succs []int
}

// Contains reports whether va lies in the block.
func (b Block) Contains(va uint64) bool {
	return va >= b.Start && va < b.End
}

func (b Block) String() string {
	return fmt.Sprintf("bb%d[%#x-%#x)", b.ID, b.Start, b.End)
}

// Builder builds CFGs over an image. It caches nothing; every call reads and
// decodes afresh.
type Builder struct {
	img     image.Image
	maxSize uint64
	arch    isa.Arch
}

// NewBuilder returns a builder over img. Functions larger than maxSize bytes
// are truncated to maxSize; zero means no limit. Instruction words are read
// in arch's byte order.
func NewBuilder(img image.Image, maxSize uint64, arch isa.Arch) *Builder {
	return &Builder{img: img, maxSize: maxSize, arch: arch}
}

// Arch returns the architecture the builder decodes for.
func (b *Builder) Arch() isa.Arch {
	return b.arch
}

// FunctionCFG builds the CFG of the function containing addr.
func (b *Builder) FunctionCFG(addr uint64) ([]Block, error) {
	sym, end, ok := image.FunctionContaining(b.img, addr)
	if !ok {
		return nil, fmt.Errorf("%#x: %w", addr, ErrNoFunction)
	}
	if b.maxSize != 0 && end-sym.Addr > b.maxSize {
		end = sym.Addr + b.maxSize
	}
	return b.RangeCFG(sym.Addr, end)
}

// RangeCFG builds the CFG of the code in [start, end).
func (b *Builder) RangeCFG(start, end uint64) ([]Block, error) {
	if end <= start {
		return nil, fmt.Errorf("[%#x, %#x): %w", start, end, ErrBadRange)
	}
	insts, err := b.Decode(start, end)
	if err != nil {
		return nil, err
	}
	return Split(insts, start, end), nil
}

// Decode reads and decodes the instructions in [start, end).
func (b *Builder) Decode(start, end uint64) (disasm.Stream, error) {
	if end < start {
		return nil, fmt.Errorf("[%#x, %#x): %w", start, end, ErrBadRange)
	}
	code, ok := b.img.ReadBytesVA(start, int(end-start))
	if !ok {
		return nil, fmt.Errorf("read [%#x, %#x): %w", start, end, ErrBadRange)
	}
	return disasm.Decode(code, start, b.arch.ByteOrder())
}

// Split partitions a decoded, contiguous instruction stream into basic
// blocks. Block IDs follow address order. Branch targets outside
// [start, end) produce no edge.
func Split(insts disasm.Stream, start, end uint64) []Block {
	if len(insts) == 0 {
		return nil
	}
	inRange := func(va uint64) bool { return va >= start && va < end }

	leaders := map[uint64]bool{insts[0].VA: true}
	for _, in := range insts {
		if !in.Class.EndsBlock() {
			continue
		}
		if in.Target != 0 && inRange(in.Target) {
			leaders[in.Target] = true
		}
		if inRange(in.Next()) {
			leaders[in.Next()] = true
		}
	}

	starts := make([]uint64, 0, len(leaders))
	for va := range leaders {
		starts = append(starts, va)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	blocks := make([]Block, len(starts))
	index := make(map[uint64]int, len(starts))
	for i, s := range starts {
		blockEnd := insts[len(insts)-1].Next()
		if i+1 < len(starts) {
			blockEnd = starts[i+1]
		}
		blocks[i] = Block{ID: i, Start: s, End: blockEnd}
		index[s] = i
	}

	for i := range blocks {
		body := insts.Between(blocks[i].Start, blocks[i].End)
		if len(body) == 0 {
			continue
		}
		last := body[len(body)-1]
		var succs []int
		addSucc := func(va uint64) {
			id, ok := index[va]
			if !ok {
				return
			}
			for _, s := range succs {
				if s == id {
					return
				}
			}
			succs = append(succs, id)
		}
		switch last.Class {
		case disasm.Branch:
			addSucc(last.Target)
		case disasm.CondBranch:
			addSucc(last.Next())
			addSucc(last.Target)
		case disasm.Return, disasm.IndirectBranch:
		default:
			addSucc(last.Next())
		}
		blocks[i].Succs = succs
	}
	return blocks
}
