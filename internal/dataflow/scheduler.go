package dataflow

import (
	"fmt"

	"github.com/charmbracelet/log"

	"structflow/internal/cfg"
	"structflow/internal/disasm"
	"structflow/internal/isa"
)

// Decoder supplies the instructions of a block.
type Decoder interface {
	Decode(start, end uint64) (disasm.Stream, error)
}

// UnresolvedSeed is a pinned address that lies in no block of the CFG. The
// seed is dropped and the analysis continues without it.
type UnresolvedSeed struct {
	Addr uint64
	Regs RegisterState
}

func (s UnresolvedSeed) Error() string {
	return fmt.Sprintf("address %#x not contained in any basic block", s.Addr)
}

// BlockError reports a block whose instructions could not be decoded.
type BlockError struct {
	Block cfg.Block
	Err   error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("block %s: %v", e.Block, e.Err)
}

func (e *BlockError) Unwrap() error { return e.Err }

// Stats counts the work done by one schedule.
type Stats struct {
	Blocks  int // blocks in the CFG
	Visits  int // transfer function runs, including re-visits
	Decoded int // blocks whose instructions were fetched
}

// scheduler owns the entry-state table of one run.
type scheduler struct {
	dec    Decoder
	init   Initialization
	acc    Accesses
	arch   isa.Arch
	lg     *log.Logger
	blocks map[int]cfg.Block
	order  []int
	entry  map[int]RegisterState
	code   map[int]disasm.Stream
	stats  Stats
}

// Schedule runs the worklist over blocks, recording accesses into acc. It
// returns the seeds it had to drop. A decode failure aborts the run with a
// *BlockError; acc may then hold observations from blocks already visited.
func Schedule(dec Decoder, blocks []cfg.Block, init Initialization, acc Accesses, arch isa.Arch, lg *log.Logger) ([]UnresolvedSeed, Stats, error) {
	s := &scheduler{
		dec:    dec,
		init:   init,
		acc:    acc,
		arch:   arch,
		lg:     orDiscard(lg),
		blocks: make(map[int]cfg.Block, len(blocks)),
		entry:  make(map[int]RegisterState, len(blocks)),
		code:   make(map[int]disasm.Stream, len(blocks)),
	}
	for _, b := range blocks {
		s.blocks[b.ID] = b
		s.order = append(s.order, b.ID)
		s.entry[b.ID] = RegisterState{}
	}
	s.stats.Blocks = len(blocks)

	queue, dropped := s.seed()
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		next, err := s.visit(id)
		if err != nil {
			return dropped, s.stats, err
		}
		queue = append(queue, next...)
	}
	return dropped, s.stats, nil
}

// seed finds the block containing each pinned address. Each such block is
// queued once, in the order of the lowest pinned address it contains.
func (s *scheduler) seed() ([]int, []UnresolvedSeed) {
	var (
		queue   []int
		dropped []UnresolvedSeed
		queued  = make(map[int]bool)
	)
	for _, addr := range s.init.Addresses() {
		id, ok := s.containing(addr)
		if !ok {
			s.lg.Warn("dropping seed", "addr", hex(addr), "regs", s.init[addr])
			dropped = append(dropped, UnresolvedSeed{Addr: addr, Regs: s.init[addr]})
			continue
		}
		if !queued[id] {
			queued[id] = true
			queue = append(queue, id)
		}
	}
	return queue, dropped
}

func (s *scheduler) containing(addr uint64) (int, bool) {
	for _, id := range s.order {
		if s.blocks[id].Contains(addr) {
			return id, true
		}
	}
	return 0, false
}

// visit runs the transfer function over one block and merges its exit state
// into each successor. It returns the successors that gained a register.
func (s *scheduler) visit(id int) ([]int, error) {
	b := s.blocks[id]
	insts, err := s.instructions(b)
	if err != nil {
		return nil, err
	}
	s.stats.Visits++

	entry := s.entry[id]
	s.lg.Debug("block", "id", id, "start", hex(b.Start), "end", hex(b.End), "entry", entry)
	exit := ProcessBlock(insts, s.init, entry, s.acc, s.arch, s.lg)
	s.lg.Debug("block done", "id", id, "exit", exit, "succs", b.Succs)

	var requeue []int
	for _, succ := range b.Succs {
		succEntry, ok := s.entry[succ]
		if !ok {
			s.lg.Debug("successor outside cfg", "from", id, "to", succ)
			continue
		}
		if mergeFirstWins(succEntry, exit) {
			requeue = append(requeue, succ)
		}
	}
	return requeue, nil
}

func (s *scheduler) instructions(b cfg.Block) (disasm.Stream, error) {
	if insts, ok := s.code[b.ID]; ok {
		return insts, nil
	}
	insts, err := s.dec.Decode(b.Start, b.End)
	if err != nil {
		return nil, &BlockError{Block: b, Err: err}
	}
	s.code[b.ID] = insts
	s.stats.Decoded++
	return insts, nil
}

// mergeFirstWins adds to dst every register of src that dst lacks. Registers
// already in dst keep their value. It reports whether anything was added.
func mergeFirstWins(dst, src RegisterState) bool {
	added := false
	for r, d := range src {
		if _, ok := dst[r]; ok {
			continue
		}
		dst[r] = d
		added = true
	}
	return added
}
