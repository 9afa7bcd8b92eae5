package dataflow

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"structflow/internal/cfg"
	"structflow/internal/isa"
)

var (
	// ErrConfiguration means the target was given as both a function and
	// bounds, or as neither.
	ErrConfiguration = errors.New("exactly one of function or bounds must be given")
	// ErrCFGBuild wraps a provider failure to build the CFG.
	ErrCFGBuild = errors.New("cannot build cfg")
)

// Provider builds CFGs and decodes their blocks. *cfg.Builder implements it.
type Provider interface {
	Decoder
	FunctionCFG(addr uint64) ([]cfg.Block, error)
	RangeCFG(start, end uint64) ([]cfg.Block, error)
}

// Bounds is a code range [Start, End).
type Bounds struct {
	Start uint64
	End   uint64
}

// Options configures one Analyze call.
type Options struct {
	// Function is any address inside the function to analyze.
	Function *uint64
	// Bounds is an explicit code range to analyze instead of a function.
	Bounds *Bounds
	Init   Initialization
	// Sink, when non-nil, receives the observations in place and the result
	// carries no Accesses of its own.
	Sink Accesses
	// Arch sets the word size offsets wrap at. The zero value is 64-bit.
	Arch   isa.Arch
	Logger *log.Logger
}

// Result is the outcome of a successful Analyze call.
type Result struct {
	Accesses Accesses
	Dropped  []UnresolvedSeed
	Stats    Stats
}

// Partial reports whether some seeds were dropped.
func (r *Result) Partial() bool {
	return len(r.Dropped) > 0
}

// Analyze finds every access made through registers pointing into the region
// described by opts.Init, over the CFG of a function or a code range.
//
// On error no result is returned and opts.Sink is left untouched.
func Analyze(p Provider, opts Options) (*Result, error) {
	lg := orDiscard(opts.Logger)

	if (opts.Function == nil) == (opts.Bounds == nil) {
		lg.Error("bad analysis target", "function", opts.Function != nil, "bounds", opts.Bounds != nil)
		return nil, ErrConfiguration
	}

	var (
		blocks []cfg.Block
		err    error
	)
	if opts.Function != nil {
		blocks, err = p.FunctionCFG(*opts.Function)
	} else {
		blocks, err = p.RangeCFG(opts.Bounds.Start, opts.Bounds.End)
	}
	if err != nil {
		lg.Error("bad func", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrCFGBuild, err)
	}

	acc := NewAccesses()
	dropped, stats, err := Schedule(p, blocks, opts.Init, acc, opts.Arch, lg)
	if err != nil {
		lg.Error("analysis aborted", "err", err)
		return nil, err
	}

	res := &Result{Dropped: dropped, Stats: stats}
	if opts.Sink != nil {
		opts.Sink.Merge(acc)
	} else {
		res.Accesses = acc
	}
	return res, nil
}

// Func is a convenience for Options.Function.
func Func(addr uint64) *uint64 {
	return &addr
}

func orDiscard(lg *log.Logger) *log.Logger {
	if lg != nil {
		return lg
	}
	return log.New(io.Discard)
}
