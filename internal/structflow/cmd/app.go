package cmd

import (
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"structflow/internal/cfg"
	"structflow/internal/config"
	"structflow/internal/dataflow"
	"structflow/internal/image"
	"structflow/internal/isa"
	"structflow/internal/logging"
	sflog "structflow/internal/structflow/log"
	"structflow/internal/structs"
	"structflow/internal/ui/colorize"
)

// app carries what every command shares: the loaded configuration and the
// process logger. It is built in the root command's PersistentPreRunE.
type app struct {
	configPath string
	debug      bool
	noColor    bool
	cpuprofile string
	base       string

	cfg     config.Config
	log     *logging.LoggerCloser
	profile *os.File
}

func (a *app) setup(cmd *cobra.Command) error {
	c, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.debug {
		c.LogLevel = "debug"
	}
	if a.noColor {
		c.NoColor = true
	}
	a.cfg = c
	a.log = logging.NewLogger(c)
	sflog.Setup(a.log.Logger)

	if a.cpuprofile != "" {
		f, err := os.Create(a.cpuprofile)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %v", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("could not start CPU profile: %v", err)
		}
		a.profile = f
	}
	a.log.Debug("configured", "level", c.LogLevel, "max_function_size", c.MaxFunctionSize)
	return nil
}

func (a *app) teardown() {
	if a.profile != nil {
		pprof.StopCPUProfile()
		a.profile.Close()
		a.profile = nil
	}
	if a.log != nil {
		a.log.Close()
	}
}

func (a *app) highlighter() *colorize.Highlighter {
	return colorize.New(!a.cfg.NoColor)
}

// session is one opened image.
type session struct {
	app     *app
	img     image.Image
	builder *cfg.Builder
	names   *image.Demangler
}

func (a *app) open(path string) (*session, error) {
	var (
		img image.Image
		err error
	)
	if a.base != "" {
		img, err = openRaw(path, a.base)
	} else {
		img, err = image.Open(path)
	}
	if err != nil {
		return nil, err
	}
	a.log.Debug("opened image", "path", path, "format", img.Format(), "symbols", len(img.Symbols()))
	return &session{
		app:     a,
		img:     img,
		builder: cfg.NewBuilder(img, a.cfg.MaxFunctionSize, a.cfg.Arch()),
		names:   image.NewDemangler(),
	}, nil
}

func openRaw(path, base string) (image.Image, error) {
	va, err := parseNumber(base)
	if err != nil {
		return nil, fmt.Errorf("bad --base: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return image.NewMemory(va, data, nil), nil
}

func (s *session) Close() error {
	return s.img.Close()
}

func (s *session) describe(va uint64) string {
	return s.names.Describe(s.img, va)
}

// label names function entries for listings.
func (s *session) label(va uint64) (string, bool) {
	sym, _, ok := image.FunctionContaining(s.img, va)
	if !ok || sym.Addr != va {
		return "", false
	}
	return s.names.Demangle(sym.Name), true
}

func parseNumber(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 0, 64)
}

// resolve turns a number or a symbol name into an address. A name matches
// the raw symbol, its demangled signature, or the demangled name without its
// parameter list, so IOService::start finds IOService::start(IOService*).
// An exact match wins over a match without parameters.
func (s *session) resolve(spec string) (uint64, error) {
	if va, err := parseNumber(spec); err == nil {
		return va, nil
	}
	var (
		loose uint64
		found bool
	)
	for _, sym := range s.img.Symbols() {
		demangled := s.names.Demangle(sym.Name)
		if sym.Name == spec || demangled == spec {
			return sym.Addr, nil
		}
		if !found && withoutParams(demangled) == spec {
			loose, found = sym.Addr, true
		}
	}
	if found {
		return loose, nil
	}
	return 0, fmt.Errorf("unknown address or symbol %q", spec)
}

// withoutParams cuts a demangled signature at its parameter list.
func withoutParams(name string) string {
	if i := strings.IndexByte(name, '('); i > 0 {
		return name[:i]
	}
	return name
}

// targetFlags selects what to analyze and how to seed it.
type targetFlags struct {
	funcs []string
	start string
	end   string
	seeds []string
	reg   string
	delta string
}

func (f *targetFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.funcs, "func", "f", nil, "Function to analyze (address inside it or symbol name); repeat to accumulate")
	cmd.Flags().StringVar(&f.start, "start", "", "Start of a code range to analyze instead of a function")
	cmd.Flags().StringVar(&f.end, "end", "", "End of the code range (exclusive)")
	cmd.Flags().StringArrayVarP(&f.seeds, "seed", "s", nil, "Seed ADDR:REG=DELTA[,REG=DELTA]; repeatable")
	cmd.Flags().StringVarP(&f.reg, "reg", "r", "x0", "Register holding the struct pointer when no --seed is given")
	cmd.Flags().StringVar(&f.delta, "delta", "0", "Offset of that pointer into the struct")
}

// outcome is the merged result over every analyzed target.
type outcome struct {
	acc     dataflow.Accesses
	dropped []dataflow.UnresolvedSeed
}

// analyze runs the data flow over each --func, or over --start/--end. Several
// functions accumulate into one record.
func (s *session) analyze(f targetFlags) (*outcome, error) {
	var bounds *dataflow.Bounds
	if f.start != "" || f.end != "" {
		start, err := s.resolve(f.start)
		if err != nil {
			return nil, fmt.Errorf("--start: %w", err)
		}
		end, err := s.resolve(f.end)
		if err != nil {
			return nil, fmt.Errorf("--end: %w", err)
		}
		bounds = &dataflow.Bounds{Start: start, End: end}
	}

	var funcs []uint64
	for _, spec := range f.funcs {
		va, err := s.resolve(spec)
		if err != nil {
			return nil, fmt.Errorf("--func: %w", err)
		}
		funcs = append(funcs, va)
	}

	explicit, err := s.seedInit(f.seeds)
	if err != nil {
		return nil, err
	}
	defaultSeed := func(at uint64) (dataflow.Initialization, error) {
		if explicit != nil {
			return explicit, nil
		}
		reg, delta, err := s.parseRegDelta(f.reg, f.delta)
		if err != nil {
			return nil, err
		}
		return dataflow.Initialization{at: {reg: delta}}, nil
	}

	var targets []dataflow.Options
	if len(funcs) == 0 {
		opts := dataflow.Options{Bounds: bounds}
		if bounds != nil {
			if opts.Init, err = defaultSeed(bounds.Start); err != nil {
				return nil, err
			}
		}
		targets = append(targets, opts)
	}
	for _, va := range funcs {
		init, err := defaultSeed(va)
		if err != nil {
			return nil, err
		}
		targets = append(targets, dataflow.Options{Function: dataflow.Func(va), Bounds: bounds, Init: init})
	}

	out := &outcome{acc: dataflow.NewAccesses()}
	for _, opts := range targets {
		opts.Sink = out.acc
		opts.Arch = s.builder.Arch()
		opts.Logger = s.app.log.Logger
		res, err := dataflow.Analyze(s.builder, opts)
		if err != nil {
			return nil, err
		}
		out.dropped = append(out.dropped, res.Dropped...)
		s.app.log.Info("analyzed",
			"blocks", res.Stats.Blocks, "visits", res.Stats.Visits, "fields", out.acc.Len())
	}
	return out, nil
}

func (s *session) seedInit(specs []string) (dataflow.Initialization, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	init := dataflow.Initialization{}
	for _, spec := range specs {
		at, regs, err := parseSeed(spec)
		if err != nil {
			return nil, err
		}
		va, err := s.resolve(at)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", spec, err)
		}
		for r, d := range regs {
			if err := structs.ValidateDelta(d, s.app.cfg.MaxDelta); err != nil {
				return nil, fmt.Errorf("seed %q: %w", spec, err)
			}
			if init[va] == nil {
				init[va] = dataflow.RegisterState{}
			}
			init[va][r] = d
		}
	}
	return init, nil
}

func (s *session) parseRegDelta(reg, delta string) (isa.Register, int64, error) {
	r, err := isa.ParseRegister(reg)
	if err != nil {
		return 0, 0, err
	}
	d, err := parseDelta(delta)
	if err != nil {
		return 0, 0, fmt.Errorf("--delta: %w", err)
	}
	if err := structs.ValidateDelta(d, s.app.cfg.MaxDelta); err != nil {
		return 0, 0, err
	}
	return r, d, nil
}
