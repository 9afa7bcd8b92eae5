package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"structflow/internal/dataflow"
	"structflow/internal/isa"
)

var errBadSeed = errors.New("bad seed")

// parseSeed splits "ADDR:REG=DELTA[,REG=DELTA...]". ADDR is returned
// unresolved since it may be a symbol name; the last colon separates it, so
// C++ names containing "::" are fine.
func parseSeed(spec string) (string, dataflow.RegisterState, error) {
	i := strings.LastIndex(spec, ":")
	if i <= 0 || i == len(spec)-1 {
		return "", nil, fmt.Errorf("%w %q: want ADDR:REG=DELTA", errBadSeed, spec)
	}
	at, assigns := spec[:i], spec[i+1:]

	regs := dataflow.RegisterState{}
	for _, assign := range strings.Split(assigns, ",") {
		name, value, ok := strings.Cut(assign, "=")
		if !ok {
			return "", nil, fmt.Errorf("%w %q: %q is not REG=DELTA", errBadSeed, spec, assign)
		}
		r, err := isa.ParseRegister(name)
		if err != nil {
			return "", nil, fmt.Errorf("%w %q: %v", errBadSeed, spec, err)
		}
		d, err := parseDelta(value)
		if err != nil {
			return "", nil, fmt.Errorf("%w %q: %v", errBadSeed, spec, err)
		}
		regs[r] = d
	}
	return at, regs, nil
}

// parseDelta accepts decimal, 0x hex and a leading minus sign.
func parseDelta(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 0, 64)
}
