package image

import (
	"fmt"
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// Demangler caches demangled C++ names. The zero value is not usable; use
// NewDemangler.
type Demangler struct {
	mu    sync.RWMutex
	cache map[string]string
	hits  int
}

func NewDemangler() *Demangler {
	return &Demangler{cache: make(map[string]string)}
}

// Demangle returns the demangled form of name, or name itself when it is not
// a mangled C++ symbol.
func (d *Demangler) Demangle(name string) string {
	d.mu.RLock()
	if cached, ok := d.cache[name]; ok {
		d.mu.RUnlock()
		d.mu.Lock()
		d.hits++
		d.mu.Unlock()
		return cached
	}
	d.mu.RUnlock()

	out := demangle.Filter(name, demangle.NoClones)

	d.mu.Lock()
	d.cache[name] = out
	d.mu.Unlock()
	return out
}

// Stats reports the number of cached names and cache hits.
func (d *Demangler) Stats() (entries, hits int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cache), d.hits
}

// Describe names an address as "symbol+0xoff", falling back to "sub_<addr>".
func (d *Demangler) Describe(img Image, va uint64) string {
	sym, _, ok := FunctionContaining(img, va)
	if !ok {
		return fmt.Sprintf("sub_%x", va)
	}
	name := d.Demangle(sym.Name)
	if va == sym.Addr {
		return name
	}
	return fmt.Sprintf("%s+%#x", name, va-sym.Addr)
}
