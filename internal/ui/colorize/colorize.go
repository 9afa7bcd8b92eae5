// Package colorize highlights disassembly listings for the terminal.
package colorize

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

const (
	addrColor = "\033[38;2;79;79;79m"
	hitColor  = "\033[38;2;235;194;237m"
	reset     = "\033[0m"
)

// Highlighter colours listing lines. A disabled highlighter returns its
// input unchanged.
type Highlighter struct {
	enabled   bool
	lexer     chroma.Lexer
	style     *chroma.Style
	formatter chroma.Formatter
}

// New returns a highlighter; with color false every method is a no-op.
func New(color bool) *Highlighter {
	h := &Highlighter{enabled: color}
	if !color {
		return h
	}
	h.lexer = firstLexer("armasm", "gas", "nasm")
	h.style = firstStyle(StyleName, "dracula", "monokai")
	h.formatter = firstFormatter("terminal16m", "terminal256")
	if h.lexer == nil {
		h.enabled = false
	}
	return h
}

func firstLexer(names ...string) chroma.Lexer {
	for _, name := range names {
		if l := lexers.Get(name); l != nil {
			return l
		}
	}
	return nil
}

func firstStyle(names ...string) *chroma.Style {
	for _, name := range names {
		if s := styles.Get(name); s != nil {
			return s
		}
	}
	return styles.Fallback
}

func firstFormatter(names ...string) chroma.Formatter {
	for _, name := range names {
		if f := formatters.Get(name); f != nil {
			return f
		}
	}
	return formatters.Fallback
}

// Enabled reports whether output is coloured.
func (h *Highlighter) Enabled() bool {
	return h.enabled
}

// Code highlights a block of assembly.
func (h *Highlighter) Code(code string) string {
	if !h.enabled {
		return code
	}
	it, err := h.lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var sb strings.Builder
	if err := h.formatter.Format(&sb, h.style, it); err != nil {
		return code
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// Line renders one listing line: address, instruction text and, when refs is
// non-empty, a trailing comment naming the struct fields accessed. Lines with
// references get their address highlighted.
func (h *Highlighter) Line(addr uint64, text string, refs []string) string {
	comment := ""
	if len(refs) > 0 {
		comment = " ; " + strings.Join(refs, ", ")
	}
	if !h.enabled {
		return fmt.Sprintf("%x  %-32s%s", addr, text, comment)
	}

	color := addrColor
	if len(refs) > 0 {
		color = hitColor
	}
	pad := ""
	if n := 32 - len(text); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	return fmt.Sprintf("%s%x%s  %s%s%s", color, addr, reset, h.Code(text), pad, h.comment(comment))
}

func (h *Highlighter) comment(c string) string {
	if c == "" {
		return ""
	}
	return hitColor + c + reset
}

// Strip removes ANSI escape sequences.
func Strip(s string) string {
	var sb strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
