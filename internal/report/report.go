// Package report renders analysis results as text, JSON, markdown and
// annotated listings.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"structflow/internal/dataflow"
	"structflow/internal/disasm"
	"structflow/internal/structs"
	"structflow/internal/ui/colorize"
)

// Namer names code addresses, e.g. (*image.Demangler).Describe.
type Namer func(va uint64) string

func hexAddr(va uint64) string { return fmt.Sprintf("%#x", va) }

// Text writes one line per accessed (offset, size), followed by the
// instructions that made the access and the delta their base held.
func Text(w io.Writer, acc dataflow.Accesses, name Namer) error {
	if name == nil {
		name = hexAddr
	}
	for _, k := range acc.Keys() {
		obs := acc.Observations(k)
		parts := make([]string, 0, len(obs))
		for _, o := range obs {
			parts = append(parts, fmt.Sprintf("%s[%+#x]", name(o.Addr), o.Delta))
		}
		if _, err := fmt.Fprintf(w, "%#8x  %d  %s\n", k.Offset, k.Size, strings.Join(parts, " ")); err != nil {
			return err
		}
	}
	return nil
}

// Observation is the JSON form of dataflow.Observation.
type Observation struct {
	Addr     string `json:"addr"`
	Function string `json:"function,omitempty"`
	Delta    int64  `json:"delta"`
}

// Access is the JSON form of one key and its observations.
type Access struct {
	Offset       string        `json:"offset"`
	Size         int           `json:"size"`
	Observations []Observation `json:"observations"`
}

// Seed is the JSON form of a dropped seed.
type Seed struct {
	Addr      string           `json:"addr"`
	Registers map[string]int64 `json:"registers"`
}

// Document is the full JSON report.
type Document struct {
	Accesses []Access `json:"accesses"`
	Dropped  []Seed   `json:"dropped,omitempty"`
	Struct   string   `json:"struct,omitempty"`
}

// NewDocument builds the JSON report. layout may be nil.
func NewDocument(acc dataflow.Accesses, dropped []dataflow.UnresolvedSeed, layout *structs.Layout, name Namer) Document {
	doc := Document{Accesses: []Access{}}
	for _, k := range acc.Keys() {
		a := Access{Offset: hexAddr(k.Offset), Size: k.Size}
		for _, o := range acc.Observations(k) {
			ob := Observation{Addr: hexAddr(o.Addr), Delta: o.Delta}
			if name != nil {
				ob.Function = name(o.Addr)
			}
			a.Observations = append(a.Observations, ob)
		}
		doc.Accesses = append(doc.Accesses, a)
	}
	for _, d := range dropped {
		s := Seed{Addr: hexAddr(d.Addr), Registers: make(map[string]int64, len(d.Regs))}
		for r, delta := range d.Regs {
			s.Registers[r.String()] = delta
		}
		doc.Dropped = append(doc.Dropped, s)
	}
	if layout != nil {
		doc.Struct = layout.CDecl()
	}
	return doc
}

// JSON writes doc indented.
func JSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Markdown describes a recovered struct: a field table with the accessing
// instructions and the C declaration.
func Markdown(layout *structs.Layout, name Namer) string {
	if name == nil {
		name = hexAddr
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# struct %s\n\n", layout.Name)
	fmt.Fprintf(&sb, "%d fields, %#x bytes.\n\n", len(layout.Fields), layout.Size())

	if len(layout.Fields) > 0 {
		sb.WriteString("| Offset | Size | Field | Accessed by |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, f := range layout.Fields {
			by := make([]string, 0, len(f.Addrs))
			for _, a := range f.Addrs {
				by = append(by, "`"+name(a)+"`")
			}
			fmt.Fprintf(&sb, "| %#x | %d | `%s` | %s |\n", f.Offset, f.Size, f.Name, strings.Join(by, ", "))
		}
		sb.WriteString("\n")
	}

	if len(layout.Rejected) > 0 {
		sb.WriteString("## Rejected accesses\n\n")
		for _, r := range layout.Rejected {
			fmt.Fprintf(&sb, "- (%#x, %d): %s\n", r.Field.Offset, r.Field.Size, r.Reason)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Declaration\n\n```c\n")
	sb.WriteString(layout.CDecl())
	sb.WriteString("```\n")
	return sb.String()
}

// Listing writes the instructions with struct references as comments. A
// label line precedes every address label reports one for.
func Listing(w io.Writer, insts disasm.Stream, refs map[uint64][]string, hl *colorize.Highlighter, label func(va uint64) (string, bool)) error {
	if hl == nil {
		hl = colorize.New(false)
	}
	for _, in := range insts {
		if label != nil {
			if l, ok := label(in.VA); ok {
				if _, err := fmt.Fprintf(w, "\n%s:\n", l); err != nil {
					return err
				}
			}
		}
		text := in.Text
		if text == "" {
			text = strings.TrimSpace(strings.TrimPrefix(in.String(), fmt.Sprintf("%x", in.VA)))
		}
		if _, err := fmt.Fprintln(w, hl.Line(in.VA, text, refs[in.VA])); err != nil {
			return err
		}
	}
	return nil
}
