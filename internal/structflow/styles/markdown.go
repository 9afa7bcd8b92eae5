// Package styles holds the glamour style used to render markdown reports.
package styles

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/x/exp/charmtone"

	"structflow/internal/ui/colorize"
)

func boolPtr(b bool) *bool       { return &b }
func stringPtr(s string) *string { return &s }
func uintPtr(u uint) *uint       { return &u }

// MarkdownRenderer returns a renderer wrapping at width. Without color it
// uses glamour's plain notty style.
func MarkdownRenderer(width int, color bool) (*glamour.TermRenderer, error) {
	style := glamour.WithStandardStyle("notty")
	if color {
		style = glamour.WithStyles(MarkdownStyle())
	}
	return glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
}

// MarkdownStyle styles the struct report: the struct name as a title, the
// field table, field and function references in inline code, the rejected
// accesses list and the C declaration.
func MarkdownStyle() ansi.StyleConfig {
	return ansi.StyleConfig{
		Document: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(charmtone.Smoke.Hex()),
			},
		},
		Heading: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				BlockSuffix: "\n",
				Color:       stringPtr(charmtone.Malibu.Hex()),
				Bold:        boolPtr(true),
			},
		},
		H1: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Prefix:          " ",
				Suffix:          " ",
				Color:           stringPtr(charmtone.Zest.Hex()),
				BackgroundColor: stringPtr(charmtone.Charple.Hex()),
			},
		},
		List: ansi.StyleList{
			LevelIndent: 2,
		},
		// Only rejected accesses are listed.
		Item: ansi.StylePrimitive{
			BlockPrefix: "✗ ",
			Color:       stringPtr(charmtone.Coral.Hex()),
		},
		Code: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(charmtone.Mustard.Hex()),
			},
		},
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{
				Margin: uintPtr(2),
			},
			Theme: colorize.StyleName,
		},
		Table: ansi.StyleTable{
			CenterSeparator: stringPtr("┼"),
			ColumnSeparator: stringPtr("│"),
			RowSeparator:    stringPtr("─"),
		},
	}
}
