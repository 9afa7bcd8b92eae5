package styles

import (
	"strings"
	"testing"
)

const report = "# struct obj\n\n" +
	"2 fields, 0x10 bytes.\n\n" +
	"| Offset | Size | Field | Accessed by |\n" +
	"|---|---|---|---|\n" +
	"| 0x0 | 8 | `field_0` | `f+0x4` |\n" +
	"| 0x8 | 8 | `field_8` | `f+0x8` |\n\n" +
	"## Rejected accesses\n\n" +
	"- (0x4, 8): overlaps field_0\n\n" +
	"## Declaration\n\n```c\nstruct obj {\n  uint64_t field_0;\n};\n```\n"

func TestMarkdownRenderer(t *testing.T) {
	tests := []struct {
		name  string
		color bool
		want  []string
	}{
		{name: "plain", want: []string{"struct obj", "field_8", "f+0x8", "overlaps field_0", "uint64_t field_0;"}},
		{name: "color", color: true, want: []string{"✗", "│", "field_8", "overlaps field_0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := MarkdownRenderer(100, tt.color)
			if err != nil {
				t.Fatalf("MarkdownRenderer failed: %v", err)
			}
			out, err := r.Render(report)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("rendered output lacks %q:\n%s", s, out)
				}
			}
		})
	}
}
