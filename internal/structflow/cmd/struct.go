package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"structflow/internal/report"
	"structflow/internal/structflow/styles"
	"structflow/internal/structs"
)

func newStructCmd(a *app) *cobra.Command {
	var (
		tf       targetFlags
		name     string
		markdown bool
		asJSON   bool
		width    int
	)
	cmd := &cobra.Command{
		Use:   "struct FILE",
		Short: "Build a struct layout from the recovered accesses",
		Long: `Build a struct with one field_<offset> member per accessed (offset, size) and
print it as a C declaration. Accesses overlapping an earlier member or lying
beyond max_delta are listed as rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			out, err := s.analyze(tf)
			if err != nil {
				return err
			}
			layout := structs.FromAccesses(name, out.acc, uint64(a.cfg.MaxDelta))
			for _, r := range layout.Rejected {
				a.log.Warn("rejected access", "offset", fmt.Sprintf("%#x", r.Field.Offset), "size", r.Field.Size, "reason", r.Reason)
			}

			w := cmd.OutOrStdout()
			switch {
			case asJSON:
				return report.JSON(w, report.NewDocument(out.acc, out.dropped, layout, s.describe))
			case markdown:
				r, err := styles.MarkdownRenderer(width, !a.cfg.NoColor)
				if err != nil {
					return err
				}
				rendered, err := r.Render(report.Markdown(layout, s.describe))
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(w, rendered)
				return err
			default:
				_, err = fmt.Fprint(w, layout.CDecl())
				return err
			}
		},
	}
	tf.bind(cmd)
	cmd.Flags().StringVarP(&name, "name", "n", "struc", "Struct name")
	cmd.Flags().BoolVarP(&markdown, "markdown", "m", false, "Render a markdown report")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output JSON")
	cmd.Flags().IntVar(&width, "width", 100, "Markdown wrap width")
	return cmd
}
