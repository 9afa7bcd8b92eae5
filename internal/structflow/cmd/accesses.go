package cmd

import (
	"github.com/spf13/cobra"

	"structflow/internal/report"
)

func newAccessesCmd(a *app) *cobra.Command {
	var (
		tf     targetFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "accesses FILE",
		Short: "List the struct accesses made through a register",
		Long: `List every (offset, size) accessed through the seeded register, with the
instructions that made each access and the delta their base register held.
Without --seed the register named by --reg holds --delta at the --func address.
Several --func targets accumulate into one result.`,
		Example: `
structflow accesses kernel --func 0x1000
structflow accesses kernel --func f1 --func f2 --reg x1
structflow accesses blob.bin --base 0x4000 --start 0x4000 --end 0x4100 --seed 0x4010:x19=0x90
  `,
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
			if asJSON {
				return report.JSON(cmd.OutOrStdout(), report.NewDocument(out.acc, out.dropped, nil, s.describe))
			}
			return report.Text(cmd.OutOrStdout(), out.acc, s.describe)
		},
	}
	tf.bind(cmd)
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output JSON")
	return cmd
}
