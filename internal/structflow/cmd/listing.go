package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"structflow/internal/disasm"
	"structflow/internal/image"
	"structflow/internal/report"
	"structflow/internal/structs"
)

func newListingCmd(a *app) *cobra.Command {
	var (
		tf   targetFlags
		name string
	)
	cmd := &cobra.Command{
		Use:   "listing FILE",
		Short: "Disassemble the analyzed code with struct field annotations",
		Long: `Disassemble each analyzed function or range and mark every instruction that
accesses the struct with the field it touches, written name.field_x or
name.field_x-0xN when the base register pointed N bytes into the struct.`,
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
			code, err := s.code(tf)
			if err != nil {
				return err
			}
			refs := structs.OperandRefs(out.acc, name)
			return report.Listing(cmd.OutOrStdout(), code, refs, a.highlighter(), s.label)
		},
	}
	tf.bind(cmd)
	cmd.Flags().StringVarP(&name, "name", "n", "struc", "Struct name used in annotations")
	return cmd
}

// code decodes every analyzed function or the --start/--end range.
func (s *session) code(tf targetFlags) (disasm.Stream, error) {
	if len(tf.funcs) == 0 {
		start, err := s.resolve(tf.start)
		if err != nil {
			return nil, err
		}
		end, err := s.resolve(tf.end)
		if err != nil {
			return nil, err
		}
		return s.builder.Decode(start, end)
	}
	var all disasm.Stream
	for _, spec := range tf.funcs {
		va, err := s.resolve(spec)
		if err != nil {
			return nil, err
		}
		sym, end, ok := image.FunctionContaining(s.img, va)
		if !ok {
			return nil, fmt.Errorf("no function at %#x", va)
		}
		if limit := s.app.cfg.MaxFunctionSize; limit != 0 && end-sym.Addr > limit {
			end = sym.Addr + limit
		}
		insts, err := s.builder.Decode(sym.Addr, end)
		if err != nil {
			return nil, err
		}
		all = append(all, insts...)
	}
	return all, nil
}
