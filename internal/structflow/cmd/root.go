package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "structflow [file]",
		Short: "Recover struct layouts from ARM64 code",
		Long: `Structflow follows a pointer into an unknown struct through ARM64 machine code
and records every field the code reads or writes. From those accesses it builds
a struct layout. Run it on an ELF or Mach-O image (or a raw blob with --base).`,
		Example: `
# Accesses made through x0 in a function
structflow accesses kernelcache --func IOService::start

# The pointer is 0x90 bytes into the struct at a given instruction
structflow struct kernelcache --func 0xfffffff007a1c000 --seed 0xfffffff007a1c010:x19=0x90

# Browse functions interactively
structflow kernelcache
  `,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			if !term.IsTerminal(os.Stdout.Fd()) {
				return fmt.Errorf("not a terminal: use the accesses, struct or listing commands")
			}
			return runBrowse(cmd, a, args[0], "x0")
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: user config dir/structflow/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false, "Debug")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable coloured output")
	root.PersistentFlags().StringVar(&a.cpuprofile, "cpuprofile", "", "Write CPU profile to file")
	root.PersistentFlags().StringVar(&a.base, "base", "", "Treat the file as a raw code blob loaded at this address")

	root.AddCommand(
		newAccessesCmd(a),
		newStructCmd(a),
		newListingCmd(a),
		newBrowseCmd(a),
		newSchemaCmd(),
		newLogsCmd(a),
	)
	return root
}

func Execute() {
	root := newRootCmd()

	// fang renders help and errors for terminals; piped output gets plain cobra.
	if !term.IsTerminal(os.Stdout.Fd()) {
		if err := root.Execute(); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
