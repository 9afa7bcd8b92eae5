package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/nxadm/tail"
	"github.com/spf13/cobra"

	"structflow/internal/logging"
)

func newLogsCmd(a *app) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs [FILE]",
		Short: "Print the newest debug log",
		Long: `Print a debug log written with log_to_file. Without FILE the newest
structflow-*-debug.log in log_dir is used, skipping the one this
invocation writes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				latest, err := logging.LatestFile(a.cfg.LogDir, a.log.Path)
				if err != nil {
					return err
				}
				path = latest
			}
			if !follow {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				_, err = io.Copy(cmd.OutOrStdout(), f)
				return err
			}

			t, err := tail.TailFile(path, tail.Config{Follow: true, ReOpen: true, MustExist: true, Logger: tail.DiscardingLogger})
			if err != nil {
				return err
			}
			defer t.Cleanup()
			ctx := cmd.Context()
			for {
				select {
				case <-ctx.Done():
					return t.Stop()
				case line, ok := <-t.Lines:
					if !ok {
						return t.Err()
					}
					if line.Err != nil {
						return line.Err
					}
					fmt.Fprintln(cmd.OutOrStdout(), line.Text)
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	return cmd
}
