package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDropCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Delete the experiment table and everything in it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("dropping deletes all experiment results; re-run with --yes to confirm")
			}

			e, cfg, err := openExperimenter(cmd)
			if err != nil {
				return err
			}
			defer e.Close() //nolint:errcheck

			if err := e.DropTable(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "table %s dropped\n", cfg.Database.Table)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm dropping the table")
	return cmd
}
