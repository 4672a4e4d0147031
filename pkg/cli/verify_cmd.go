package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the experiment table matches the configured fields",
		Long: "Connects to the configured backend and verifies the table structure against the " +
			"declared keyfields and result fields. A missing table is created.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cfg, err := openExperimenter(cmd)
			if err != nil {
				return err
			}
			defer e.Close() //nolint:errcheck

			fmt.Fprintf(os.Stdout, "table %s on %s matches the configured fields\n",
				cfg.Database.Table, cfg.Database.Provider)
			return nil
		},
	}
}
