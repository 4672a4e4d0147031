package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the full experiment table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, _, err := openExperimenter(cmd)
			if err != nil {
				return err
			}
			defer e.Close() //nolint:errcheck

			columns, rows, err := e.TableRows(cmd.Context())
			if err != nil {
				return err
			}
			cells := make([][]string, len(rows))
			for i, row := range rows {
				cells[i] = make([]string, len(row))
				for j, v := range row {
					cells[i][j] = formatValue(v)
				}
			}
			PrintTable(os.Stdout, columns, cells)
			return nil
		},
	}
}
