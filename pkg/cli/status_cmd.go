package cli

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"expgrid/domain"
)

var statusOrder = []domain.Status{
	domain.StatusCreated,
	domain.StatusRunning,
	domain.StatusDone,
	domain.StatusError,
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how many experiments sit in each lifecycle state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, _, err := openExperimenter(cmd)
			if err != nil {
				return err
			}
			defer e.Close() //nolint:errcheck

			counts, err := e.StatusCounts(cmd.Context())
			if err != nil {
				return err
			}

			total := 0
			rows := make([][]string, 0, len(statusOrder)+1)
			for _, s := range statusOrder {
				rows = append(rows, []string{string(s), strconv.Itoa(counts[s])})
				total += counts[s]
			}
			rows = append(rows, []string{"total", strconv.Itoa(total)})
			PrintTable(os.Stdout, []string{"status", "experiments"}, rows)
			return nil
		},
	}
}
