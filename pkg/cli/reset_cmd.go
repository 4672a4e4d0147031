package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"expgrid/domain"
)

func newResetCmd() *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return experiments in the given states to created",
		Long: "Deletes every row in one of the given states and reinserts its parameter " +
			"combination as a fresh created row. Accumulated results are discarded.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseStatuses(statuses)
			if err != nil {
				return err
			}

			e, cfg, err := openExperimenter(cmd)
			if err != nil {
				return err
			}
			defer e.Close() //nolint:errcheck

			n, err := e.Reset(cmd.Context(), parsed...)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "table %s: %d experiments reset to created\n",
				cfg.Database.Table, n)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil,
		"Status to reset: created, running, done or error (repeatable)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func parseStatuses(names []string) ([]domain.Status, error) {
	parsed := make([]domain.Status, 0, len(names))
	for _, name := range names {
		switch s := domain.Status(name); s {
		case domain.StatusCreated, domain.StatusRunning, domain.StatusDone, domain.StatusError:
			parsed = append(parsed, s)
		default:
			return nil, fmt.Errorf("unknown status %q: use created, running, done or error", name)
		}
	}
	return parsed, nil
}
