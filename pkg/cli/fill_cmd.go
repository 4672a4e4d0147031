package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newFillCmd() *cobra.Command {
	var rowSpecs []string

	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Insert missing parameter combinations into the experiment table",
		Long: "Expands the keyfield value domains from the configuration into rows and inserts " +
			"every combination not already present. With --row, inserts the given literal rows instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cfg, err := openExperimenter(cmd)
			if err != nil {
				return err
			}
			defer e.Close() //nolint:errcheck

			var inserted, skipped int
			if len(rowSpecs) > 0 {
				rows, err := parseRows(rowSpecs)
				if err != nil {
					return err
				}
				inserted, skipped, err = e.FillWithRows(cmd.Context(), rows)
				if err != nil {
					return err
				}
			} else {
				inserted, skipped, err = e.FillFromConfig(cmd.Context())
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(os.Stdout, "table %s: %d inserted, %d skipped as duplicates\n",
				cfg.Database.Table, inserted, skipped)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&rowSpecs, "row", nil,
		"Literal row as key=value pairs separated by commas (repeatable)")
	return cmd
}

// parseRows turns --row specs like "value=3,exponent=2" into typed rows.
func parseRows(specs []string) ([]map[string]interface{}, error) {
	rows := make([]map[string]interface{}, 0, len(specs))
	for _, spec := range specs {
		row := make(map[string]interface{})
		for _, pair := range strings.Split(spec, ",") {
			key, value, ok := strings.Cut(pair, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				return nil, fmt.Errorf("invalid --row entry %q: want key=value pairs separated by commas", spec)
			}
			if _, dup := row[key]; dup {
				return nil, fmt.Errorf("invalid --row entry %q: key %q given twice", spec, key)
			}
			row[key] = parseLiteral(strings.TrimSpace(value))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseLiteral keeps numeric row values numeric so they compare equal to
// rows filled from config domains.
func parseLiteral(s string) interface{} {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
