package table

import (
	"context"
	"fmt"

	"expgrid/domain"
)

// CountsByStatus returns the number of rows in each lifecycle status.
// Statuses with no rows are absent from the map.
func (m *Manager) CountsByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf("SELECT status, COUNT(*) FROM %s GROUP BY status", m.provider.QuoteIdent(m.name)))
	if err != nil {
		return nil, fmt.Errorf("count rows of %s by status: %w", m.name, err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

// Dump returns every column name and every row, ordered by identity, for
// operator inspection.
func (m *Manager) Dump(ctx context.Context) ([]string, [][]interface{}, error) {
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s ORDER BY %s",
			m.provider.QuoteIdent(m.name), m.provider.QuoteIdent("id")))
	if err != nil {
		return nil, nil, fmt.Errorf("dump %s: %w", m.name, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("dump %s columns: %w", m.name, err)
	}

	var out [][]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan dump row: %w", err)
		}
		for i := range vals {
			vals[i] = normalizeValue(vals[i])
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate dump rows: %w", err)
	}
	return columns, out, nil
}
