package table

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"expgrid/domain"
)

// Claim selects one created row, marks it running for worker, and returns
// its identity and keyfield values. Returns (nil, nil) when no created row
// exists. The whole claim runs inside one short transaction: racing workers
// serialize here and nowhere else.
func (m *Manager) Claim(ctx context.Context, worker string, random bool) (*domain.Experiment, error) {
	keyNames := domain.FieldNames(m.keyfields)
	quoted := make([]string, len(keyNames))
	for i, k := range keyNames {
		quoted[i] = m.provider.QuoteIdent(k)
	}

	order := m.provider.QuoteIdent("id")
	if random {
		order = m.provider.RandomExpr()
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE status = %s ORDER BY %s LIMIT 1%s",
		m.provider.QuoteIdent("id"),
		strings.Join(quoted, ", "),
		m.provider.QuoteIdent(m.name),
		m.provider.Placeholder(),
		order,
		m.provider.LockSuffix())

	tx, err := m.provider.BeginClaim(ctx, m.db)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id int64
	vals := make([]interface{}, len(keyNames))
	ptrs := make([]interface{}, 0, len(keyNames)+1)
	ptrs = append(ptrs, &id)
	for i := range vals {
		ptrs = append(ptrs, &vals[i])
	}
	err = tx.QueryRowContext(ctx, query, string(domain.StatusCreated)).Scan(ptrs...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select open row: %w", err)
	}

	p := m.provider.Placeholder()
	update := fmt.Sprintf("UPDATE %s SET status = %s, worker = %s, start_time = %s WHERE %s = %s",
		m.provider.QuoteIdent(m.name), p, p, p, m.provider.QuoteIdent("id"), p)
	if _, err := tx.ExecContext(ctx, update,
		string(domain.StatusRunning), worker, m.now().Format(timeLayout), id); err != nil {
		return nil, fmt.Errorf("mark row %d running: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	params := make(map[string]interface{}, len(keyNames))
	for i, k := range keyNames {
		params[k] = normalizeValue(vals[i])
	}
	return &domain.Experiment{ID: id, Params: params}, nil
}

// WriteResults updates the supplied result columns for row id and, when
// timestamping is enabled, stamps each matching shadow column with the write
// time. Writing never changes the row's status. Unknown result fields fail
// with a ConfigurationError.
func (m *Manager) WriteResults(ctx context.Context, id int64, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}

	declared := make(map[string]struct{}, len(m.resultFields))
	for _, f := range m.resultFields {
		declared[f.Name] = struct{}{}
	}
	for k := range values {
		if _, ok := declared[k]; !ok {
			return domain.ErrConfiguration("unknown result field %q", k)
		}
	}

	stamp := m.now().Format(timeLayout)
	p := m.provider.Placeholder()
	var (
		sets []string
		args []interface{}
	)
	for _, f := range m.resultFields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		sets = append(sets, m.provider.QuoteIdent(f.Name)+" = "+p)
		args = append(args, v)
		if m.timestamps {
			sets = append(sets, m.provider.QuoteIdent(f.Name+domain.TimestampSuffix)+" = "+p)
			args = append(args, stamp)
		}
	}
	args = append(args, id)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		m.provider.QuoteIdent(m.name), strings.Join(sets, ", "), m.provider.QuoteIdent("id"), p)
	if _, err := m.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("write results for row %d: %w", id, err)
	}
	return nil
}

// MarkDone transitions row id to its terminal done state.
func (m *Manager) MarkDone(ctx context.Context, id int64) error {
	return m.finish(ctx, id, domain.StatusDone, nil)
}

// MarkError transitions row id to its terminal error state, persisting the
// captured error description.
func (m *Manager) MarkError(ctx context.Context, id int64, message string) error {
	return m.finish(ctx, id, domain.StatusError, &message)
}

func (m *Manager) finish(ctx context.Context, id int64, status domain.Status, message *string) error {
	p := m.provider.Placeholder()
	set := []string{"status = " + p, "end_time = " + p}
	args := []interface{}{string(status), m.now().Format(timeLayout)}
	if message != nil {
		set = append(set, m.provider.QuoteIdent("error")+" = "+p)
		args = append(args, *message)
	}
	args = append(args, id)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		m.provider.QuoteIdent(m.name), strings.Join(set, ", "), m.provider.QuoteIdent("id"), p)
	if _, err := m.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("mark row %d %s: %w", id, status, err)
	}
	return nil
}
