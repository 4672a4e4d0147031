// Package table manages the shared experiment table: schema lifecycle,
// deduplicated fills, and the claim/report row protocol.
package table

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"expgrid/domain"
	"expgrid/internal/backend"
	"expgrid/internal/ddl"
)

// timeLayout is the format for start_time, end_time and the shadow
// timestamp columns.
const timeLayout = "2006-01-02 15:04:05"

// bookkeeping columns are managed by the protocol and excluded from
// structure verification.
var bookkeeping = map[string]struct{}{
	"id":         {},
	"status":     {},
	"worker":     {},
	"start_time": {},
	"end_time":   {},
	"error":      {},
}

// Manager owns one experiment table on one backend.
type Manager struct {
	provider backend.Provider
	db       *sql.DB
	name     string

	keyfields    []domain.Field
	resultFields []domain.Field // as declared
	allResults   []domain.Field // including shadow timestamp columns
	timestamps   bool

	now func() time.Time
}

// New validates the declared schema and binds a manager to db. Field and
// table names must be safe SQL identifiers and must not collide with the
// bookkeeping columns.
func New(provider backend.Provider, db *sql.DB, name string, keyfields, resultfields []domain.Field, timestamps bool) (*Manager, error) {
	if err := ddl.ValidateIdentifier(name); err != nil {
		return nil, domain.ErrConfiguration("invalid table name %q: %v", name, err)
	}
	if len(keyfields) == 0 {
		return nil, domain.ErrConfiguration("at least one keyfield is required")
	}

	allResults := resultfields
	if timestamps {
		allResults = domain.WithTimestamps(resultfields)
	}

	seen := make(map[string]struct{})
	for _, group := range [][]domain.Field{keyfields, allResults} {
		for _, f := range group {
			if err := ddl.ValidateIdentifier(f.Name); err != nil {
				return nil, domain.ErrConfiguration("invalid field name %q: %v", f.Name, err)
			}
			if err := ddl.ValidateColumnType(f.Type); err != nil {
				return nil, domain.ErrConfiguration("invalid type for field %q: %v", f.Name, err)
			}
			if _, ok := bookkeeping[f.Name]; ok {
				return nil, domain.ErrConfiguration("field name %q is reserved", f.Name)
			}
			if _, dup := seen[f.Name]; dup {
				return nil, domain.ErrConfiguration("field name %q is declared twice", f.Name)
			}
			seen[f.Name] = struct{}{}
		}
	}

	return &Manager{
		provider:     provider,
		db:           db,
		name:         name,
		keyfields:    keyfields,
		resultFields: resultfields,
		allResults:   allResults,
		timestamps:   timestamps,
		now:          time.Now,
	}, nil
}

// Name returns the table name.
func (m *Manager) Name() string { return m.name }

// Keyfields returns the declared keyfields.
func (m *Manager) Keyfields() []domain.Field { return m.keyfields }

// schemaColumns lists every non-identity column in definition order.
func (m *Manager) schemaColumns() []ddl.ColumnDef {
	cols := make([]ddl.ColumnDef, 0, len(m.keyfields)+5+len(m.allResults))
	for _, f := range m.keyfields {
		cols = append(cols, ddl.ColumnDef{Name: f.Name, Type: f.Type})
	}
	cols = append(cols,
		ddl.ColumnDef{Name: "status", Type: "VARCHAR(255)", Default: string(domain.StatusCreated)},
		ddl.ColumnDef{Name: "worker", Type: "VARCHAR(255)"},
		ddl.ColumnDef{Name: "start_time", Type: "DATETIME"},
		ddl.ColumnDef{Name: "end_time", Type: "DATETIME"},
		ddl.ColumnDef{Name: "error", Type: "TEXT"},
	)
	for _, f := range m.allResults {
		cols = append(cols, ddl.ColumnDef{Name: f.Name, Type: f.Type})
	}
	return cols
}

// Ensure creates the table when missing and verifies its column set when
// present. An existing table is never migrated.
func (m *Manager) Ensure(ctx context.Context) error {
	exists, err := m.provider.TableExists(ctx, m.db, m.name)
	if err != nil {
		return fmt.Errorf("check table %s: %w", m.name, err)
	}
	if !exists {
		stmt, err := ddl.CreateTable(m.name, m.provider.AutoIncrement(), m.schemaColumns(), m.provider.QuoteIdent)
		if err != nil {
			return domain.ErrCreation("build create table %s: %v", m.name, err)
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return domain.ErrCreation("create table %s: %v", m.name, err)
		}
		return nil
	}
	return m.verifyStructure(ctx)
}

// verifyStructure compares the live column set, minus bookkeeping columns,
// against the declared fields.
func (m *Manager) verifyStructure(ctx context.Context) error {
	live, err := m.provider.TableColumns(ctx, m.db, m.name)
	if err != nil {
		return fmt.Errorf("introspect table %s: %w", m.name, err)
	}

	got := make(map[string]struct{}, len(live))
	for _, c := range live {
		if _, skip := bookkeeping[c]; skip {
			continue
		}
		got[c] = struct{}{}
	}

	var missing, unexpected []string
	for _, group := range [][]domain.Field{m.keyfields, m.allResults} {
		for _, f := range group {
			if _, ok := got[f.Name]; !ok {
				missing = append(missing, f.Name)
			}
			delete(got, f.Name)
		}
	}
	for c := range got {
		unexpected = append(unexpected, c)
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		sort.Strings(missing)
		sort.Strings(unexpected)
		return domain.ErrStructureMismatch(
			"table %s does not match the declared fields (missing %v, unexpected %v)",
			m.name, missing, unexpected)
	}
	return nil
}

// maxInsertParams bounds the bind parameters per INSERT statement. Large
// fills are chunked to stay under engine variable limits; all chunks share
// one transaction so a fill stays all-or-nothing.
const maxInsertParams = 900

// Insert adds rows whose keyfield tuple is not already present, initializing
// status to created and leaving every result column null. Duplicate checking
// runs against existing table content only; rows duplicated within the input
// collapse to their first occurrence. Returns the number inserted and the
// number skipped.
func (m *Manager) Insert(ctx context.Context, rows []map[string]interface{}) (inserted, skipped int, err error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}

	existing, err := m.existingTuples(ctx)
	if err != nil {
		return 0, 0, err
	}

	keyNames := domain.FieldNames(m.keyfields)
	var fresh [][]interface{}
	for _, row := range rows {
		vals := make([]interface{}, 0, len(keyNames))
		for _, k := range keyNames {
			vals = append(vals, row[k])
		}
		tuple := canonicalTuple(vals)
		if _, dup := existing[tuple]; dup {
			skipped++
			continue
		}
		existing[tuple] = struct{}{}
		fresh = append(fresh, vals)
	}
	if len(fresh) == 0 {
		return 0, skipped, nil
	}

	cols := make([]string, 0, len(keyNames)+1)
	for _, k := range keyNames {
		cols = append(cols, m.provider.QuoteIdent(k))
	}
	cols = append(cols, m.provider.QuoteIdent("status"))
	group := "(" + strings.Repeat(m.provider.Placeholder()+", ", len(keyNames)) + m.provider.Placeholder() + ")"

	paramsPerRow := len(keyNames) + 1
	perChunk := maxInsertParams / paramsPerRow
	if perChunk < 1 {
		perChunk = 1
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for start := 0; start < len(fresh); start += perChunk {
		end := start + perChunk
		if end > len(fresh) {
			end = len(fresh)
		}
		chunk := fresh[start:end]

		groups := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*paramsPerRow)
		for _, vals := range chunk {
			groups = append(groups, group)
			args = append(args, vals...)
			args = append(args, string(domain.StatusCreated))
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			m.provider.QuoteIdent(m.name),
			strings.Join(cols, ", "),
			strings.Join(groups, ", "))
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, 0, fmt.Errorf("insert into %s: %w", m.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit insert: %w", err)
	}
	return len(fresh), skipped, nil
}

// existingTuples reads every keyfield tuple already present, in canonical
// string form.
func (m *Manager) existingTuples(ctx context.Context) (map[string]struct{}, error) {
	keyNames := domain.FieldNames(m.keyfields)
	quoted := make([]string, len(keyNames))
	for i, k := range keyNames {
		quoted[i] = m.provider.QuoteIdent(k)
	}

	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), m.provider.QuoteIdent(m.name)))
	if err != nil {
		return nil, fmt.Errorf("read existing rows of %s: %w", m.name, err)
	}
	defer rows.Close()

	tuples := make(map[string]struct{})
	vals := make([]interface{}, len(keyNames))
	ptrs := make([]interface{}, len(keyNames))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan existing row: %w", err)
		}
		tuples[canonicalTuple(vals)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing rows: %w", err)
	}
	return tuples, nil
}

// Drop removes the table.
func (m *Manager) Drop(ctx context.Context) error {
	stmt, err := ddl.DropTable(m.name, m.provider.QuoteIdent)
	if err != nil {
		return fmt.Errorf("build drop table: %w", err)
	}
	if _, err := m.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop table %s: %w", m.name, err)
	}
	return nil
}

// Reset pulls the keyfield tuples of every row in one of the given statuses,
// deletes those rows, and reinserts them as fresh created rows. Returns the
// number of rows reset.
func (m *Manager) Reset(ctx context.Context, statuses ...domain.Status) (int, error) {
	if len(statuses) == 0 {
		return 0, domain.ErrConfiguration("reset needs at least one status")
	}

	keyNames := domain.FieldNames(m.keyfields)
	quoted := make([]string, len(keyNames))
	for i, k := range keyNames {
		quoted[i] = m.provider.QuoteIdent(k)
	}
	marks := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		marks[i] = m.provider.Placeholder()
		args[i] = string(s)
	}
	cond := fmt.Sprintf("status IN (%s)", strings.Join(marks, ", "))

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reset tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(quoted, ", "), m.provider.QuoteIdent(m.name), cond),
		args...)
	if err != nil {
		return 0, fmt.Errorf("select rows to reset: %w", err)
	}

	var pulled []map[string]interface{}
	vals := make([]interface{}, len(keyNames))
	ptrs := make([]interface{}, len(keyNames))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan row to reset: %w", err)
		}
		row := make(map[string]interface{}, len(keyNames))
		for i, k := range keyNames {
			row[k] = normalizeValue(vals[i])
		}
		pulled = append(pulled, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate rows to reset: %w", err)
	}
	rows.Close()

	if len(pulled) == 0 {
		return 0, nil
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s", m.provider.QuoteIdent(m.name), cond), args...); err != nil {
		return 0, fmt.Errorf("delete rows to reset: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reset tx: %w", err)
	}

	n, _, err := m.Insert(ctx, pulled)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// canonicalTuple renders keyfield values for duplicate comparison,
// normalizing driver representations so a refill matches rows it wrote
// through a different type (yaml int vs column int64, []byte vs string).
func canonicalTuple(vals []interface{}) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = canonicalValue(v)
	}
	return strings.Join(parts, "\x1f")
}

func canonicalValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "\x00"
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(timeLayout)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// normalizeValue converts driver types to plain Go values for reinsertion
// and for callback parameter maps.
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
