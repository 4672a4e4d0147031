// Package ddl builds and validates SQL DDL statements for experiment tables.
package ddl

import (
	"fmt"
	"strings"
)

// QuoteFunc renders a SQL identifier in one engine's quoting style.
type QuoteFunc func(string) string

// ColumnDef describes a column for CREATE TABLE. Default, when set, is
// rendered as a quoted literal DEFAULT clause.
type ColumnDef struct {
	Name    string
	Type    string
	Default string
}

// CreateTable returns a CREATE TABLE IF NOT EXISTS statement for an
// experiment table: an integer identity column named id first, then the
// given columns in order. autoincrement is the engine's identity keyword
// (empty on engines whose INTEGER PRIMARY KEY already autoincrements).
func CreateTable(table, autoincrement string, columns []ColumnDef, quote QuoteFunc) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}

	idDef := quote("id") + " INTEGER PRIMARY KEY"
	if autoincrement != "" {
		idDef += " " + autoincrement
	}

	colDefs := []string{idDef}
	for _, c := range columns {
		if err := ValidateIdentifier(c.Name); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", c.Name, err)
		}
		if err := ValidateColumnType(c.Type); err != nil {
			return "", fmt.Errorf("invalid column type for %q: %w", c.Name, err)
		}
		def := fmt.Sprintf("%s %s", quote(c.Name), c.Type)
		if c.Default != "" {
			def += " DEFAULT " + QuoteLiteral(c.Default)
		}
		colDefs = append(colDefs, def)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		quote(table),
		strings.Join(colDefs, ", "),
	), nil
}

// DropTable returns a DROP TABLE IF EXISTS statement.
func DropTable(table string, quote QuoteFunc) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return "DROP TABLE IF EXISTS " + quote(table), nil
}
