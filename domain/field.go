package domain

import "strings"

// DefaultFieldType is the column type used when a field token omits one.
const DefaultFieldType = "VARCHAR(255)"

// TimestampSuffix is appended to a result field name to form the name of its
// shadow timestamp column.
const TimestampSuffix = "_timestamp"

// Field is one declared experiment table column: a name plus a SQL column type.
type Field struct {
	Name string
	Type string
}

// ParseFields converts "name" or "name:TYPE" tokens into typed fields.
// A bare name defaults to DefaultFieldType; the type in a name:TYPE token is
// used verbatim.
func ParseFields(tokens []string) ([]Field, error) {
	fields := make([]Field, 0, len(tokens))
	for _, tok := range tokens {
		parts := strings.Split(tok, ":")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch {
		case len(parts) == 1 && parts[0] != "":
			fields = append(fields, Field{Name: parts[0], Type: DefaultFieldType})
		case len(parts) == 2 && parts[0] != "" && parts[1] != "":
			fields = append(fields, Field{Name: parts[0], Type: parts[1]})
		default:
			return nil, ErrConfiguration("invalid field token %q: want name or name:TYPE", tok)
		}
	}
	return fields, nil
}

// WithTimestamps returns fields with a shadow timestamp column inserted
// immediately after every field, preserving declaration order.
func WithTimestamps(fields []Field) []Field {
	out := make([]Field, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f, Field{Name: f.Name + TimestampSuffix, Type: DefaultFieldType})
	}
	return out
}

// FieldNames returns the field names in declaration order.
func FieldNames(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
