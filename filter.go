package sdbclient

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Eq builds an equality condition: field = value.
func Eq(field string, value any) string {
	return condition(field, "=", value)
}

// Neq builds a not-equal condition: field != value.
func Neq(field string, value any) string {
	return condition(field, "!=", value)
}

// Gt builds a greater-than condition: field > value.
func Gt(field string, value any) string {
	return condition(field, ">", value)
}

// Gte builds a greater-than-or-equal condition: field >= value.
func Gte(field string, value any) string {
	return condition(field, ">=", value)
}

// Lt builds a less-than condition: field < value.
func Lt(field string, value any) string {
	return condition(field, "<", value)
}

// Lte builds a less-than-or-equal condition: field <= value.
func Lte(field string, value any) string {
	return condition(field, "<=", value)
}

// And joins conditions with logical AND, skipping empty entries.
func And(conds ...string) string {
	return combineConditions("AND", conds...)
}

// Or joins conditions with logical OR, skipping empty entries.
func Or(conds ...string) string {
	return combineConditions("OR", conds...)
}

func combineConditions(op string, conds ...string) string {
	clean := make([]string, 0, len(conds))
	for _, c := range conds {
		c = strings.TrimSpace(c)
		if c != "" {
			clean = append(clean, c)
		}
	}

	switch len(clean) {
	case 0:
		return ""
	case 1:
		return clean[0]
	default:
		return "(" + strings.Join(clean, " "+op+" ") + ")"
	}
}

// condition renders value as a JSON literal, which SurrealQL accepts for
// strings, numbers, booleans, null, arrays and objects.
func condition(field, op string, value any) string {
	literal, err := json.Marshal(value)
	if err != nil {
		literal = []byte("NONE")
	}
	return fmt.Sprintf("%s %s %s", fieldPath(field), op, literal)
}

// fieldPath quotes each segment of a dotted path.
func fieldPath(field string) string {
	parts := strings.Split(strings.TrimSpace(field), ".")
	for i, p := range parts {
		parts[i] = Ident(p)
	}
	return strings.Join(parts, ".")
}

var simpleIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Ident quotes name with backticks unless it is a plain identifier.
func Ident(name string) string {
	if simpleIdent.MatchString(name) {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}
