package sdbclient

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// DBInfo is the decoded result of INFO FOR DB. Maps are keyed by name and
// hold the raw DEFINE statement.
type DBInfo struct {
	Analyzers map[string]string `json:"analyzers"`
	Functions map[string]string `json:"functions"`
	Params    map[string]string `json:"params"`
	Tables    map[string]string `json:"tables"`
	Users     map[string]string `json:"users"`
}

// TableInfo is the decoded result of INFO FOR TABLE.
type TableInfo struct {
	Events  map[string]string `json:"events"`
	Fields  map[string]string `json:"fields"`
	Indexes map[string]string `json:"indexes"`
	Tables  map[string]string `json:"tables"`
}

// InfoForDB describes the selected database.
func InfoForDB(ctx context.Context, q Querier) (*DBInfo, error) {
	results, err := q.Query(ctx, "INFO FOR DB;", nil)
	if err != nil {
		return nil, fmt.Errorf("info for db: %w", err)
	}
	info, err := Decode[DBInfo](results, 0)
	if err != nil {
		return nil, fmt.Errorf("info for db: %w", err)
	}
	return &info, nil
}

// InfoForTable describes one table.
func InfoForTable(ctx context.Context, q Querier, table string) (*TableInfo, error) {
	results, err := q.Query(ctx, "INFO FOR TABLE "+Ident(table)+";", nil)
	if err != nil {
		return nil, fmt.Errorf("info for table %s: %w", table, err)
	}
	info, err := Decode[TableInfo](results, 0)
	if err != nil {
		return nil, fmt.Errorf("info for table %s: %w", table, err)
	}
	return &info, nil
}

var (
	indexFieldsPattern = regexp.MustCompile(`(?i)\b(?:FIELDS|COLUMNS)\s+(.+?)(?:\s+(?:UNIQUE|SEARCH|MTREE|HNSW|COMMENT|CONCURRENTLY)\b|\s*;?\s*$)`)
	uniquePattern      = regexp.MustCompile(`(?i)\bUNIQUE\b`)
)

// ParseIndex extracts the indexed fields and the unique flag from a DEFINE INDEX statement.
func ParseIndex(statement string) (fields []string, unique bool) {
	loc := indexFieldsPattern.FindStringSubmatchIndex(statement)
	if loc == nil {
		return nil, false
	}
	for _, f := range strings.Split(statement[loc[2]:loc[3]], ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields, uniquePattern.MatchString(statement[loc[0]:])
}
