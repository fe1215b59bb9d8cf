package migrations

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	sdbclient "github.com/eqr/sdbclient"
)

// fakeDB answers the SurrealQL this package issues, keeping tables in memory.
type fakeDB struct {
	t *testing.T

	mu        sync.Mutex
	tables    map[string]string
	tableInfo map[string]sdbclient.TableInfo
	rows      map[string][]map[string]any
	queries   []string
	batches   []string
	// failBatch makes a committed batch fail when it contains this text.
	failBatch string
	// failQuery makes any query containing this text fail.
	failQuery string
	seq       int
}

func newFakeDB(t *testing.T) *fakeDB {
	return &fakeDB{
		t:         t,
		tables:    make(map[string]string),
		tableInfo: make(map[string]sdbclient.TableInfo),
		rows:      make(map[string][]map[string]any),
	}
}

var (
	defineTableRe = regexp.MustCompile(`^DEFINE TABLE (\S+)`)
	infoTableRe   = regexp.MustCompile(`^INFO FOR TABLE (\S+);$`)
	createRe      = regexp.MustCompile(`^CREATE (\S+) CONTENT \$content;$`)
	selectRe      = regexp.MustCompile(`^SELECT \* FROM (\S+)(?: ORDER BY (\S+) (ASC|DESC))?(?: LIMIT (\d+))?;$`)
	deleteRe      = regexp.MustCompile(`^DELETE (\S+) WHERE (\S+) = (\S+) RETURN BEFORE;$`)
)

func okResult(result any) sdbclient.QueryResult {
	raw, _ := json.Marshal(result)
	return sdbclient.QueryResult{Status: "OK", Result: raw}
}

func errResult(msg string) sdbclient.QueryResult {
	raw, _ := json.Marshal(msg)
	return sdbclient.QueryResult{Status: "ERR", Result: raw}
}

func (f *fakeDB) Query(ctx context.Context, sql string, vars map[string]any) ([]sdbclient.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, sql)

	results := f.answer(sql, vars)
	return results, sdbclient.CheckResults(results)
}

func (f *fakeDB) answer(sql string, vars map[string]any) []sdbclient.QueryResult {
	if f.failQuery != "" && strings.Contains(sql, f.failQuery) {
		return []sdbclient.QueryResult{errResult("forced failure")}
	}

	switch {
	case strings.HasPrefix(sql, "BEGIN TRANSACTION"):
		f.batches = append(f.batches, sql)
		if f.failBatch != "" && strings.Contains(sql, f.failBatch) {
			return []sdbclient.QueryResult{errResult("The query was not executed due to a failed transaction"), errResult("Parse error in " + f.failBatch)}
		}
		return []sdbclient.QueryResult{okResult(nil)}
	case sql == "INFO FOR DB;":
		return []sdbclient.QueryResult{okResult(sdbclient.DBInfo{Tables: f.tables})}
	case infoTableRe.MatchString(sql):
		name := infoTableRe.FindStringSubmatch(sql)[1]
		return []sdbclient.QueryResult{okResult(f.tableInfo[name])}
	case defineTableRe.MatchString(sql):
		name := defineTableRe.FindStringSubmatch(sql)[1]
		f.tables[name] = fmt.Sprintf("DEFINE TABLE %s TYPE NORMAL SCHEMALESS PERMISSIONS NONE", name)
		return []sdbclient.QueryResult{okResult(nil), okResult(nil), okResult(nil)}
	case createRe.MatchString(sql):
		return f.create(createRe.FindStringSubmatch(sql)[1], vars["content"])
	case selectRe.MatchString(sql):
		m := selectRe.FindStringSubmatch(sql)
		limit, _ := strconv.Atoi(m[4])
		return []sdbclient.QueryResult{okResult(f.selectRows(m[1], m[2], m[3] == "DESC", limit))}
	case deleteRe.MatchString(sql):
		m := deleteRe.FindStringSubmatch(sql)
		return []sdbclient.QueryResult{okResult(f.delete(m[1], m[2], m[3]))}
	}
	f.t.Fatalf("fakeDB: unexpected query %q", sql)
	return nil
}

func (f *fakeDB) create(table string, content any) []sdbclient.QueryResult {
	raw, err := json.Marshal(content)
	if err != nil {
		return []sdbclient.QueryResult{errResult(err.Error())}
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return []sdbclient.QueryResult{errResult(err.Error())}
	}

	if v, ok := row["version"]; ok {
		for _, existing := range f.rows[table] {
			if existing["version"] == v {
				return []sdbclient.QueryResult{errResult(fmt.Sprintf("Database index `version` already contains %v", v))}
			}
		}
	}

	f.seq++
	stamp := time.Date(2025, 1, 1, 0, 0, f.seq, 0, time.UTC).Format(time.RFC3339Nano)
	row["id"] = fmt.Sprintf("%s:%d", table, f.seq)
	row["appliedAt"] = stamp
	row["timestamp"] = stamp
	f.rows[table] = append(f.rows[table], row)
	return []sdbclient.QueryResult{okResult([]map[string]any{row})}
}

func (f *fakeDB) selectRows(table, orderBy string, desc bool, limit int) []map[string]any {
	rows := append([]map[string]any(nil), f.rows[table]...)
	if orderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			less := lessValue(rows[i][orderBy], rows[j][orderBy])
			if desc {
				return lessValue(rows[j][orderBy], rows[i][orderBy])
			}
			return less
		})
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func lessValue(a, b any) bool {
	switch av := a.(type) {
	case float64:
		bv, _ := b.(float64)
		return av < bv
	case string:
		bv, _ := b.(string)
		return av < bv
	}
	return false
}

func (f *fakeDB) delete(table, field, literal string) []map[string]any {
	var want any
	_ = json.Unmarshal([]byte(literal), &want)

	kept := f.rows[table][:0]
	var deleted []map[string]any
	for _, row := range f.rows[table] {
		if row[field] == want {
			deleted = append(deleted, row)
			continue
		}
		kept = append(kept, row)
	}
	f.rows[table] = kept
	return deleted
}

func (f *fakeDB) Begin(ctx context.Context) (sdbclient.Tx, error) {
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) Close() error { return nil }

// fakeTx mirrors the buffered transaction of the real client.
type fakeTx struct {
	db         *fakeDB
	statements []string
	cancelled  bool
}

func (tx *fakeTx) Query(ctx context.Context, sql string, vars map[string]any) ([]sdbclient.QueryResult, error) {
	tx.statements = append(tx.statements, sql)
	return nil, nil
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	batch := "BEGIN TRANSACTION;\n" + strings.Join(tx.statements, "\n") + "\nCOMMIT TRANSACTION;"
	_, err := tx.db.Query(ctx, batch, nil)
	return err
}

func (tx *fakeTx) Cancel(ctx context.Context) error {
	tx.cancelled = true
	return nil
}

func (f *fakeDB) versions() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.rows[defaultLedgerTable]))
	for _, row := range f.rows[defaultLedgerTable] {
		out = append(out, int(row["version"].(float64)))
	}
	sort.Ints(out)
	return out
}

func (f *fakeDB) addVersion(version int, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content := map[string]any{"version": version}
	if title != "" {
		content["title"] = title
	}
	f.create(defaultLedgerTable, content)
}
