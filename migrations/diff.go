package migrations

import (
	"fmt"
	"strings"

	sdbclient "github.com/eqr/sdbclient"
)

// DiffResult holds the statements that move a schema from the old snapshot to
// the new one (Forward) and back (Reverse). Statements carry no trailing ';'.
type DiffResult struct {
	Forward []string
	Reverse []string
}

// Empty reports whether the snapshots were equivalent.
func (d DiffResult) Empty() bool { return len(d.Forward) == 0 }

// statementList appends forward statements and prepends reverse blocks, so
// the reverse list undoes changes in the opposite order they were applied.
type statementList struct {
	forward []string
	reverse []string
}

func (l *statementList) add(forward []string, reverse []string) {
	for _, stmt := range forward {
		if stmt = clean(stmt); stmt != "" {
			l.forward = append(l.forward, stmt)
		}
	}
	block := make([]string, 0, len(reverse)+len(l.reverse))
	for _, stmt := range reverse {
		if stmt = clean(stmt); stmt != "" {
			block = append(block, stmt)
		}
	}
	l.reverse = append(block, l.reverse...)
}

func (l *statementList) result() DiffResult {
	return DiffResult{Forward: l.forward, Reverse: l.reverse}
}

// Diff compares two snapshots. Added tables come first, then additions and
// changes inside tables, then removals. Removed definitions are restored from
// their captured statement text.
func Diff(from, to *Snapshot) (DiffResult, error) {
	if from == nil || to == nil {
		return DiffResult{}, &DiffGenerationError{Reason: "both snapshots are required"}
	}
	if err := from.Validate(); err != nil {
		return DiffResult{}, err
	}
	if err := to.Validate(); err != nil {
		return DiffResult{}, err
	}

	var l statementList

	for _, name := range to.TableNames() {
		if _, ok := from.Definitions[name]; !ok {
			l.add(one(to.Definitions[name]), one(removeTable(name)))
		}
	}

	for _, name := range to.TableNames() {
		toTable := to.Tables[name]
		fromDef, existed := from.Definitions[name]
		if !existed {
			for _, stmt := range tableChildren(toTable) {
				l.add(one(stmt), nil)
			}
			continue
		}

		if !sameStatement(fromDef, to.Definitions[name]) {
			l.add(one(to.Definitions[name]), one(fromDef))
		}
		diffChildren(&l, name, from.Tables[name], toTable)
	}

	for _, name := range from.TableNames() {
		fromTable := from.Tables[name]
		if _, ok := to.Definitions[name]; !ok {
			restore := append(one(from.Definitions[name]), tableChildren(fromTable)...)
			l.add(one(removeTable(name)), restore)
			continue
		}
		removeChildren(&l, name, fromTable, to.Tables[name])
	}

	return l.result(), nil
}

// diffChildren handles added and changed fields, indexes and events of a table
// present in both snapshots.
func diffChildren(l *statementList, table string, from, to TableSnapshot) {
	for _, f := range sortedKeys(to.Fields) {
		def := to.Fields[f]
		prev, ok := from.Fields[f]
		rm := removeChild("FIELD", fieldIdent(f), table)
		switch {
		case !ok:
			l.add(one(def), one(rm))
		case !sameStatement(prev, def):
			l.add([]string{rm, def}, []string{rm, prev})
		}
	}
	for _, i := range sortedKeys(to.Indexes) {
		def := to.Indexes[i].Statement
		prev, ok := from.Indexes[i]
		rm := removeChild("INDEX", sdbclient.Ident(i), table)
		switch {
		case !ok:
			l.add(one(def), one(rm))
		case !sameStatement(prev.Statement, def):
			l.add([]string{rm, def}, []string{rm, prev.Statement})
		}
	}
	for _, e := range sortedKeys(to.Events) {
		def := to.Events[e]
		prev, ok := from.Events[e]
		rm := removeChild("EVENT", sdbclient.Ident(e), table)
		switch {
		case !ok:
			l.add(one(def), one(rm))
		case !sameStatement(prev, def):
			l.add([]string{rm, def}, []string{rm, prev})
		}
	}
}

// removeChildren drops events, then indexes, then fields, so the reverse list
// recreates fields before what depends on them.
func removeChildren(l *statementList, table string, from, to TableSnapshot) {
	for _, e := range sortedKeys(from.Events) {
		if _, ok := to.Events[e]; !ok {
			l.add(one(removeChild("EVENT", sdbclient.Ident(e), table)), one(from.Events[e]))
		}
	}
	for _, i := range sortedKeys(from.Indexes) {
		if _, ok := to.Indexes[i]; !ok {
			l.add(one(removeChild("INDEX", sdbclient.Ident(i), table)), one(from.Indexes[i].Statement))
		}
	}
	for _, f := range sortedKeys(from.Fields) {
		if _, ok := to.Fields[f]; !ok {
			l.add(one(removeChild("FIELD", fieldIdent(f), table)), one(from.Fields[f]))
		}
	}
}

// tableChildren lists a table's fields, indexes and events in that order.
func tableChildren(t TableSnapshot) []string {
	out := make([]string, 0, len(t.Fields)+len(t.Indexes)+len(t.Events))
	for _, f := range sortedKeys(t.Fields) {
		out = append(out, t.Fields[f])
	}
	for _, i := range sortedKeys(t.Indexes) {
		out = append(out, t.Indexes[i].Statement)
	}
	for _, e := range sortedKeys(t.Events) {
		out = append(out, t.Events[e])
	}
	return out
}

func removeTable(name string) string {
	return "REMOVE TABLE " + sdbclient.Ident(name)
}

func removeChild(kind, name, table string) string {
	return fmt.Sprintf("REMOVE %s %s ON TABLE %s", kind, name, sdbclient.Ident(table))
}

// fieldIdent quotes each segment of a field path, keeping * and [*] parts.
func fieldIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		switch {
		case p == "*":
		case strings.HasSuffix(p, "[*]"):
			parts[i] = sdbclient.Ident(strings.TrimSuffix(p, "[*]")) + "[*]"
		default:
			parts[i] = sdbclient.Ident(p)
		}
	}
	return strings.Join(parts, ".")
}

func one(stmt string) []string { return []string{stmt} }

func clean(stmt string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
}

func sameStatement(a, b string) bool {
	return strings.Join(strings.Fields(clean(a)), " ") == strings.Join(strings.Fields(clean(b)), " ")
}
