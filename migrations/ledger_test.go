package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func countQueries(db *fakeDB, prefix string) int {
	n := 0
	for _, q := range db.queries {
		if strings.HasPrefix(q, prefix) {
			n++
		}
	}
	return n
}

func TestLedgerEnsure(t *testing.T) {
	db := newFakeDB(t)
	ledger := NewSurrealLedger(db, WithTableName("schema_versions"))
	ctx := context.Background()

	if err := ledger.Ensure(ctx); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := ledger.Ensure(ctx); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if n := countQueries(db, "DEFINE TABLE schema_versions"); n != 1 {
		t.Fatalf("table should be defined once, got %d", n)
	}
	define := db.queries[1]
	for _, want := range []string{
		"DEFINE FIELD appliedAt ON schema_versions TYPE datetime DEFAULT time::now();",
		"DEFINE INDEX version ON schema_versions FIELDS version UNIQUE;",
	} {
		if !strings.Contains(define, want) {
			t.Fatalf("bootstrap %q missing %q", define, want)
		}
	}
}

func TestLedgerEnsureWithoutAutoCreate(t *testing.T) {
	db := newFakeDB(t)
	ledger := NewSurrealLedger(db, WithAutoCreate(false))

	if err := ledger.Ensure(context.Background()); !errors.Is(err, ErrLedgerNotFound) {
		t.Fatalf("expected ErrLedgerNotFound, got %v", err)
	}
	if countQueries(db, "DEFINE") != 0 {
		t.Fatalf("no table should be defined")
	}
}

func TestLedgerRecordAndDelete(t *testing.T) {
	db := newFakeDB(t)
	ledger := NewSurrealLedger(db)
	ctx := context.Background()

	if v, err := ledger.CurrentVersion(ctx); err != nil || v != 0 {
		t.Fatalf("empty ledger: version %d, err %v", v, err)
	}

	for _, v := range []int{2, 1, 3} {
		if err := ledger.RecordVersion(ctx, v, ""); err != nil {
			t.Fatalf("RecordVersion(%d): %v", v, err)
		}
	}
	if v, err := ledger.CurrentVersion(ctx); err != nil || v != 3 {
		t.Fatalf("version %d, err %v", v, err)
	}

	applied, err := ledger.Applied(ctx)
	if err != nil {
		t.Fatalf("Applied: %v", err)
	}
	got := make([]int, 0, len(applied))
	for _, rec := range applied {
		got = append(got, rec.Version)
	}
	assertInts(t, got, []int{1, 2, 3})

	if err := ledger.DeleteVersion(ctx, 3); err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}
	if v, _ := ledger.CurrentVersion(ctx); v != 2 {
		t.Fatalf("expected version 2 after delete, got %d", v)
	}
}

func TestLedgerRecordDuplicate(t *testing.T) {
	db := newFakeDB(t)
	ledger := NewSurrealLedger(db)
	ctx := context.Background()

	if err := ledger.RecordVersion(ctx, 1, "init"); err != nil {
		t.Fatalf("RecordVersion: %v", err)
	}
	err := ledger.RecordVersion(ctx, 1, "init")
	var writeErr *LedgerWriteError
	if !errors.As(err, &writeErr) || writeErr.Op != "record" || writeErr.Version != 1 {
		t.Fatalf("expected record LedgerWriteError, got %v", err)
	}
}

func TestLedgerCurrentVersionInfo(t *testing.T) {
	db := newFakeDB(t)
	ledger := NewSurrealLedger(db)
	ctx := context.Background()

	info, err := ledger.CurrentVersionInfo(ctx)
	if err != nil || info.Title != "No migrations applied" {
		t.Fatalf("unexpected info %+v, err %v", info, err)
	}

	db.addVersion(4, "add-index")
	info, err = ledger.CurrentVersionInfo(ctx)
	if err != nil || info.Version != 4 || info.Title != "add-index" {
		t.Fatalf("unexpected info %+v, err %v", info, err)
	}

	db.failQuery = "SELECT"
	info, err = ledger.CurrentVersionInfo(ctx)
	var readErr *LedgerReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("expected LedgerReadError, got %v", err)
	}
	if info.Version != 0 || info.Title != "Error retrieving version info" {
		t.Fatalf("unexpected fallback %+v", info)
	}
}
