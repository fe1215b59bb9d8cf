package migrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdbclient "github.com/eqr/sdbclient"
)

// Ledger records which migration versions are applied.
type Ledger interface {
	Ensure(ctx context.Context) error
	CurrentVersion(ctx context.Context) (int, error)
	// CurrentVersionInfo always returns usable info; the error only reports
	// why it fell back to defaults.
	CurrentVersionInfo(ctx context.Context) (VersionInfo, error)
	RecordVersion(ctx context.Context, version int, title string) error
	DeleteVersion(ctx context.Context, version int) error
	Applied(ctx context.Context) ([]VersionRecord, error)
}

// LedgerOption configures a SurrealLedger.
type LedgerOption func(*SurrealLedger)

// WithTableName overrides the default ledger table name.
func WithTableName(name string) LedgerOption {
	trimmed := strings.TrimSpace(name)
	return func(l *SurrealLedger) {
		if trimmed != "" {
			l.table = trimmed
		}
	}
}

// WithAutoCreate controls whether the ledger table is defined when missing.
// Defaults to true.
func WithAutoCreate(autoCreate bool) LedgerOption {
	return func(l *SurrealLedger) {
		l.autoCreate = autoCreate
	}
}

// SurrealLedger keeps one record per applied version in a SurrealDB table
// with a unique index on version.
type SurrealLedger struct {
	db         sdbclient.Querier
	table      string
	autoCreate bool
}

// NewSurrealLedger constructs a ledger backed by db.
func NewSurrealLedger(db sdbclient.Querier, opts ...LedgerOption) *SurrealLedger {
	l := &SurrealLedger{
		db:         db,
		table:      defaultLedgerTable,
		autoCreate: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Table returns the ledger table name.
func (l *SurrealLedger) Table() string { return l.table }

func (l *SurrealLedger) records() *sdbclient.Table[VersionRecord] {
	return sdbclient.NewTable[VersionRecord](l.db, l.table)
}

// Ensure defines the ledger table unless INFO FOR DB already lists it.
func (l *SurrealLedger) Ensure(ctx context.Context) error {
	if l.db == nil {
		return errors.New("ledger querier is nil")
	}
	info, err := sdbclient.InfoForDB(ctx, l.db)
	if err != nil {
		return fmt.Errorf("ensure ledger table: %w", err)
	}
	if _, ok := info.Tables[l.table]; ok {
		return nil
	}
	if !l.autoCreate {
		return fmt.Errorf("%w: %s", ErrLedgerNotFound, l.table)
	}

	t := sdbclient.Ident(l.table)
	schema := fmt.Sprintf(`DEFINE TABLE %[1]s TYPE NORMAL SCHEMALESS PERMISSIONS NONE;
DEFINE FIELD appliedAt ON %[1]s TYPE datetime DEFAULT time::now();
DEFINE INDEX version ON %[1]s FIELDS version UNIQUE;`, t)
	if _, err := l.db.Query(ctx, schema, nil); err != nil {
		return fmt.Errorf("define ledger table %s: %w", l.table, err)
	}
	return nil
}

// CurrentVersion returns the highest applied version, or 0 for an empty ledger.
func (l *SurrealLedger) CurrentVersion(ctx context.Context) (int, error) {
	rec, err := l.latest(ctx)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, nil
	}
	return rec.Version, nil
}

// CurrentVersionInfo returns the latest version and its title.
func (l *SurrealLedger) CurrentVersionInfo(ctx context.Context) (VersionInfo, error) {
	rec, err := l.latest(ctx)
	if err != nil {
		return VersionInfo{Version: 0, Title: "Error retrieving version info"}, err
	}
	if rec == nil {
		return VersionInfo{Version: 0, Title: "No migrations applied"}, nil
	}
	return VersionInfo{Version: rec.Version, Title: rec.Title}, nil
}

func (l *SurrealLedger) latest(ctx context.Context) (*VersionRecord, error) {
	rec, err := l.records().First(ctx, sdbclient.SelectOptions{OrderBy: "version", Desc: true})
	if errors.Is(err, sdbclient.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &LedgerReadError{Err: err}
	}
	return rec, nil
}

// RecordVersion stores version as applied. The unique index rejects duplicates.
func (l *SurrealLedger) RecordVersion(ctx context.Context, version int, title string) error {
	content := map[string]any{"version": version}
	if title != "" {
		content["title"] = title
	}
	if _, err := l.records().Create(ctx, content); err != nil {
		return &LedgerWriteError{Version: version, Op: "record", Err: err}
	}
	return nil
}

// DeleteVersion removes the record for version.
func (l *SurrealLedger) DeleteVersion(ctx context.Context, version int) error {
	if _, err := l.records().Delete(ctx, sdbclient.Eq("version", version), nil); err != nil {
		return &LedgerWriteError{Version: version, Op: "delete", Err: err}
	}
	return nil
}

// Applied returns all records in ascending version order.
func (l *SurrealLedger) Applied(ctx context.Context) ([]VersionRecord, error) {
	rows, err := l.records().Select(ctx, sdbclient.SelectOptions{OrderBy: "version"})
	if err != nil {
		return nil, &LedgerReadError{Err: err}
	}
	return rows, nil
}
