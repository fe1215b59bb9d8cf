package migrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdbclient "github.com/eqr/sdbclient"
)

// IntrospectionStore persists snapshots as baselines for later diffs.
type IntrospectionStore struct {
	db    sdbclient.Querier
	table string
}

// NewIntrospectionStore constructs a store. An empty table name selects "introspections".
func NewIntrospectionStore(db sdbclient.Querier, table string) *IntrospectionStore {
	table = strings.TrimSpace(table)
	if table == "" {
		table = defaultIntrospectionTable
	}
	return &IntrospectionStore{db: db, table: table}
}

// Table returns the backing table name.
func (s *IntrospectionStore) Table() string { return s.table }

func (s *IntrospectionStore) records() *sdbclient.Table[IntrospectionRecord] {
	return sdbclient.NewTable[IntrospectionRecord](s.db, s.table)
}

// Ensure defines the table unless it already exists.
func (s *IntrospectionStore) Ensure(ctx context.Context) error {
	info, err := sdbclient.InfoForDB(ctx, s.db)
	if err != nil {
		return fmt.Errorf("ensure introspection table: %w", err)
	}
	if _, ok := info.Tables[s.table]; ok {
		return nil
	}
	return s.define(ctx)
}

func (s *IntrospectionStore) define(ctx context.Context) error {
	t := sdbclient.Ident(s.table)
	schema := fmt.Sprintf(`DEFINE TABLE %[1]s TYPE NORMAL SCHEMALESS PERMISSIONS NONE;
DEFINE FIELD timestamp ON %[1]s TYPE datetime DEFAULT time::now();
DEFINE INDEX timestamp ON %[1]s FIELDS timestamp UNIQUE;`, t)
	if _, err := s.db.Query(ctx, schema, nil); err != nil {
		return fmt.Errorf("define introspection table %s: %w", s.table, err)
	}
	return nil
}

// Save stores snap with a server-assigned timestamp.
func (s *IntrospectionStore) Save(ctx context.Context, snap *Snapshot) (*IntrospectionRecord, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	if err := s.Ensure(ctx); err != nil {
		return nil, err
	}
	rec, err := s.records().Create(ctx, map[string]any{"data": snap})
	if err != nil {
		return nil, fmt.Errorf("save introspection: %w", err)
	}
	return rec, nil
}

// Latest returns the most recent record, or nil when none is stored.
func (s *IntrospectionStore) Latest(ctx context.Context) (*IntrospectionRecord, error) {
	rec, err := s.records().First(ctx, sdbclient.SelectOptions{OrderBy: "timestamp", Desc: true})
	if errors.Is(err, sdbclient.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest introspection: %w", err)
	}
	return rec, nil
}
