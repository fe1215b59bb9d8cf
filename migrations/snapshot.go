package migrations

import (
	"context"
	"fmt"
	"sort"
	"time"

	sdbclient "github.com/eqr/sdbclient"
)

// Snapshot is the captured schema of a database. A nil map and an empty map
// mean the same thing.
type Snapshot struct {
	// Definitions maps table names to their DEFINE TABLE statement.
	Definitions map[string]string        `json:"definitions"`
	Tables      map[string]TableSnapshot `json:"tables"`
	CapturedAt  sdbclient.Datetime       `json:"capturedAt"`
}

// TableSnapshot holds the raw statements defined on one table.
type TableSnapshot struct {
	Fields  map[string]string        `json:"fields,omitempty"`
	Indexes map[string]IndexSnapshot `json:"indexes,omitempty"`
	Events  map[string]string        `json:"events,omitempty"`
}

// IndexSnapshot is a DEFINE INDEX statement with its parsed shape.
type IndexSnapshot struct {
	Statement string   `json:"statement"`
	Unique    bool     `json:"unique"`
	Fields    []string `json:"fields,omitempty"`
}

// Validate reports shape problems that would make a diff meaningless.
func (s *Snapshot) Validate() error {
	if s == nil {
		return &DiffGenerationError{Reason: "snapshot is missing"}
	}
	for name, def := range s.Definitions {
		if def == "" {
			return &DiffGenerationError{Reason: fmt.Sprintf("table %s has an empty definition", name)}
		}
	}
	for name, t := range s.Tables {
		if _, ok := s.Definitions[name]; !ok {
			return &DiffGenerationError{Reason: fmt.Sprintf("table %s has no definition", name)}
		}
		for field, def := range t.Fields {
			if def == "" {
				return &DiffGenerationError{Reason: fmt.Sprintf("field %s on %s has an empty definition", field, name)}
			}
		}
		for index, idx := range t.Indexes {
			if idx.Statement == "" {
				return &DiffGenerationError{Reason: fmt.Sprintf("index %s on %s has no statement", index, name)}
			}
		}
		for event, def := range t.Events {
			if def == "" {
				return &DiffGenerationError{Reason: fmt.Sprintf("event %s on %s has an empty definition", event, name)}
			}
		}
	}
	return nil
}

// TableNames returns the defined table names in sorted order.
func (s *Snapshot) TableNames() []string {
	return sortedKeys(s.Definitions)
}

// Capturer reads the live schema into a Snapshot.
type Capturer struct {
	db      sdbclient.Querier
	store   *IntrospectionStore
	exclude map[string]bool
	now     func() time.Time
}

// NewCapturer constructs a capturer. The store's table and any table named in
// exclude are left out of snapshots.
func NewCapturer(db sdbclient.Querier, store *IntrospectionStore, exclude ...string) *Capturer {
	c := &Capturer{
		db:      db,
		store:   store,
		exclude: make(map[string]bool),
		now:     time.Now,
	}
	if store != nil {
		c.exclude[store.Table()] = true
	}
	for _, name := range exclude {
		c.exclude[name] = true
	}
	return c
}

// Capture lists all tables, bootstrapping the introspection table on first
// use, then reads the fields, indexes and events of each table.
func (c *Capturer) Capture(ctx context.Context) (*Snapshot, error) {
	info, err := sdbclient.InfoForDB(ctx, c.db)
	if err != nil {
		return nil, err
	}
	if c.store != nil {
		if _, ok := info.Tables[c.store.Table()]; !ok {
			if err := c.store.define(ctx); err != nil {
				return nil, err
			}
			if info, err = sdbclient.InfoForDB(ctx, c.db); err != nil {
				return nil, err
			}
		}
	}

	snap := &Snapshot{
		Definitions: make(map[string]string),
		Tables:      make(map[string]TableSnapshot),
		CapturedAt:  sdbclient.Datetime{Time: c.now().UTC()},
	}
	for _, name := range sortedKeys(info.Tables) {
		if c.exclude[name] {
			continue
		}
		tinfo, err := sdbclient.InfoForTable(ctx, c.db, name)
		if err != nil {
			return nil, err
		}

		ts := TableSnapshot{
			Fields:  tinfo.Fields,
			Events:  tinfo.Events,
			Indexes: make(map[string]IndexSnapshot, len(tinfo.Indexes)),
		}
		for idxName, stmt := range tinfo.Indexes {
			fields, unique := sdbclient.ParseIndex(stmt)
			ts.Indexes[idxName] = IndexSnapshot{Statement: stmt, Unique: unique, Fields: fields}
		}

		snap.Definitions[name] = info.Tables[name]
		snap.Tables[name] = ts
	}
	return snap, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
