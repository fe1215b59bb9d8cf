package sdbclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Table exposes typed record helpers for one SurrealDB table.
type Table[T any] struct {
	q    Querier
	name string
}

// NewTable creates a helper bound to a table.
func NewTable[T any](q Querier, name string) *Table[T] {
	return &Table[T]{
		q:    q,
		name: strings.TrimSpace(name),
	}
}

// Name returns the table name.
func (t *Table[T]) Name() string { return t.name }

// SelectOptions describes filtering and ordering for Select calls.
type SelectOptions struct {
	Fields  []string
	Where   string
	OrderBy string
	Desc    bool
	Limit   int
	Vars    map[string]any
}

func (t *Table[T]) check() error {
	if t.q == nil {
		return errors.New("table querier is nil")
	}
	if t.name == "" {
		return errors.New("table name is required")
	}
	return nil
}

// Select returns the records matching opts.
func (t *Table[T]) Select(ctx context.Context, opts SelectOptions) ([]T, error) {
	if err := t.check(); err != nil {
		return nil, err
	}

	fields := "*"
	if len(opts.Fields) > 0 {
		quoted := make([]string, len(opts.Fields))
		for i, f := range opts.Fields {
			quoted[i] = fieldPath(f)
		}
		fields = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", fields, Ident(t.name))
	if w := strings.TrimSpace(opts.Where); w != "" {
		b.WriteString(" WHERE " + w)
	}
	if opts.OrderBy != "" {
		b.WriteString(" ORDER BY " + fieldPath(opts.OrderBy))
		if opts.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}
	b.WriteString(";")

	results, err := t.q.Query(ctx, b.String(), opts.Vars)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", t.name, err)
	}
	rows, err := Decode[[]T](results, 0)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", t.name, err)
	}
	return rows, nil
}

// First returns the first record matching opts, or ErrNotFound.
func (t *Table[T]) First(ctx context.Context, opts SelectOptions) (*T, error) {
	opts.Limit = 1
	rows, err := t.Select(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", t.name, ErrNotFound)
	}
	return &rows[0], nil
}

// Create inserts content as a new record and returns what was stored.
// Content may be a T or any value that encodes to the same JSON object.
func (t *Table[T]) Create(ctx context.Context, content any) (*T, error) {
	if err := t.check(); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("CREATE %s CONTENT $content;", Ident(t.name))
	results, err := t.q.Query(ctx, sql, map[string]any{"content": content})
	if err != nil {
		return nil, fmt.Errorf("create in %s: %w", t.name, err)
	}
	rows, err := Decode[[]T](results, 0)
	if err != nil {
		return nil, fmt.Errorf("create in %s: %w", t.name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("create in %s: no record returned", t.name)
	}
	return &rows[0], nil
}

// Delete removes the records matching where and reports how many were deleted.
func (t *Table[T]) Delete(ctx context.Context, where string, vars map[string]any) (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	where = strings.TrimSpace(where)
	if where == "" {
		return 0, errors.New("delete requires a condition")
	}

	sql := fmt.Sprintf("DELETE %s WHERE %s RETURN BEFORE;", Ident(t.name), where)
	results, err := t.q.Query(ctx, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", t.name, err)
	}
	rows, err := Decode[[]map[string]any](results, 0)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", t.name, err)
	}
	return len(rows), nil
}
