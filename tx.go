package sdbclient

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Tx is a transaction. Statements queued with Query run when Commit is
// called; SurrealDB does not keep a transaction open across requests.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Cancel(ctx context.Context) error
}

type bufferedTx struct {
	q          Querier
	mu         sync.Mutex
	statements []string
	vars       map[string]any
	done       bool
}

func newBufferedTx(q Querier) *bufferedTx {
	return &bufferedTx{q: q, vars: make(map[string]any)}
}

// Query buffers sql and returns no results.
func (tx *bufferedTx) Query(_ context.Context, sql string, vars map[string]any) ([]QueryResult, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return nil, ErrTxDone
	}
	for k, v := range vars {
		if prev, ok := tx.vars[k]; ok && !reflect.DeepEqual(prev, v) {
			return nil, fmt.Errorf("variable $%s bound twice with different values", k)
		}
		tx.vars[k] = v
	}
	sql = strings.TrimSpace(sql)
	if sql != "" {
		tx.statements = append(tx.statements, sql)
	}
	return nil, nil
}

// Commit sends the buffered statements wrapped in BEGIN/COMMIT.
func (tx *bufferedTx) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	if len(tx.statements) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("BEGIN TRANSACTION;\n")
	for _, stmt := range tx.statements {
		b.WriteString(stmt)
		b.WriteString("\n")
		// on its own line so a trailing comment cannot swallow it
		if !strings.HasSuffix(stmt, ";") {
			b.WriteString(";\n")
		}
	}
	b.WriteString("COMMIT TRANSACTION;")

	var vars map[string]any
	if len(tx.vars) > 0 {
		vars = tx.vars
	}
	if _, err := tx.q.Query(ctx, b.String(), vars); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Cancel discards the buffered statements. Cancelling a finished transaction is a no-op.
func (tx *bufferedTx) Cancel(context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	tx.done = true
	tx.statements = nil
	return nil
}
