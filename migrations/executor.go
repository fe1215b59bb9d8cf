package migrations

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	sdbclient "github.com/eqr/sdbclient"
)

// Executor runs one migration file.
type Executor interface {
	Execute(ctx context.Context, path string, action Action) error
}

// FileExecutor runs each file's full content inside a single transaction.
type FileExecutor struct {
	db     sdbclient.DB
	logger *slog.Logger
}

// NewFileExecutor constructs an executor. A nil logger discards output.
func NewFileExecutor(db sdbclient.DB, logger *slog.Logger) *FileExecutor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FileExecutor{db: db, logger: logger}
}

// Execute applies or reverts the file at path. On failure the transaction is
// cancelled and a *MigrationExecutionError is returned.
func (e *FileExecutor) Execute(ctx context.Context, path string, action Action) error {
	file := filepath.Base(path)
	if err := e.execute(ctx, path); err != nil {
		e.logger.Error("migration failed", "file", file, "action", string(action), "error", err)
		return &MigrationExecutionError{File: file, Action: action, Err: err}
	}

	if action == ActionUndo {
		e.logger.Info("Reverted migration: " + file)
	} else {
		e.logger.Info("Applied migration: " + file)
	}
	return nil
}

func (e *FileExecutor) execute(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration file: %w", err)
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.Query(ctx, string(content), nil); err != nil {
		_ = tx.Cancel(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Cancel(ctx)
		return err
	}
	return nil
}
