package migrations

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateVersion  = errors.New("duplicate migration version")
	ErrMigrationNotFound = errors.New("migration not found")
	ErrLedgerNotFound    = errors.New("ledger table not found")
	ErrNoChanges         = errors.New("no changes detected")
	ErrVersionExists     = errors.New("migration version already exists")
	ErrNoBaseline        = errors.New("no stored introspection")
)

// CatalogReadError means the migrations directory could not be read.
type CatalogReadError struct {
	Dir string
	Err error
}

func (e *CatalogReadError) Error() string {
	return fmt.Sprintf("read migrations directory %s: %v", e.Dir, e.Err)
}

func (e *CatalogReadError) Unwrap() error { return e.Err }

// LedgerReadError means the applied versions could not be read.
type LedgerReadError struct {
	Err error
}

func (e *LedgerReadError) Error() string {
	return fmt.Sprintf("read migration ledger: %v", e.Err)
}

func (e *LedgerReadError) Unwrap() error { return e.Err }

// LedgerWriteError means a version could not be recorded or deleted.
type LedgerWriteError struct {
	Version int
	Op      string
	Err     error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("%s version %d in migration ledger: %v", e.Op, e.Version, e.Err)
}

func (e *LedgerWriteError) Unwrap() error { return e.Err }

// MigrationExecutionError means a migration file failed to apply or revert.
type MigrationExecutionError struct {
	File   string
	Action Action
	Err    error
}

func (e *MigrationExecutionError) Error() string {
	return fmt.Sprintf("%s migration %s: %v", e.Action, e.File, e.Err)
}

func (e *MigrationExecutionError) Unwrap() error { return e.Err }

// DiffGenerationError means a snapshot was missing or malformed.
type DiffGenerationError struct {
	Reason string
}

func (e *DiffGenerationError) Error() string {
	return "generate diff: " + e.Reason
}
