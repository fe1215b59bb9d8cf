package migrations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	sdbclient "github.com/eqr/sdbclient"
)

// Observer receives progress events, typically for metrics.
type Observer interface {
	StepCompleted(action Action, version int, elapsed time.Duration, err error)
	LedgerVersion(version int)
	SnapshotCaptured(tables int)
	StatementsGenerated(forward, reverse int)
}

type nopObserver struct{}

func (nopObserver) StepCompleted(Action, int, time.Duration, error) {}
func (nopObserver) LedgerVersion(int)                               {}
func (nopObserver) SnapshotCaptured(int)                            {}
func (nopObserver) StatementsGenerated(int, int)                    {}

// Runner executes migration commands against one database.
type Runner struct {
	db                 sdbclient.DB
	dir                string
	digits             int
	logger             *slog.Logger
	observer           Observer
	ledger             Ledger
	executor           Executor
	introspectionTable string
	now                func() time.Time
}

// Option configures the Runner.
type Option func(*Runner)

// WithDir sets the migrations directory. Defaults to ./migrations.
func WithDir(dir string) Option {
	trimmed := strings.TrimSpace(dir)
	return func(r *Runner) {
		if trimmed != "" {
			r.dir = trimmed
		}
	}
}

// WithDigits sets the zero-padded width of generated versions. Defaults to 3.
func WithDigits(digits int) Option {
	return func(r *Runner) {
		if digits > 0 {
			r.digits = digits
		}
	}
}

// WithLogger attaches a logger for progress messages.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithObserver attaches an observer for step and ledger events.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observer = o
	}
}

// WithLedger replaces the default SurrealDB ledger.
func WithLedger(l Ledger) Option {
	return func(r *Runner) {
		r.ledger = l
	}
}

// WithExecutor replaces the default transactional file executor.
func WithExecutor(e Executor) Option {
	return func(r *Runner) {
		r.executor = e
	}
}

// WithIntrospectionTable overrides the table that stores snapshots.
func WithIntrospectionTable(name string) Option {
	trimmed := strings.TrimSpace(name)
	return func(r *Runner) {
		if trimmed != "" {
			r.introspectionTable = trimmed
		}
	}
}

// NewRunner constructs a Runner with optional configuration.
func NewRunner(db sdbclient.DB, opts ...Option) *Runner {
	r := &Runner{
		db:                 db,
		dir:                "./migrations",
		digits:             defaultDigits,
		introspectionTable: defaultIntrospectionTable,
		now:                time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	if r.ledger == nil {
		r.ledger = NewSurrealLedger(db)
	}
	if r.executor == nil {
		r.executor = NewFileExecutor(db, r.logger)
	}
	return r
}

// Migrate applies pending versions up to target, or to the latest version
// when target is nil.
func (r *Runner) Migrate(ctx context.Context, target *int) (Plan, error) {
	cat, current, err := r.prepare(ctx)
	if err != nil {
		return Plan{}, err
	}

	plan, err := PlanMigrate(cat, current, target)
	if err != nil {
		return Plan{}, err
	}
	switch plan.Outcome {
	case OutcomeNothingToDo:
		r.logger.Info("No migration files found", "dir", cat.Dir)
		return plan, nil
	case OutcomeUpToDate:
		r.logger.Info("No pending migrations. Database is up to date.", "version", current)
		return plan, nil
	case OutcomeWrongDirection:
		r.logger.Warn(fmt.Sprintf("Target version %d is lower than current version %d. Use rollback instead.", plan.To, current))
		return plan, nil
	}

	for _, e := range plan.Steps {
		if err := r.step(ctx, ActionDo, e, cat.Path(e.Do)); err != nil {
			return plan, err
		}
		if err := r.ledger.RecordVersion(ctx, e.Number, e.Title); err != nil {
			return plan, err
		}
		r.observer.LedgerVersion(e.Number)
	}

	r.logger.Info(fmt.Sprintf("Migrated to version %d", plan.Steps[len(plan.Steps)-1].Number))
	return plan, nil
}

// Rollback reverts applied versions down to target, or the latest version
// only when target is nil.
func (r *Runner) Rollback(ctx context.Context, target *int) (Plan, error) {
	cat, current, err := r.prepare(ctx)
	if err != nil {
		return Plan{}, err
	}

	plan, err := PlanRollback(cat, current, target)
	if err != nil {
		return Plan{}, err
	}
	switch plan.Outcome {
	case OutcomeNothingToDo:
		r.logger.Info("No migrations to roll back")
		return plan, nil
	case OutcomeWrongDirection:
		r.logger.Warn(fmt.Sprintf("Target version %d is not lower than current version %d. Use migrate instead.", plan.To, current))
		return plan, nil
	}

	for _, e := range plan.Steps {
		if err := r.step(ctx, ActionUndo, e, cat.Path(e.Undo)); err != nil {
			return plan, err
		}
		if err := r.ledger.DeleteVersion(ctx, e.Number); err != nil {
			return plan, err
		}
	}

	r.observer.LedgerVersion(plan.To)
	r.logger.Info(fmt.Sprintf("Rolled back to version %d", plan.To))
	return plan, nil
}

// FastForward records every catalog version above the current one without
// executing any file.
func (r *Runner) FastForward(ctx context.Context) (Plan, error) {
	cat, current, err := r.prepare(ctx)
	if err != nil {
		return Plan{}, err
	}

	plan := PlanFastForward(cat, current)
	if plan.Outcome != OutcomeApply {
		r.logger.Info("Nothing to fast forward", "version", current)
		return plan, nil
	}

	for _, e := range plan.Steps {
		if err := r.ledger.RecordVersion(ctx, e.Number, e.Title); err != nil {
			return plan, err
		}
		r.observer.LedgerVersion(e.Number)
		r.logger.Info(fmt.Sprintf("Recorded version %d without executing", e.Number), "title", e.Title)
	}
	return plan, nil
}

// Status describes the ledger relative to the catalog.
type Status struct {
	CurrentVersion int
	CurrentTitle   string
	LatestVersion  int
	Pending        []Entry
	Applied        []VersionRecord
}

// Info reports the migration status. Ledger read failures degrade to
// defaults; only an unreadable catalog is an error.
func (r *Runner) Info(ctx context.Context) (*Status, error) {
	cat, err := r.catalog()
	if err != nil {
		return nil, err
	}

	info, err := r.ledger.CurrentVersionInfo(ctx)
	if err != nil {
		r.logger.Error("Failed to read current version", "error", err)
	}
	applied, err := r.ledger.Applied(ctx)
	if err != nil {
		r.logger.Warn("Failed to read applied migrations", "error", err)
	}

	st := &Status{
		CurrentVersion: info.Version,
		CurrentTitle:   info.Title,
		Pending:        cat.between(info.Version, math.MaxInt),
		Applied:        applied,
	}
	if latest, ok := cat.Latest(); ok {
		st.LatestVersion = latest.Number
	}
	return st, nil
}

// Extract captures the live schema and stores it as the new baseline.
func (r *Runner) Extract(ctx context.Context) (*IntrospectionRecord, error) {
	store := r.store()
	snap, err := r.capturer(store).Capture(ctx)
	if err != nil {
		return nil, err
	}
	r.observer.SnapshotCaptured(len(snap.Definitions))

	rec, err := store.Save(ctx, snap)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Stored schema introspection", "tables", len(snap.Definitions), "id", rec.ID)
	return rec, nil
}

// Generate diffs the live schema against the stored baseline and writes the
// next do/undo pair. The baseline is left unchanged.
func (r *Runner) Generate(ctx context.Context, title string) (*GeneratedFiles, error) {
	store := r.store()
	baseline, err := store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if baseline == nil {
		r.logger.Warn("The generate command does not make any database changes and therefore cannot initiate a stored introspection.")
		r.logger.Info("Run extract first to store the introspection data the generate command compares against.")
		return nil, ErrNoBaseline
	}

	snap, err := r.capturer(store).Capture(ctx)
	if err != nil {
		return nil, err
	}
	r.observer.SnapshotCaptured(len(snap.Definitions))

	diff, err := Diff(&baseline.Data, snap)
	if err != nil {
		return nil, err
	}
	if diff.Empty() {
		r.logger.Info("No changes detected")
		return nil, ErrNoChanges
	}

	current, err := r.ledger.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	cat, err := r.catalog()
	if err != nil {
		return nil, err
	}
	if e, ok := cat.Lookup(current + 1); ok {
		return nil, fmt.Errorf("%w: %s", ErrVersionExists, e.Version)
	}

	gen := NewGenerator(r.dir, r.digits)
	gen.now = r.now
	files, err := gen.Write(current, title, diff)
	if err != nil {
		return nil, err
	}
	r.observer.StatementsGenerated(len(diff.Forward), len(diff.Reverse))
	r.logger.Info("Generated migration files", "do", files.Do, "undo", files.Undo)
	return files, nil
}

func (r *Runner) catalog() (*Catalog, error) {
	cat, err := ReadCatalog(r.dir)
	if err != nil {
		return nil, err
	}
	for _, name := range cat.Skipped {
		r.logger.Warn("Skipping migration file without numeric version", "file", name)
	}
	return cat, nil
}

// prepare loads the catalog, bootstraps the ledger and reads the current
// version. Ledger failures are fatal here because a write follows.
func (r *Runner) prepare(ctx context.Context) (*Catalog, int, error) {
	cat, err := r.catalog()
	if err != nil {
		return nil, 0, err
	}
	if err := r.ledger.Ensure(ctx); err != nil {
		return nil, 0, err
	}
	current, err := r.ledger.CurrentVersion(ctx)
	if err != nil {
		return nil, 0, err
	}
	r.observer.LedgerVersion(current)
	return cat, current, nil
}

func (r *Runner) step(ctx context.Context, action Action, e Entry, path string) error {
	start := time.Now()
	err := r.executor.Execute(ctx, path, action)
	r.observer.StepCompleted(action, e.Number, time.Since(start), err)

	var execErr *MigrationExecutionError
	if err != nil && !errors.As(err, &execErr) {
		err = &MigrationExecutionError{File: e.File(action), Action: action, Err: err}
	}
	return err
}

func (r *Runner) store() *IntrospectionStore {
	return NewIntrospectionStore(r.db, r.introspectionTable)
}

func (r *Runner) capturer(store *IntrospectionStore) *Capturer {
	exclude := []string{defaultLedgerTable}
	if named, ok := r.ledger.(interface{ Table() string }); ok {
		exclude = append(exclude, named.Table())
	}
	c := NewCapturer(r.db, store, exclude...)
	c.now = r.now
	return c
}
