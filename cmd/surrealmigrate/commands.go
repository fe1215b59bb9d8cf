package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/eqr/sdbclient"
	"github.com/eqr/sdbclient/config"
	"github.com/eqr/sdbclient/internal/metrics"
	"github.com/eqr/sdbclient/migrations"
)

const retryBackoff = 200 * time.Millisecond

type commonFlags struct {
	config string
	dir    string
}

func newFlagSet(name, about string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	cf := &commonFlags{}
	fs.StringVar(&cf.config, "c", "", "path to a YAML or TOML configuration file")
	fs.StringVar(&cf.config, "config", "", "path to a YAML or TOML configuration file")
	fs.StringVar(&cf.dir, "d", "", "directory containing migration files")
	fs.StringVar(&cf.dir, "dir", "", "directory containing migration files")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: surrealmigrate %s [options]\n\n%s\n\nOptions:\n", name, about)
		fs.PrintDefaults()
	}
	return fs, cf
}

// session holds everything a command needs once configuration is loaded.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      sdbclient.DB
	runner  *migrations.Runner
	metrics *metrics.Collector
}

func openSession(ctx context.Context, cf *commonFlags) (*session, error) {
	cfg, err := config.Load(cf.config)
	if err != nil {
		return nil, err
	}
	if cf.dir != "" {
		cfg.Migrations.Folder = cf.dir
	}

	level, _ := cfg.LogLevel()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	db, err := sdbclient.Connect(ctx, cfg.Database.URL,
		sdbclient.WithCredentials(cfg.Database.User, cfg.Database.Pass),
		sdbclient.WithNamespace(cfg.Database.Namespace),
		sdbclient.WithDatabase(cfg.Database.Database),
		sdbclient.WithTimeout(cfg.Database.Timeout),
		sdbclient.WithRetry(cfg.Database.MaxRetries, retryBackoff),
		sdbclient.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Database.URL, err)
	}
	logger.Debug("connected", "url", cfg.Database.URL, "namespace", cfg.Database.Namespace, "database", cfg.Database.Database)

	m := metrics.New()
	runner := migrations.NewRunner(db,
		migrations.WithDir(cfg.Migrations.Folder),
		migrations.WithDigits(cfg.Migrations.Digits),
		migrations.WithLogger(logger),
		migrations.WithObserver(m),
	)
	return &session{cfg: cfg, logger: logger, db: db, runner: runner, metrics: m}, nil
}

func (s *session) Close() {
	if path := s.cfg.Metrics.File; path != "" {
		if err := s.metrics.WriteTextfile(path); err != nil {
			s.logger.Warn("failed to write metrics file", "path", path, "error", err)
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Debug("close connection", "error", err)
	}
}

// withSession parses args, connects and runs fn, closing the session after.
func withSession(fs *flag.FlagSet, cf *commonFlags, args []string, fn func(context.Context, *session) error) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := openSession(ctx, cf)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// parseTarget turns a --to value into a version. Empty means no target.
func parseTarget(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --to %q: %w", raw, err)
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid --to %q: must not be negative", raw)
	}
	return &n, nil
}

func runMigrate(args []string) error {
	fs, cf := newFlagSet("migrate", "Apply all pending migrations, or up to --to.")
	to := fs.String("to", "", "migrate to a specific version")
	return withSession(fs, cf, args, func(ctx context.Context, s *session) error {
		target, err := parseTarget(*to)
		if err != nil {
			return err
		}
		_, err = s.runner.Migrate(ctx, target)
		return err
	})
}

func runRollback(args []string) error {
	fs, cf := newFlagSet("rollback", "Revert the last applied migration, or down to --to.")
	to := fs.String("to", "", "rollback to a specific version")
	return withSession(fs, cf, args, func(ctx context.Context, s *session) error {
		target, err := parseTarget(*to)
		if err != nil {
			return err
		}
		_, err = s.runner.Rollback(ctx, target)
		return err
	})
}

func runFastForward(args []string) error {
	fs, cf := newFlagSet("fastforward", "Record every catalog version above the current one without executing it.")
	return withSession(fs, cf, args, func(ctx context.Context, s *session) error {
		_, err := s.runner.FastForward(ctx)
		return err
	})
}

func runInfo(args []string) error {
	fs, cf := newFlagSet("info", "Show the current version, the latest catalog version and pending migrations.")
	return withSession(fs, cf, args, func(ctx context.Context, s *session) error {
		st, err := s.runner.Info(ctx)
		if err != nil {
			return err
		}
		printStatus(stdout, st)
		if len(st.Pending) == 0 {
			s.logger.Info("No pending migrations. Database is up to date.")
		}
		return nil
	})
}

func printStatus(w io.Writer, st *migrations.Status) {
	fmt.Fprintln(w, "\nMigration Status:")
	fmt.Fprintf(w, "Current Version: %d (%s)\n", st.CurrentVersion, st.CurrentTitle)
	fmt.Fprintf(w, "Latest Version: %d\n\n", st.LatestVersion)
	if len(st.Pending) == 0 {
		return
	}
	fmt.Fprintln(w, "Pending Migrations:")
	for _, e := range st.Pending {
		title := e.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(w, "  - Version %d: %s\n", e.Number, title)
	}
	fmt.Fprintln(w, "-------------------")
}

func runExtract(args []string) error {
	fs, cf := newFlagSet("extract", "Capture the live schema and store it as the baseline for generate.")
	return withSession(fs, cf, args, func(ctx context.Context, s *session) error {
		_, err := s.runner.Extract(ctx)
		return err
	})
}

func runGenerate(args []string) error {
	fs, cf := newFlagSet("generate", "Diff the live schema against the last extract and write the next do/undo pair.\nMust be run after extract.")
	var name string
	fs.StringVar(&name, "n", "", "title of the migration")
	fs.StringVar(&name, "name", "", "title of the migration")
	return withSession(fs, cf, args, func(ctx context.Context, s *session) error {
		files, err := s.runner.Generate(ctx, name)
		switch {
		case errors.Is(err, migrations.ErrNoBaseline), errors.Is(err, migrations.ErrNoChanges):
			return nil
		case err != nil:
			return err
		}
		fmt.Fprintf(stdout, "Created %s\nCreated %s\n", files.Do, files.Undo)
		return nil
	})
}
