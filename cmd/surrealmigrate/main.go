package main

import (
	"fmt"
	"io"
	"os"
)

var version = "dev"

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var commands = map[string]func([]string) error{
	"migrate":     runMigrate,
	"rollback":    runRollback,
	"fastforward": runFastForward,
	"info":        runInfo,
	"extract":     runExtract,
	"generate":    runGenerate,
}

func usage() {
	fmt.Fprintf(stderr, `surrealmigrate - SurrealDB schema migrations (version %s)

Usage:
  surrealmigrate <command> [options]

Commands:
  migrate      Apply pending migrations (--to <version> stops early)
  rollback     Revert applied migrations (--to <version>, default one step)
  fastforward  Record every catalog version as applied without executing it
  info         Show the current version and pending migrations
  extract      Store the live schema as the baseline for generate
  generate     Write do/undo files for schema changes since the last extract
  version      Print the version
  help         Show this help

Every command accepts -c/--config <path> (YAML or TOML) and -d/--dir <path>.

Configuration precedence: environment > config file > defaults.
Environment variables:
  SURREAL_URL, SURREAL_USER, SURREAL_PASS, SURREAL_NAMESPACE, SURREAL_DATABASE,
  SURREAL_TIMEOUT, SURREAL_MAX_RETRIES, SURREAL_MIGRATIONS_FOLDER,
  SURREAL_MIGRATIONS_DIGITS, SURREAL_LOG_LEVEL, SURREAL_METRICS_FILE

Migration files are named <version>.<do|undo>.<title>.surql.
Run 'surrealmigrate <command> -h' for command-specific help.
`, version)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 1
	}

	cmd := args[0]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage()
		return 0
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Fprintln(stdout, version)
		return 0
	}

	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n\n", cmd)
		usage()
		return 1
	}

	if err := fn(args[1:]); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
