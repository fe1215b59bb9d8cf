package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/eqr/sdbclient/migrations"
)

// fakeSurreal answers the handful of requests the CLI sends over /sql.
type fakeSurreal struct {
	mu     sync.Mutex
	bodies []string
}

func (f *fakeSurreal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/signin":
		_, _ = w.Write([]byte(`{"token":"tok"}`))
		return
	case "/sql":
	default:
		http.NotFound(w, r)
		return
	}

	raw, _ := io.ReadAll(r.Body)
	body := string(raw)
	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()

	switch {
	case strings.Contains(body, "INFO FOR DB"):
		_, _ = w.Write([]byte(`[{"status":"OK","time":"1ms","result":{"tables":{}}}]`))
	case strings.HasPrefix(body, "SELECT"):
		_, _ = w.Write([]byte(`[{"status":"OK","time":"1ms","result":[]}]`))
	case strings.Contains(body, "CREATE migrations"):
		_, _ = w.Write([]byte(`[{"status":"OK","time":"1ms","result":null},{"status":"OK","time":"1ms","result":[{"id":"migrations:1","version":1}]}]`))
	default:
		_, _ = w.Write([]byte(`[{"status":"OK","time":"1ms","result":null}]`))
	}
}

func (f *fakeSurreal) sent(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bodies {
		if strings.Contains(b, substr) {
			return true
		}
	}
	return false
}

func setup(t *testing.T) (*fakeSurreal, *bytes.Buffer, string) {
	t.Helper()
	fake := &fakeSurreal{}
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)
	t.Setenv("SURREAL_URL", ts.URL)
	t.Setenv("SURREAL_LOG_LEVEL", "error")

	var out bytes.Buffer
	prevOut, prevErr := stdout, stderr
	stdout, stderr = &out, io.Discard
	t.Cleanup(func() { stdout, stderr = prevOut, prevErr })

	dir := t.TempDir()
	return fake, &out, dir
}

func writeMigration(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRunHelpAndVersion(t *testing.T) {
	_, out, _ := setup(t)

	if code := run([]string{"help"}); code != 0 {
		t.Fatalf("help exit code %d", code)
	}
	if code := run([]string{"version"}); code != 0 {
		t.Fatalf("version exit code %d", code)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Fatalf("version output %q", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	setup(t)
	if code := run([]string{"frobnicate"}); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if code := run(nil); code != 1 {
		t.Fatalf("expected exit code 1 without a command, got %d", code)
	}
}

func TestRunInfo(t *testing.T) {
	_, out, dir := setup(t)
	writeMigration(t, dir, "001.do.a.surql", "DEFINE TABLE a;")
	writeMigration(t, dir, "002.do.b.surql", "DEFINE TABLE b;")

	if code := run([]string{"info", "--dir", dir}); code != 0 {
		t.Fatalf("info exit code %d", code)
	}
	want := "\nMigration Status:\nCurrent Version: 0 (No migrations applied)\nLatest Version: 2\n\nPending Migrations:\n  - Version 1: a\n  - Version 2: b\n-------------------\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestRunMigrate(t *testing.T) {
	fake, _, dir := setup(t)
	writeMigration(t, dir, "001.do.a.surql", "DEFINE TABLE a;")
	metricsFile := filepath.Join(t.TempDir(), "surrealmigrate.prom")
	t.Setenv("SURREAL_METRICS_FILE", metricsFile)

	if code := run([]string{"migrate", "-d", dir}); code != 0 {
		t.Fatalf("migrate exit code %d", code)
	}
	if !fake.sent("BEGIN TRANSACTION;\nDEFINE TABLE a;") {
		t.Fatalf("migration file was not executed: %q", fake.bodies)
	}
	if !fake.sent("CREATE migrations CONTENT $content;") {
		t.Fatalf("version was not recorded: %q", fake.bodies)
	}

	body, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(body), `surrealmigrate_steps_total{action="do",result="success"} 1`) {
		t.Fatalf("unexpected metrics:\n%s", body)
	}
}

func TestRunMigrateInvalidTarget(t *testing.T) {
	fake, _, dir := setup(t)
	if code := run([]string{"migrate", "-d", dir, "--to", "abc"}); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if fake.sent("BEGIN TRANSACTION") {
		t.Fatalf("nothing should run with an invalid target")
	}
}

func TestRunGenerateWithoutBaseline(t *testing.T) {
	_, _, dir := setup(t)

	if code := run([]string{"generate", "-d", dir, "-n", "x"}); code != 0 {
		t.Fatalf("generate without baseline should not fail, got %d", code)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("no files should be written")
	}
}

func TestRunConnectionFailure(t *testing.T) {
	setup(t)
	t.Setenv("SURREAL_URL", "ftp://example.invalid")
	if code := run([]string{"info"}); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		isNil   bool
		wantErr bool
	}{
		{raw: "", isNil: true},
		{raw: " 5 ", want: 5},
		{raw: "0", want: 0},
		{raw: "-1", wantErr: true},
		{raw: "five", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseTarget(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseTarget(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseTarget(%q): %v", tt.raw, err)
		}
		if tt.isNil != (got == nil) || (got != nil && *got != tt.want) {
			t.Fatalf("parseTarget(%q) = %v", tt.raw, got)
		}
	}
}

func TestPrintStatusUpToDate(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, &migrations.Status{CurrentVersion: 3, CurrentTitle: "add-index", LatestVersion: 3})
	want := "\nMigration Status:\nCurrent Version: 3 (add-index)\nLatest Version: 3\n\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}

func TestPrintStatusUntitledPending(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, &migrations.Status{
		CurrentVersion: 2,
		CurrentTitle:   "b",
		LatestVersion:  3,
		Pending:        []migrations.Entry{{Number: 3}},
	})
	if !strings.Contains(buf.String(), "  - Version 3: Untitled\n") {
		t.Fatalf("output = %q", buf.String())
	}
}
