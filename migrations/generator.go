package migrations

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const defaultDigits = 3

// FormatVersion zero-pads version to digits. Wider numbers are kept whole.
func FormatVersion(version, digits int) string {
	if digits < 1 {
		digits = 1
	}
	s := strconv.Itoa(version)
	if len(s) >= digits {
		return s
	}
	return strings.Repeat("0", digits-len(s)) + s
}

// GeneratedFiles are the paths written by Generator.Write.
type GeneratedFiles struct {
	Version int
	Do      string
	Undo    string
}

// Generator writes do/undo migration file pairs.
type Generator struct {
	dir    string
	digits int
	now    func() time.Time
}

// NewGenerator constructs a generator writing into dir.
func NewGenerator(dir string, digits int) *Generator {
	if digits < 1 {
		digits = defaultDigits
	}
	return &Generator{dir: dir, digits: digits, now: time.Now}
}

var unsafeTitle = regexp.MustCompile(`[\s/\\]+`)

// Write stores diff as version current+1. Nothing is written when diff is
// empty or when either file already exists.
func (g *Generator) Write(current int, title string, diff DiffResult) (*GeneratedFiles, error) {
	if diff.Empty() {
		return nil, ErrNoChanges
	}

	now := g.now().UTC()
	title = strings.Trim(unsafeTitle.ReplaceAllString(strings.TrimSpace(title), "-"), "-")
	if title == "" {
		title = now.Format("20060102150405")
	}

	version := current + 1
	prefix := FormatVersion(version, g.digits)
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations directory: %w", err)
	}

	out := &GeneratedFiles{
		Version: version,
		Do:      filepath.Join(g.dir, fmt.Sprintf("%s.%s.%s%s", prefix, ActionDo, title, fileExt)),
		Undo:    filepath.Join(g.dir, fmt.Sprintf("%s.%s.%s%s", prefix, ActionUndo, title, fileExt)),
	}

	if err := writeMigrationFile(out.Do, "Apply changes", now, diff.Forward); err != nil {
		return nil, err
	}
	if err := writeMigrationFile(out.Undo, "Revert changes", now, diff.Reverse); err != nil {
		_ = os.Remove(out.Do)
		return nil, err
	}
	return out, nil
}

// writeContent is replaced in tests to simulate a failing disk.
var writeContent = func(f *os.File, content string) error {
	_, err := f.WriteString(content)
	return err
}

func writeMigrationFile(path, purpose string, generated time.Time, statements []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "-- %s\n", purpose)
	fmt.Fprintf(&b, "-- Generated at %s\n", generated.Format(time.RFC3339))
	for _, stmt := range statements {
		b.WriteString(stmt)
		b.WriteString(";\n")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrVersionExists, filepath.Base(path))
		}
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := writeContent(f, b.String()); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return nil
}
