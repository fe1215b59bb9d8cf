package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const fileExt = ".surql"

// Catalog is the ordered set of migration files found in a directory.
type Catalog struct {
	Dir     string
	Entries []Entry
	// Skipped lists files that carry an action marker but no numeric version.
	Skipped []string
}

// ReadCatalog lists dir, creating it when missing. Files are recognised by a
// ".do." or ".undo." marker and named <version>.<do|undo>.<title>[.surql].
func ReadCatalog(dir string) (*Catalog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &CatalogReadError{Dir: dir, Err: err}
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &CatalogReadError{Dir: dir, Err: err}
	}

	cat := &Catalog{Dir: dir}
	byNumber := make(map[int]*Entry)
	doTitles := make(map[int]bool)

	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if !strings.Contains(name, ".do.") && !strings.Contains(name, ".undo.") {
			continue
		}

		parts := strings.Split(strings.TrimSuffix(name, fileExt), ".")
		if len(parts) < 2 {
			continue
		}
		action := Action(parts[1])
		if action != ActionDo && action != ActionUndo {
			cat.Skipped = append(cat.Skipped, name)
			continue
		}
		number, err := strconv.Atoi(parts[0])
		if err != nil || number < 0 {
			cat.Skipped = append(cat.Skipped, name)
			continue
		}
		title := strings.Join(parts[2:], ".")

		entry, ok := byNumber[number]
		if !ok {
			entry = &Entry{Number: number, Version: parts[0]}
			byNumber[number] = entry
		}

		switch action {
		case ActionDo:
			if entry.Do != "" {
				return nil, &CatalogReadError{Dir: dir, Err: fmt.Errorf("%w: %d (%s, %s)", ErrDuplicateVersion, number, entry.Do, name)}
			}
			entry.Do = name
			entry.Version = parts[0]
			entry.Title = title
			doTitles[number] = true
		case ActionUndo:
			if entry.Undo != "" {
				return nil, &CatalogReadError{Dir: dir, Err: fmt.Errorf("%w: %d (%s, %s)", ErrDuplicateVersion, number, entry.Undo, name)}
			}
			entry.Undo = name
			if !doTitles[number] {
				entry.Title = title
			}
		}
	}

	cat.Entries = make([]Entry, 0, len(byNumber))
	for _, e := range byNumber {
		cat.Entries = append(cat.Entries, *e)
	}
	sort.Slice(cat.Entries, func(i, j int) bool {
		return cat.Entries[i].Number < cat.Entries[j].Number
	})
	sort.Strings(cat.Skipped)

	return cat, nil
}

// Len returns the number of versions.
func (c *Catalog) Len() int { return len(c.Entries) }

// Versions returns the version numbers in ascending order.
func (c *Catalog) Versions() []int {
	out := make([]int, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = e.Number
	}
	return out
}

// Latest returns the highest version.
func (c *Catalog) Latest() (Entry, bool) {
	if len(c.Entries) == 0 {
		return Entry{}, false
	}
	return c.Entries[len(c.Entries)-1], true
}

// Lookup finds the entry for version n.
func (c *Catalog) Lookup(n int) (Entry, bool) {
	i := sort.Search(len(c.Entries), func(i int) bool { return c.Entries[i].Number >= n })
	if i < len(c.Entries) && c.Entries[i].Number == n {
		return c.Entries[i], true
	}
	return Entry{}, false
}

// Path joins a catalog file name with the catalog directory.
func (c *Catalog) Path(file string) string {
	return filepath.Join(c.Dir, file)
}

// between returns entries with from < n <= to in ascending order.
func (c *Catalog) between(from, to int) []Entry {
	out := make([]Entry, 0)
	for _, e := range c.Entries {
		if e.Number > from && e.Number <= to {
			out = append(out, e)
		}
	}
	return out
}
