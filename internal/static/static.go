// Package static holds the immutable file-name to content table served by the
// chat server. The table is built once at startup and then only read, so it
// is shared across worker goroutines without locking.
package static

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

var log = slog.Default()

// Pages the dispatcher serves by name.
const (
	LoginPage    = "login.html"
	ChatPage     = "chat.html"
	NotFoundPage = "404.html"
)

// RequiredPages must exist in every table used by the server.
var RequiredPages = []string{LoginPage, ChatPage, NotFoundPage}

// ErrMissingFile is returned when a required page is absent at load time.
var ErrMissingFile = errors.New("required static file missing")

// Table maps file names to file content.
type Table struct {
	files map[string]string
}

// New builds a table from files. The map is copied.
func New(files map[string]string) *Table {
	t := &Table{files: make(map[string]string, len(files))}
	for name, content := range files {
		t.files[name] = content
	}
	return t
}

// Load reads every regular file, or symlink to one, directly inside dir into
// a table and checks that each name in required is present.
func Load(dir string, required ...string) (*Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read static dir %s: %w", dir, err)
	}

	files := make(map[string]string, len(entries))
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			log.Warn("Skipping unreadable static entry", "path", path, "error", err)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read static file %s: %w", entry.Name(), err)
		}
		files[entry.Name()] = string(data)
	}

	t := &Table{files: files}
	if err := t.Require(required...); err != nil {
		return nil, err
	}
	return t, nil
}

// Require returns ErrMissingFile wrapped with the first absent name.
func (t *Table) Require(names ...string) error {
	for _, name := range names {
		if _, ok := t.files[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingFile, name)
		}
	}
	return nil
}

// Get returns the content stored under name.
func (t *Table) Get(name string) (string, bool) {
	content, ok := t.files[name]
	return content, ok
}

// Names returns the sorted file names in the table.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.files))
	for name := range t.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of files.
func (t *Table) Len() int {
	return len(t.files)
}
