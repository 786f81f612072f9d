package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrBadFilename rejects names that sanitize down to nothing.
var ErrBadFilename = errors.New("invalid filename")

// Inventory is the in-memory cache of filenames in the storage directory.
// The filesystem is authoritative; the cache is a read optimization and
// must be rescanned after every mutating operation.
type Inventory struct {
	mu    sync.Mutex
	dir   string
	names []string
}

// NewInventory builds an inventory over the given storage directory.
func NewInventory(dir string) *Inventory {
	return &Inventory{dir: dir}
}

// Dir returns the storage directory.
func (inv *Inventory) Dir() string {
	return inv.dir
}

// Rescan refreshes the cache from the filesystem.
func (inv *Inventory) Rescan() error {
	entries, err := os.ReadDir(inv.dir)
	if err != nil {
		inv.mu.Lock()
		inv.names = nil
		inv.mu.Unlock()
		return fmt.Errorf("failed to scan storage directory %s: %w", inv.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	inv.mu.Lock()
	inv.names = names
	inv.mu.Unlock()
	return nil
}

// List returns a copy of the cached filenames.
func (inv *Inventory) List() []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return append([]string(nil), inv.names...)
}

// Path resolves a sanitized name inside the storage directory.
func (inv *Inventory) Path(name string) string {
	return filepath.Join(inv.dir, filepath.Base(name))
}

// CreateUnique opens a new file for writing under name, appending _1, _2,
// ... before the extension until a free name is found. Creation uses
// O_EXCL under the inventory lock so concurrent uploads of the same name
// cannot collide.
func (inv *Inventory) CreateUnique(name string) (*os.File, string, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for count := 1; ; count++ {
		f, err := os.OpenFile(filepath.Join(inv.dir, candidate), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !os.IsExist(err) {
			return nil, "", err
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, count, ext)
	}
}

// sanitizeName reduces a client-supplied filename to its base name so
// directory traversal is impossible. Backslashes are treated as
// separators too; Windows clients send them.
func sanitizeName(raw string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(raw, "\\", "/"))
	if base == "" || base == "." || base == string(filepath.Separator) || base == ".." {
		return "", ErrBadFilename
	}
	return base, nil
}
