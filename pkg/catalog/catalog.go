// Package catalog names the blueprints available on disk.
//
// A catalog is a directory of "<name>.3dbp" files. Lookups are served from an
// index rebuilt by Refresh; the catalogwatcher plugin calls Refresh when the
// directory changes.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/fabpanel/pkg/log"
)

// Ext is the blueprint file extension.
const Ext = ".3dbp"

// Catalog errors.
var (
	ErrNotFound    = errors.New("catalog: blueprint not found")
	ErrInvalidName = errors.New("catalog: invalid blueprint name")
)

// Entry describes one blueprint file.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Catalog indexes a blueprint directory. Safe for concurrent use.
type Catalog struct {
	dir    string
	logger log.Logger

	mu      sync.RWMutex
	entries map[string]Entry
}

// New indexes dir.
func New(dir string, logger log.Logger) (*Catalog, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	c := &Catalog{dir: dir, logger: logger, entries: map[string]Entry{}}
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dir returns the indexed directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Refresh rescans the directory.
func (c *Catalog) Refresh() error {
	des, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read blueprint dir: %w", err)
	}

	entries := make(map[string]Entry, len(des))
	for _, de := range des {
		if de.IsDir() || !strings.HasSuffix(de.Name(), Ext) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		name := strings.TrimSuffix(de.Name(), Ext)
		entries[name] = Entry{Name: name, Size: info.Size(), ModTime: info.ModTime()}
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	c.logger.Debug("blueprint catalog refreshed",
		log.String("dir", c.dir),
		log.Int("blueprints", len(entries)),
	)
	return nil
}

// List returns all entries sorted by name.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the entry for name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	return e, ok
}

// Open opens the blueprint called name. The caller closes it.
func (c *Catalog) Open(name string) (io.ReadCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if _, ok := c.Lookup(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	f, err := os.Open(c.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, err
}

// Path returns the file path for name.
func (c *Catalog) Path(name string) string {
	return filepath.Join(c.dir, name+Ext)
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
