package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Entry is one cached taxonomy classification.
type Entry struct {
	Kingdom string `json:"kingdom"`
	TaxID   string `json:"tax_id,omitempty"`
	Lineage string `json:"lineage,omitempty"`
}

// TaxIDKey and OrgKey build cache keys.
func TaxIDKey(id string) string { return "taxid:" + id }

func OrgKey(name string) string {
	return "org:" + cases.Lower(language.Und).String(strings.TrimSpace(name))
}

// Cache is a JSON object file of Entries. The file is read on every lookup
// and rewritten atomically after every update; a missing or unreadable file
// counts as empty. Each key is written at most once per Cache.
type Cache struct {
	fs      billy.Filesystem
	name    string
	written map[string]bool
}

// OpenCache returns a cache stored at name inside fs. The file need not
// exist.
func OpenCache(fs billy.Filesystem, name string) *Cache {
	return &Cache{fs: fs, name: name, written: make(map[string]bool)}
}

// Get looks key up in the file.
func (c *Cache) Get(key string) (Entry, bool) {
	m := c.load()
	e, ok := m[key]
	return e, ok
}

// Put stores e under key and persists the file.
func (c *Cache) Put(key string, e Entry) error {
	if c.written[key] {
		return nil
	}
	m := c.load()
	m[key] = e
	if err := c.save(m); err != nil {
		return err
	}
	c.written[key] = true
	return nil
}

func (c *Cache) load() map[string]Entry {
	m := make(map[string]Entry)
	f, err := c.fs.Open(c.name)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("enrich: cache %s: %v", c.name, err)
		}
		return m
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		log.Printf("enrich: cache %s: %v", c.name, err)
		return m
	}
	if err := json.Unmarshal(data, &m); err != nil {
		log.Printf("enrich: cache %s is corrupt, starting empty: %v", c.name, err)
		return make(map[string]Entry)
	}
	return m
}

// save writes to a temp file next to the cache and renames it over.
func (c *Cache) save(m map[string]Entry) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	dir := path.Dir(c.name)
	if dir != "." {
		if err := c.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	tmp, err := c.fs.TempFile(dir, ".cache-")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = c.fs.Remove(tmp.Name())
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = c.fs.Remove(tmp.Name())
		return fmt.Errorf("close temp cache: %w", err)
	}
	if err := c.fs.Rename(tmp.Name(), c.name); err != nil {
		_ = c.fs.Remove(tmp.Name())
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}
