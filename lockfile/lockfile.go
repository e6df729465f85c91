// Package lockfile implements transkit.lock, a file kept in a module i18n
// directory that records MD5 checksums of the catalogs a merge produced
// and of the template it merged them with. A catalog whose checksums still
// match needs no merge.
package lockfile

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// LockFileName is the lock file name inside an i18n directory.
const LockFileName = "transkit.lock"

// Version is the lock file format version.
const Version = 1

// Keys recorded per language.
const (
	TemplateKey = "template"
	CatalogKey  = "catalog"
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// LockFile represents the transkit.lock file structure.
type LockFile struct {
	Version   int                          `yaml:"version"`
	Checksums map[string]map[string]string `yaml:"checksums"` // lang -> key -> md5

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the lock file of dir. A missing file yields an empty lock; a
// lock file of another format version is discarded.
func Load(dir string) (*LockFile, error) {
	path := filepath.Join(dir, LockFileName)
	lf := &LockFile{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var onDisk LockFile
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if onDisk.Version != Version {
		return lf, nil
	}
	for lang, keys := range onDisk.Checksums {
		if len(keys) > 0 {
			lf.Checksums[lang] = keys
		}
	}
	return lf, nil
}

// Save writes the lock file, or removes it once it records nothing.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if len(lf.Checksums) == 0 {
		if err := os.Remove(lf.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", lf.path, err)
	}
	if err := os.WriteFile(lf.path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}
	return nil
}

// Path returns the file path of the lock file.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Checksums
// ---------------------------------------------------------------------------

// Hash returns the hex MD5 checksum of data.
func Hash(data []byte) string {
	return fmt.Sprintf("%x", md5.Sum(data))
}

// HashFile returns the checksum of the file at path.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Hash(data), nil
}

// Unchanged reports whether every key in sums is recorded for lang with the
// same checksum.
func (lf *LockFile) Unchanged(lang string, sums map[string]string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	recorded, ok := lf.Checksums[lang]
	if !ok || len(sums) == 0 {
		return false
	}
	for k, v := range sums {
		if recorded[k] != v {
			return false
		}
	}
	return true
}

// Update records sums for lang, replacing what was there.
func (lf *LockFile) Update(lang string, sums map[string]string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	keys := make(map[string]string, len(sums))
	for k, v := range sums {
		keys[k] = v
	}
	lf.Checksums[lang] = keys
}

// Clean drops the languages not in current.
func (lf *LockFile) Clean(current []string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	keep := make(map[string]bool, len(current))
	for _, l := range current {
		keep[l] = true
	}
	for lang := range lf.Checksums {
		if !keep[lang] {
			delete(lf.Checksums, lang)
		}
	}
}

// Languages returns the recorded languages in order.
func (lf *LockFile) Languages() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	out := make([]string, 0, len(lf.Checksums))
	for lang := range lf.Checksums {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
