package installer

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/matzehuels/quiver/pkg/deps"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
)

// RegistryFile is the name of the install record inside the install dir.
const RegistryFile = ".quiver-installed.json"

// Record describes one installed package.
type Record struct {
	Name        string        `json:"name"`
	Version     string        `json:"version"`
	Digest      digest.Digest `json:"digest,omitempty"`
	Path        string        `json:"path"`
	InstalledAt time.Time     `json:"installed_at"`
}

// Registry is the set of packages installed in one directory, persisted as
// JSON next to them. Registry is safe for concurrent use.
type Registry struct {
	path    string
	mu      sync.Mutex
	records map[string]Record
}

type registryFile struct {
	Packages []Record `json:"packages"`
}

// OpenRegistry loads the registry of dir. A missing file yields an empty
// registry; nothing is written until Save.
func OpenRegistry(dir string) (*Registry, error) {
	r := &Registry{
		path:    filepath.Join(dir, RegistryFile),
		records: make(map[string]Record),
	}
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	var f registryFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeParse, err, "install registry %s", r.path)
	}
	for _, rec := range f.Packages {
		r.records[deps.NormalizeName(rec.Name)] = rec
	}
	return r, nil
}

// Path returns the registry file location.
func (r *Registry) Path() string { return r.path }

// Get returns the record for name.
func (r *Registry) Get(name string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[deps.NormalizeName(name)]
	return rec, ok
}

// Put adds or replaces a record.
func (r *Registry) Put(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.Name = deps.NormalizeName(rec.Name)
	r.records[rec.Name] = rec
}

// Remove deletes the record for name and reports whether it existed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	name = deps.NormalizeName(name)
	_, ok := r.records[name]
	delete(r.records, name)
	return ok
}

// List returns every record sorted by name.
func (r *Registry) List() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Save writes the registry atomically.
func (r *Registry) Save() error {
	f := registryFile{Packages: r.List()}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".registry-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.path)
}
