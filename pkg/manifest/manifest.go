// Package manifest reads and writes quiver.toml project files.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/quiver/pkg/deps"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
)

// FileName is the manifest file name inside a project directory.
const FileName = "quiver.toml"

// Defaults for [tool.quiver].
const (
	DefaultParallelDownloads  = 16
	DefaultInstallDir         = ".quiver_packages"
	DefaultRegistryKind       = "pypi"
	DefaultCacheBackend       = "badger"
	DefaultMemoryCacheEntries = 1000
)

// Manifest is the parsed content of quiver.toml.
type Manifest struct {
	Project         Project           `toml:"project"`
	Dependencies    map[string]string `toml:"dependencies"`
	DevDependencies map[string]string `toml:"dev-dependencies"`
	Tool            Tool              `toml:"tool"`
}

// Project identifies the project itself.
type Project struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Description string `toml:"description,omitempty"`
}

// Tool holds tool-specific tables.
type Tool struct {
	Quiver Settings `toml:"quiver"`
}

// Settings is the [tool.quiver] table.
type Settings struct {
	PythonVersion      string `toml:"python-version,omitempty"`
	ParallelDownloads  int    `toml:"parallel-downloads,omitempty"`
	CacheEnabled       bool   `toml:"cache-enabled"`
	InstallDir         string `toml:"install-dir,omitempty"`
	Registry           string `toml:"registry,omitempty"`
	RegistryKind       string `toml:"registry-kind,omitempty"`
	CacheBackend       string `toml:"cache-backend,omitempty"`
	MemoryCacheEntries int    `toml:"memory-cache-entries,omitempty"`
	NegativeTTL        string `toml:"negative-ttl,omitempty"`
	MetadataTTL        string `toml:"metadata-ttl,omitempty"`
}

// New returns a manifest for a fresh project.
func New(name string) *Manifest {
	m := &Manifest{
		Project:         Project{Name: name, Version: "0.1.0"},
		Dependencies:    map[string]string{},
		DevDependencies: map[string]string{},
	}
	m.Tool.Quiver.CacheEnabled = true
	m.Tool.Quiver = m.Tool.Quiver.WithDefaults()
	return m
}

// Load reads the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, qerrors.Wrap(qerrors.ErrCodeFileNotFound, err, "no %s found (run 'quiver init')", filepath.Base(path))
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes manifest bytes. Omitted settings take their defaults.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeInvalidManifest, err, "parse %s", FileName)
	}
	if !md.IsDefined("tool", "quiver", "cache-enabled") {
		m.Tool.Quiver.CacheEnabled = true
	}
	if m.Project.Name == "" {
		return nil, qerrors.New(qerrors.ErrCodeInvalidManifest, "%s: [project] name is required", FileName)
	}
	if m.Dependencies == nil {
		m.Dependencies = map[string]string{}
	}
	if m.DevDependencies == nil {
		m.DevDependencies = map[string]string{}
	}
	m.Tool.Quiver = m.Tool.Quiver.WithDefaults()
	return &m, nil
}

// Save writes the manifest to path, replacing any existing file.
func (m *Manifest) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(m); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Add records a dependency, replacing any entry for the same normalized
// name in either table. An empty constraint means any version.
func (m *Manifest) Add(name, constraint string, dev bool) (deps.Requirement, error) {
	req, err := deps.NewRequirement(name, constraint)
	if err != nil {
		return deps.Requirement{}, err
	}
	m.Remove(req.Name)
	value := constraint
	if value == "" {
		value = "*"
	}
	if dev {
		m.DevDependencies[req.Name] = value
	} else {
		m.Dependencies[req.Name] = value
	}
	req.Dev = dev
	return req, nil
}

// Remove deletes every entry whose normalized name matches name and reports
// whether one existed.
func (m *Manifest) Remove(name string) bool {
	want := deps.NormalizeName(name)
	found := false
	for _, table := range []map[string]string{m.Dependencies, m.DevDependencies} {
		for key := range table {
			if deps.NormalizeName(key) == want {
				delete(table, key)
				found = true
			}
		}
	}
	return found
}

// Names returns the normalized names of all dependencies, sorted.
func (m *Manifest) Names(includeDev bool) []string {
	var out []string
	for key := range m.Dependencies {
		out = append(out, deps.NormalizeName(key))
	}
	if includeDev {
		for key := range m.DevDependencies {
			out = append(out, deps.NormalizeName(key))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Roots converts the dependency tables into root requirements sorted by
// name. Dev dependencies are flagged Dev and included only when includeDev
// is set. Entries that fail to parse are left out and reported together in
// the returned error; the valid requirements are always returned.
func (m *Manifest) Roots(includeDev bool) ([]deps.Requirement, error) {
	roots, errs := deps.ParseRequirements(m.Dependencies, false)
	if includeDev {
		dev, devErrs := deps.ParseRequirements(m.DevDependencies, true)
		roots = append(roots, dev...)
		errs = append(errs, devErrs...)
	}
	deps.SortRequirements(roots)
	return roots, errors.Join(errs...)
}

// WithDefaults fills unset settings. CacheEnabled is left alone since its
// default is applied while decoding.
func (s Settings) WithDefaults() Settings {
	if s.ParallelDownloads <= 0 {
		s.ParallelDownloads = DefaultParallelDownloads
	}
	if s.InstallDir == "" {
		s.InstallDir = DefaultInstallDir
	}
	if s.RegistryKind == "" {
		s.RegistryKind = DefaultRegistryKind
	}
	if s.CacheBackend == "" {
		s.CacheBackend = DefaultCacheBackend
	}
	if s.MemoryCacheEntries <= 0 {
		s.MemoryCacheEntries = DefaultMemoryCacheEntries
	}
	return s
}

// Durations parses the TTL settings. Unset values are zero.
func (s Settings) Durations() (negative, metadata time.Duration, err error) {
	if s.NegativeTTL != "" {
		if negative, err = time.ParseDuration(s.NegativeTTL); err != nil {
			return 0, 0, qerrors.Wrap(qerrors.ErrCodeInvalidConfig, err, "negative-ttl")
		}
	}
	if s.MetadataTTL != "" {
		if metadata, err = time.ParseDuration(s.MetadataTTL); err != nil {
			return 0, 0, qerrors.Wrap(qerrors.ErrCodeInvalidConfig, err, "metadata-ttl")
		}
	}
	return negative, metadata, nil
}

const template = `[project]
name = %q
version = "0.1.0"
description = ""

[dependencies]
# requests = "^2.31.0"

[dev-dependencies]
# pytest = "^7.4.0"

[tool.quiver]
parallel-downloads = 16
cache-enabled = true
install-dir = ".quiver_packages"
`

// Init writes a commented starter manifest into dir. It refuses to
// overwrite an existing one.
func Init(dir, name string) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", qerrors.New(qerrors.ErrCodeInvalidInput, "%s already exists in %s", FileName, dir)
	}
	if name == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", err
		}
		name = filepath.Base(abs)
	}
	content := fmt.Sprintf(template, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
