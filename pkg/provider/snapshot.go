package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/opencontainers/go-digest"

	"github.com/matzehuels/quiver/pkg/deps"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/integrations/index"
	"github.com/matzehuels/quiver/pkg/semver"
)

// Snapshot is an in-memory registry: a frozen set of releases and, optionally,
// their artifacts. It implements [deps.Provider] and [deps.ArtifactSource] and
// is safe for concurrent use.
type Snapshot struct {
	mu        sync.RWMutex
	packages  map[string][]deps.Release
	digests   map[string]digest.Digest // name@version -> digest
	artifacts map[digest.Digest][]byte
	calls     map[string]int
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		packages:  make(map[string][]deps.Release),
		digests:   make(map[string]digest.Digest),
		artifacts: make(map[digest.Digest][]byte),
		calls:     make(map[string]int),
	}
}

// Add registers a release. Each requirement is written as "name constraint"
// ("click >=8.0") or just "name".
func (s *Snapshot) Add(name, version string, requires ...string) error {
	v, err := semver.Parse(version)
	if err != nil {
		return err
	}
	reqs := make([]deps.Requirement, 0, len(requires))
	for _, spec := range requires {
		r, err := deps.ParseRequirement(spec)
		if err != nil {
			return err
		}
		reqs = append(reqs, r)
	}
	s.AddRelease(name, deps.Release{Version: v, Requirements: reqs})
	return nil
}

// MustAdd is like [Snapshot.Add] but panics on error. It returns s so calls
// can be chained in test tables.
func (s *Snapshot) MustAdd(name, version string, requires ...string) *Snapshot {
	if err := s.Add(name, version, requires...); err != nil {
		panic(err)
	}
	return s
}

// AddRelease registers a parsed release, replacing one with the same version.
func (s *Snapshot) AddRelease(name string, r deps.Release) {
	name = deps.NormalizeName(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	list := slices.DeleteFunc(s.packages[name], func(x deps.Release) bool {
		return x.Version.String() == r.Version.String()
	})
	list = append(list, r)
	deps.SortReleases(list)
	s.packages[name] = list
	if r.Digest != "" {
		s.digests[deps.Key(name, r.Version)] = r.Digest
	}
}

// AddArtifact stores the bytes of a release and returns their digest.
func (s *Snapshot) AddArtifact(name, version string, data []byte) (digest.Digest, error) {
	v, err := semver.Parse(version)
	if err != nil {
		return "", err
	}
	d := digest.FromBytes(data)
	s.SetDigest(name, v, d)
	s.mu.Lock()
	s.artifacts[d] = slices.Clone(data)
	s.mu.Unlock()
	return d, nil
}

// SetDigest records the published digest of a release without storing its
// bytes. FetchArtifact then fails with PACKAGE_NOT_FOUND for it, while the
// digest still appears in [Snapshot.Docs].
func (s *Snapshot) SetDigest(name string, v semver.Version, d digest.Digest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests[deps.Key(deps.NormalizeName(name), v)] = d
}

// FetchVersions implements [deps.Provider].
func (s *Snapshot) FetchVersions(ctx context.Context, name string) ([]deps.Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = deps.NormalizeName(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
	releases, ok := s.packages[name]
	if !ok {
		return nil, qerrors.New(qerrors.ErrCodePackageNotFound, "package %s not found", name)
	}
	out := cloneReleases(releases)
	for i := range out {
		if d, ok := s.digests[deps.Key(name, out[i].Version)]; ok {
			out[i].Digest = d
		}
	}
	return out, nil
}

// FetchArtifact implements [deps.ArtifactSource].
func (s *Snapshot) FetchArtifact(ctx context.Context, name string, version semver.Version) (*deps.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = deps.NormalizeName(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.digests[deps.Key(name, version)]
	if !ok {
		return nil, qerrors.New(qerrors.ErrCodePackageNotFound, "no artifact for %s", deps.Key(name, version))
	}
	data, ok := s.artifacts[d]
	if !ok {
		return nil, qerrors.New(qerrors.ErrCodePackageNotFound, "artifact %s not stored", d)
	}
	return &deps.Artifact{
		Name:     name,
		Version:  version,
		Filename: fmt.Sprintf("%s-%s.tar.gz", name, version),
		Data:     slices.Clone(data),
		Digest:   d,
	}, nil
}

// Calls returns how many times FetchVersions was asked for name.
func (s *Snapshot) Calls(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[deps.NormalizeName(name)]
}

// Names returns every package name, sorted.
func (s *Snapshot) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.packages))
	for n := range s.packages {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Doc returns the index document for one package.
func (s *Snapshot) Doc(name string) (index.PackageDoc, bool) {
	name = deps.NormalizeName(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	releases, ok := s.packages[name]
	if !ok {
		return index.PackageDoc{}, false
	}
	digests := make(map[string]digest.Digest)
	for _, r := range releases {
		if d, ok := s.digests[deps.Key(name, r.Version)]; ok {
			digests[r.Version.String()] = d
		}
	}
	doc := index.FromReleases(name, releases, digests)
	for i := range doc.Versions {
		vd := &doc.Versions[i]
		if d, err := vd.ParsedDigest(); err == nil && d != "" {
			if data, ok := s.artifacts[d]; ok {
				vd.Size = int64(len(data))
			}
		}
	}
	return doc, true
}

// Docs returns the index documents of every package, sorted by name.
func (s *Snapshot) Docs() []index.PackageDoc {
	names := s.Names()
	docs := make([]index.PackageDoc, 0, len(names))
	for _, n := range names {
		if doc, ok := s.Doc(n); ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

// IndexFile is the on-disk form of a snapshot. It is read from JSON
// (".json") or TOML (any other extension).
type IndexFile struct {
	Packages []index.PackageDoc `json:"packages" toml:"packages"`
}

// LoadIndexFile reads an index file into a new snapshot. Versions that fail
// to parse are skipped; the number skipped is returned alongside.
func LoadIndexFile(path string) (*Snapshot, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, qerrors.Wrap(qerrors.ErrCodeFileNotFound, err, "index file %s", path)
		}
		return nil, 0, err
	}
	var f IndexFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &f)
	} else {
		err = toml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, 0, qerrors.Wrap(qerrors.ErrCodeParse, err, "index file %s", path)
	}
	snap, skipped := FromDocs(f.Packages)
	return snap, skipped, nil
}

// FromDocs builds a snapshot from index documents. Published digests are
// kept; artifact bytes must be added separately.
func FromDocs(docs []index.PackageDoc) (*Snapshot, int) {
	s := NewSnapshot()
	skipped := 0
	for _, doc := range docs {
		releases, n := doc.Releases(nil)
		skipped += n
		for _, r := range releases {
			s.AddRelease(doc.Name, r)
			vd, _ := doc.Find(r.Version)
			if d, err := vd.ParsedDigest(); err == nil && d != "" {
				s.SetDigest(doc.Name, r.Version, d)
			}
		}
	}
	return s, skipped
}

var (
	_ deps.Provider       = (*Snapshot)(nil)
	_ deps.ArtifactSource = (*Snapshot)(nil)
)
