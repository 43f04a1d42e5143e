package index

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/opencontainers/go-digest"

	"github.com/matzehuels/quiver/pkg/deps"
	"github.com/matzehuels/quiver/pkg/semver"
)

// PackageDoc is the body of GET /packages/{name}.
type PackageDoc struct {
	Name     string       `json:"name" toml:"name"`
	Versions []VersionDoc `json:"versions" toml:"versions"`
}

// VersionDoc describes one published version.
type VersionDoc struct {
	Version  string           `json:"version" toml:"version"`
	Requires []RequirementDoc `json:"requires,omitempty" toml:"requires,omitempty"`
	Digest   string           `json:"digest,omitempty" toml:"digest,omitempty"`
	Size     int64            `json:"size,omitempty" toml:"size,omitempty"`
	Filename string           `json:"filename,omitempty" toml:"filename,omitempty"`
}

// RequirementDoc is one dependency of a version.
type RequirementDoc struct {
	Name       string `json:"name" toml:"name"`
	Constraint string `json:"constraint,omitempty" toml:"constraint,omitempty"`
}

// Find returns the version entry whose version text parses equal to v.
func (p *PackageDoc) Find(v semver.Version) (VersionDoc, bool) {
	for _, vd := range p.Versions {
		if parsed, err := semver.Parse(vd.Version); err == nil && parsed.Equal(v) {
			return vd, true
		}
	}
	return VersionDoc{}, false
}

// Releases converts the document to releases. A version whose own text or
// any requirement fails to parse is dropped, logged at debug and counted in
// skipped.
func (p *PackageDoc) Releases(logger *log.Logger) (releases []deps.Release, skipped int) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	for _, vd := range p.Versions {
		v, err := semver.Parse(vd.Version)
		if err != nil {
			logger.Debug("skipping version", "package", p.Name, "version", vd.Version, "err", err)
			skipped++
			continue
		}
		reqs, err := vd.requirements()
		if err != nil {
			logger.Debug("skipping version", "package", p.Name, "version", vd.Version, "err", err)
			skipped++
			continue
		}
		d, err := vd.ParsedDigest()
		if err != nil {
			logger.Debug("ignoring malformed digest", "package", p.Name, "version", vd.Version, "err", err)
			d = ""
		}
		releases = append(releases, deps.Release{Version: v, Requirements: reqs, Digest: d})
	}
	deps.SortReleases(releases)
	return releases, skipped
}

func (vd VersionDoc) requirements() ([]deps.Requirement, error) {
	reqs := make([]deps.Requirement, 0, len(vd.Requires))
	for _, r := range vd.Requires {
		req, err := deps.NewRequirement(r.Name, r.Constraint)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// ParsedDigest returns the published digest, or "" if none.
func (vd VersionDoc) ParsedDigest() (digest.Digest, error) {
	if vd.Digest == "" {
		return "", nil
	}
	return digest.Parse(vd.Digest)
}

// FromReleases builds a document from releases, newest first. A digest in
// digests, keyed by version string, overrides the release's own.
func FromReleases(name string, releases []deps.Release, digests map[string]digest.Digest) PackageDoc {
	sorted := make([]deps.Release, len(releases))
	copy(sorted, releases)
	deps.SortReleases(sorted)

	doc := PackageDoc{Name: name, Versions: make([]VersionDoc, 0, len(sorted))}
	for _, r := range sorted {
		vd := VersionDoc{Version: r.Version.String()}
		for _, req := range r.Requirements {
			rd := RequirementDoc{Name: req.Name}
			if !req.Constraint.IsAny() {
				rd.Constraint = req.Constraint.String()
			}
			vd.Requires = append(vd.Requires, rd)
		}
		if d, ok := digests[vd.Version]; ok {
			vd.Digest = d.String()
		} else if r.Digest != "" {
			vd.Digest = r.Digest.String()
		}
		doc.Versions = append(doc.Versions, vd)
	}
	return doc
}
