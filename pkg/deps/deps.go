package deps

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/matzehuels/quiver/pkg/semver"
)

// Release is one published version of a package together with the direct
// dependencies that version declares.
type Release struct {
	Version      semver.Version // Published version
	Requirements []Requirement  // Direct runtime dependencies, in declaration order
	Digest       digest.Digest  // Digest of the preferred artifact, empty if unknown
}

// String returns "version" for logging.
func (r Release) String() string { return r.Version.String() }

// Provider answers metadata queries against a package registry.
//
// FetchVersions returns every known release of name. The order of the
// returned slice is not significant; callers sort by version. A package that
// does not exist upstream is reported with an error carrying
// [errors.ErrCodePackageNotFound]. Implementations must be safe for concurrent
// use because the resolver prefetches metadata from a worker pool.
type Provider interface {
	FetchVersions(ctx context.Context, name string) ([]Release, error)
}

// ProviderFunc adapts a function to the [Provider] interface.
type ProviderFunc func(ctx context.Context, name string) ([]Release, error)

// FetchVersions calls f(ctx, name).
func (f ProviderFunc) FetchVersions(ctx context.Context, name string) ([]Release, error) {
	return f(ctx, name)
}

// Artifact is the downloadable payload of a single release.
type Artifact struct {
	Name     string         // Normalized package name
	Version  semver.Version // Release the bytes belong to
	Filename string         // Upstream file name (e.g. "requests-2.31.0-py3-none-any.whl")
	Data     []byte         // Raw artifact bytes
	Digest   digest.Digest  // Digest published by the registry
}

// ArtifactSource downloads release artifacts.
//
// The returned Artifact carries the digest the registry publishes for the
// file; the caller verifies Data against it before trusting the bytes.
type ArtifactSource interface {
	FetchArtifact(ctx context.Context, name string, version semver.Version) (*Artifact, error)
}

// NormalizeName converts a package name to its canonical form following
// PEP 503: lowercase, with runs of '-', '_' and '.' collapsed to a single '-'.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(name))
	sep := false
	for _, r := range name {
		if r == '-' || r == '_' || r == '.' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('-')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}

// SortReleases orders releases newest first. A post release sorts ahead of
// the release it amends.
func SortReleases(releases []Release) {
	slices.SortStableFunc(releases, func(a, b Release) int {
		return semver.CompareNewest(b.Version, a.Version)
	})
}

// FindRelease returns the release with exactly version v.
func FindRelease(releases []Release, v semver.Version) (Release, bool) {
	for _, r := range releases {
		if r.Version.Equal(v) && r.Version.String() == v.String() {
			return r, true
		}
	}
	return Release{}, false
}

// Key returns "name@version", the identifier used in logs and install records.
func Key(name string, v semver.Version) string {
	return fmt.Sprintf("%s@%s", name, v)
}
