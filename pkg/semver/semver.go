// Package semver parses and compares package versions and version constraints.
//
// It is a wrapper around github.com/Masterminds/semver/v3 that adds the pieces
// a package manager needs on top: PEP 440 spellings are accepted for both
// versions ("1.0rc1", "2.0.post1") and constraints ("==1.2", "~=1.4.2",
// "!=1.3.*"), errors carry the [errors.ErrCodeParse] code, and versions are
// plain values that sort, compare and serialize as text.
//
// # Precedence
//
// Versions order by major, minor and patch, then by pre-release: a
// pre-release sorts before the release of the same numeric tuple
// (1.0.0-rc.1 < 1.0.0). Build metadata does not take part in precedence.
//
// # Pre-releases
//
// A pre-release version only satisfies a constraint that itself names a
// pre-release on the same numeric tuple, so "^1.0.0" never selects
// "1.1.0-beta.1".
package semver

import (
	"slices"
	"strconv"
	"strings"

	mm "github.com/Masterminds/semver/v3"

	qerrors "github.com/matzehuels/quiver/pkg/errors"
)

// Version is a parsed semantic version. The zero value sorts before every
// parsed version and satisfies no constraint.
type Version struct {
	v *mm.Version
}

// Parse parses a version string. Semantic versions ("1.2.3", "v1.2",
// "2.0.0-rc.1+build.5") are accepted directly; PEP 440 forms are normalized
// first. Malformed input yields an error with code [qerrors.ErrCodeParse].
func Parse(text string) (Version, error) {
	v, err := mm.NewVersion(text)
	if err == nil {
		return Version{v: v}, nil
	}
	if norm, ok := normalizePEP440(text); ok {
		if v, perr := mm.NewVersion(norm); perr == nil {
			return Version{v: v}, nil
		}
	}
	return Version{}, qerrors.Wrap(qerrors.ErrCodeParse, err, "parse version %q", text)
}

// MustParse is like [Parse] but panics on error. Intended for tests and
// constant tables.
func MustParse(text string) Version {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the canonical form ("1.2.0" for input "v1.2").
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// Original returns the text the version was parsed from.
func (v Version) Original() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// Post returns the post-release number of a PEP 440 post release
// ("2.0.post1" is stored as "2.0.0+post.1"), or -1 for any other version.
func (v Version) Post() int {
	if v.v == nil {
		return -1
	}
	parts := strings.Split(v.v.Metadata(), ".")
	if len(parts) < 2 || parts[0] != "post" {
		return -1
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return -1
	}
	return n
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool { return v.v == nil }

// Major returns the major component.
func (v Version) Major() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Major()
}

// Minor returns the minor component.
func (v Version) Minor() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Minor()
}

// Patch returns the patch component.
func (v Version) Patch() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Patch()
}

// Prerelease returns the pre-release identifiers, or "" for a release.
func (v Version) Prerelease() string {
	if v.v == nil {
		return ""
	}
	return v.v.Prerelease()
}

// Compare returns -1, 0 or +1 as v sorts before, equal to or after o.
func (v Version) Compare(o Version) int { return Compare(v, o) }

// LessThan reports whether v sorts strictly before o.
func (v Version) LessThan(o Version) bool { return Compare(v, o) < 0 }

// Equal reports whether v and o have the same precedence.
func (v Version) Equal(o Version) bool { return Compare(v, o) == 0 }

// MarshalText implements encoding.TextMarshaler using the canonical form.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Compare returns -1 if a < b, 0 if a == b and +1 if a > b.
func Compare(a, b Version) int {
	switch {
	case a.v == nil && b.v == nil:
		return 0
	case a.v == nil:
		return -1
	case b.v == nil:
		return 1
	}
	return a.v.Compare(b.v)
}

// CompareNewest is [Compare] with ties broken by post-release number, so
// "1.0.post1" sorts after "1.0". Constraints still treat them as equal.
func CompareNewest(a, b Version) int {
	if c := Compare(a, b); c != 0 {
		return c
	}
	pa, pb := a.Post(), b.Post()
	switch {
	case pa < pb:
		return -1
	case pa > pb:
		return 1
	}
	return 0
}

// Sort orders versions ascending.
func Sort(versions []Version) {
	slices.SortStableFunc(versions, Compare)
}

// SortDescending orders versions newest first.
func SortDescending(versions []Version) {
	slices.SortStableFunc(versions, func(a, b Version) int { return Compare(b, a) })
}

// MaxSatisfying returns the highest version in versions that satisfies c.
func MaxSatisfying(versions []Version, c Constraint) (Version, bool) {
	var best Version
	found := false
	for _, v := range versions {
		if !c.Check(v) {
			continue
		}
		if !found || Compare(v, best) > 0 {
			best = v
			found = true
		}
	}
	return best, found
}
