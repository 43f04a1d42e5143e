package deps

import (
	"regexp"
	"slices"
	"strings"

	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/semver"
)

// Requirement is a dependency on a named package, restricted by a version
// constraint. Root requirements come from the project manifest and may be
// flagged Dev; transitive requirements are discovered from registry metadata.
type Requirement struct {
	Name       string            // Normalized package name
	Constraint semver.Constraint // Acceptable versions
	Dev        bool              // Development-only root requirement
}

// String returns "name constraint" ("requests ^2.31").
func (r Requirement) String() string {
	if r.Constraint.IsAny() {
		return r.Name
	}
	return r.Name + " " + r.Constraint.String()
}

// NewRequirement validates name and parses constraint. Errors carry
// [qerrors.ErrCodeInvalidPackage] or [qerrors.ErrCodeParse].
func NewRequirement(name, constraint string) (Requirement, error) {
	norm := NormalizeName(name)
	if err := qerrors.ValidatePackageName(norm); err != nil {
		return Requirement{}, err
	}
	c, err := semver.ParseConstraint(constraint)
	if err != nil {
		return Requirement{}, qerrors.Wrap(qerrors.ErrCodeParse, err, "requirement %s", norm)
	}
	return Requirement{Name: norm, Constraint: c}, nil
}

// requirementRE splits "name[extras] (spec)" or "name spec".
var requirementRE = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(?:\[[^\]]*\])?\s*(.*?)\s*$`)

// ParseRequirement parses a single requirement line such as "requests",
// "requests>=2.0,<3", "requests (>=2.0)", "requests[socks] ~=2.31" or
// "flask ^3.0". An environment marker after ';' is discarded; callers that
// need to evaluate markers strip them first.
func ParseRequirement(spec string) (Requirement, error) {
	line := spec
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	m := requirementRE.FindStringSubmatch(line)
	if m == nil {
		return Requirement{}, qerrors.New(qerrors.ErrCodeParse, "parse requirement %q", spec)
	}
	constraint := strings.TrimSpace(m[2])
	if strings.HasPrefix(constraint, "(") && strings.HasSuffix(constraint, ")") {
		constraint = strings.TrimSpace(constraint[1 : len(constraint)-1])
	}
	return NewRequirement(m[1], constraint)
}

// ParseRequirements parses name→constraint pairs into requirements sorted by
// name. Entries that fail to parse are skipped; their errors are returned
// alongside the valid requirements so one bad line never hides the rest.
func ParseRequirements(specs map[string]string, dev bool) ([]Requirement, []error) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	slices.Sort(names)

	reqs := make([]Requirement, 0, len(specs))
	var errs []error
	for _, name := range names {
		r, err := NewRequirement(name, specs[name])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.Dev = dev
		reqs = append(reqs, r)
	}
	return reqs, errs
}

// SortRequirements orders requirements by name, then by constraint text.
func SortRequirements(reqs []Requirement) {
	slices.SortStableFunc(reqs, func(a, b Requirement) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Constraint.String(), b.Constraint.String())
	})
}
