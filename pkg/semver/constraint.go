package semver

import (
	"strings"

	mm "github.com/Masterminds/semver/v3"

	qerrors "github.com/matzehuels/quiver/pkg/errors"
)

// Constraint is a predicate over versions.
//
// Supported forms:
//   - "^1.2.0" compatible within the major (within the minor below 1.0)
//   - "~1.2.0" compatible within the minor
//   - "1.2.3", "=1.2.3", "==1.2.3" exact pin
//   - ">=1.2, <2.0" or ">=1.2 <2.0" range bounds
//   - "1.2.x", "1.2.*", "==1.2.*" wildcards
//   - "~=1.4.2" PEP 440 compatible release
//   - "^1.0 || ^2.0" disjunction
//   - "" and "*" any release
//
// The zero Constraint matches every version.
type Constraint struct {
	raw string
	c   *mm.Constraints
}

// ParseConstraint parses constraint text. Unknown operators and malformed
// operands yield an error with code [qerrors.ErrCodeParse].
func ParseConstraint(text string) (Constraint, error) {
	norm, err := normalizeConstraint(text)
	if err != nil {
		return Constraint{}, qerrors.Wrap(qerrors.ErrCodeParse, err, "parse constraint %q", text)
	}
	c, err := mm.NewConstraint(norm)
	if err != nil {
		return Constraint{}, qerrors.Wrap(qerrors.ErrCodeParse, err, "parse constraint %q", text)
	}
	return Constraint{raw: strings.TrimSpace(text), c: c}, nil
}

// MustParseConstraint is like [ParseConstraint] but panics on error.
func MustParseConstraint(text string) Constraint {
	c, err := ParseConstraint(text)
	if err != nil {
		panic(err)
	}
	return c
}

// Any returns a constraint matching every release.
func Any() Constraint {
	return Constraint{raw: "*"}
}

// Check reports whether v satisfies the constraint.
func (c Constraint) Check(v Version) bool {
	if v.v == nil {
		return false
	}
	if c.c == nil {
		return true
	}
	return c.c.Check(v.v)
}

// String returns the constraint as it was written.
func (c Constraint) String() string {
	if c.raw == "" {
		return "*"
	}
	return c.raw
}

// IsAny reports whether the constraint places no bound on the version.
func (c Constraint) IsAny() bool {
	return c.c == nil || c.raw == "" || c.raw == "*"
}

// MarshalText implements encoding.TextMarshaler.
func (c Constraint) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Constraint) UnmarshalText(text []byte) error {
	parsed, err := ParseConstraint(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Satisfies reports whether v satisfies c.
func Satisfies(c Constraint, v Version) bool {
	return c.Check(v)
}

// SatisfiesAll reports whether v satisfies every constraint in cs.
func SatisfiesAll(cs []Constraint, v Version) bool {
	for _, c := range cs {
		if !c.Check(v) {
			return false
		}
	}
	return true
}
