package resolver

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/quiver/pkg/dag"
	"github.com/matzehuels/quiver/pkg/semver"
)

// rootRequirer names the project itself in requirement chains.
const rootRequirer = "root"

// ConstraintOrigin is one constraint on a package together with the chain of
// selections that introduced it.
type ConstraintOrigin struct {
	Constraint string   // Constraint text, "*" for any
	Requirer   string   // "name@version", or "root" for a root requirement
	Chain      []string // Requirers from the root down to Requirer
}

func (o ConstraintOrigin) String() string {
	path := append([]string{rootRequirer}, o.Chain...)
	return fmt.Sprintf("%s from %s", o.Constraint, strings.Join(path, " > "))
}

// ConflictError reports a package for which no release satisfies every
// accumulated constraint.
type ConflictError struct {
	Package     string             // Package the search could not decide
	Selected    semver.Version     // Version already selected, zero if none
	Available   int                // Number of releases the provider offered
	Constraints []ConstraintOrigin // Every constraint on Package, in discovery order
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	if e.Selected.IsZero() {
		fmt.Fprintf(&b, "no version of %s satisfies all requirements", e.Package)
	} else {
		fmt.Fprintf(&b, "%s@%s is excluded by a later requirement", e.Package, e.Selected)
	}
	if e.Available == 0 && e.Selected.IsZero() {
		b.WriteString(" (no releases available)")
	}
	for _, c := range e.Constraints {
		b.WriteString("; ")
		b.WriteString(c.String())
	}
	return b.String()
}

// Requirers returns the distinct requirers of Package, sorted.
func (e *ConflictError) Requirers() []string {
	var out []string
	for _, c := range e.Constraints {
		if !slices.Contains(out, c.Requirer) {
			out = append(out, c.Requirer)
		}
	}
	slices.Sort(out)
	return out
}

// CycleError reports packages that depend on each other in a loop. Members
// are in path order: each depends on the next and the last on the first.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	if len(e.Members) == 0 {
		return "dependency cycle"
	}
	path := append(slices.Clone(e.Members), e.Members[0])
	return "dependency cycle: " + strings.Join(path, " -> ")
}

func (e *CycleError) Unwrap() error { return dag.ErrGraphHasCycle }
