package installer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/quiver/pkg/resolver"
)

// IssueKind classifies a difference between a plan and an install dir.
type IssueKind string

const (
	IssueMissing IssueKind = "missing"  // planned but not installed
	IssueVersion IssueKind = "version"  // installed at another version
	IssueExtra   IssueKind = "extra"    // installed but not planned
	IssueNoFiles IssueKind = "no-files" // recorded but the install path is gone
)

// Issue is one finding of Check.
type Issue struct {
	Kind      IssueKind `json:"kind"`
	Name      string    `json:"name"`
	Want      string    `json:"want,omitempty"`
	Installed string    `json:"installed,omitempty"`
}

func (i Issue) String() string {
	switch i.Kind {
	case IssueMissing:
		return fmt.Sprintf("%s: not installed (want %s)", i.Name, i.Want)
	case IssueVersion:
		return fmt.Sprintf("%s: installed %s, want %s", i.Name, i.Installed, i.Want)
	case IssueExtra:
		return fmt.Sprintf("%s: installed %s but not required", i.Name, i.Installed)
	default:
		return fmt.Sprintf("%s: files missing for %s", i.Name, i.Installed)
	}
}

// Check compares the registry with plan and returns every difference,
// sorted by name. exists reports whether an install path is still present;
// nil skips that test.
func Check(reg *Registry, plan resolver.Plan, exists func(path string) bool) []Issue {
	var issues []Issue
	planned := make(map[string]bool, len(plan))
	for _, n := range plan {
		planned[n.Name] = true
		want := n.Version.String()
		rec, ok := reg.Get(n.Name)
		switch {
		case !ok:
			issues = append(issues, Issue{Kind: IssueMissing, Name: n.Name, Want: want})
		case rec.Version != want:
			issues = append(issues, Issue{Kind: IssueVersion, Name: n.Name, Want: want, Installed: rec.Version})
		case exists != nil && !exists(rec.Path):
			issues = append(issues, Issue{Kind: IssueNoFiles, Name: n.Name, Installed: rec.Version})
		}
	}
	for _, rec := range reg.List() {
		if !planned[rec.Name] {
			issues = append(issues, Issue{Kind: IssueExtra, Name: rec.Name, Installed: rec.Version})
		}
	}
	slices.SortFunc(issues, func(a, b Issue) int { return strings.Compare(a.Name, b.Name) })
	return issues
}
