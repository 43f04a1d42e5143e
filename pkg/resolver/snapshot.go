package resolver

import (
	"maps"
	"slices"

	"github.com/matzehuels/quiver/pkg/deps"
	"github.com/matzehuels/quiver/pkg/semver"
)

// origin is one accumulated constraint and who introduced it.
type origin struct {
	constraint semver.Constraint
	requirer   string   // "name@version", or "" for a root requirement
	chain      []string // requirers from the root down to and including requirer
}

// selection is a tentatively chosen release.
type selection struct {
	release deps.Release
	chain   []string // path from the root to this package, including itself
}

// snapshot is an immutable view of the search: what has been selected and
// every constraint discovered so far. Each step derives a new snapshot by
// copying the maps it changes; the slices stored in the maps are never
// appended to in place. Backtracking is therefore just switching back to an
// older snapshot.
type snapshot struct {
	selected    map[string]selection
	constraints map[string][]origin
}

func newSnapshot() *snapshot {
	return &snapshot{
		selected:    make(map[string]selection),
		constraints: make(map[string][]origin),
	}
}

// withRoots returns a snapshot constrained by the root requirements.
func (s *snapshot) withRoots(roots []deps.Requirement) *snapshot {
	next := &snapshot{selected: s.selected, constraints: maps.Clone(s.constraints)}
	for _, r := range roots {
		next.constraints[r.Name] = append(slices.Clip(next.constraints[r.Name]), origin{constraint: r.Constraint})
	}
	return next
}

// frontier returns the lexicographically smallest constrained package that
// has no selection yet.
func (s *snapshot) frontier() (string, bool) {
	best, found := "", false
	for name := range s.constraints {
		if _, ok := s.selected[name]; ok {
			continue
		}
		if !found || name < best {
			best, found = name, true
		}
	}
	return best, found
}

// satisfies reports whether v meets every constraint on name.
func (s *snapshot) satisfies(name string, v semver.Version) bool {
	for _, o := range s.constraints[name] {
		if !o.constraint.Check(v) {
			return false
		}
	}
	return true
}

// candidates filters releases down to those allowed by the constraints on
// name, newest first. Versions of equal precedence keep the first
// occurrence, which is the highest post release.
func (s *snapshot) candidates(name string, releases []deps.Release) []deps.Release {
	sorted := slices.Clone(releases)
	deps.SortReleases(sorted)
	var out []deps.Release
	for _, r := range sorted {
		if len(out) > 0 && out[len(out)-1].Version.Equal(r.Version) {
			continue
		}
		if s.satisfies(name, r.Version) {
			out = append(out, r)
		}
	}
	return out
}

// apply selects release for name. It returns the derived snapshot, or a
// conflict if one of the release's requirements excludes a version that is
// already selected. Requirements flagged Dev are ignored; only root
// requirements may be development-only.
func (s *snapshot) apply(name string, release deps.Release) (*snapshot, *ConflictError) {
	next := &snapshot{
		selected:    maps.Clone(s.selected),
		constraints: maps.Clone(s.constraints),
	}

	key := deps.Key(name, release.Version)
	var parent []string
	if origins := s.constraints[name]; len(origins) > 0 {
		parent = origins[0].chain
	}
	chain := append(slices.Clip(parent), key)
	next.selected[name] = selection{release: release, chain: chain}

	for _, req := range release.Requirements {
		if req.Dev {
			continue
		}
		o := origin{constraint: req.Constraint, requirer: key, chain: chain}
		next.constraints[req.Name] = append(slices.Clip(next.constraints[req.Name]), o)
		if sel, ok := next.selected[req.Name]; ok && !req.Constraint.Check(sel.release.Version) {
			return nil, next.conflict(req.Name, 0)
		}
	}
	return next, nil
}

// conflict describes why name cannot be decided in this snapshot.
func (s *snapshot) conflict(name string, available int) *ConflictError {
	e := &ConflictError{Package: name, Available: available}
	if sel, ok := s.selected[name]; ok {
		e.Selected = sel.release.Version
	}
	for _, o := range s.constraints[name] {
		requirer := o.requirer
		if requirer == "" {
			requirer = rootRequirer
		}
		e.Constraints = append(e.Constraints, ConstraintOrigin{
			Constraint: o.constraint.String(),
			Requirer:   requirer,
			Chain:      slices.Clone(o.chain),
		})
	}
	return e
}
