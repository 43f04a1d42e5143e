// Package resolver computes a consistent set of package versions from root
// requirements and derives the order in which to install them.
//
// # Overview
//
// A [Session] moves through [Collecting], [Solving] and one terminal state:
// [Resolved], [Conflict], [CycleDetected] or [Failed].
//
//	r := resolver.New(provider, resolver.Options{})
//	res, err := r.Resolve(ctx, roots)
//	if err != nil {
//	    var ce *resolver.ConflictError
//	    if errors.As(err, &ce) {
//	        fmt.Println(ce.Package, ce.Requirers())
//	    }
//	    return err
//	}
//	for _, n := range res.Plan {
//	    fmt.Println(n.Name, n.Version)
//	}
//
// # Search
//
// The search keeps an explicit worklist of decisions. Each decision records
// the snapshot it was made in (selections plus every constraint discovered so
// far, each with the chain of requirers that introduced it) and the
// candidates not yet tried. At every step the coordinator decides the
// lexicographically smallest constrained package that has no selection, and
// picks the highest release allowed by all its constraints. Selecting a
// release adds its requirements as constraints; a requirement that excludes
// an already selected version is a conflict.
//
// On a conflict the search returns to the newest decision that still has a
// candidate and tries it against that decision's snapshot. Snapshots are
// copied on write, so reverting never undoes anything in place. When no
// decision has a candidate left the session fails with the first conflict it
// met. [Options.MaxSteps] bounds the number of candidates tried.
//
// # Determinism
//
// Metadata is fetched ahead of time by a small worker pool, but only the
// coordinator reads the results, and it does so in decision order. The same
// roots against the same metadata always yield the same graph and plan.
//
// # Cycles and Install Order
//
// Once every constrained package is selected the selection is checked for
// cycles with a depth-first search in name order; a cycle is reported as a
// [*CycleError] rather than broken. The install plan is a topological order
// in which ties are broken by name.
package resolver
