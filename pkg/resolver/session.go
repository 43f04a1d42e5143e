package resolver

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/quiver/pkg/deps"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/observability"
)

// Session is a single resolution run. Its state is observable from other
// goroutines through [Session.State] while [Session.Run] executes.
type Session struct {
	provider deps.Provider
	opts     Options
	roots    []deps.Requirement
	logger   *log.Logger

	state      atomic.Int32
	started    atomic.Bool
	steps      atomic.Int64
	backtracks atomic.Int64

	// coordinator-owned search bookkeeping
	firstConflict *ConflictError
	providerErr   error
}

func newSession(provider deps.Provider, opts Options, roots []deps.Requirement) *Session {
	return &Session{
		provider: provider,
		opts:     opts,
		roots:    slices.Clone(roots),
		logger:   opts.Logger,
	}
}

// State returns the current phase.
func (s *Session) State() State { return State(s.state.Load()) }

// Steps returns the number of candidate selections tried so far.
func (s *Session) Steps() int { return int(s.steps.Load()) }

// decision is one entry of the search worklist: a package that was decided
// in base, with the candidates not yet tried.
type decision struct {
	name       string
	candidates []deps.Release
	available  int
	base       *snapshot
}

// Run resolves the session's roots. It may be called once.
//
// On failure the error carries [qerrors.ErrCodeConflict] (wrapping a
// [*ConflictError]), [qerrors.ErrCodeCycle] (wrapping a [*CycleError]), the
// provider's own error, [qerrors.ErrCodeSearchLimit], or the context error.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, qerrors.New(qerrors.ErrCodeInternal, "session already run")
	}
	start := time.Now()
	hooks := observability.Resolver()
	hooks.OnResolveStart(ctx, len(s.roots))

	pf := newPrefetcher(ctx, s.provider, s.opts.Workers)
	defer pf.stop()

	res, state, err := s.run(ctx, pf)
	s.setState(ctx, state)

	res.Steps = s.Steps()
	res.Backtracks = int(s.backtracks.Load())
	res.Fetched = pf.fetched()
	res.Duration = time.Since(start)
	hooks.OnResolveComplete(ctx, state.String(), res.Graph.Len(), res.Steps, res.Duration, err)

	if err != nil {
		s.logger.Debug("resolution failed", "state", state, "steps", res.Steps, "duration", res.Duration, "err", err)
		return nil, err
	}
	s.logger.Debug("resolution complete", "packages", res.Graph.Len(), "steps", res.Steps,
		"backtracks", res.Backtracks, "duration", res.Duration)
	return res, nil
}

func (s *Session) run(ctx context.Context, pf *prefetcher) (*Result, State, error) {
	res := &Result{Graph: newGraph(newSnapshot(), nil)}

	roots, rootNames := s.collect(pf)
	s.setState(ctx, Solving)

	final, err := s.solve(ctx, pf, newSnapshot().withRoots(roots))
	if err != nil {
		var ce *ConflictError
		switch {
		case ctx.Err() != nil:
			return res, Failed, ctx.Err()
		case errors.As(err, &ce):
			return res, Conflict, err
		default:
			return res, Failed, err
		}
	}

	g := newGraph(final, rootNames)
	if members := g.dag.FindCycle(); members != nil {
		ce := &CycleError{Members: members}
		return res, CycleDetected, qerrors.Wrap(qerrors.ErrCodeCycle, ce, "cannot order %s", members[0])
	}
	plan, err := g.plan()
	if err != nil {
		return res, Failed, qerrors.Wrap(qerrors.ErrCodeInternal, err, "install order")
	}
	res.Graph, res.Plan = g, plan
	return res, Resolved, nil
}

// collect filters the roots, normalizes names and starts their fetches.
func (s *Session) collect(pf *prefetcher) ([]deps.Requirement, []string) {
	var roots []deps.Requirement
	var names []string
	for _, r := range s.roots {
		if r.Dev && !s.opts.IncludeDev {
			continue
		}
		r.Name = deps.NormalizeName(r.Name)
		roots = append(roots, r)
		if !slices.Contains(names, r.Name) {
			names = append(names, r.Name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		pf.request(name)
	}
	return roots, names
}

// solve runs the chronological backtracking search. The worklist holds one
// decision per selected package in selection order; a failed step resumes
// from the newest decision that still has an untried candidate.
func (s *Session) solve(ctx context.Context, pf *prefetcher, cur *snapshot) (*snapshot, error) {
	var stack []*decision
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, ok := cur.frontier()
		if !ok {
			return cur, nil
		}

		releases, err := pf.wait(name)
		var next *snapshot
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			s.recordProviderError(name, err)
		default:
			cands := cur.candidates(name, releases)
			if len(cands) == 0 {
				s.recordConflict(cur.conflict(name, len(releases)))
				break
			}
			d := &decision{name: name, candidates: cands, available: len(releases), base: cur}
			stack = append(stack, d)
			if next, err = s.tryNext(d, pf); err != nil {
				return nil, err
			}
		}

		for next == nil {
			if len(stack) == 0 {
				return nil, s.failure()
			}
			top := stack[len(stack)-1]
			if len(top.candidates) == 0 {
				stack = stack[:len(stack)-1]
				continue
			}
			s.backtracks.Add(1)
			observability.Resolver().OnBacktrack(ctx, top.name, len(stack))
			s.logger.Debug("backtracking", "package", top.name, "depth", len(stack), "remaining", len(top.candidates))
			if next, err = s.tryNext(top, pf); err != nil {
				return nil, err
			}
		}
		cur = next
	}
}

// tryNext applies d's candidates in order until one does not conflict.
// Returns nil when d is exhausted.
func (s *Session) tryNext(d *decision, pf *prefetcher) (*snapshot, error) {
	for len(d.candidates) > 0 {
		if s.steps.Add(1) > int64(s.opts.MaxSteps) {
			return nil, qerrors.New(qerrors.ErrCodeSearchLimit,
				"gave up after %d steps; pin versions of %s to narrow the search", s.opts.MaxSteps, d.name)
		}
		c := d.candidates[0]
		d.candidates = d.candidates[1:]
		next, conflict := d.base.apply(d.name, c)
		if conflict != nil {
			s.recordConflict(conflict)
			continue
		}
		for _, req := range c.Requirements {
			if !req.Dev {
				pf.request(req.Name)
			}
		}
		return next, nil
	}
	return nil, nil
}

func (s *Session) recordConflict(e *ConflictError) {
	s.logger.Debug("conflict", "package", e.Package, "err", e)
	if s.firstConflict == nil {
		s.firstConflict = e
	}
}

func (s *Session) recordProviderError(name string, err error) {
	s.logger.Debug("metadata unavailable", "package", name, "err", err)
	if s.providerErr == nil {
		s.providerErr = err
	}
}

// failure is the error for an exhausted search. A provider error explains
// the failure better than the conflicts it caused, so it wins.
func (s *Session) failure() error {
	if s.providerErr != nil {
		if qerrors.GetCode(s.providerErr) != "" {
			return s.providerErr
		}
		return qerrors.Wrap(qerrors.ErrCodeProvider, s.providerErr, "fetch metadata")
	}
	if s.firstConflict != nil {
		return qerrors.Wrap(qerrors.ErrCodeConflict, s.firstConflict, "cannot resolve %s", s.firstConflict.Package)
	}
	return qerrors.New(qerrors.ErrCodeInternal, "search exhausted without a recorded conflict")
}

func (s *Session) setState(ctx context.Context, to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	observability.Resolver().OnStateChange(ctx, from.String(), to.String())
	s.logger.Debug("resolver state", "from", from, "to", to)
}
