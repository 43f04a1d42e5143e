package resolver

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/quiver/pkg/deps"
)

// DefaultMaxSteps bounds the number of candidate selections one session may
// try before giving up.
const DefaultMaxSteps = 100000

// Options configures a resolution session. It is copied when a session
// starts; later changes have no effect on running sessions.
type Options struct {
	IncludeDev bool        // Include root requirements flagged Dev
	MaxSteps   int         // Search budget in candidate selections
	Workers    int         // Metadata prefetch pool size
	Logger     *log.Logger // Defaults to a discard logger
}

// WithDefaults returns a copy of o with zero fields replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return o
}

// Resolver turns root requirements into a conflict-free selection and an
// install plan, reading metadata from a [deps.Provider].
//
// A Resolver holds no per-run state and is safe for concurrent use; each call
// to [Resolver.NewSession] or [Resolver.Resolve] runs independently.
type Resolver struct {
	provider deps.Provider
	opts     Options
}

// New creates a Resolver.
func New(provider deps.Provider, opts Options) *Resolver {
	return &Resolver{provider: provider, opts: opts.WithDefaults()}
}

// NewSession prepares a session for roots without starting it.
func (r *Resolver) NewSession(roots []deps.Requirement) *Session {
	return newSession(r.provider, r.opts, roots)
}

// Resolve runs a session to completion.
func (r *Resolver) Resolve(ctx context.Context, roots []deps.Requirement) (*Result, error) {
	return r.NewSession(roots).Run(ctx)
}

// Result is the outcome of a successful session.
type Result struct {
	Graph      *Graph        // Final selection
	Plan       Plan          // Install order
	Steps      int           // Candidate selections tried
	Backtracks int           // Times the search reverted to an earlier decision
	Fetched    int           // Packages whose metadata was fetched
	Duration   time.Duration // Wall time of the session
}
