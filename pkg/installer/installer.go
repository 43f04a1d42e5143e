package installer

import (
	"context"
	"errors"
	"io"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/matzehuels/quiver/pkg/cache"
	"github.com/matzehuels/quiver/pkg/deps"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/observability"
	"github.com/matzehuels/quiver/pkg/resolver"
)

// Status is the outcome of installing one package.
type Status string

const (
	StatusInstalled        Status = "installed"
	StatusSkipped          Status = "skipped"
	StatusFailed           Status = "failed"
	StatusDependencyFailed Status = "dependency_failed"
)

// Options configures an Installer.
type Options struct {
	// Parallelism bounds concurrent fetch-and-extract work. Zero means
	// twice the number of CPUs.
	Parallelism int

	// Force reinstalls packages the registry already records at the planned
	// version.
	Force bool

	Logger *log.Logger
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.Parallelism <= 0 {
		o.Parallelism = 2 * runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return o
}

// Outcome records what happened to one package.
type Outcome struct {
	Name     string        `json:"name"`
	Version  string        `json:"version"`
	Status   Status        `json:"status"`
	Path     string        `json:"path,omitempty"`
	Source   string        `json:"source,omitempty"` // "cache" or "upstream"
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Report summarizes an install run. Outcomes follow plan order.
type Report struct {
	Outcomes []Outcome     `json:"outcomes"`
	Duration time.Duration `json:"duration"`
}

// Count returns how many outcomes have status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Failed returns the outcomes that did not succeed.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed || o.Status == StatusDependencyFailed {
			out = append(out, o)
		}
	}
	return out
}

// Err joins the errors of every failed package, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Installer fetches, verifies and extracts the packages of a plan. A package
// starts only after all of its dependencies are installed; independent
// packages proceed in parallel.
type Installer struct {
	cache    *cache.Cache
	source   deps.ArtifactSource
	extract  Extractor
	registry *Registry
	opts     Options
	logger   *log.Logger
}

// New creates an Installer. A nil cache disables artifact caching.
func New(c *cache.Cache, source deps.ArtifactSource, x Extractor, reg *Registry, opts Options) *Installer {
	opts = opts.WithDefaults()
	if c == nil {
		c = cache.New(cache.Config{}, nil)
	}
	return &Installer{
		cache:    c,
		source:   source,
		extract:  x,
		registry: reg,
		opts:     opts,
		logger:   opts.Logger,
	}
}

// Install runs plan. Per-package failures are reported in the Report and
// do not stop unrelated packages; the returned error is non-nil only when
// ctx ends or the registry cannot be saved.
func (in *Installer) Install(ctx context.Context, plan resolver.Plan) (*Report, error) {
	start := time.Now()
	report := &Report{Outcomes: make([]Outcome, len(plan))}

	done := make(map[string]chan struct{}, len(plan))
	index := make(map[string]int, len(plan))
	for i, n := range plan {
		done[n.Name] = make(chan struct{})
		index[n.Name] = i
	}

	sem := semaphore.NewWeighted(int64(in.opts.Parallelism))
	g, gctx := errgroup.WithContext(ctx)

	for i, n := range plan {
		g.Go(func() error {
			defer close(done[n.Name])
			out := &report.Outcomes[i]
			out.Name, out.Version = n.Name, n.Version.String()

			for _, dep := range n.Dependencies {
				ch, ok := done[dep]
				if !ok {
					continue
				}
				select {
				case <-ch:
				case <-gctx.Done():
					return gctx.Err()
				}
				if st := report.Outcomes[index[dep]].Status; st != StatusInstalled && st != StatusSkipped {
					out.Status = StatusDependencyFailed
					out.Err = qerrors.New(qerrors.ErrCodeDependencyFailed, "%s not installed: dependency %s failed", n.Key(), dep)
					observability.Install().OnInstallComplete(gctx, n.Name, out.Version, string(out.Status), 0, out.Err)
					return nil
				}
			}

			if !in.opts.Force {
				if rec, ok := in.registry.Get(n.Name); ok && rec.Version == out.Version {
					out.Status = StatusSkipped
					out.Path = rec.Path
					observability.Install().OnInstallComplete(gctx, n.Name, out.Version, string(out.Status), 0, nil)
					return nil
				}
			}

			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			t0 := time.Now()
			observability.Install().OnInstallStart(gctx, n.Name, out.Version)
			path, source, err := in.installOne(gctx, n)
			out.Duration = time.Since(t0)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					observability.Install().OnInstallComplete(gctx, n.Name, out.Version, string(StatusFailed), out.Duration, ctxErr)
					return ctxErr
				}
				out.Status, out.Err = StatusFailed, err
				in.logger.Warn("install failed", "package", n.Key(), "err", err)
			} else {
				out.Status, out.Path, out.Source = StatusInstalled, path, source
				in.logger.Info("installed", "package", n.Key(), "from", source)
			}
			observability.Install().OnInstallComplete(gctx, n.Name, out.Version, string(out.Status), out.Duration, err)
			return nil
		})
	}

	waitErr := g.Wait()
	report.Duration = time.Since(start)
	if err := in.registry.Save(); err != nil {
		return report, err
	}
	if waitErr != nil {
		return report, waitErr
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// installOne fetches, verifies and extracts a single package.
func (in *Installer) installOne(ctx context.Context, n *resolver.Node) (path, source string, err error) {
	data, expected, source, err := in.fetch(ctx, n)
	if err != nil {
		return "", "", err
	}
	path, err = in.extract.Extract(ctx, n, data)
	if err != nil {
		return "", "", err
	}
	in.registry.Put(Record{
		Name:        n.Name,
		Version:     n.Version.String(),
		Digest:      expected,
		Path:        path,
		InstalledAt: time.Now().UTC(),
	})
	return path, source, nil
}

// fetch returns verified artifact bytes for n. The resolved digest is
// consulted in the cache first; upstream bytes are verified against it
// (or, failing that, the digest the registry returns with the file) before
// they are cached.
func (in *Installer) fetch(ctx context.Context, n *resolver.Node) ([]byte, digest.Digest, string, error) {
	if n.Digest != "" {
		res := in.cache.GetArtifact(ctx, n.Digest)
		if res.Status == cache.Hit {
			if err := cache.Verify(n.Digest, res.Data); err == nil {
				return res.Data, n.Digest, "cache", nil
			}
			in.logger.Warn("cached artifact failed verification", "package", n.Key(), "digest", n.Digest)
		}
	}

	art, err := in.source.FetchArtifact(ctx, n.Name, n.Version)
	if err != nil {
		return nil, "", "", err
	}
	expected := n.Digest
	if expected == "" {
		expected = art.Digest
	}
	if expected == "" {
		return nil, "", "", qerrors.New(qerrors.ErrCodeIntegrity, "%s: no digest published for artifact", n.Key())
	}
	if n.Digest != "" && art.Digest != "" && art.Digest != n.Digest {
		in.logger.Debug("registry digest differs from resolved digest", "package", n.Key(), "resolved", n.Digest, "registry", art.Digest)
	}

	if err := in.cache.PutArtifact(ctx, expected, art.Data); err != nil {
		if cache.IsIntegrityError(err) {
			return nil, "", "", qerrors.Wrap(qerrors.ErrCodeIntegrity, err, "%s", n.Key())
		}
		// Bytes are verified; a failed cache write only costs a later refetch.
		in.logger.Warn("cache artifact", "package", n.Key(), "err", err)
	}
	return art.Data, expected, "upstream", nil
}

// Uninstall removes packages from disk and from the registry. Unknown names
// are reported as NOT_FOUND.
func (in *Installer) Uninstall(ctx context.Context, names ...string) error {
	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		name = deps.NormalizeName(name)
		if _, ok := in.registry.Get(name); !ok {
			errs = append(errs, qerrors.New(qerrors.ErrCodeNotFound, "%s is not installed", name))
			continue
		}
		if err := in.extract.Remove(name); err != nil {
			errs = append(errs, err)
			continue
		}
		in.registry.Remove(name)
		in.logger.Info("uninstalled", "package", name)
	}
	if err := in.registry.Save(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
