package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/quiver/pkg/cache"
	"github.com/matzehuels/quiver/pkg/cache/badgerstore"
	"github.com/matzehuels/quiver/pkg/cache/mongostore"
	"github.com/matzehuels/quiver/pkg/cache/redisstore"
	"github.com/matzehuels/quiver/pkg/deps"
	"github.com/matzehuels/quiver/pkg/installer"
	"github.com/matzehuels/quiver/pkg/integrations/index"
	"github.com/matzehuels/quiver/pkg/integrations/pypi"
	"github.com/matzehuels/quiver/pkg/integrations/rubygems"
	"github.com/matzehuels/quiver/pkg/provider"
	"github.com/matzehuels/quiver/pkg/resolver"
)

// Runner owns the cache, provider and artifact source of one CLI
// invocation or server. A Runner may execute many sessions; each session
// gets its own resolver state while sharing the cache.
type Runner struct {
	opts     Options
	id       string
	cache    *cache.Cache
	provider *provider.Caching
	source   deps.ArtifactSource
	logger   *log.Logger
}

// Result contains the outputs of a pipeline run.
type Result struct {
	SessionID  string            `json:"session_id"`
	Resolution *resolver.Result  `json:"-"`
	Install    *installer.Report `json:"install,omitempty"`
	Stats      Stats             `json:"stats"`
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Packages    int           `json:"packages"`
	Steps       int           `json:"steps"`
	Backtracks  int           `json:"backtracks"`
	Fetched     int           `json:"fetched"`
	Installed   int           `json:"installed"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	ResolveTime time.Duration `json:"resolve_time"`
	InstallTime time.Duration `json:"install_time"`

	CacheAnswers  uint64      `json:"cache_answers"`
	UpstreamCalls uint64      `json:"upstream_calls"`
	Cache         cache.Stats `json:"cache"`
}

// NewRunner validates opts and builds the cache backend, registry client
// and caching provider they describe.
func NewRunner(ctx context.Context, opts Options) (*Runner, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	r := &Runner{
		opts:   opts,
		id:     id,
		logger: opts.Logger.With("session", id[:8]),
	}

	upstream, source, scope, err := r.buildRegistry()
	if err != nil {
		return nil, err
	}
	c, err := r.buildCache(ctx, scope)
	if err != nil {
		return nil, err
	}
	r.cache = c
	r.source = source
	r.provider = provider.NewCaching(upstream, c, r.logger)

	r.logger.Debug("pipeline ready",
		"registry", scope,
		"cache", opts.CacheBackend,
		"cache_enabled", opts.CacheEnabled,
		"install_dir", opts.InstallDir)
	return r, nil
}

// buildRegistry returns the upstream provider, artifact source and the
// metadata cache scope.
func (r *Runner) buildRegistry() (deps.Provider, deps.ArtifactSource, string, error) {
	o := r.opts
	switch {
	case o.Provider != nil:
		source := o.Source
		if source == nil {
			if s, ok := o.Provider.(deps.ArtifactSource); ok {
				source = s
			}
		}
		return o.Provider, source, "custom", nil
	case o.IndexFile != "":
		snap, skipped, err := provider.LoadIndexFile(o.IndexFile)
		if err != nil {
			return nil, nil, "", err
		}
		if skipped > 0 {
			r.logger.Warn("skipped unparseable releases in index file", "file", o.IndexFile, "count", skipped)
		}
		return snap, snap, "file-" + filepath.Base(o.IndexFile), nil
	case o.RegistryKind == RegistryIndex:
		c := index.NewClient(o.Registry, r.logger)
		return c, c, scopeFor(o.RegistryKind, o.Registry), nil
	case o.RegistryKind == RegistryRubyGems:
		c := rubygems.NewClient(o.Registry, r.logger)
		return c, c, scopeFor(o.RegistryKind, o.Registry), nil
	default:
		c := pypi.NewClient(o.Registry, r.logger)
		return c, c, scopeFor(o.RegistryKind, o.Registry), nil
	}
}

// scopeFor names the metadata namespace of a registry, e.g. "pypi-pypi.org".
func scopeFor(kind, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return kind
	}
	return kind + "-" + u.Host
}

func (r *Runner) buildCache(ctx context.Context, scope string) (*cache.Cache, error) {
	o := r.opts
	cfg := o.cacheConfig(scope)
	if !o.CacheEnabled {
		return cache.New(cache.Config{}, nil), nil
	}
	var (
		backend cache.Backend
		err     error
	)
	switch o.CacheBackend {
	case BackendBadger:
		backend, err = badgerstore.Open(badgerstore.Config{Path: filepath.Join(o.CacheDir, "badger")})
	case BackendFile:
		backend, err = cache.NewFileBackend(filepath.Join(o.CacheDir, "files"))
	case BackendRedis:
		backend, err = redisstore.New(ctx, redisstore.Config{Addr: o.RedisAddr})
	case BackendMongo:
		backend, err = mongostore.New(ctx, mongostore.Config{URI: o.MongoURI})
	default:
		backend = cache.NewNullBackend()
	}
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", o.CacheBackend, err)
	}
	return cache.New(cfg, backend), nil
}

// ID returns the session id of this runner.
func (r *Runner) ID() string { return r.id }

// Options returns the effective options.
func (r *Runner) Options() Options { return r.opts }

// Cache returns the shared cache.
func (r *Runner) Cache() *cache.Cache { return r.cache }

// Provider returns the caching metadata provider.
func (r *Runner) Provider() deps.Provider { return r.provider }

// Resolve runs a resolution session for roots.
func (r *Runner) Resolve(ctx context.Context, roots []deps.Requirement) (*resolver.Result, error) {
	start := time.Now()
	res, err := resolver.New(r.provider, r.opts.resolverOptions()).Resolve(ctx, roots)
	if err != nil {
		r.logger.Debug("resolution failed", "roots", len(roots), "duration", time.Since(start), "err", err)
		return nil, err
	}
	r.logger.Info("resolved dependencies",
		"packages", res.Graph.Len(),
		"steps", res.Steps,
		"backtracks", res.Backtracks,
		"duration", res.Duration)
	return res, nil
}

// Registry opens the install registry of the install directory.
func (r *Runner) Registry() (*installer.Registry, error) {
	return installer.OpenRegistry(r.opts.InstallDir)
}

// Installer builds an installer for the configured install directory.
func (r *Runner) Installer() (*installer.Installer, error) {
	if r.source == nil {
		return nil, errors.New("no artifact source configured")
	}
	reg, err := r.Registry()
	if err != nil {
		return nil, err
	}
	x := &installer.DirExtractor{Root: r.opts.InstallDir}
	return installer.New(r.cache, r.source, x, reg, r.opts.installerOptions()), nil
}

// Install installs plan into the install directory.
func (r *Runner) Install(ctx context.Context, plan resolver.Plan) (*installer.Report, error) {
	in, err := r.Installer()
	if err != nil {
		return nil, err
	}
	report, err := in.Install(ctx, plan)
	if report != nil {
		r.logger.Info("installed packages",
			"installed", report.Count(installer.StatusInstalled),
			"skipped", report.Count(installer.StatusSkipped),
			"failed", len(report.Failed()),
			"duration", report.Duration)
	}
	return report, err
}

// Execute runs the complete resolve → install pipeline. Per-package install
// failures are returned as the joined error of the report alongside the
// result.
func (r *Runner) Execute(ctx context.Context, roots []deps.Requirement) (*Result, error) {
	result := &Result{SessionID: r.id}

	res, err := r.Resolve(ctx, roots)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	result.Resolution = res
	result.Stats.Packages = res.Graph.Len()
	result.Stats.Steps = res.Steps
	result.Stats.Backtracks = res.Backtracks
	result.Stats.Fetched = res.Fetched
	result.Stats.ResolveTime = res.Duration

	report, err := r.Install(ctx, res.Plan)
	result.Install = report
	if report != nil {
		result.Stats.Installed = report.Count(installer.StatusInstalled)
		result.Stats.Skipped = report.Count(installer.StatusSkipped)
		result.Stats.Failed = len(report.Failed())
		result.Stats.InstallTime = report.Duration
	}
	r.fillCacheStats(&result.Stats)
	if err != nil {
		return result, fmt.Errorf("install: %w", err)
	}
	if report != nil {
		if err := report.Err(); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Stats returns the cache and provider counters accumulated so far.
func (r *Runner) Stats() Stats {
	var s Stats
	r.fillCacheStats(&s)
	return s
}

func (r *Runner) fillCacheStats(s *Stats) {
	s.CacheAnswers, s.UpstreamCalls = r.provider.Stats()
	s.Cache = r.cache.Stats()
}

// Close flushes and closes the cache.
func (r *Runner) Close() error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Close()
}
