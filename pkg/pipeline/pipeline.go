// Package pipeline wires the quiver core together for the CLI and the
// mirror server.
//
// This package implements the complete resolve → install pipeline. By
// centralizing construction of the cache, provider and installer here, every
// entry point gets the same defaults and the same cache layout.
//
// # Architecture
//
// The pipeline consists of two stages:
//
//  1. Resolve: select one version per package and compute an install plan
//  2. Install: fetch, verify and extract the plan in dependency order
//
// Each stage can be run independently or as part of the complete pipeline.
//
// # Usage
//
//	opts := pipeline.FromManifest(m, projectDir)
//	runner, err := pipeline.NewRunner(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer runner.Close()
//
//	roots, _ := m.Roots(opts.IncludeDev)
//	result, err := runner.Execute(ctx, roots)
package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/quiver/pkg/cache"
	"github.com/matzehuels/quiver/pkg/deps"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/installer"
	"github.com/matzehuels/quiver/pkg/integrations/pypi"
	"github.com/matzehuels/quiver/pkg/integrations/rubygems"
	"github.com/matzehuels/quiver/pkg/manifest"
	"github.com/matzehuels/quiver/pkg/resolver"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Mirror
// =============================================================================

// Registry kinds.
const (
	RegistryPyPI     = "pypi"
	RegistryIndex    = "index"
	RegistryRubyGems = "rubygems"
)

// Cache backends.
const (
	BackendBadger = "badger"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// Environment overrides.
const (
	EnvCacheDir  = "QUIVER_CACHE_DIR"
	EnvRedisAddr = "QUIVER_REDIS_ADDR"
	EnvMongoURI  = "QUIVER_MONGO_URI"
)

// ValidRegistryKinds is the set of supported registry protocols.
var ValidRegistryKinds = map[string]bool{
	RegistryPyPI:     true,
	RegistryIndex:    true,
	RegistryRubyGems: true,
}

// ValidBackends is the set of supported durable cache tiers.
var ValidBackends = map[string]bool{
	BackendBadger: true,
	BackendFile:   true,
	BackendRedis:  true,
	BackendMongo:  true,
	BackendMemory: true,
}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for a pipeline run. It is passed by
// value; WithDefaults returns the copy handed to the core.
type Options struct {
	// Project
	ProjectDir string `json:"project_dir,omitempty"`
	InstallDir string `json:"install_dir,omitempty"` // Relative paths are joined to ProjectDir

	// Registry
	Registry     string `json:"registry,omitempty"`      // Base URL; empty means the kind's default
	RegistryKind string `json:"registry_kind,omitempty"` // pypi or index
	IndexFile    string `json:"index_file,omitempty"`    // Offline metadata snapshot; overrides Registry

	// Cache
	CacheEnabled      bool          `json:"cache_enabled"`
	CacheBackend      string        `json:"cache_backend,omitempty"`
	CacheDir          string        `json:"cache_dir,omitempty"`
	RedisAddr         string        `json:"redis_addr,omitempty"`
	MongoURI          string        `json:"mongo_uri,omitempty"`
	MemoryEntries     int           `json:"memory_entries,omitempty"`
	MemoryBytes       int64         `json:"memory_bytes,omitempty"`
	MaxEntrySize      int64         `json:"max_entry_size,omitempty"`
	MetadataTTL       time.Duration `json:"metadata_ttl,omitempty"`
	NegativeTTL       time.Duration `json:"negative_ttl,omitempty"`
	FalsePositiveRate float64       `json:"false_positive_rate,omitempty"`

	// Resolution
	IncludeDev      bool `json:"include_dev,omitempty"`
	MaxSteps        int  `json:"max_steps,omitempty"`
	PrefetchWorkers int  `json:"prefetch_workers,omitempty"`

	// Install
	Parallelism int  `json:"parallelism,omitempty"`
	Force       bool `json:"force,omitempty"`

	// Runtime options (not serialized)
	Logger   *log.Logger         `json:"-"`
	Provider deps.Provider       `json:"-"` // Replaces the registry client
	Source   deps.ArtifactSource `json:"-"` // Replaces the artifact source
}

// FromManifest derives options from a project manifest in dir.
func FromManifest(m *manifest.Manifest, dir string) Options {
	s := m.Tool.Quiver
	neg, meta, _ := s.Durations()
	return Options{
		ProjectDir:    dir,
		InstallDir:    s.InstallDir,
		Registry:      s.Registry,
		RegistryKind:  s.RegistryKind,
		CacheEnabled:  s.CacheEnabled,
		CacheBackend:  s.CacheBackend,
		MemoryEntries: s.MemoryCacheEntries,
		NegativeTTL:   neg,
		MetadataTTL:   meta,
		Parallelism:   s.ParallelDownloads,
	}
}

// ApplyEnv overrides options from QUIVER_* environment variables.
func (o Options) ApplyEnv() Options {
	if v := os.Getenv(EnvCacheDir); v != "" {
		o.CacheDir = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		o.RedisAddr = v
	}
	if v := os.Getenv(EnvMongoURI); v != "" {
		o.MongoURI = v
	}
	return o
}

// WithDefaults returns a copy of o with zero fields replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.ProjectDir == "" {
		o.ProjectDir = "."
	}
	if o.InstallDir == "" {
		o.InstallDir = manifest.DefaultInstallDir
	}
	if !filepath.IsAbs(o.InstallDir) {
		o.InstallDir = filepath.Join(o.ProjectDir, o.InstallDir)
	}
	if o.RegistryKind == "" {
		o.RegistryKind = RegistryPyPI
	}
	if o.Registry == "" {
		switch o.RegistryKind {
		case RegistryPyPI:
			o.Registry = pypi.DefaultBaseURL
		case RegistryRubyGems:
			o.Registry = rubygems.DefaultBaseURL
		}
	}
	if o.CacheBackend == "" {
		o.CacheBackend = BackendBadger
	}
	if o.CacheDir == "" {
		o.CacheDir = DefaultCacheDir()
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = resolver.DefaultMaxSteps
	}
	if o.PrefetchWorkers <= 0 {
		o.PrefetchWorkers = resolver.DefaultWorkers
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 2 * runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return o
}

// Validate checks option combinations that defaults cannot repair.
func (o Options) Validate() error {
	if !ValidRegistryKinds[o.RegistryKind] {
		return qerrors.New(qerrors.ErrCodeInvalidConfig, "invalid registry kind: %q (must be one of: pypi, index, rubygems)", o.RegistryKind)
	}
	if o.IndexFile == "" && o.Provider == nil && o.Registry == "" {
		return qerrors.New(qerrors.ErrCodeInvalidConfig, "registry URL is required for %s registries", o.RegistryKind)
	}
	if o.Registry != "" {
		if err := qerrors.ValidateURL(o.Registry); err != nil {
			return err
		}
	}
	if !ValidBackends[o.CacheBackend] {
		return qerrors.New(qerrors.ErrCodeInvalidConfig, "invalid cache backend: %q (must be one of: badger, file, redis, mongo, memory)", o.CacheBackend)
	}
	if o.CacheEnabled {
		switch {
		case o.CacheBackend == BackendRedis && o.RedisAddr == "":
			return qerrors.New(qerrors.ErrCodeInvalidConfig, "redis cache backend requires %s", EnvRedisAddr)
		case o.CacheBackend == BackendMongo && o.MongoURI == "":
			return qerrors.New(qerrors.ErrCodeInvalidConfig, "mongo cache backend requires %s", EnvMongoURI)
		}
	}
	if o.FalsePositiveRate < 0 || o.FalsePositiveRate >= 1 {
		return qerrors.New(qerrors.ErrCodeInvalidConfig, "false positive rate must be in (0, 1), got %v", o.FalsePositiveRate)
	}
	return nil
}

// DefaultCacheDir returns $QUIVER_CACHE_DIR, else the user cache dir
// ($XDG_CACHE_HOME on Linux) joined with "quiver".
func DefaultCacheDir() string {
	if v := os.Getenv(EnvCacheDir); v != "" {
		return v
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "quiver-cache")
	}
	return filepath.Join(base, "quiver")
}

// cacheConfig maps options onto the cache configuration.
func (o Options) cacheConfig(scope string) cache.Config {
	return cache.Config{
		Enabled:           o.CacheEnabled,
		MemoryEntries:     o.MemoryEntries,
		MemoryBytes:       o.MemoryBytes,
		MaxEntrySize:      o.MaxEntrySize,
		MetadataTTL:       o.MetadataTTL,
		NegativeTTL:       o.NegativeTTL,
		FalsePositiveRate: o.FalsePositiveRate,
		Keyer:             cache.NewDefaultKeyer(scope),
		Logger:            o.Logger,
	}.WithDefaults()
}

func (o Options) installerOptions() installer.Options {
	return installer.Options{Parallelism: o.Parallelism, Force: o.Force, Logger: o.Logger}
}

func (o Options) resolverOptions() resolver.Options {
	return resolver.Options{IncludeDev: o.IncludeDev, MaxSteps: o.MaxSteps, Workers: o.PrefetchWorkers, Logger: o.Logger}
}
