package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/quiver/pkg/deps"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/installer"
	"github.com/matzehuels/quiver/pkg/integrations/rubygems"
	"github.com/matzehuels/quiver/pkg/manifest"
	"github.com/matzehuels/quiver/pkg/provider"
)

func TestValidate(t *testing.T) {
	base := Options{CacheDir: t.TempDir()}
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"defaults", func(*Options) {}, false},
		{"index needs url", func(o *Options) { o.RegistryKind = RegistryIndex }, true},
		{"index with url", func(o *Options) { o.RegistryKind = RegistryIndex; o.Registry = "http://localhost:8080" }, false},
		{"index file", func(o *Options) { o.RegistryKind = RegistryIndex; o.IndexFile = "index.toml" }, false},
		{"bad kind", func(o *Options) { o.RegistryKind = "npm" }, true},
		{"bad url", func(o *Options) { o.Registry = "ftp://example.com" }, true},
		{"bad backend", func(o *Options) { o.CacheBackend = "sqlite" }, true},
		{"redis without addr", func(o *Options) { o.CacheEnabled = true; o.CacheBackend = BackendRedis }, true},
		{"redis disabled cache", func(o *Options) { o.CacheBackend = BackendRedis }, false},
		{"mongo without uri", func(o *Options) { o.CacheEnabled = true; o.CacheBackend = BackendMongo }, true},
		{"fp rate", func(o *Options) { o.FalsePositiveRate = 1.5 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base
			tt.mutate(&o)
			err := o.WithDefaults().Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && qerrors.GetCode(err) == "" {
				t.Errorf("error %v carries no code", err)
			}
		})
	}
}

func TestWithDefaults(t *testing.T) {
	o := Options{ProjectDir: "/proj"}.WithDefaults()
	if o.InstallDir != filepath.Join("/proj", manifest.DefaultInstallDir) {
		t.Errorf("InstallDir = %s", o.InstallDir)
	}
	if o.RegistryKind != RegistryPyPI || o.Registry == "" {
		t.Errorf("registry = %s %s", o.RegistryKind, o.Registry)
	}
	if o.Parallelism <= 0 || o.MaxSteps <= 0 || o.Logger == nil {
		t.Errorf("defaults not applied: %+v", o)
	}
	gems := Options{ProjectDir: "/proj", RegistryKind: RegistryRubyGems}.WithDefaults()
	if gems.Registry != rubygems.DefaultBaseURL {
		t.Errorf("rubygems registry = %s", gems.Registry)
	}
	abs := Options{ProjectDir: "/proj", InstallDir: "/elsewhere"}.WithDefaults()
	if abs.InstallDir != "/elsewhere" {
		t.Errorf("absolute InstallDir rewritten to %s", abs.InstallDir)
	}
}

func TestFromManifestAndEnv(t *testing.T) {
	m, err := manifest.Parse([]byte(`
[project]
name = "demo"
[tool.quiver]
parallel-downloads = 3
cache-backend = "file"
metadata-ttl = "2h"
`))
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvCacheDir, "/tmp/qc")
	t.Setenv(EnvRedisAddr, "localhost:6379")

	o := FromManifest(m, "/proj").ApplyEnv()
	if o.Parallelism != 3 || o.CacheBackend != BackendFile || !o.CacheEnabled {
		t.Errorf("options = %+v", o)
	}
	if o.MetadataTTL.Hours() != 2 {
		t.Errorf("MetadataTTL = %v", o.MetadataTTL)
	}
	if o.CacheDir != "/tmp/qc" || o.RedisAddr != "localhost:6379" {
		t.Errorf("env not applied: %s %s", o.CacheDir, o.RedisAddr)
	}
	if DefaultCacheDir() != "/tmp/qc" {
		t.Errorf("DefaultCacheDir() = %s", DefaultCacheDir())
	}
}

func snapshotWithArtifacts(t *testing.T) *provider.Snapshot {
	t.Helper()
	snap := provider.NewSnapshot().
		MustAdd("web", "2.0.0", "http ^1.0").
		MustAdd("http", "1.0.0").
		MustAdd("http", "1.2.0")
	for _, a := range [][2]string{{"web", "2.0.0"}, {"http", "1.0.0"}, {"http", "1.2.0"}} {
		if _, err := snap.AddArtifact(a[0], a[1], []byte(a[0]+"-"+a[1])); err != nil {
			t.Fatal(err)
		}
	}
	return snap
}

func newTestRunner(t *testing.T, snap *provider.Snapshot, backend string) *Runner {
	t.Helper()
	r, err := NewRunner(context.Background(), Options{
		ProjectDir:   t.TempDir(),
		CacheEnabled: true,
		CacheBackend: backend,
		CacheDir:     t.TempDir(),
		Provider:     snap,
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRunnerExecute(t *testing.T) {
	r := newTestRunner(t, snapshotWithArtifacts(t), BackendMemory)
	root, err := deps.ParseRequirement("web")
	if err != nil {
		t.Fatal(err)
	}

	result, err := r.Execute(context.Background(), []deps.Requirement{root})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.SessionID == "" || result.SessionID != r.ID() {
		t.Errorf("SessionID = %q", result.SessionID)
	}
	if got := result.Resolution.Plan.String(); got != "http@1.2.0 web@2.0.0" {
		t.Errorf("plan = %s", got)
	}
	if result.Stats.Installed != 2 || result.Stats.Failed != 0 {
		t.Errorf("stats = %+v", result.Stats)
	}
	data, err := os.ReadFile(filepath.Join(r.Options().InstallDir, "http", "http-1.2.0"))
	if err != nil || string(data) != "http-1.2.0" {
		t.Errorf("installed http = %q, %v", data, err)
	}

	// A second run is answered from the cache and the install registry.
	again, err := r.Execute(context.Background(), []deps.Requirement{root})
	if err != nil {
		t.Fatal(err)
	}
	if again.Stats.Skipped != 2 {
		t.Errorf("second run skipped %d, want 2", again.Stats.Skipped)
	}
	if again.Stats.CacheAnswers == 0 {
		t.Error("second run made no cache answers")
	}
	if again.Stats.UpstreamCalls != result.Stats.UpstreamCalls {
		t.Errorf("upstream calls grew from %d to %d", result.Stats.UpstreamCalls, again.Stats.UpstreamCalls)
	}
}

func TestRunnerFileBackendPersists(t *testing.T) {
	snap := snapshotWithArtifacts(t)
	cacheDir := t.TempDir()
	opts := Options{
		ProjectDir:   t.TempDir(),
		CacheEnabled: true,
		CacheBackend: BackendFile,
		CacheDir:     cacheDir,
		Provider:     snap,
	}
	root, _ := deps.ParseRequirement("web")

	r1, err := NewRunner(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r1.Resolve(context.Background(), []deps.Requirement{root}); err != nil {
		t.Fatal(err)
	}
	if err := r1.Close(); err != nil {
		t.Fatal(err)
	}
	calls := snap.Calls("web")

	r2, err := NewRunner(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()
	if _, err := r2.Resolve(context.Background(), []deps.Requirement{root}); err != nil {
		t.Fatal(err)
	}
	if got := snap.Calls("web"); got != calls {
		t.Errorf("upstream calls for web = %d after reopen, want %d", got, calls)
	}
}

func TestRunnerResolveConflict(t *testing.T) {
	snap := provider.NewSnapshot().
		MustAdd("a", "1.0.0", "c ^1.0").
		MustAdd("b", "1.0.0", "c ^2.0").
		MustAdd("c", "1.0.0").
		MustAdd("c", "2.0.0")
	r := newTestRunner(t, snap, BackendMemory)
	var roots []deps.Requirement
	for _, s := range []string{"a", "b"} {
		req, _ := deps.ParseRequirement(s)
		roots = append(roots, req)
	}
	_, err := r.Execute(context.Background(), roots)
	if !qerrors.Is(err, qerrors.ErrCodeConflict) {
		t.Fatalf("Execute = %v, want CONFLICT", err)
	}
}

func TestRunnerInstallFailureReported(t *testing.T) {
	snap := provider.NewSnapshot().MustAdd("lonely", "1.0.0")
	r := newTestRunner(t, snap, BackendMemory)
	root, _ := deps.ParseRequirement("lonely")

	result, err := r.Execute(context.Background(), []deps.Requirement{root})
	if !qerrors.Is(err, qerrors.ErrCodePackageNotFound) {
		t.Fatalf("Execute = %v, want PACKAGE_NOT_FOUND from the artifact source", err)
	}
	if result == nil || result.Install.Count(installer.StatusFailed) != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestExampleProject(t *testing.T) {
	m, err := manifest.Load(filepath.Join("..", "..", "examples", manifest.FileName))
	if err != nil {
		t.Fatal(err)
	}
	opts := FromManifest(m, t.TempDir())
	opts.IndexFile = filepath.Join("..", "..", "examples", "index.toml")
	opts.CacheEnabled = false
	opts.IncludeDev = true
	r, err := NewRunner(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	roots, err := m.Roots(opts.IncludeDev)
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Resolve(context.Background(), roots)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := map[string]string{
		"flask":    "3.0.0",
		"werkzeug": "3.0.1",
		"urllib3":  "2.1.0",
		"pytest":   "8.0.0",
	}
	for name, version := range want {
		n, ok := res.Graph.Node(name)
		if !ok || n.Version.String() != version {
			t.Errorf("%s = %v, want %s", name, n, version)
		}
	}
	if len(res.Plan) != 11 {
		t.Errorf("plan = %s, want 11 packages", res.Plan)
	}
}
