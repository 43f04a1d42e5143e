// Package pkg provides the core libraries of quiver, a package manager
// front end built around a backtracking resolver and a tiered cache.
//
// # Overview
//
// Quiver reads a project manifest, resolves one version per package against
// a registry, and installs the resulting plan into a local directory. The
// pkg directory is organized into five areas:
//
//  1. Resolution: [semver], [deps], [resolver], [dag]
//  2. Caching: [cache] and its durable backends
//  3. Registries: [integrations], [provider], [mirror]
//  4. Installation: [installer], [manifest]
//  5. Orchestration: [pipeline], [render], [observability]
//
// # Architecture
//
// The typical data flow through quiver:
//
//	quiver.toml
//	     ↓
//	[manifest] (root requirements + settings)
//	     ↓
//	[resolver] ←→ [provider] ←→ [cache] ←→ registry client
//	     ↓
//	install plan (dependencies first)
//	     ↓
//	[installer] ←→ [cache] (artifacts) → install dir + registry.json
//
// # Quick Start
//
//	m, _ := manifest.Load("quiver.toml")
//	opts := pipeline.FromManifest(m, ".").ApplyEnv()
//	runner, err := pipeline.NewRunner(ctx, opts)
//	if err != nil {
//	    return err
//	}
//	defer runner.Close()
//
//	roots, _ := m.Roots(false)
//	result, err := runner.Execute(ctx, roots)
//
// # Main Packages
//
// [semver] parses versions (including PEP 440 spellings) and constraints
// (caret, tilde, compatible-release, ranges and unions).
//
// [resolver] selects versions depth-first with backtracking, prefetching
// metadata from a worker pool, and reports conflicts and cycles with the
// chain of requirements that led to them.
//
// [cache] layers a bounded in-memory LRU, a negative cache and a bloom
// filter over a durable backend: a directory tree, badger, redis or mongo.
//
// [installer] downloads, verifies and extracts artifacts in plan order,
// running independent packages in parallel.
//
// [mirror] serves an index of packages over HTTP so that projects can
// resolve against it with the "index" registry kind.
//
// [semver]: https://pkg.go.dev/github.com/matzehuels/quiver/pkg/semver
// [deps]: https://pkg.go.dev/github.com/matzehuels/quiver/pkg/deps
// [resolver]: https://pkg.go.dev/github.com/matzehuels/quiver/pkg/resolver
// [dag]: https://pkg.go.dev/github.com/matzehuels/quiver/pkg/dag
// [cache]: https://pkg.go.dev/github.com/matzehuels/quiver/pkg/cache
// [integrations]: https://pkg.go.dev/github.com/matzehuels/quiver/pkg/integrations
// [provider]: https://pkg.go.dev/github.com/matzehuels/quiver/pkg/provider
// [mirror]: https://pkg.go.dev/github.com/matzehuels/quiver/pkg/mirror
// [installer]: https://pkg.go.dev/github.com/matzehuels/quiver/pkg/installer
// [manifest]: https://pkg.go.dev/github.com/matzehuels/quiver/pkg/manifest
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/quiver/pkg/pipeline
// [render]: https://pkg.go.dev/github.com/matzehuels/quiver/pkg/render
// [observability]: https://pkg.go.dev/github.com/matzehuels/quiver/pkg/observability
package pkg
