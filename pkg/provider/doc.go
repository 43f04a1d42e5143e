// Package provider implements [deps.Provider] decorators and in-memory
// providers.
//
// [Caching] puts a [cache.Cache] and a retry policy in front of a registry
// client. It is the provider the resolver talks to in production:
//
//	upstream := pypi.NewClient("", logger)
//	p := provider.NewCaching(upstream, c, logger)
//	releases, err := p.FetchVersions(ctx, "requests")
//
// [Snapshot] serves a frozen set of releases and artifacts from memory. It
// backs the mirror server, `quiver plan --index` and most resolver tests.
package provider
