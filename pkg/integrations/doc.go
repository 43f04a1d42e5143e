// Package integrations provides HTTP clients for package registry APIs.
//
// # Overview
//
// Each registry has its own subpackage, and every client implements both
// [deps.Provider] (release metadata) and [deps.ArtifactSource] (downloads):
//
//   - [index]: the quiver index protocol, served by pkg/mirror
//   - [pypi]: the Python Package Index JSON API
//   - [rubygems]: the RubyGems.org API
//
// # Client Pattern
//
// All registry clients follow a consistent pattern:
//
//	client := pypi.NewClient("https://pypi.org/pypi", logger)
//	releases, err := client.FetchVersions(ctx, "fastapi")
//	art, err := client.FetchArtifact(ctx, "fastapi", releases[0].Version)
//
// Clients do not cache and do not retry. Both happen in the caching
// provider (pkg/provider), which sits between the resolver and a client.
//
// # Shared Infrastructure
//
// The [Client] type provides the HTTP plumbing used by all registry clients:
// default headers, a request timeout, HTTP hooks, and status mapping:
//
//   - 404 becomes [ErrNotFound]
//   - 429 becomes a retryable rate-limit error
//   - 5xx and transport failures become retryable [ErrNetwork]
//
// # Adding a New Registry
//
//  1. Create a subpackage: pkg/integrations/<registry>/
//  2. Define response structs matching the API schema
//  3. Implement FetchVersions and FetchArtifact on a Client
//  4. Use [NewClient] for HTTP
//  5. Add a registry kind in pkg/pipeline
//
// [index]: github.com/matzehuels/quiver/pkg/integrations/index
// [pypi]: github.com/matzehuels/quiver/pkg/integrations/pypi
// [rubygems]: github.com/matzehuels/quiver/pkg/integrations/rubygems
// [deps.Provider]: github.com/matzehuels/quiver/pkg/deps.Provider
// [deps.ArtifactSource]: github.com/matzehuels/quiver/pkg/deps.ArtifactSource
package integrations
