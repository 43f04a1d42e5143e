// Package rubygems resolves and downloads gems from RubyGems.org.
//
// # Overview
//
// [Client] implements [deps.Provider] and [deps.ArtifactSource] on top of
// three RubyGems endpoints:
//
//   - /api/v1/versions/<gem>.json lists releases with their sha256
//   - /api/v2/rubygems/<gem>/versions/<version>.json carries the runtime
//     dependencies of one release
//   - /downloads/<gem>-<version>.gem serves the artifact
//
// # Requirements
//
// RubyGems requirement strings are translated to constraint syntax: the
// pessimistic operator "~> 1.2" becomes "~=1.2", "= 1.0" becomes "==1.0",
// and ">= 0" means any version. Development dependencies are ignored.
//
// # Usage
//
//	client := rubygems.NewClient("", logger)
//	releases, err := client.FetchVersions(ctx, "rack")
//
// Platform-specific builds (for example "x86_64-linux") are skipped; only
// pure-Ruby gems are offered to the resolver.
package rubygems
