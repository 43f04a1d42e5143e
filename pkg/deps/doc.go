// Package deps defines the vocabulary shared by the resolver, the cache-backed
// metadata provider, the registry clients and the installer.
//
// # Requirements and Releases
//
// A [Requirement] names a package and the range of versions acceptable to
// whoever declared it. A [Release] is one published version of a package
// and the requirements that version declares. Package names are always
// stored in the canonical form produced by [NormalizeName].
//
// # Collaborator Interfaces
//
// The resolver sees registries only through [Provider]:
//
//	releases, err := provider.FetchVersions(ctx, "requests")
//
// and the installer downloads through [ArtifactSource]. Both are implemented
// by the registry clients in pkg/integrations and wrapped with caching and
// retries by pkg/provider.
package deps
