package cache

import "github.com/opencontainers/go-digest"

// Keyer maps cache subjects to backend keys.
//
// Key formats:
//   - metadata: "meta:<scope>:<name>"
//   - artifact: "blob:<algorithm>:<hex>"
//
// Artifact keys are content addressed and never scoped: identical bytes
// fetched from two registries share one stored copy.
type Keyer interface {
	MetadataKey(name string) string
	ArtifactKey(d digest.Digest) string
}

// DefaultKeyer scopes metadata keys by registry.
type DefaultKeyer struct {
	Scope string
}

// NewDefaultKeyer creates a keyer for the given registry scope. An empty
// scope becomes "default".
func NewDefaultKeyer(scope string) Keyer {
	if scope == "" {
		scope = "default"
	}
	return DefaultKeyer{Scope: scope}
}

// MetadataKey returns "meta:<scope>:<name>".
func (k DefaultKeyer) MetadataKey(name string) string {
	return "meta:" + k.Scope + ":" + name
}

// ArtifactKey returns "blob:<digest>".
func (k DefaultKeyer) ArtifactKey(d digest.Digest) string {
	return "blob:" + d.String()
}

// ScopedKeyer wraps a Keyer with a prefix for multi-tenant isolation.
// This is useful when one shared backend (redis, mongo) serves several
// independent caches, for example a mirror and a developer machine.
//
// Example usage:
//
//	// Keys for a team-private mirror
//	teamKeyer := NewScopedKeyer(NewDefaultKeyer("pypi.org"), "team:abc123:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer("")
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// MetadataKey generates a prefixed metadata key.
func (k *ScopedKeyer) MetadataKey(name string) string {
	return k.prefix + k.inner.MetadataKey(name)
}

// ArtifactKey generates a prefixed artifact key.
func (k *ScopedKeyer) ArtifactKey(d digest.Digest) string {
	return k.prefix + k.inner.ArtifactKey(d)
}
