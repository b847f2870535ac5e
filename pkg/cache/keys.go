package cache

import "fmt"

// Keyer generates cache keys for registry data.
//
// Keys embed every input that affects the cached value, so two lookups
// with different registries or versions never collide. The default
// implementation hashes its inputs; keys are opaque to callers.
type Keyer interface {
	// IndexKey generates a key for a package's version index in a registry.
	IndexKey(registry, name string) string

	// ManifestKey generates a key for a single manifest download.
	ManifestKey(registry, name, version string) string

	// HTTPKey generates a key for a raw HTTP response in a namespace.
	HTTPKey(namespace, key string) string
}

// DefaultKeyer is the standard key generator.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard key generator.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// IndexKey generates a key for a package's version index in a registry.
func (k *DefaultKeyer) IndexKey(registry, name string) string {
	return hashKey("index", registry, name)
}

// ManifestKey generates a key for a single manifest download.
func (k *DefaultKeyer) ManifestKey(registry, name, version string) string {
	return hashKey("manifest", registry, name, version)
}

// HTTPKey generates a key for a raw HTTP response in a namespace.
func (k *DefaultKeyer) HTTPKey(namespace, key string) string {
	return fmt.Sprintf("http:%s:%s", namespace, key)
}

// Ensure DefaultKeyer implements Keyer.
var _ Keyer = (*DefaultKeyer)(nil)
