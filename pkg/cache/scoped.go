package cache

// ScopedKeyer wraps a Keyer with a prefix for namespace isolation.
// Registry clients use it to keep entries from different registries
// separate even when a shared backend (e.g. Redis) holds them all.
//
// Example usage:
//
//	// Keys scoped to one registry mirror
//	mirror := NewScopedKeyer(NewDefaultKeyer(), "reg:a1b2c3d4:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// IndexKey generates a prefixed key for a package's version index.
func (k *ScopedKeyer) IndexKey(registry, name string) string {
	return k.prefix + k.inner.IndexKey(registry, name)
}

// ManifestKey generates a prefixed key for a manifest download.
func (k *ScopedKeyer) ManifestKey(registry, name, version string) string {
	return k.prefix + k.inner.ManifestKey(registry, name, version)
}

// HTTPKey generates a prefixed key for a raw HTTP response.
func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}
