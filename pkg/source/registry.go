package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/matzehuels/hoist/pkg/cache"
	hoisterrors "github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/registry"
	"github.com/matzehuels/hoist/pkg/semver"
)

// RegistrySource serves packages from an HTTP registry through a
// caching client. Cache keys are scoped by the registry identity so
// mirrors with equal package names never collide in a shared backend.
type RegistrySource struct {
	id     ID
	client *registry.Client
}

// NewRegistrySource creates a source for the registry identified by
// id, which must be a loose registry identity.
func NewRegistrySource(id ID, opts registry.ClientOptions) (*RegistrySource, error) {
	if id.Kind() != KindRegistry || id.IsPinned() {
		return nil, hoisterrors.New(hoisterrors.ErrCodeInvalidSource, "%s is not a registry source", id)
	}
	opts = opts.WithDefaults()
	opts.Keyer = cache.NewScopedKeyer(opts.Keyer, id.Ident()+":")
	return &RegistrySource{
		id:     id,
		client: registry.NewClient(id.URL(), opts),
	}, nil
}

// ID returns the identity of this source.
func (s *RegistrySource) ID() ID { return s.id }

// ListVersions returns the published versions of a package, sorted
// ascending. An unpublished package yields an empty slice.
func (s *RegistrySource) ListVersions(ctx context.Context, name string) ([]semver.Version, error) {
	idx, err := s.client.Index(ctx, name)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	versions := make([]semver.Version, 0, len(idx.Versions))
	for _, entry := range idx.Versions {
		v, err := semver.Parse(entry.Version)
		if err != nil {
			return nil, hoisterrors.Wrap(hoisterrors.ErrCodeInvalidVersion, err, "index entry %s@%s", name, entry.Version)
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// FetchManifest downloads and parses the manifest of one published
// version. The snapshot checksum covers the exact bytes served by the
// registry.
func (s *RegistrySource) FetchManifest(ctx context.Context, pkg PackageID) (*ManifestSnapshot, error) {
	data, err := s.client.Manifest(ctx, pkg.Name, pkg.Version.String())
	if errors.Is(err, registry.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pkg)
	}
	if err != nil {
		return nil, err
	}

	m, err := manifest.Parse(data)
	if err != nil {
		return nil, hoisterrors.Wrap(hoisterrors.ErrCodeInvalidManifest, err, "manifest for %s", pkg)
	}
	if m.Package.Name != pkg.Name || !m.Package.Version.Equal(pkg.Version) {
		return nil, hoisterrors.New(hoisterrors.ErrCodeInvalidManifest,
			"registry served %s v%s for %s", m.Package.Name, m.Package.Version, pkg)
	}

	return &ManifestSnapshot{Manifest: m, Checksum: ChecksumOf(data)}, nil
}

// Ensure RegistrySource implements Source.
var _ Source = (*RegistrySource)(nil)
