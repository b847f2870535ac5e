package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/semver"
)

// MemorySource holds packages in memory. It backs tests and acts as
// the in-process fixture registry.
type MemorySource struct {
	id ID

	mu       sync.RWMutex
	packages map[string]map[string]*ManifestSnapshot
}

// NewMemorySource creates an empty in-memory source with the given
// identity.
func NewMemorySource(id ID) *MemorySource {
	return &MemorySource{
		id:       id,
		packages: make(map[string]map[string]*ManifestSnapshot),
	}
}

// ID returns the identity of this source.
func (s *MemorySource) ID() ID { return s.id }

// Add registers a manifest under its own package name and version,
// replacing any previous snapshot. The snapshot carries no checksum;
// use [MemorySource.AddTOML] when pinning needs to verify bytes.
func (s *MemorySource) Add(m *manifest.Manifest) {
	s.AddSnapshot(&ManifestSnapshot{Manifest: m})
}

// AddTOML parses raw manifest bytes and registers the result with the
// checksum of those bytes.
func (s *MemorySource) AddTOML(data []byte) error {
	m, err := manifest.Parse(data)
	if err != nil {
		return err
	}
	s.AddSnapshot(&ManifestSnapshot{Manifest: m, Checksum: ChecksumOf(data)})
	return nil
}

// AddSnapshot registers a prebuilt snapshot.
func (s *MemorySource) AddSnapshot(snap *ManifestSnapshot) {
	name := snap.Manifest.Package.Name
	version := snap.Manifest.Package.Version.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.packages[name] == nil {
		s.packages[name] = make(map[string]*ManifestSnapshot)
	}
	s.packages[name][version] = snap
}

// ListVersions returns the registered versions of a package, sorted
// ascending.
func (s *MemorySource) ListVersions(ctx context.Context, name string) ([]semver.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byVersion := s.packages[name]
	versions := make([]semver.Version, 0, len(byVersion))
	for raw := range byVersion {
		v, err := semver.Parse(raw)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Less(versions[j]) })
	return versions, nil
}

// FetchManifest returns the registered snapshot for pkg, or
// [ErrNotFound].
func (s *MemorySource) FetchManifest(ctx context.Context, pkg PackageID) (*ManifestSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if snap, ok := s.packages[pkg.Name][pkg.Version.String()]; ok {
		return snap, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, pkg)
}

// Ensure MemorySource implements Source.
var _ Source = (*MemorySource)(nil)
