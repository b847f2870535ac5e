package source

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/semver"
)

// PathSource serves the single package rooted at a local directory.
// The manifest is read once and reused for the life of the source.
type PathSource struct {
	id  ID
	dir string

	once sync.Once
	snap *ManifestSnapshot
	err  error
}

// NewPathSource creates a source for the package in dir. The manifest
// is loaded lazily on first query.
func NewPathSource(dir string) (*PathSource, error) {
	id, err := Path(dir)
	if err != nil {
		return nil, err
	}
	return &PathSource{id: id, dir: id.Dir()}, nil
}

// ID returns the identity of this source.
func (s *PathSource) ID() ID { return s.id }

// ListVersions returns the package's own version when name matches,
// and an empty slice otherwise.
func (s *PathSource) ListVersions(ctx context.Context, name string) ([]semver.Version, error) {
	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	if snap.Manifest.Package.Name != name {
		return nil, nil
	}
	return []semver.Version{snap.Manifest.Package.Version}, nil
}

// FetchManifest returns the directory's manifest when pkg names it
// exactly, and [ErrNotFound] otherwise. Local packages carry no
// checksum.
func (s *PathSource) FetchManifest(ctx context.Context, pkg PackageID) (*ManifestSnapshot, error) {
	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	decl := snap.Manifest.Package
	if decl.Name != pkg.Name || !decl.Version.Equal(pkg.Version) {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, pkg, s.dir)
	}
	return snap, nil
}

func (s *PathSource) load() (*ManifestSnapshot, error) {
	s.once.Do(func() {
		m, err := manifest.Load(filepath.Join(s.dir, manifest.Filename))
		if err != nil {
			s.err = err
			return
		}
		s.snap = &ManifestSnapshot{Manifest: m}
	})
	return s.snap, s.err
}

// Ensure PathSource implements Source.
var _ Source = (*PathSource)(nil)
