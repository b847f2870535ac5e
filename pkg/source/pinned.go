package source

import (
	"context"
	"fmt"

	"github.com/matzehuels/hoist/pkg/semver"
)

// PinnedSource wraps another source and verifies every fetched
// manifest against a fixed revision. Verification failures are fatal;
// resolution never retries past a checksum mismatch.
type PinnedSource struct {
	id    ID
	inner Source
}

// NewPinnedSource wraps inner so that all manifests must hash to
// revision ("sha256:…").
func NewPinnedSource(inner Source, revision string) (*PinnedSource, error) {
	id, err := Pinned(inner.ID(), revision)
	if err != nil {
		return nil, err
	}
	return &PinnedSource{id: id, inner: inner}, nil
}

// ID returns the pinned identity.
func (s *PinnedSource) ID() ID { return s.id }

// ListVersions delegates to the wrapped source.
func (s *PinnedSource) ListVersions(ctx context.Context, name string) ([]semver.Version, error) {
	return s.inner.ListVersions(ctx, name)
}

// FetchManifest delegates to the wrapped source and verifies the
// snapshot checksum against the pin. A snapshot without a checksum
// cannot be verified and fails the same way.
func (s *PinnedSource) FetchManifest(ctx context.Context, pkg PackageID) (*ManifestSnapshot, error) {
	snap, err := s.inner.FetchManifest(ctx, pkg)
	if err != nil {
		return nil, err
	}
	if snap.Checksum != s.id.Pin() {
		return nil, fmt.Errorf("%w: %s: got %q, want %q", ErrChecksumMismatch, pkg, snap.Checksum, s.id.Pin())
	}
	return snap, nil
}

// Ensure PinnedSource implements Source.
var _ Source = (*PinnedSource)(nil)
