// Package source abstracts where packages come from.
//
// A [Source] answers two questions: which versions of a package exist,
// and what a given package's manifest says. Implementations cover local
// directories ([PathSource]), HTTP registries ([RegistrySource]), and
// checksum-verifying wrappers ([PinnedSource]). A [Session] routes
// queries to registered sources and memoizes answers for one
// resolution run.
package source

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/semver"
)

// Sentinel errors returned by source operations.
var (
	// ErrNotFound is returned when a package or version does not exist
	// in a source. Resolution treats the affected candidate as
	// unavailable and continues; it does not abort the run.
	ErrNotFound = errors.New("package not found")

	// ErrChecksumMismatch is returned when fetched manifest bytes do
	// not hash to the pinned revision. It is always fatal.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Source yields candidate versions and manifests for packages.
// Implementations must be safe for concurrent use.
type Source interface {
	// ID returns the identity of this source.
	ID() ID

	// ListVersions returns all available versions of a package, sorted
	// ascending. A package unknown to the source yields an empty slice,
	// not an error.
	ListVersions(ctx context.Context, name string) ([]semver.Version, error)

	// FetchManifest retrieves the manifest of an exact package.
	// Returns [ErrNotFound] if the source has no such package and
	// [ErrChecksumMismatch] if content verification fails.
	FetchManifest(ctx context.Context, pkg PackageID) (*ManifestSnapshot, error)
}

// PackageID names one exact package: name, version, and the source it
// comes from. Two packages with equal names and versions but different
// sources are distinct. The zero Source is used for packages whose
// origin is not recorded (lockfile entries for local packages).
type PackageID struct {
	Name    string
	Version semver.Version
	Source  ID
}

// String renders "name vX.Y.Z (source)"; the source is omitted when
// unset or the default registry.
func (p PackageID) String() string {
	if p.Source.IsZero() || p.Source.IsDefaultRegistry() {
		return fmt.Sprintf("%s v%s", p.Name, p.Version)
	}
	return fmt.Sprintf("%s v%s (%s)", p.Name, p.Version, p.Source)
}

// Compare orders packages by name, then version, then source.
func (p PackageID) Compare(other PackageID) int {
	if c := strings.Compare(p.Name, other.Name); c != 0 {
		return c
	}
	if c := p.Version.Compare(other.Version); c != 0 {
		return c
	}
	return p.Source.Compare(other.Source)
}

// ManifestSnapshot is a manifest together with the checksum of the
// bytes it was parsed from. Local packages carry no checksum.
type ManifestSnapshot struct {
	Manifest *manifest.Manifest
	Checksum string
}

// ChecksumOf computes the recorded checksum form of raw manifest
// bytes: "sha256:" followed by the hex digest.
func ChecksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("sha256:%x", sum)
}

// Fetcher answers version and manifest queries for any known source.
// [*Session] is the standard implementation; tests may substitute
// their own.
type Fetcher interface {
	ListVersions(ctx context.Context, src ID, name string) ([]semver.Version, error)
	FetchManifest(ctx context.Context, pkg PackageID) (*ManifestSnapshot, error)
}

// ForDependency derives the source identity a manifest dependency
// resolves against. Path dependencies are taken relative to baseDir,
// the directory holding the declaring manifest. Dependencies without
// an explicit source use fallback (normally the default registry).
// A pin revision wraps the result in a pinned identity.
func ForDependency(dep manifest.Dependency, baseDir string, fallback ID) (ID, error) {
	var id ID
	var err error
	switch {
	case dep.Path != "":
		id, err = Path(filepath.Join(baseDir, dep.Path))
	case dep.Registry != "":
		id, err = Registry(dep.Registry)
	default:
		id = fallback
	}
	if err != nil {
		return ID{}, err
	}
	if dep.Pin != "" {
		return Pinned(id, dep.Pin)
	}
	return id, nil
}
