package source

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/matzehuels/hoist/pkg/errors"
)

// Kind classifies where a source's packages live.
type Kind string

const (
	// KindPath is a local directory holding a single package.
	KindPath Kind = "path"

	// KindRegistry is an HTTP package registry.
	KindRegistry Kind = "registry"
)

// DefaultRegistryURL is the registry consulted when a dependency names
// no explicit source.
const DefaultRegistryURL = "https://registry.hoist.sh"

// ID identifies a source of packages.
//
// An ID renders as a pretty URL that round-trips through [ParseID]:
//
//	path+file:///home/user/project
//	registry+https://registry.hoist.sh
//	pinned+registry+https://registry.hoist.sh#sha256:9f2c…
//
// The pin suffix fixes the expected manifest checksum; a pinned ID can
// lock its loose counterpart (see [ID.CanLock]). IDs are comparable and
// usable as map keys.
type ID struct {
	kind Kind
	url  string
	pin  string
}

// Path creates the identity of a local directory source.
// The directory is made absolute so that equal directories always
// produce equal IDs.
func Path(dir string) (ID, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ID{}, errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve path source %q", dir)
	}
	return ID{kind: KindPath, url: "file://" + filepath.ToSlash(abs)}, nil
}

// Registry creates the identity of an HTTP registry source.
func Registry(rawURL string) (ID, error) {
	if err := errors.ValidateURL(rawURL); err != nil {
		return ID{}, err
	}
	return ID{kind: KindRegistry, url: strings.TrimSuffix(rawURL, "/")}, nil
}

// DefaultRegistry returns the identity of the default registry.
func DefaultRegistry() ID {
	id, err := Registry(DefaultRegistryURL)
	if err != nil {
		panic(err)
	}
	return id
}

// Pinned derives an identity fixed to an expected manifest checksum.
// The revision uses the same "sha256:…" format as lockfile checksums.
func Pinned(inner ID, revision string) (ID, error) {
	if inner.IsZero() {
		return ID{}, errors.New(errors.ErrCodeInvalidSource, "cannot pin an empty source")
	}
	if inner.pin != "" {
		return ID{}, errors.New(errors.ErrCodeInvalidSource, "source %s is already pinned", inner)
	}
	if revision == "" {
		return ID{}, errors.New(errors.ErrCodeInvalidSource, "pin revision cannot be empty")
	}
	return ID{kind: inner.kind, url: inner.url, pin: revision}, nil
}

// ParseID parses a pretty URL back into an ID.
func ParseID(s string) (ID, error) {
	rest := s
	pin := ""
	if cut, ok := strings.CutPrefix(rest, "pinned+"); ok {
		hash := strings.LastIndex(cut, "#")
		if hash < 0 || hash == len(cut)-1 {
			return ID{}, errors.New(errors.ErrCodeInvalidSource, "pinned source %q has no revision", s)
		}
		rest, pin = cut[:hash], cut[hash+1:]
	}

	kindStr, rawURL, ok := strings.Cut(rest, "+")
	if !ok {
		return ID{}, errors.New(errors.ErrCodeInvalidSource, "source %q has no kind prefix", s)
	}

	var id ID
	var err error
	switch Kind(kindStr) {
	case KindPath:
		u, uerr := url.Parse(rawURL)
		if uerr != nil || u.Scheme != "file" {
			return ID{}, errors.New(errors.ErrCodeInvalidSource, "path source %q must use a file:// URL", s)
		}
		id = ID{kind: KindPath, url: rawURL}
	case KindRegistry:
		id, err = Registry(rawURL)
		if err != nil {
			return ID{}, err
		}
	default:
		return ID{}, errors.New(errors.ErrCodeInvalidSource, "unknown source kind %q", kindStr)
	}

	if pin != "" {
		return Pinned(id, pin)
	}
	return id, nil
}

// Kind returns the source kind, independent of pinning.
func (id ID) Kind() Kind { return id.kind }

// URL returns the canonical location URL.
func (id ID) URL() string { return id.url }

// Pin returns the pinned revision, or "" for loose sources.
func (id ID) Pin() string { return id.pin }

// IsPinned reports whether the identity carries a pin revision.
func (id ID) IsPinned() bool { return id.pin != "" }

// Unpinned returns the identity without its pin revision.
func (id ID) Unpinned() ID { return ID{kind: id.kind, url: id.url} }

// IsZero reports whether the identity is unset. Lockfile entries for
// local packages omit their source and parse to the zero ID.
func (id ID) IsZero() bool { return id == ID{} }

// IsDefaultRegistry reports whether the identity is the loose default
// registry.
func (id ID) IsDefaultRegistry() bool {
	return id.kind == KindRegistry && id.url == DefaultRegistryURL && id.pin == ""
}

// Dir returns the local directory of a path source, or "" for other
// kinds.
func (id ID) Dir() string {
	if id.kind != KindPath {
		return ""
	}
	return filepath.FromSlash(strings.TrimPrefix(id.url, "file://"))
}

// String renders the pretty URL form.
func (id ID) String() string {
	if id.IsZero() {
		return ""
	}
	if id.pin != "" {
		return fmt.Sprintf("pinned+%s+%s#%s", id.kind, id.url, id.pin)
	}
	return fmt.Sprintf("%s+%s", id.kind, id.url)
}

// Ident returns a short filesystem- and log-friendly label: the host
// (or last path element for local sources) plus a 16-hex-digit hash of
// the full identity.
func (id ID) Ident() string {
	label := "local"
	if u, err := url.Parse(id.url); err == nil {
		switch {
		case u.Host != "":
			label = u.Host
		case u.Path != "":
			if base := path.Base(u.Path); base != "/" && base != "." {
				label = base
			}
		}
	}
	return fmt.Sprintf("%s-%016x", label, xxhash.Sum64String(id.String()))
}

// Compare orders identities lexicographically by their pretty URL.
// Used wherever source order must be deterministic.
func (id ID) Compare(other ID) int {
	return strings.Compare(id.String(), other.String())
}

// CanLock reports whether this identity can lock a dependency declared
// against other. Identical identities always lock; a pinned identity
// additionally locks its loose counterpart.
func (id ID) CanLock(other ID) bool {
	if id == other {
		return true
	}
	return id.pin != "" && other.pin == "" && id.kind == other.kind && id.url == other.url
}
