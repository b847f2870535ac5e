// Package semver implements semantic version values, version sets, and
// requirement expressions for the Hoist resolver.
//
// The package provides three layers:
//   - [Version]: an immutable major.minor.patch value with optional
//     pre-release and build metadata, totally ordered per SemVer 2.0.0.
//   - [Set]: a union of disjoint version intervals supporting intersection,
//     union, and complement. The empty set is a first-class value used by
//     the resolver to prune search branches.
//   - [Req]: a parsed requirement expression (caret, tilde, comparison
//     operators, wildcards, comma conjunctions) that matches versions and
//     lowers to a [Set].
//
// Requirement grammar follows the conventions of Cargo-style ecosystems:
// a bare version is caret shorthand, so "1.2.3" accepts everything up to
// (but excluding) the next major release.
package semver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/matzehuels/hoist/pkg/errors"
)

// Version is a semantic version value. The zero value is "0.0.0".
//
// Versions are immutable and safe to copy. Precedence follows SemVer 2.0.0:
// numeric components compare numerically, pre-release tags sort before the
// corresponding release, and build metadata is ignored.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64

	// Pre holds the dot-separated pre-release identifiers ("alpha.1").
	// Empty for release versions.
	Pre string

	// Build holds the build metadata after "+". Ignored in precedence.
	Build string
}

// Parse parses a full semantic version string ("1.2.3", "1.2.3-alpha.1",
// "1.2.3+build.5"). All three numeric components are required; use
// [ParseReq] for partial forms like "1.2".
func Parse(text string) (Version, error) {
	var v Version
	s := strings.TrimSpace(text)
	if s == "" {
		return v, errors.New(errors.ErrCodeInvalidVersion, "version cannot be empty")
	}

	if i := strings.IndexByte(s, '+'); i >= 0 {
		v.Build = s[i+1:]
		if v.Build == "" {
			return Version{}, errors.New(errors.ErrCodeInvalidVersion, "empty build metadata in %q", text)
		}
		s = s[:i]
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		v.Pre = s[i+1:]
		s = s[:i]
		if err := validatePre(v.Pre); err != nil {
			return Version{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid pre-release in %q", text)
		}
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, errors.New(errors.ErrCodeInvalidVersion, "version %q must have exactly three components", text)
	}
	var err error
	if v.Major, err = parseNumericComponent(parts[0]); err != nil {
		return Version{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid major in %q", text)
	}
	if v.Minor, err = parseNumericComponent(parts[1]); err != nil {
		return Version{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid minor in %q", text)
	}
	if v.Patch, err = parseNumericComponent(parts[2]); err != nil {
		return Version{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid patch in %q", text)
	}
	return v, nil
}

// MustParse is like [Parse] but panics on error. Intended for tests and
// compile-time constants.
func MustParse(text string) Version {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

func parseNumericComponent(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty component")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("leading zero in %q", s)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return n, nil
}

func validatePre(pre string) error {
	if pre == "" {
		return fmt.Errorf("empty pre-release")
	}
	for _, id := range strings.Split(pre, ".") {
		if id == "" {
			return fmt.Errorf("empty pre-release identifier")
		}
		numeric := true
		for _, r := range id {
			switch {
			case r >= '0' && r <= '9':
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
				numeric = false
			default:
				return fmt.Errorf("invalid character %q in pre-release", r)
			}
		}
		if numeric && len(id) > 1 && id[0] == '0' {
			return fmt.Errorf("numeric pre-release identifier %q has leading zero", id)
		}
	}
	return nil
}

// String renders the version in canonical form.
func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != "" {
		b.WriteByte('-')
		b.WriteString(v.Pre)
	}
	if v.Build != "" {
		b.WriteByte('+')
		b.WriteString(v.Build)
	}
	return b.String()
}

// IsPrerelease reports whether the version carries a pre-release tag.
func (v Version) IsPrerelease() bool { return v.Pre != "" }

// Compare returns -1, 0, or +1 if v is less than, equal to, or greater
// than o. Build metadata does not participate in precedence, so versions
// differing only in Build compare equal.
func (v Version) Compare(o Version) int {
	if c := compareUint(v.Major, o.Major); c != 0 {
		return c
	}
	if c := compareUint(v.Minor, o.Minor); c != 0 {
		return c
	}
	if c := compareUint(v.Patch, o.Patch); c != 0 {
		return c
	}
	return comparePre(v.Pre, o.Pre)
}

// Less reports whether v has lower precedence than o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Equal reports whether v and o have equal precedence.
// Build metadata is ignored, matching SemVer precedence rules.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

func compareUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// comparePre orders pre-release strings: an empty tag (release) sorts after
// any non-empty tag, identifiers compare per SemVer rules (numeric before
// alphanumeric, shorter prefix before longer).
func comparePre(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}

	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := comparePreID(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return compareUint(uint64(len(as)), uint64(len(bs)))
}

func comparePreID(a, b string) int {
	an, aNum := parsePreNumber(a)
	bn, bNum := parsePreNumber(b)
	switch {
	case aNum && bNum:
		return compareUint(an, bn)
	case aNum:
		return -1 // numeric identifiers sort before alphanumeric
	case bNum:
		return 1
	}
	return strings.Compare(a, b)
}

func parsePreNumber(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}
