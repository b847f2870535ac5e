package semver

import (
	"strings"

	"github.com/matzehuels/hoist/pkg/errors"
)

// Req is a parsed version requirement expression.
//
// Supported syntax, following Cargo-style conventions:
//   - bare versions are caret shorthand: "1.2.3" means "^1.2.3"
//   - caret: "^1.2.3" (compatible within the leftmost non-zero component)
//   - tilde: "~1.2.3" (patch-level changes only)
//   - comparison: "=1.2", ">=1.0, <2.0", ">1", "<=0.4.1"
//   - wildcards: "*", "1.*", "1.2.*"
//
// Partial versions are filled per operator semantics, so ">1.2" means
// ">=1.3.0" while ">=1.2" means ">=1.2.0". Comma-separated comparators
// form a conjunction.
//
// Pre-release versions match only when some comparator names a pre-release
// on the same major.minor.patch triple, so "^1.2.3" never selects
// "1.5.0-beta" but "^1.2.3-alpha" accepts "1.2.3-beta".
type Req struct {
	text string
	set  Set
}

// Any returns the requirement accepting every version.
func Any() Req {
	return Req{text: "*", set: Full()}
}

// ParseReq parses a requirement expression.
func ParseReq(text string) (Req, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Req{}, errors.New(errors.ErrCodeInvalidRequirement, "requirement cannot be empty")
	}
	if isWildcardToken(s) {
		return Any(), nil
	}

	set := Full()
	for _, piece := range strings.Split(s, ",") {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			return Req{}, errors.New(errors.ErrCodeInvalidRequirement, "empty comparator in %q", text)
		}
		cs, err := parseComparator(piece)
		if err != nil {
			return Req{}, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "invalid requirement %q", text)
		}
		set = set.Intersect(cs)
	}
	return Req{text: s, set: set}, nil
}

// MustParseReq is like [ParseReq] but panics on error. Intended for tests.
func MustParseReq(text string) Req {
	r, err := ParseReq(text)
	if err != nil {
		panic(err)
	}
	return r
}

// Matches reports whether v satisfies the requirement, including the
// pre-release gating rule described on [Req].
func (r Req) Matches(v Version) bool {
	if v.IsPrerelease() && !r.set.AllowsPrerelease(v) {
		return false
	}
	return r.set.Contains(v)
}

// Set returns the version set the requirement lowers to.
func (r Req) Set() Set { return r.set }

// String returns the requirement as written.
func (r Req) String() string { return r.text }

// IsAny reports whether the requirement accepts every version.
func (r Req) IsAny() bool { return r.set.IsFull() }

// AllowsPrerelease reports whether v, a pre-release version, is explicitly
// admitted by the set: some bounded interval endpoint carries a pre-release
// tag on the same major.minor.patch triple as v.
func (s Set) AllowsPrerelease(v Version) bool {
	for _, iv := range s.intervals {
		if endpointAnchorsPre(iv.lo, v) || endpointAnchorsPre(iv.hi, v) {
			return true
		}
	}
	return false
}

func endpointAnchorsPre(b bound, v Version) bool {
	return !b.unbounded && b.version.Pre != "" &&
		b.version.Major == v.Major && b.version.Minor == v.Minor && b.version.Patch == v.Patch
}

func isWildcardToken(s string) bool {
	return s == "*" || s == "x" || s == "X"
}

// partial is a version with optional minor and patch components, as written
// in a comparator. Wildcard components ("1.2.*") are recorded separately
// because they force exact-range semantics instead of caret shorthand.
type partial struct {
	major    uint64
	minor    *uint64
	patch    *uint64
	pre      string
	wildcard bool
}

func parseComparator(piece string) (Set, error) {
	op := ""
	rest := piece
	for _, candidate := range []string{">=", "<=", ">", "<", "=", "^", "~"} {
		if strings.HasPrefix(piece, candidate) {
			op = candidate
			rest = strings.TrimSpace(piece[len(candidate):])
			break
		}
	}
	if rest == "" {
		return Set{}, errors.New(errors.ErrCodeInvalidRequirement, "missing version after %q", op)
	}

	pv, err := parsePartial(rest)
	if err != nil {
		return Set{}, err
	}
	if pv.wildcard && op != "" {
		return Set{}, errors.New(errors.ErrCodeInvalidRequirement, "wildcard version cannot follow operator %q", op)
	}

	switch op {
	case "", "^":
		if pv.wildcard {
			return exactRange(pv), nil
		}
		return caretRange(pv), nil
	case "~":
		return tildeRange(pv), nil
	case "=":
		return exactRange(pv), nil
	case ">":
		return greaterRange(pv), nil
	case ">=":
		return AtLeast(pv.floor()), nil
	case "<":
		return Below(pv.floor()), nil
	case "<=":
		return atMostRange(pv), nil
	}
	return Set{}, errors.New(errors.ErrCodeInvalidRequirement, "unknown operator %q", op)
}

func parsePartial(s string) (partial, error) {
	var pv partial

	if i := strings.IndexByte(s, '+'); i >= 0 {
		// Build metadata is accepted and ignored, per precedence rules.
		s = s[:i]
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		pv.pre = s[i+1:]
		s = s[:i]
		if err := validatePre(pv.pre); err != nil {
			return partial{}, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "invalid pre-release")
		}
	}

	comps := strings.Split(s, ".")
	if len(comps) == 0 || len(comps) > 3 {
		return partial{}, errors.New(errors.ErrCodeInvalidRequirement, "version %q must have one to three components", s)
	}

	major, err := parseNumericComponent(comps[0])
	if err != nil {
		return partial{}, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "invalid major component")
	}
	pv.major = major

	for i, comp := range comps[1:] {
		if isWildcardToken(comp) {
			pv.wildcard = true
			if i == 0 && len(comps) == 3 && !isWildcardToken(comps[2]) {
				return partial{}, errors.New(errors.ErrCodeInvalidRequirement, "wildcard minor with explicit patch in %q", s)
			}
			break
		}
		n, err := parseNumericComponent(comp)
		if err != nil {
			return partial{}, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "invalid component %q", comp)
		}
		if i == 0 {
			pv.minor = &n
		} else {
			pv.patch = &n
		}
	}

	if pv.pre != "" && (pv.patch == nil || pv.wildcard) {
		return partial{}, errors.New(errors.ErrCodeInvalidRequirement, "pre-release requires a full major.minor.patch version")
	}
	return pv, nil
}

// floor returns the lowest version the partial denotes, with omitted
// components as zero.
func (pv partial) floor() Version {
	v := Version{Major: pv.major, Pre: pv.pre}
	if pv.minor != nil {
		v.Minor = *pv.minor
	}
	if pv.patch != nil {
		v.Patch = *pv.patch
	}
	return v
}

// caretRange lowers "^I.J.K": compatible releases keep the leftmost
// non-zero component fixed.
func caretRange(pv partial) Set {
	lo := pv.floor()
	var hi Version
	switch {
	case pv.major > 0:
		hi = Version{Major: pv.major + 1}
	case pv.minor == nil:
		hi = Version{Major: 1}
	case *pv.minor > 0:
		hi = Version{Minor: *pv.minor + 1}
	case pv.patch == nil:
		hi = Version{Minor: 1}
	default:
		hi = Version{Patch: *pv.patch + 1}
	}
	return Between(lo, hi)
}

// tildeRange lowers "~I.J.K": patch-level changes when minor is given,
// otherwise equivalent to "^I".
func tildeRange(pv partial) Set {
	lo := pv.floor()
	var hi Version
	if pv.minor == nil {
		hi = Version{Major: pv.major + 1}
	} else {
		hi = Version{Major: pv.major, Minor: *pv.minor + 1}
	}
	return Between(lo, hi)
}

// exactRange lowers "=I.J.K" to a single version, and partial forms to the
// range they denote ("=1.2" accepts every 1.2.x).
func exactRange(pv partial) Set {
	switch {
	case pv.patch != nil:
		return Only(pv.floor())
	case pv.minor != nil:
		return Between(pv.floor(), Version{Major: pv.major, Minor: *pv.minor + 1})
	default:
		return Between(pv.floor(), Version{Major: pv.major + 1})
	}
}

// greaterRange lowers ">I.J.K". Partial forms step to the next component:
// ">1.2" means ">=1.3.0" and ">1" means ">=2.0.0".
func greaterRange(pv partial) Set {
	switch {
	case pv.patch != nil:
		return Above(pv.floor())
	case pv.minor != nil:
		return AtLeast(Version{Major: pv.major, Minor: *pv.minor + 1})
	default:
		return AtLeast(Version{Major: pv.major + 1})
	}
}

// atMostRange lowers "<=I.J.K". Partial forms cover the whole component:
// "<=1.2" accepts every 1.2.x.
func atMostRange(pv partial) Set {
	switch {
	case pv.patch != nil:
		return AtMost(pv.floor())
	case pv.minor != nil:
		return Below(Version{Major: pv.major, Minor: *pv.minor + 1})
	default:
		return Below(Version{Major: pv.major + 1})
	}
}
