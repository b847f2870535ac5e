package semver

import (
	"slices"
	"strings"
)

// Set is a union of disjoint version intervals, held in ascending order.
// The zero value is the empty set.
//
// Sets form a boolean algebra under [Set.Intersect], [Set.Union], and
// [Set.Complement]: intersection is associative and commutative, and the
// empty set is an ordinary value rather than an error condition. The
// resolver relies on emptiness checks to prune unsatisfiable branches.
//
// Sets are immutable; all operations return new values.
type Set struct {
	intervals []interval
}

// bound is one endpoint of an interval. An unbounded endpoint extends the
// interval to negative or positive infinity depending on its position.
type bound struct {
	version   Version
	inclusive bool
	unbounded bool
}

// interval is a contiguous, non-empty version range.
type interval struct {
	lo, hi bound
}

// Empty returns the set containing no versions.
func Empty() Set { return Set{} }

// Full returns the set containing every version.
func Full() Set {
	return Set{intervals: []interval{{
		lo: bound{unbounded: true},
		hi: bound{unbounded: true},
	}}}
}

// Only returns the set containing exactly v.
func Only(v Version) Set {
	return Set{intervals: []interval{{
		lo: bound{version: v, inclusive: true},
		hi: bound{version: v, inclusive: true},
	}}}
}

// AtLeast returns the set of versions >= v.
func AtLeast(v Version) Set {
	return Set{intervals: []interval{{
		lo: bound{version: v, inclusive: true},
		hi: bound{unbounded: true},
	}}}
}

// Above returns the set of versions > v.
func Above(v Version) Set {
	return Set{intervals: []interval{{
		lo: bound{version: v},
		hi: bound{unbounded: true},
	}}}
}

// Below returns the set of versions < v.
func Below(v Version) Set {
	return Set{intervals: []interval{{
		lo: bound{unbounded: true},
		hi: bound{version: v},
	}}}
}

// AtMost returns the set of versions <= v.
func AtMost(v Version) Set {
	return Set{intervals: []interval{{
		lo: bound{unbounded: true},
		hi: bound{version: v, inclusive: true},
	}}}
}

// Between returns the half-open set of versions >= lo and < hi.
// Returns the empty set if hi <= lo.
func Between(lo, hi Version) Set {
	iv := interval{
		lo: bound{version: lo, inclusive: true},
		hi: bound{version: hi},
	}
	if !iv.valid() {
		return Empty()
	}
	return Set{intervals: []interval{iv}}
}

// IsEmpty reports whether the set contains no versions.
func (s Set) IsEmpty() bool { return len(s.intervals) == 0 }

// IsFull reports whether the set contains every version.
func (s Set) IsFull() bool {
	return len(s.intervals) == 1 && s.intervals[0].lo.unbounded && s.intervals[0].hi.unbounded
}

// Contains reports whether v is a member of the set.
func (s Set) Contains(v Version) bool {
	for _, iv := range s.intervals {
		if iv.contains(v) {
			return true
		}
	}
	return false
}

// Floor returns the lowest version the set admits as a lower bound.
// Returns false when the set is empty or unbounded below.
func (s Set) Floor() (Version, bool) {
	if len(s.intervals) == 0 || s.intervals[0].lo.unbounded {
		return Version{}, false
	}
	return s.intervals[0].lo.version, true
}

// AsExact returns the single version the set contains, if the set is a
// one-point interval. Used to collapse "=V" terms in conflict reports.
func (s Set) AsExact() (Version, bool) {
	if len(s.intervals) != 1 {
		return Version{}, false
	}
	iv := s.intervals[0]
	if iv.lo.unbounded || iv.hi.unbounded || !iv.lo.inclusive || !iv.hi.inclusive {
		return Version{}, false
	}
	if !iv.lo.version.Equal(iv.hi.version) {
		return Version{}, false
	}
	return iv.lo.version, true
}

// Intersect returns the set of versions contained in both s and o.
func (s Set) Intersect(o Set) Set {
	var out []interval
	i, j := 0, 0
	for i < len(s.intervals) && j < len(o.intervals) {
		a, b := s.intervals[i], o.intervals[j]
		iv := interval{
			lo: maxLower(a.lo, b.lo),
			hi: minUpper(a.hi, b.hi),
		}
		if iv.valid() {
			out = append(out, iv)
		}
		// Advance whichever interval ends first.
		if compareUpper(a.hi, b.hi) <= 0 {
			i++
		} else {
			j++
		}
	}
	return Set{intervals: out}
}

// Union returns the set of versions contained in either s or o.
// Overlapping and touching intervals are coalesced.
func (s Set) Union(o Set) Set {
	merged := make([]interval, 0, len(s.intervals)+len(o.intervals))
	merged = append(merged, s.intervals...)
	merged = append(merged, o.intervals...)
	slices.SortFunc(merged, func(a, b interval) int {
		return compareLower(a.lo, b.lo)
	})

	var out []interval
	for _, iv := range merged {
		if len(out) == 0 {
			out = append(out, iv)
			continue
		}
		last := &out[len(out)-1]
		if touches(last.hi, iv.lo) {
			if compareUpper(iv.hi, last.hi) > 0 {
				last.hi = iv.hi
			}
			continue
		}
		out = append(out, iv)
	}
	return Set{intervals: out}
}

// Complement returns the set of versions not contained in s.
func (s Set) Complement() Set {
	if len(s.intervals) == 0 {
		return Full()
	}
	var out []interval
	first := s.intervals[0]
	if !first.lo.unbounded {
		out = append(out, interval{
			lo: bound{unbounded: true},
			hi: bound{version: first.lo.version, inclusive: !first.lo.inclusive},
		})
	}
	for k := 0; k+1 < len(s.intervals); k++ {
		hi := s.intervals[k].hi
		lo := s.intervals[k+1].lo
		out = append(out, interval{
			lo: bound{version: hi.version, inclusive: !hi.inclusive},
			hi: bound{version: lo.version, inclusive: !lo.inclusive},
		})
	}
	last := s.intervals[len(s.intervals)-1]
	if !last.hi.unbounded {
		out = append(out, interval{
			lo: bound{version: last.hi.version, inclusive: !last.hi.inclusive},
			hi: bound{unbounded: true},
		})
	}
	return Set{intervals: out}
}

// AllowsAll reports whether every version in o is also in s (o ⊆ s).
func (s Set) AllowsAll(o Set) bool {
	return o.Intersect(s.Complement()).IsEmpty()
}

// AllowsAny reports whether s and o share at least one version.
func (s Set) AllowsAny(o Set) bool {
	return !s.Intersect(o).IsEmpty()
}

// Equal reports whether s and o contain exactly the same versions.
func (s Set) Equal(o Set) bool {
	if len(s.intervals) != len(o.intervals) {
		return false
	}
	for i := range s.intervals {
		if !boundEqual(s.intervals[i].lo, o.intervals[i].lo) ||
			!boundEqual(s.intervals[i].hi, o.intervals[i].hi) {
			return false
		}
	}
	return true
}

// String renders the set in requirement syntax: "*" for the full set,
// "=1.2.3" for single versions, ">=1.0.0, <2.0.0" for ranges, and
// " || " between disjoint intervals. The empty set renders as "<empty>".
func (s Set) String() string {
	if s.IsEmpty() {
		return "<empty>"
	}
	if s.IsFull() {
		return "*"
	}
	parts := make([]string, len(s.intervals))
	for i, iv := range s.intervals {
		parts[i] = iv.String()
	}
	return strings.Join(parts, " || ")
}

func (iv interval) String() string {
	if !iv.lo.unbounded && !iv.hi.unbounded &&
		iv.lo.inclusive && iv.hi.inclusive && iv.lo.version.Equal(iv.hi.version) {
		return "=" + iv.lo.version.String()
	}
	var parts []string
	if !iv.lo.unbounded {
		op := ">"
		if iv.lo.inclusive {
			op = ">="
		}
		parts = append(parts, op+iv.lo.version.String())
	}
	if !iv.hi.unbounded {
		op := "<"
		if iv.hi.inclusive {
			op = "<="
		}
		parts = append(parts, op+iv.hi.version.String())
	}
	return strings.Join(parts, ", ")
}

func (iv interval) contains(v Version) bool {
	if !iv.lo.unbounded {
		c := v.Compare(iv.lo.version)
		if c < 0 || (c == 0 && !iv.lo.inclusive) {
			return false
		}
	}
	if !iv.hi.unbounded {
		c := v.Compare(iv.hi.version)
		if c > 0 || (c == 0 && !iv.hi.inclusive) {
			return false
		}
	}
	return true
}

// valid reports whether the interval contains at least one version.
func (iv interval) valid() bool {
	if iv.lo.unbounded || iv.hi.unbounded {
		return true
	}
	c := iv.lo.version.Compare(iv.hi.version)
	if c < 0 {
		return true
	}
	return c == 0 && iv.lo.inclusive && iv.hi.inclusive
}

func boundEqual(a, b bound) bool {
	if a.unbounded != b.unbounded {
		return false
	}
	if a.unbounded {
		return true
	}
	return a.inclusive == b.inclusive && a.version.Equal(b.version)
}

// compareLower orders two lower bounds. Unbounded sorts first; at equal
// versions an inclusive bound starts earlier than an exclusive one.
func compareLower(a, b bound) int {
	switch {
	case a.unbounded && b.unbounded:
		return 0
	case a.unbounded:
		return -1
	case b.unbounded:
		return 1
	}
	if c := a.version.Compare(b.version); c != 0 {
		return c
	}
	switch {
	case a.inclusive == b.inclusive:
		return 0
	case a.inclusive:
		return -1
	}
	return 1
}

// compareUpper orders two upper bounds. Unbounded sorts last; at equal
// versions an exclusive bound ends earlier than an inclusive one.
func compareUpper(a, b bound) int {
	switch {
	case a.unbounded && b.unbounded:
		return 0
	case a.unbounded:
		return 1
	case b.unbounded:
		return -1
	}
	if c := a.version.Compare(b.version); c != 0 {
		return c
	}
	switch {
	case a.inclusive == b.inclusive:
		return 0
	case a.inclusive:
		return 1
	}
	return -1
}

func maxLower(a, b bound) bound {
	if compareLower(a, b) >= 0 {
		return a
	}
	return b
}

func minUpper(a, b bound) bound {
	if compareUpper(a, b) <= 0 {
		return a
	}
	return b
}

// touches reports whether an interval ending at upper bound hi connects to
// one starting at lower bound lo, either by overlap or by meeting at a
// shared version with at least one inclusive side.
func touches(hi, lo bound) bool {
	if hi.unbounded || lo.unbounded {
		return true
	}
	c := lo.version.Compare(hi.version)
	if c < 0 {
		return true
	}
	return c == 0 && (hi.inclusive || lo.inclusive)
}
