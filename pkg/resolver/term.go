package resolver

import "github.com/matzehuels/hoist/pkg/semver"

// term is a statement about one package: its version must lie in the set
// (positive) or must not (negative). A package that is never selected
// satisfies every negative term and no positive term.
//
// Packages are referenced by arena index; names only appear when a term
// is formatted for output.
type term struct {
	pkg      int
	set      semver.Set
	positive bool
}

func pos(pkg int, set semver.Set) term { return term{pkg: pkg, set: set, positive: true} }
func neg(pkg int, set semver.Set) term { return term{pkg: pkg, set: set} }

// negate flips the statement.
func (t term) negate() term { return term{pkg: t.pkg, set: t.set, positive: !t.positive} }

// intersect combines two terms about the same package into the single
// strongest statement implied by both.
func (t term) intersect(o term) term {
	switch {
	case t.positive && o.positive:
		return pos(t.pkg, t.set.Intersect(o.set))
	case t.positive:
		return pos(t.pkg, t.set.Intersect(o.set.Complement()))
	case o.positive:
		return pos(t.pkg, o.set.Intersect(t.set.Complement()))
	default:
		return neg(t.pkg, t.set.Union(o.set))
	}
}

// difference returns the part of t not covered by o.
func (t term) difference(o term) term { return t.intersect(o.negate()) }

// isEmpty reports whether no package state can satisfy the term. Negative
// terms are never empty because an unselected package satisfies them.
func (t term) isEmpty() bool { return t.positive && t.set.IsEmpty() }

// equal reports whether two terms state exactly the same thing.
func (t term) equal(o term) bool {
	return t.pkg == o.pkg && t.positive == o.positive && t.set.Equal(o.set)
}

// describeWith renders the term using a package name lookup.
func (t term) describeWith(names func(int) string) string {
	if t.positive {
		return names(t.pkg) + " " + t.set.String()
	}
	return "not " + names(t.pkg) + " " + t.set.String()
}

// relation classifies how accumulated knowledge about a package relates to
// a goal term.
type relation int

const (
	// relationSatisfied: whenever the known state holds, the term holds.
	relationSatisfied relation = iota
	// relationContradicted: the state and the term cannot both hold.
	relationContradicted
	// relationInconclusive: the state neither implies nor excludes the term.
	relationInconclusive
)

// relationTo classifies the state term against the goal term t.
func (t term) relationTo(state term) relation {
	both := t.intersect(state)
	switch {
	case both.equal(state):
		return relationSatisfied
	case both.isEmpty():
		return relationContradicted
	default:
		return relationInconclusive
	}
}
