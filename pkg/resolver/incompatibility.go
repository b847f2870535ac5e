package resolver

import (
	"sort"
	"strings"

	"github.com/matzehuels/hoist/pkg/semver"
)

// causeKind says where an incompatibility came from. External causes are
// facts about the world (requirements, missing versions); causeConflict
// marks a clause learned during conflict resolution.
type causeKind int

const (
	// causeRoot forces the workspace package to be selected.
	causeRoot causeKind = iota
	// causeDependency encodes one declared requirement of one version.
	causeDependency
	// causeNoVersions records that no candidate satisfies a constraint.
	causeNoVersions
	// causeUnavailable records a listed version whose manifest could not
	// be fetched.
	causeUnavailable
	// causeConflict is a clause derived from two other incompatibilities.
	causeConflict
)

// incompatibility is a set of terms that cannot all hold at once. The
// solver starts with external incompatibilities and learns derived ones;
// the left/right parents of a derived clause form the proof tree the
// conflict report is built from.
type incompatibility struct {
	terms []term
	kind  causeKind

	// Provenance for causeDependency and causeUnavailable.
	depender int
	version  semver.Version
	req      string

	// Parents of a causeConflict clause.
	left, right *incompatibility
}

// newTerms normalizes a term list: terms about the same package are
// merged by intersection and the result is ordered by package index.
func newTerms(terms ...term) []term {
	byPkg := make(map[int]term, len(terms))
	for _, t := range terms {
		if prev, ok := byPkg[t.pkg]; ok {
			byPkg[t.pkg] = prev.intersect(t)
			continue
		}
		byPkg[t.pkg] = t
	}
	out := make([]term, 0, len(byPkg))
	for _, t := range byPkg {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pkg < out[j].pkg })
	return out
}

// isFailure reports whether the incompatibility proves resolution is
// impossible: it has no terms left, or its only term requires the root
// package, which is always selected.
func (inc *incompatibility) isFailure(root int) bool {
	if len(inc.terms) == 0 {
		return true
	}
	return len(inc.terms) == 1 && inc.terms[0].pkg == root && inc.terms[0].positive
}

// describe renders the incompatibility for logs and hooks. The names
// function maps package indices to display names.
func (inc *incompatibility) describe(names func(int) string) string {
	if len(inc.terms) == 0 {
		return "no solution"
	}
	var b strings.Builder
	for i, t := range inc.terms {
		if i > 0 {
			b.WriteString(" and ")
		}
		b.WriteString(t.describeWith(names))
	}
	return b.String()
}
