package resolver

import (
	"fmt"

	"github.com/matzehuels/hoist/pkg/semver"
)

// assignment is one entry in the solver's chronological trail: either a
// decision (an exact version was selected) or a derivation forced by an
// incompatibility during unit propagation.
type assignment struct {
	term  term
	level int
	index int              // position in the trail
	cause *incompatibility // nil for decisions
}

func (a assignment) isDecision() bool { return a.cause == nil }

// frame marks where one decision level begins in the trail. Frame i holds
// the decision that opened level i+1; derivations before the first frame
// live at level 0.
type frame struct {
	pkg   int
	start int
}

// packageState accumulates everything currently known about one package:
// its trail entries and the running intersection of their terms.
type packageState struct {
	entries []assignment
	state   term
	decided bool
	version semver.Version
}

// partialSolution is the solver's trail of decisions and derivations,
// with per-package accumulated state and an explicit stack of decision
// frames for backjumping. Packages are arena indices throughout.
type partialSolution struct {
	trail    []assignment
	frames   []frame
	packages []packageState
}

// level returns the current decision level.
func (p *partialSolution) level() int { return len(p.frames) }

func (p *partialSolution) ensure(pkg int) *packageState {
	for len(p.packages) <= pkg {
		p.packages = append(p.packages, packageState{})
	}
	return &p.packages[pkg]
}

func (p *partialSolution) push(a assignment) {
	a.index = len(p.trail)
	p.trail = append(p.trail, a)

	ps := p.ensure(a.term.pkg)
	if len(ps.entries) == 0 {
		ps.state = a.term
	} else {
		ps.state = ps.state.intersect(a.term)
	}
	ps.entries = append(ps.entries, a)
	if a.isDecision() {
		ps.decided = true
		ps.version, _ = a.term.set.AsExact()
	}
}

// decide opens a new decision level and selects an exact version for a
// package.
func (p *partialSolution) decide(pkg int, v semver.Version) {
	p.frames = append(p.frames, frame{pkg: pkg, start: len(p.trail)})
	p.push(assignment{term: pos(pkg, semver.Only(v)), level: len(p.frames)})
}

// derive records a term forced by the given incompatibility at the
// current decision level.
func (p *partialSolution) derive(t term, cause *incompatibility) {
	p.push(assignment{term: t, level: p.level(), cause: cause})
}

// relation classifies the goal term against what is known about its
// package. A package with no trail entries is always inconclusive.
func (p *partialSolution) relation(t term) relation {
	if t.pkg >= len(p.packages) || len(p.packages[t.pkg].entries) == 0 {
		return relationInconclusive
	}
	return t.relationTo(p.packages[t.pkg].state)
}

// allowed returns the set of versions the accumulated constraints still
// admit for a package with positive state.
func (p *partialSolution) allowed(pkg int) semver.Set {
	if pkg >= len(p.packages) || len(p.packages[pkg].entries) == 0 {
		return semver.Full()
	}
	ps := p.packages[pkg]
	if !ps.state.positive {
		return semver.Full()
	}
	return ps.state.set
}

// decision returns the decided version of a package.
func (p *partialSolution) decision(pkg int) (semver.Version, bool) {
	if pkg >= len(p.packages) || !p.packages[pkg].decided {
		return semver.Version{}, false
	}
	return p.packages[pkg].version, true
}

// undecidedPositive returns the packages that are required (positive
// accumulated state) but have no decision yet, in package index order.
func (p *partialSolution) undecidedPositive() []int {
	var out []int
	for i := range p.packages {
		ps := &p.packages[i]
		if len(ps.entries) > 0 && ps.state.positive && !ps.decided {
			out = append(out, i)
		}
	}
	return out
}

// satisfier returns the earliest assignment at which the accumulated
// entries for t's package satisfy t.
func (p *partialSolution) satisfier(t term) (assignment, error) {
	if t.pkg < len(p.packages) {
		var acc term
		for i, a := range p.packages[t.pkg].entries {
			if i == 0 {
				acc = a.term
			} else {
				acc = acc.intersect(a.term)
			}
			if t.relationTo(acc) == relationSatisfied {
				return a, nil
			}
		}
	}
	return assignment{}, fmt.Errorf("internal: no satisfier for package %d", t.pkg)
}

// backtrack discards every frame above the given decision level along
// with all trail entries they produced, and rebuilds the state of the
// affected packages.
func (p *partialSolution) backtrack(toLevel int) {
	if toLevel >= p.level() {
		return
	}
	cut := p.frames[toLevel].start
	dropped := p.trail[cut:]
	p.trail = p.trail[:cut]
	p.frames = p.frames[:toLevel]

	touched := make(map[int]bool)
	for _, a := range dropped {
		touched[a.term.pkg] = true
	}
	for pkg := range touched {
		ps := &p.packages[pkg]
		keep := 0
		for keep < len(ps.entries) && ps.entries[keep].index < cut {
			keep++
		}
		ps.entries = ps.entries[:keep]
		ps.decided = false
		ps.version = semver.Version{}
		ps.state = term{}
		for i, a := range ps.entries {
			if i == 0 {
				ps.state = a.term
			} else {
				ps.state = ps.state.intersect(a.term)
			}
			if a.isDecision() {
				ps.decided = true
				ps.version, _ = a.term.set.AsExact()
			}
		}
	}
}
