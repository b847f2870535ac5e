// Package plan expands a resolved dependency graph into compilation
// units ordered for a build scheduler.
//
// Every package compiles exactly once per identity, with the union of
// all features its dependents asked for. Targets expand into units on
// top of that: the root package contributes every declared target,
// dependencies contribute their library. Unit edges always point at
// library units, so the plan stays acyclic whenever the package graph
// is.
package plan

import (
	"fmt"

	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/source"
)

// CompilationUnit is one buildable artifact.
type CompilationUnit struct {
	// Pkg is the resolved package this unit belongs to.
	Pkg source.PackageID

	// Target is the declared target the unit compiles.
	Target manifest.Target

	// Features is the unified feature set active for the package, sorted.
	// All units of one package share it; a compiled artifact has to
	// satisfy every consumer at once.
	Features []string

	// Deps are indices of the library units this unit needs built first,
	// ascending. Within a package, non-library units list their own
	// library unit here too.
	Deps []int
}

// ID renders a stable identifier for logs and cycle reports:
// "name v1.2.0 lib/name".
func (u CompilationUnit) ID() string {
	return fmt.Sprintf("%s %s", u.Pkg, u.Target.ID())
}

// Plan is the ordered compilation unit graph. Units are in a valid
// topological order: every unit's dependencies appear at lower indices.
type Plan struct {
	Units []CompilationUnit
}

// Unit returns the unit at index i.
func (p *Plan) Unit(i int) CompilationUnit { return p.Units[i] }

// Len returns the number of units.
func (p *Plan) Len() int { return len(p.Units) }

// Find returns the index of the unit for a package target, or -1.
func (p *Plan) Find(pkgName string, kind manifest.TargetKind, targetName string) int {
	for i, u := range p.Units {
		if u.Pkg.Name == pkgName && u.Target.Kind == kind && u.Target.Name == targetName {
			return i
		}
	}
	return -1
}
