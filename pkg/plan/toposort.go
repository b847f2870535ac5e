package plan

import (
	"slices"
	"strings"

	"github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/manifest"
)

// order produces the final topological unit order. Among ready units the
// tie-break is package name, then target kind (lib, bin, test), then
// target name, so build logs read the same on every run.
func (b *builder) order() (*Plan, error) {
	n := len(b.units)
	cmp := func(x, y int) int {
		ux, uy := b.units[x], b.units[y]
		if c := strings.Compare(ux.Pkg.Name, uy.Pkg.Name); c != 0 {
			return c
		}
		if c := manifest.KindRank(ux.Target.Kind) - manifest.KindRank(uy.Target.Kind); c != 0 {
			return c
		}
		if c := strings.Compare(ux.Target.Name, uy.Target.Name); c != 0 {
			return c
		}
		return ux.Pkg.Version.Compare(uy.Pkg.Version)
	}

	indegree := make([]int, n)
	dependents := make([][]int, n)
	for i, u := range b.units {
		indegree[i] = len(u.Deps)
		for _, d := range u.Deps {
			dependents[d] = append(dependents[d], i)
		}
	}

	var ready []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	slices.SortFunc(ready, cmp)

	sequence := make([]int, 0, n)
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		sequence = append(sequence, i)
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				at, _ := slices.BinarySearchFunc(ready, d, cmp)
				ready = slices.Insert(ready, at, d)
			}
		}
	}

	if len(sequence) < n {
		return nil, b.cycleError(indegree)
	}

	// Remap unit indices to their position in the sequence.
	position := make([]int, n)
	for at, i := range sequence {
		position[i] = at
	}
	units := make([]CompilationUnit, n)
	for at, i := range sequence {
		u := b.units[i]
		deps := make([]int, len(u.Deps))
		for j, d := range u.Deps {
			deps[j] = position[d]
		}
		slices.Sort(deps)
		u.Deps = deps
		units[at] = u
	}
	return &Plan{Units: units}, nil
}

// cycleError names the units on one cycle among those the sort could
// not place.
func (b *builder) cycleError(indegree []int) error {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(b.units))
	var stack []int
	var cycle []int

	var walk func(i int) bool
	walk = func(i int) bool {
		color[i] = gray
		stack = append(stack, i)
		for _, d := range b.units[i].Deps {
			if indegree[d] == 0 {
				continue
			}
			switch color[d] {
			case gray:
				at := slices.Index(stack, d)
				cycle = slices.Clone(stack[at:])
				return true
			case white:
				if walk(d) {
					return true
				}
			}
		}
		color[i] = black
		stack = stack[:len(stack)-1]
		return false
	}

	for i := range b.units {
		if indegree[i] > 0 && color[i] == white && walk(i) {
			break
		}
	}

	parts := make([]string, 0, len(cycle)+1)
	for _, i := range cycle {
		parts = append(parts, b.units[i].ID())
	}
	if len(cycle) > 0 {
		parts = append(parts, b.units[cycle[0]].ID())
	}
	return errors.New(errors.ErrCodeCycle, "compilation unit cycle: %s", strings.Join(parts, " -> "))
}
