package resolver

import (
	"fmt"
	"strings"

	hoisterrors "github.com/matzehuels/hoist/pkg/errors"
)

// ConflictStep is one link in the chain of requirements behind a
// resolution conflict.
type ConflictStep struct {
	// Package is the name whose versions are being constrained.
	Package string

	// Requirement is the constraint as declared.
	Requirement string

	// RequiredBy is the "name version" of the package that declared the
	// requirement. Empty when the step is a fact about availability
	// rather than a requirement.
	RequiredBy string
}

// ConflictError reports that no assignment of versions satisfies the
// root requirements. Steps lists the responsible requirements in the
// order the solver's proof references them, each one once.
type ConflictError struct {
	Steps []ConflictStep
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	b.WriteString("unsatisfiable requirements")
	for _, s := range e.Steps {
		b.WriteString("\n  ")
		if s.RequiredBy != "" {
			fmt.Fprintf(&b, "%s requires %s %s", s.RequiredBy, s.Package, s.Requirement)
		} else {
			fmt.Fprintf(&b, "no usable version of %s matches %s", s.Package, s.Requirement)
		}
	}
	return b.String()
}

// failure converts the terminal incompatibility into the error returned
// to callers, walking its proof tree for the responsible requirements.
func (s *solver) failure(inc *incompatibility) error {
	cerr := &ConflictError{Steps: s.collectSteps(inc)}
	if s.logger != nil {
		s.logger.Debug("resolution failed", "steps", len(cerr.Steps))
	}
	return hoisterrors.Wrap(hoisterrors.ErrCodeConflict, cerr, "version solving failed")
}

// collectSteps gathers the external causes below a derived
// incompatibility, depth first, keeping the first occurrence of each.
func (s *solver) collectSteps(inc *incompatibility) []ConflictStep {
	var steps []ConflictStep
	seen := make(map[ConflictStep]bool)
	add := func(step ConflictStep) {
		if !seen[step] {
			seen[step] = true
			steps = append(steps, step)
		}
	}

	var walk func(node *incompatibility)
	walk = func(node *incompatibility) {
		if node == nil {
			return
		}
		switch node.kind {
		case causeConflict:
			walk(node.left)
			walk(node.right)
		case causeDependency:
			dep := ""
			for _, t := range node.terms {
				if !t.positive {
					dep = s.arena.name(t.pkg)
					break
				}
			}
			if dep == "" {
				// Self-requirement collapsed into a single term.
				dep = s.arena.name(node.depender)
			}
			add(ConflictStep{
				Package:     dep,
				Requirement: node.req,
				RequiredBy:  s.arena.name(node.depender) + " " + node.version.String(),
			})
		case causeNoVersions:
			t := node.terms[0]
			add(ConflictStep{Package: s.arena.name(t.pkg), Requirement: t.set.String()})
		case causeUnavailable:
			t := node.terms[0]
			add(ConflictStep{Package: s.arena.name(t.pkg), Requirement: t.set.String()})
		}
	}
	walk(inc)
	return steps
}
