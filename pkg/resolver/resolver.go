// Package resolver implements dependency version solving.
//
// The solver is conflict-driven clause learning over version terms, in the
// style of PubGrub: unit propagation derives forced facts from a database
// of incompatibilities, conflicts are resolved into learned clauses, and
// the solver backjumps to the decision level where the learned clause
// becomes unit again. Two runs over the same inputs make identical
// decisions: candidates are ordered version lists, ties break on explicit
// keys, and no step depends on map iteration order.
//
// Solving itself is single-threaded. All I/O goes through a
// [source.Fetcher], which memoizes fetches and can be primed concurrently
// beforehand.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	hoisterrors "github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/observability"
	"github.com/matzehuels/hoist/pkg/pkggraph"
	"github.com/matzehuels/hoist/pkg/semver"
	"github.com/matzehuels/hoist/pkg/source"
)

// Preference is a previously locked choice. The solver keeps a preferred
// version as long as it still satisfies the accumulated constraints;
// otherwise the preference is ignored without error.
type Preference struct {
	Name    string
	Version semver.Version
	Source  source.ID
}

// Options configure a resolution run.
type Options struct {
	// Preferences pins packages to previously chosen versions, typically
	// reconciled from a lockfile.
	Preferences []Preference

	// AllowMultipleMajors lets one package name resolve once per semver
	// compatibility class ("1.x", "2.x", "0.3.x") instead of once overall.
	AllowMultipleMajors bool

	// Registry is the fallback for dependencies that name no source.
	// Zero means the default registry. Dependencies of a registry
	// package always default to their own registry regardless.
	Registry source.ID

	// Logger receives debug output. Nil disables logging.
	Logger *log.Logger
}

// Root is the workspace package resolution starts from. Its manifest is
// used directly rather than fetched, and its dev-dependencies take part
// in solving; dev-dependencies of transitive packages do not.
type Root struct {
	Manifest *manifest.Manifest
	Source   source.ID
}

// Resolver computes a complete dependency graph from root requirements.
type Resolver struct {
	fetcher source.Fetcher
	opts    Options
}

// New creates a resolver that fetches through the given fetcher.
func New(fetcher source.Fetcher, opts Options) *Resolver {
	return &Resolver{fetcher: fetcher, opts: opts}
}

// Resolve solves the root package's requirements into a graph of exact
// versions. On unsatisfiable requirements the returned error carries a
// [ConflictError] explaining the responsible chain of requirements.
func (r *Resolver) Resolve(ctx context.Context, root Root) (*pkggraph.Graph, error) {
	if root.Manifest == nil {
		return nil, hoisterrors.New(hoisterrors.ErrCodeInvalidInput, "resolve: root manifest is required")
	}

	s := &solver{
		ctx:       ctx,
		fetcher:   r.fetcher,
		opts:      r.opts,
		logger:    r.opts.Logger,
		arena:     newArena(),
		root:      root,
		rootSnap:  &source.ManifestSnapshot{Manifest: root.Manifest},
		manifests: make(map[string]*source.ManifestSnapshot),
		depsAdded: make(map[string]bool),
	}

	rootVersion := root.Manifest.Package.Version
	rootKey := pkgKey{name: root.Manifest.Package.Name}
	if s.opts.AllowMultipleMajors {
		rootKey.class = versionClass(rootVersion)
	}
	rootIdx, err := s.arena.intern(rootKey, root.Source)
	if err != nil {
		return nil, err
	}
	s.rootPkg = rootIdx
	s.addIncompatibility(&incompatibility{
		kind:  causeRoot,
		terms: []term{neg(rootIdx, semver.Only(rootVersion))},
	})

	next := rootIdx
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.propagate(next); err != nil {
			return nil, err
		}
		n, done, err := s.chooseVersion()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		next = n
	}

	if s.logger != nil {
		s.logger.Debug("resolution complete",
			"packages", len(s.sol.frames),
			"conflicts", s.conflicts,
			"backtracks", s.backtracks)
	}
	return s.buildGraph()
}

// pkgKey identifies a solver package: a name, plus the compatibility
// class when multiple majors may coexist.
type pkgKey struct {
	name  string
	class string
}

// pkgEntry is the interned identity of a solver package.
type pkgEntry struct {
	key pkgKey
	src source.ID
}

// arena interns solver packages into dense indices. The index doubles as
// declaration order: packages are interned the first time a requirement
// names them, root first.
type arena struct {
	byKey   map[pkgKey]int
	entries []pkgEntry
}

func newArena() *arena { return &arena{byKey: make(map[pkgKey]int)} }

// intern returns the index for a package identity, creating it on first
// sight. A name must resolve from one source; clashing requirements are
// a resolution conflict.
func (a *arena) intern(key pkgKey, src source.ID) (int, error) {
	if i, ok := a.byKey[key]; ok {
		if a.entries[i].src != src {
			return 0, hoisterrors.New(hoisterrors.ErrCodeConflict,
				"package %s is required from %s and from %s", key.name, a.entries[i].src, src)
		}
		return i, nil
	}
	i := len(a.entries)
	a.byKey[key] = i
	a.entries = append(a.entries, pkgEntry{key: key, src: src})
	return i, nil
}

func (a *arena) lookup(key pkgKey) (int, bool) {
	i, ok := a.byKey[key]
	return i, ok
}

func (a *arena) name(i int) string { return a.entries[i].key.name }

// label renders a package for logs, qualifying the compatibility class
// when one is in play.
func (a *arena) label(i int) string {
	e := a.entries[i]
	if e.key.class == "" {
		return e.key.name
	}
	return e.key.name + "@" + e.key.class
}

// versionClass buckets a version into its semver compatibility class:
// "1" for 1.x.y, "0.2" for 0.2.y.
func versionClass(v semver.Version) string {
	if v.Major > 0 {
		return strconv.FormatUint(v.Major, 10)
	}
	return "0." + strconv.FormatUint(v.Minor, 10)
}

// setClass is the compatibility class of a requirement, taken from its
// lower bound.
func setClass(set semver.Set) string {
	floor, ok := set.Floor()
	if !ok {
		floor = semver.Version{}
	}
	return versionClass(floor)
}

// solver holds the state of one resolution run.
type solver struct {
	ctx     context.Context
	fetcher source.Fetcher
	opts    Options
	logger  *log.Logger

	arena   *arena
	sol     partialSolution
	byPkg   [][]*incompatibility
	rootPkg int

	root      Root
	rootSnap  *source.ManifestSnapshot
	manifests map[string]*source.ManifestSnapshot
	depsAdded map[string]bool

	conflicts  int
	backtracks int
}

func (s *solver) addIncompatibility(inc *incompatibility) {
	if s.logger != nil {
		s.logger.Debug("add incompatibility", "terms", inc.describe(s.arena.label))
	}
	for _, t := range inc.terms {
		for len(s.byPkg) <= t.pkg {
			s.byPkg = append(s.byPkg, nil)
		}
		s.byPkg[t.pkg] = append(s.byPkg[t.pkg], inc)
	}
}

type propResult int

const (
	propNone propResult = iota
	propConflict
	propUnit
)

// propagate runs unit propagation starting from the given package until
// no more facts can be derived. A conflict hands off to resolveConflict
// and propagation restarts from the learned clause's unit package.
func (s *solver) propagate(pkg int) error {
	queue := []int{pkg}
	queued := map[int]bool{pkg: true}

outer:
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		queued[p] = false

		// Newest incompatibilities first; the slice is cloned because
		// conflict resolution appends to the database mid-iteration.
		var incompats []*incompatibility
		if p < len(s.byPkg) {
			incompats = slices.Clone(s.byPkg[p])
		}
		for i := len(incompats) - 1; i >= 0; i-- {
			res, unit := s.propagateStep(incompats[i])
			switch res {
			case propConflict:
				s.conflicts++
				learned, err := s.resolveConflict(incompats[i])
				if err != nil {
					return err
				}
				res, unit = s.propagateStep(learned)
				if res != propUnit {
					return hoisterrors.New(hoisterrors.ErrCodeInternal, "learned clause did not propagate")
				}
				queue = []int{unit}
				queued = map[int]bool{unit: true}
				continue outer
			case propUnit:
				if !queued[unit] {
					queue = append(queue, unit)
					queued[unit] = true
				}
			}
		}
	}
	return nil
}

// propagateStep examines one incompatibility against the partial
// solution. If every term is satisfied it reports a conflict; if exactly
// one term is undetermined, its negation is derived (the incompatibility
// is "almost satisfied") and the term's package is returned.
func (s *solver) propagateStep(inc *incompatibility) (propResult, int) {
	unsat := -1
	for i, t := range inc.terms {
		switch s.sol.relation(t) {
		case relationContradicted:
			return propNone, 0
		case relationInconclusive:
			if unsat >= 0 {
				return propNone, 0
			}
			unsat = i
		}
	}
	if unsat < 0 {
		return propConflict, 0
	}
	t := inc.terms[unsat]
	if s.logger != nil {
		s.logger.Debug("derive", "term", t.negate().describeWith(s.arena.label), "level", s.sol.level())
	}
	s.sol.derive(t.negate(), inc)
	return propUnit, t.pkg
}

// resolveConflict turns a satisfied incompatibility into a learned clause
// and backjumps to the decision level where that clause forces a new
// derivation. Returns the clause to continue propagation from, or the
// final conflict error when the clause proves the root unsatisfiable.
func (s *solver) resolveConflict(inc *incompatibility) (*incompatibility, error) {
	observability.Solver().OnConflict(s.ctx, inc.describe(s.arena.label))
	if s.logger != nil {
		s.logger.Debug("conflict", "incompatibility", inc.describe(s.arena.label))
	}

	learned := false
	for {
		if inc.isFailure(s.rootPkg) {
			return nil, s.failure(inc)
		}

		// Find the most recent assignment that completed the
		// incompatibility's satisfaction, and the level of everything
		// else it needed.
		var (
			recentTerm      *term
			recentSatisfier *assignment
			difference      *term
		)
		previousLevel := 0
		for i := range inc.terms {
			sat, err := s.sol.satisfier(inc.terms[i])
			if err != nil {
				return nil, err
			}
			switch {
			case recentSatisfier == nil:
				recentTerm = &inc.terms[i]
				recentSatisfier = &sat
			case sat.index > recentSatisfier.index:
				previousLevel = max(previousLevel, recentSatisfier.level)
				recentTerm = &inc.terms[i]
				recentSatisfier = &sat
				difference = nil
			default:
				previousLevel = max(previousLevel, sat.level)
			}
			if recentTerm == &inc.terms[i] {
				// The satisfier may cover only part of the term; the
				// rest was excluded by earlier assignments, whose level
				// also matters.
				d := recentSatisfier.term.difference(*recentTerm)
				if d.set.IsEmpty() {
					difference = nil
				} else {
					difference = &d
					dsat, err := s.sol.satisfier(d.negate())
					if err != nil {
						return nil, err
					}
					previousLevel = max(previousLevel, dsat.level)
				}
			}
		}

		if previousLevel < recentSatisfier.level || recentSatisfier.isDecision() {
			from := s.sol.level()
			s.sol.backtrack(previousLevel)
			s.backtracks++
			observability.Solver().OnBacktrack(s.ctx, from, previousLevel)
			if s.logger != nil {
				s.logger.Debug("backjump", "from", from, "to", previousLevel)
			}
			if learned {
				s.addIncompatibility(inc)
			}
			return inc, nil
		}

		// Merge the conflict with the satisfier's cause, eliminating the
		// satisfier's package.
		var terms []term
		for i := range inc.terms {
			if &inc.terms[i] != recentTerm {
				terms = append(terms, inc.terms[i])
			}
		}
		for _, t := range recentSatisfier.cause.terms {
			if t.pkg != recentSatisfier.term.pkg {
				terms = append(terms, t)
			}
		}
		if difference != nil {
			terms = append(terms, difference.negate())
		}
		inc = &incompatibility{
			kind:  causeConflict,
			terms: newTerms(terms...),
			left:  inc,
			right: recentSatisfier.cause,
		}
		learned = true
		if s.logger != nil {
			s.logger.Debug("learn", "incompatibility", inc.describe(s.arena.label))
		}
	}
}

// chooseVersion makes the next decision: it picks the most constrained
// undecided package, selects a version for it, and loads that version's
// requirements into the incompatibility database. Reports done when no
// required package is undecided.
func (s *solver) chooseVersion() (next int, done bool, err error) {
	undecided := s.sol.undecidedPositive()
	if len(undecided) == 0 {
		return 0, true, nil
	}

	// Most constrained first: fewest candidates, then name, then the
	// order packages were first required in.
	best := -1
	var bestCandidates []semver.Version
	for _, p := range undecided {
		candidates, err := s.candidatesFor(p)
		if err != nil {
			return 0, false, err
		}
		if best < 0 ||
			len(candidates) < len(bestCandidates) ||
			(len(candidates) == len(bestCandidates) && s.arena.name(p) < s.arena.name(best)) {
			best, bestCandidates = p, candidates
		}
	}
	p := best

	if len(bestCandidates) == 0 {
		allowed := s.sol.allowed(p)
		if s.logger != nil {
			s.logger.Debug("no candidates", "package", s.arena.label(p), "allowed", allowed.String())
		}
		s.addIncompatibility(&incompatibility{
			kind:  causeNoVersions,
			terms: []term{pos(p, allowed)},
		})
		return p, false, nil
	}

	v := s.pickVersion(p, bestCandidates)
	snap, err := s.manifestFor(p, v)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			// The index listed a version whose manifest is gone. Forbid
			// the version and let solving continue with the rest.
			s.addIncompatibility(&incompatibility{
				kind:    causeUnavailable,
				version: v,
				terms:   []term{pos(p, semver.Only(v))},
			})
			return p, false, nil
		}
		return 0, false, err
	}

	conflict := false
	depKey := fmt.Sprintf("%d@%s", p, v)
	if !s.depsAdded[depKey] {
		s.depsAdded[depKey] = true
		incompats, err := s.dependencyIncompats(p, v, snap.Manifest)
		if err != nil {
			return 0, false, err
		}
		for _, inc := range incompats {
			s.addIncompatibility(inc)
			// Deciding p = v would immediately satisfy this
			// incompatibility if all its other terms already hold.
			allSatisfied := true
			for _, t := range inc.terms {
				if t.pkg == p {
					continue
				}
				if s.sol.relation(t) != relationSatisfied {
					allSatisfied = false
					break
				}
			}
			conflict = conflict || allSatisfied
		}
	}

	if !conflict {
		s.sol.decide(p, v)
		observability.Solver().OnDecision(s.ctx, s.arena.name(p), v.String(), s.sol.level())
		if s.logger != nil {
			s.logger.Debug("decide", "package", s.arena.label(p), "version", v.String(), "level", s.sol.level())
		}
	}
	return p, false, nil
}

// candidatesFor lists the versions of a package that the accumulated
// constraints still admit, ascending. Pre-release versions only qualify
// when the constraints themselves reach into that pre-release line.
func (s *solver) candidatesFor(p int) ([]semver.Version, error) {
	allowed := s.sol.allowed(p)
	versions, err := s.listVersions(p)
	if err != nil {
		return nil, err
	}
	var out []semver.Version
	for _, v := range versions {
		if !allowed.Contains(v) {
			continue
		}
		if v.IsPrerelease() && !allowed.AllowsPrerelease(v) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *solver) listVersions(p int) ([]semver.Version, error) {
	if p == s.rootPkg {
		return []semver.Version{s.root.Manifest.Package.Version}, nil
	}
	entry := s.arena.entries[p]
	return s.fetcher.ListVersions(s.ctx, entry.src, entry.key.name)
}

// pickVersion prefers a matching locked choice, then the highest
// candidate.
func (s *solver) pickVersion(p int, candidates []semver.Version) semver.Version {
	entry := s.arena.entries[p]
	for _, pref := range s.opts.Preferences {
		if pref.Name != entry.key.name {
			continue
		}
		if !pref.Source.IsZero() && !pref.Source.CanLock(entry.src) {
			continue
		}
		for _, v := range candidates {
			if v.Equal(pref.Version) {
				if s.logger != nil {
					s.logger.Debug("keep locked version", "package", s.arena.label(p), "version", v.String())
				}
				return v
			}
		}
	}
	return candidates[len(candidates)-1]
}

func (s *solver) manifestFor(p int, v semver.Version) (*source.ManifestSnapshot, error) {
	if p == s.rootPkg && v.Equal(s.root.Manifest.Package.Version) {
		return s.rootSnap, nil
	}
	key := fmt.Sprintf("%d@%s", p, v)
	if snap, ok := s.manifests[key]; ok {
		return snap, nil
	}
	entry := s.arena.entries[p]
	snap, err := s.fetcher.FetchManifest(s.ctx, source.PackageID{
		Name:    entry.key.name,
		Version: v,
		Source:  entry.src,
	})
	if err != nil {
		return nil, err
	}
	s.manifests[key] = snap
	return snap, nil
}

// dependencyIncompats converts one version's declared requirements into
// incompatibilities. Dev-dependencies count for the root package only.
func (s *solver) dependencyIncompats(p int, v semver.Version, m *manifest.Manifest) ([]*incompatibility, error) {
	entry := s.arena.entries[p]
	isRoot := p == s.rootPkg

	baseDir := ""
	if entry.src.Kind() == source.KindPath {
		baseDir = entry.src.Dir()
	}
	fallback := s.opts.Registry
	if fallback.IsZero() {
		fallback = source.DefaultRegistry()
	}
	if entry.src.Kind() == source.KindRegistry {
		fallback = entry.src.Unpinned()
	}

	var out []*incompatibility
	for _, d := range m.Dependencies {
		if d.Kind == manifest.DepKindDev && !isRoot {
			continue
		}
		dep := d
		if dep.Path != "" && entry.src.Kind() != source.KindPath {
			if dep.Req.IsAny() {
				return nil, hoisterrors.New(hoisterrors.ErrCodeInvalidManifest,
					"%s %s: path dependency %q is only allowed in local packages",
					s.arena.name(p), v, dep.Name)
			}
			// Published manifests fall back to the registry requirement.
			dep.Path = ""
		}

		src, err := source.ForDependency(dep, baseDir, fallback)
		if err != nil {
			return nil, err
		}
		key := s.depKey(dep)
		depIdx, err := s.arena.intern(key, src)
		if err != nil {
			return nil, err
		}
		out = append(out, &incompatibility{
			kind:     causeDependency,
			depender: p,
			version:  v,
			req:      dep.Req.String(),
			terms:    newTerms(pos(p, semver.Only(v)), neg(depIdx, dep.Req.Set())),
		})
	}
	return out, nil
}

func (s *solver) depKey(d manifest.Dependency) pkgKey {
	key := pkgKey{name: d.Name}
	if s.opts.AllowMultipleMajors {
		key.class = setClass(d.Req.Set())
	}
	return key
}

// buildGraph turns the completed assignment into the resolved graph:
// everything reachable from the root through non-dev requirements, plus
// the root's own dev edges. Package-level cycles are fatal here.
func (s *solver) buildGraph() (*pkggraph.Graph, error) {
	reach := make([]bool, len(s.arena.entries))
	order := []int{s.rootPkg}
	reach[s.rootPkg] = true
	for qi := 0; qi < len(order); qi++ {
		i := order[qi]
		v, ok := s.sol.decision(i)
		if !ok {
			return nil, hoisterrors.New(hoisterrors.ErrCodeInternal,
				"package %s is required but has no decision", s.arena.label(i))
		}
		snap, err := s.manifestFor(i, v)
		if err != nil {
			return nil, err
		}
		for _, d := range snap.Manifest.Dependencies {
			if d.Kind == manifest.DepKindDev && i != s.rootPkg {
				continue
			}
			j, ok := s.arena.lookup(s.depKey(d))
			if !ok {
				return nil, hoisterrors.New(hoisterrors.ErrCodeInternal,
					"dependency %s of %s was never interned", d.Name, s.arena.label(i))
			}
			if !reach[j] {
				reach[j] = true
				order = append(order, j)
			}
		}
	}

	g := pkggraph.New()
	nodeOf := make([]int, len(s.arena.entries))
	for i := range nodeOf {
		nodeOf[i] = -1
	}
	for i, entry := range s.arena.entries {
		if !reach[i] {
			continue
		}
		v, _ := s.sol.decision(i)
		snap, err := s.manifestFor(i, v)
		if err != nil {
			return nil, err
		}
		pid := source.PackageID{Name: entry.key.name, Version: v, Source: entry.src}
		// Two requirement classes may settle on the same concrete package.
		// That is one node, not two.
		for _, ni := range g.ByName(entry.key.name) {
			if g.Node(ni).Pkg.Compare(pid) == 0 {
				nodeOf[i] = ni
				break
			}
		}
		if nodeOf[i] >= 0 {
			continue
		}
		idx, err := g.AddNode(pkggraph.Node{Pkg: pid, Manifest: snap.Manifest, Checksum: snap.Checksum})
		if err != nil {
			return nil, err
		}
		nodeOf[i] = idx
	}
	g.SetRoot(nodeOf[s.rootPkg])

	edgesDone := make([]bool, g.Len())
	for i := range s.arena.entries {
		if nodeOf[i] < 0 || edgesDone[nodeOf[i]] {
			continue
		}
		edgesDone[nodeOf[i]] = true
		v, _ := s.sol.decision(i)
		snap, _ := s.manifestFor(i, v)
		isRoot := i == s.rootPkg
		for _, d := range snap.Manifest.Dependencies {
			if d.Kind == manifest.DepKindDev && !isRoot {
				continue
			}
			j, _ := s.arena.lookup(s.depKey(d))
			if err := g.AddEdge(pkggraph.Edge{
				From:     nodeOf[i],
				To:       nodeOf[j],
				Kind:     d.Kind,
				Optional: d.Optional,
				Features: slices.Clone(d.Features),
			}); err != nil {
				return nil, err
			}
		}
	}

	// A package must not transitively require itself. Dev edges are
	// exempt: a tool may dev-depend on something that depends back on it.
	notDev := func(e pkggraph.Edge) bool { return e.Kind != manifest.DepKindDev }
	if cycle := g.FindCycle(notDev); cycle != nil {
		parts := make([]string, 0, len(cycle)+1)
		for _, n := range cycle {
			parts = append(parts, g.Node(n).Pkg.String())
		}
		parts = append(parts, g.Node(cycle[0]).Pkg.String())
		return nil, hoisterrors.New(hoisterrors.ErrCodeCycle,
			"dependency cycle: %s", strings.Join(parts, " -> "))
	}
	return g, nil
}
