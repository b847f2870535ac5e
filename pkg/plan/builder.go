package plan

import (
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/pkggraph"
)

// Options configure plan building.
type Options struct {
	// Features activates root features on top of "default". Each must be
	// declared by the root manifest.
	Features []string

	// Logger receives debug output. Nil disables logging.
	Logger *log.Logger
}

// Build expands a resolved graph into an ordered plan.
//
// Feature unification runs first: starting from the root's active
// features, activations flow along dependency edges to a fixpoint, so
// each package ends up with the union of everything its dependents ask
// for. Optional dependencies stay out of the plan unless a feature
// turns them on. Then targets expand into units and the units are
// topologically ordered; a cycle is fatal and names its members.
func Build(g *pkggraph.Graph, opts Options) (*Plan, error) {
	b := &builder{
		g:       g,
		opts:    opts,
		logger:  opts.Logger,
		reached: make([]bool, g.Len()),
		queued:  make([]bool, g.Len()),
		feats:   make([]map[string]bool, g.Len()),
		optOn:   make([]map[string]bool, g.Len()),
		cross:   make([]map[string]map[string]bool, g.Len()),
	}
	for i := 0; i < g.Len(); i++ {
		if g.Node(i).Manifest == nil {
			return nil, errors.New(errors.ErrCodeInternal, "package %s has no manifest", g.Node(i).Pkg)
		}
		b.feats[i] = make(map[string]bool)
		b.optOn[i] = make(map[string]bool)
		b.cross[i] = make(map[string]map[string]bool)
	}

	if err := b.unify(); err != nil {
		return nil, err
	}
	if err := b.expand(); err != nil {
		return nil, err
	}
	return b.order()
}

type builder struct {
	g      *pkggraph.Graph
	opts   Options
	logger *log.Logger

	reached []bool
	queued  []bool
	feats   []map[string]bool            // node -> active features
	optOn   []map[string]bool            // node -> activated optional dependency names
	cross   []map[string]map[string]bool // node -> dependency name -> requested features
	queue   []int

	units   []CompilationUnit
	unitsOf [][]int // node -> indices into units
	libOf   []int   // node -> library unit index, -1 if none
}

func (b *builder) push(n int) {
	if !b.queued[n] {
		b.queued[n] = true
		b.queue = append(b.queue, n)
	}
}

// unify computes the active feature set of every reachable package.
// State only ever grows, so repeated processing converges regardless of
// the order packages are revisited in.
func (b *builder) unify() error {
	root := b.g.Root()
	rootManifest := b.g.Node(root).Manifest
	b.reached[root] = true
	if rootManifest.HasFeature("default") {
		b.feats[root]["default"] = true
	}
	for _, f := range b.opts.Features {
		if !rootManifest.HasFeature(f) {
			return errors.New(errors.ErrCodeInvalidManifest,
				"package %s has no feature %q", rootManifest.Package.Name, f)
		}
		b.feats[root][f] = true
	}
	b.push(root)

	for len(b.queue) > 0 {
		n := b.queue[0]
		b.queue = b.queue[1:]
		b.queued[n] = false
		if err := b.visit(n); err != nil {
			return err
		}
	}
	return nil
}

// visit closes a package's own feature table, then pushes activations
// across its active edges.
func (b *builder) visit(n int) error {
	node := b.g.Node(n)
	if err := b.closeFeatures(n, node.Manifest); err != nil {
		return err
	}

	for _, e := range b.g.Dependencies(n) {
		dep := b.g.Node(e.To)
		if e.Optional && !b.optOn[n][dep.Pkg.Name] {
			continue
		}

		requested := slices.Clone(e.Features)
		requested = append(requested, sortedKeys(b.cross[n][dep.Pkg.Name])...)

		changed := !b.reached[e.To]
		b.reached[e.To] = true
		if dep.Manifest.HasFeature("default") && !b.feats[e.To]["default"] {
			b.feats[e.To]["default"] = true
			changed = true
		}
		for _, f := range requested {
			if !dep.Manifest.HasFeature(f) {
				return errors.New(errors.ErrCodeInvalidManifest,
					"package %s has no feature %q, requested by %s", dep.Pkg.Name, f, node.Pkg)
			}
			if !b.feats[e.To][f] {
				b.feats[e.To][f] = true
				changed = true
			}
		}
		if changed {
			if b.logger != nil {
				b.logger.Debug("unify features", "package", dep.Pkg.String(), "features", sortedKeys(b.feats[e.To]))
			}
			b.push(e.To)
		}
	}
	return nil
}

// closeFeatures expands a package's active features through its own
// feature table: features enabling features, optional dependencies, and
// requests on dependency features.
func (b *builder) closeFeatures(n int, m *manifest.Manifest) error {
	for changed := true; changed; {
		changed = false
		for _, f := range m.Features {
			if !b.feats[n][f.Name] {
				continue
			}
			for _, spec := range f.Specs {
				if spec.IsQualified() {
					dep, ok := m.FindDependency(spec.Dep)
					if !ok {
						return errors.New(errors.ErrCodeInvalidManifest,
							"feature %q of %s mentions unknown dependency %q", f.Name, m.Package.Name, spec.Dep)
					}
					if dep.Optional && !b.optOn[n][spec.Dep] {
						b.optOn[n][spec.Dep] = true
						changed = true
					}
					if b.cross[n][spec.Dep] == nil {
						b.cross[n][spec.Dep] = make(map[string]bool)
					}
					if !b.cross[n][spec.Dep][spec.DepFeature] {
						b.cross[n][spec.Dep][spec.DepFeature] = true
						changed = true
					}
					continue
				}

				switch dep, ok := m.FindDependency(spec.Name); {
				case m.HasFeature(spec.Name):
					if !b.feats[n][spec.Name] {
						b.feats[n][spec.Name] = true
						changed = true
					}
				case ok && dep.Optional:
					if !b.optOn[n][spec.Name] {
						b.optOn[n][spec.Name] = true
						changed = true
					}
				default:
					return errors.New(errors.ErrCodeInvalidManifest,
						"feature %q of %s activates %q, which is neither a feature nor an optional dependency",
						f.Name, m.Package.Name, spec.Name)
				}
			}
		}
	}
	return nil
}

// expand creates one unit per target and wires unit dependencies. The
// root contributes every declared target; dependencies contribute their
// library, the only artifact anything can link against.
func (b *builder) expand() error {
	root := b.g.Root()
	b.libOf = make([]int, b.g.Len())
	b.unitsOf = make([][]int, b.g.Len())
	for i := range b.libOf {
		b.libOf[i] = -1
	}

	for n := 0; n < b.g.Len(); n++ {
		if !b.reached[n] {
			continue
		}
		node := b.g.Node(n)
		feats := sortedKeys(b.feats[n])

		if n == root {
			for _, t := range node.Manifest.Targets {
				idx := len(b.units)
				b.units = append(b.units, CompilationUnit{Pkg: node.Pkg, Target: t, Features: feats})
				b.unitsOf[n] = append(b.unitsOf[n], idx)
				if t.Kind == manifest.TargetLib {
					b.libOf[n] = idx
				}
			}
			continue
		}

		lib, ok := node.Manifest.LibTarget()
		if !ok {
			return errors.New(errors.ErrCodeInvalidManifest,
				"package %s declares no library target but is depended upon", node.Pkg)
		}
		idx := len(b.units)
		b.units = append(b.units, CompilationUnit{Pkg: node.Pkg, Target: lib, Features: feats})
		b.unitsOf[n] = append(b.unitsOf[n], idx)
		b.libOf[n] = idx
	}

	for n := 0; n < b.g.Len(); n++ {
		if !b.reached[n] {
			continue
		}
		// Library units of the packages this one links against. Build
		// dependencies compile on their own and never become unit edges.
		var normal, dev []int
		for _, e := range b.g.Dependencies(n) {
			depName := b.g.Node(e.To).Pkg.Name
			if e.Optional && !b.optOn[n][depName] {
				continue
			}
			if e.Kind == manifest.DepKindBuild {
				continue
			}
			lib := b.libOf[e.To]
			if lib < 0 {
				return errors.New(errors.ErrCodeInvalidManifest,
					"package %s declares no library target but %s depends on it", b.g.Node(e.To).Pkg, b.g.Node(n).Pkg)
			}
			if e.Kind == manifest.DepKindDev {
				dev = append(dev, lib)
			} else {
				normal = append(normal, lib)
			}
		}

		for _, ui := range b.unitsOf[n] {
			u := &b.units[ui]
			deps := slices.Clone(normal)
			if u.Target.Kind != manifest.TargetLib && b.libOf[n] >= 0 {
				deps = append(deps, b.libOf[n])
			}
			if u.Target.Kind == manifest.TargetTest {
				deps = append(deps, dev...)
			}
			slices.Sort(deps)
			u.Deps = slices.Compact(deps)
		}
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
