package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	hoisterrors "github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/observability"
	"github.com/matzehuels/hoist/pkg/pkggraph"
	"github.com/matzehuels/hoist/pkg/semver"
	"github.com/matzehuels/hoist/pkg/source"
)

// pkgTOML renders a registry manifest fixture. deps are raw lines for
// the [dependencies] table.
func pkgTOML(name, version string, deps ...string) string {
	s := fmt.Sprintf("[package]\nname = %q\nversion = %q\n", name, version)
	if len(deps) > 0 {
		s += "\n[dependencies]\n"
		for _, d := range deps {
			s += d + "\n"
		}
	}
	return s
}

// testRegistry publishes manifests into an in-memory default registry
// and returns a session serving from it.
func testRegistry(t *testing.T, manifests ...string) *source.Session {
	t.Helper()
	mem := source.NewMemorySource(source.DefaultRegistry())
	for _, raw := range manifests {
		if err := mem.AddTOML([]byte(raw)); err != nil {
			t.Fatalf("publish fixture: %v", err)
		}
	}
	sess := source.NewSession(source.SessionOptions{})
	sess.Register(mem)
	return sess
}

func testRoot(t *testing.T, raw string) Root {
	t.Helper()
	m, err := manifest.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse root manifest: %v", err)
	}
	return Root{Manifest: m, Source: source.DefaultRegistry()}
}

// packageList renders the resolved packages as "name version" strings.
func packageList(g *pkggraph.Graph) []string {
	pkgs := g.Packages()
	out := make([]string, len(pkgs))
	for i, p := range pkgs {
		out[i] = p.Name + " " + p.Version.String()
	}
	return out
}

func assertPackages(t *testing.T, g *pkggraph.Graph, want []string) {
	t.Helper()
	got := packageList(g)
	if len(got) != len(want) {
		t.Fatalf("resolved %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("resolved %v, want %v", got, want)
		}
	}
}

func resolve(t *testing.T, sess *source.Session, root Root, opts Options) (*pkggraph.Graph, error) {
	t.Helper()
	return New(sess, opts).Resolve(context.Background(), root)
}

func TestResolveChain(t *testing.T) {
	sess := testRegistry(t,
		pkgTOML("serde", "1.0.0", `json = "^2.0"`),
		pkgTOML("serde", "1.2.0", `json = "^2.0"`),
		pkgTOML("json", "2.0.0"),
		pkgTOML("json", "2.1.0"),
	)
	root := testRoot(t, pkgTOML("app", "0.1.0", `serde = "^1.0"`))

	g, err := resolve(t, sess, root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assertPackages(t, g, []string{"app 0.1.0", "json 2.1.0", "serde 1.2.0"})

	rootDeps := g.Dependencies(g.Root())
	if len(rootDeps) != 1 || g.Node(rootDeps[0].To).Pkg.Name != "serde" {
		t.Fatalf("root dependencies = %+v, want one edge to serde", rootDeps)
	}
}

func TestResolveDiamondUnifies(t *testing.T) {
	sess := testRegistry(t,
		pkgTOML("left", "1.0.0", `shared = ">=1.0.0, <2.0.0"`),
		pkgTOML("right", "1.0.0", `shared = ">=1.2.0, <3.0.0"`),
		pkgTOML("shared", "1.0.0"),
		pkgTOML("shared", "1.2.0"),
		pkgTOML("shared", "1.9.0"),
		pkgTOML("shared", "2.0.0"),
	)
	root := testRoot(t, pkgTOML("app", "0.1.0", `left = "^1.0"`, `right = "^1.0"`))

	g, err := resolve(t, sess, root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Both sides must agree on one copy: the highest inside [1.2, 2.0).
	assertPackages(t, g, []string{"app 0.1.0", "left 1.0.0", "right 1.0.0", "shared 1.9.0"})
}

func TestResolveAvoidsKnownConflict(t *testing.T) {
	// The newest "a" needs c 2.0.0, but "b" forces c 1.0.0. The solver
	// must settle on the older "a" instead of failing.
	sess := testRegistry(t,
		pkgTOML("a", "1.0.0", `c = "=1.0.0"`),
		pkgTOML("a", "2.0.0", `c = "=2.0.0"`),
		pkgTOML("b", "1.0.0", `c = "=1.0.0"`),
		pkgTOML("c", "1.0.0"),
		pkgTOML("c", "2.0.0"),
	)
	root := testRoot(t, pkgTOML("app", "0.1.0", `a = "*"`, `b = "=1.0.0"`))

	g, err := resolve(t, sess, root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assertPackages(t, g, []string{"a 1.0.0", "app 0.1.0", "b 1.0.0", "c 1.0.0"})
}

func TestResolveBacktracksDecision(t *testing.T) {
	// The clash with d surfaces only through m, two hops after the solver
	// commits to a 2.0.0, so an already-made decision must be undone.
	sess := testRegistry(t,
		pkgTOML("a", "1.0.0", `d = "=1.0.0"`),
		pkgTOML("a", "2.0.0", `m = "*"`),
		pkgTOML("m", "1.0.0", `d = "=2.0.0"`),
		pkgTOML("c", "1.0.0", `d = "=1.0.0"`),
		pkgTOML("d", "1.0.0"),
		pkgTOML("d", "2.0.0"),
	)
	root := testRoot(t, pkgTOML("app", "0.1.0", `a = "*"`, `c = "*"`))

	var backtracks int
	observability.SetSolverHooks(countingSolverHooks{backtracks: &backtracks})
	t.Cleanup(observability.Reset)

	g, err := resolve(t, sess, root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assertPackages(t, g, []string{"a 1.0.0", "app 0.1.0", "c 1.0.0", "d 1.0.0"})
	if len(g.ByName("m")) != 0 {
		t.Fatal("m was pulled into the graph despite a 1.0.0 not needing it")
	}
	if backtracks == 0 {
		t.Fatal("expected at least one backtrack")
	}
}

func TestResolveConflictReport(t *testing.T) {
	sess := testRegistry(t,
		pkgTOML("left", "1.0.0", `shared = "=1.0.0"`),
		pkgTOML("right", "1.0.0", `shared = "=2.0.0"`),
		pkgTOML("shared", "1.0.0"),
		pkgTOML("shared", "2.0.0"),
	)
	root := testRoot(t, pkgTOML("app", "0.1.0", `left = "=1.0.0"`, `right = "=1.0.0"`))

	_, err := resolve(t, sess, root, Options{})
	if err == nil {
		t.Fatal("resolve succeeded, want conflict")
	}
	if !hoisterrors.Is(err, hoisterrors.ErrCodeConflict) {
		t.Fatalf("error code = %v, want %s", err, hoisterrors.ErrCodeConflict)
	}

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error %v does not carry a ConflictError", err)
	}
	var sawLeft, sawRight bool
	for _, step := range conflict.Steps {
		if step.Package == "shared" && step.Requirement == "=1.0.0" && step.RequiredBy == "left 1.0.0" {
			sawLeft = true
		}
		if step.Package == "shared" && step.Requirement == "=2.0.0" && step.RequiredBy == "right 1.0.0" {
			sawRight = true
		}
	}
	if !sawLeft || !sawRight {
		t.Fatalf("report misses a side of the conflict: %+v", conflict.Steps)
	}
}

func TestResolveNoMatchingVersion(t *testing.T) {
	sess := testRegistry(t,
		pkgTOML("serde", "1.0.0"),
	)
	root := testRoot(t, pkgTOML("app", "0.1.0", `serde = "^3.0"`))

	_, err := resolve(t, sess, root, Options{})
	if !hoisterrors.Is(err, hoisterrors.ErrCodeConflict) {
		t.Fatalf("error = %v, want %s", err, hoisterrors.ErrCodeConflict)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error %v does not carry a ConflictError", err)
	}
	found := false
	for _, step := range conflict.Steps {
		if step.Package == "serde" && step.RequiredBy == "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("report has no availability step for serde: %+v", conflict.Steps)
	}
}

func TestResolveKeepsPreferredVersion(t *testing.T) {
	sess := testRegistry(t,
		pkgTOML("serde", "1.0.0"),
		pkgTOML("serde", "1.2.0"),
		pkgTOML("serde", "1.5.0"),
	)
	root := testRoot(t, pkgTOML("app", "0.1.0", `serde = "^1.0"`))

	opts := Options{Preferences: []Preference{{
		Name:    "serde",
		Version: semver.MustParse("1.2.0"),
	}}}
	g, err := resolve(t, sess, root, opts)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assertPackages(t, g, []string{"app 0.1.0", "serde 1.2.0"})
}

func TestResolveIgnoresStalePreference(t *testing.T) {
	sess := testRegistry(t,
		pkgTOML("serde", "1.0.0"),
		pkgTOML("serde", "1.5.0"),
	)
	root := testRoot(t, pkgTOML("app", "0.1.0", `serde = "^1.1"`))

	// The locked version no longer satisfies the requirement; the solver
	// falls back to the best available without erroring.
	opts := Options{Preferences: []Preference{{
		Name:    "serde",
		Version: semver.MustParse("1.0.0"),
	}}}
	g, err := resolve(t, sess, root, opts)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assertPackages(t, g, []string{"app 0.1.0", "serde 1.5.0"})
}

func TestResolveDeterministic(t *testing.T) {
	fixtures := []string{
		pkgTOML("a", "1.0.0", `x = "^1.0"`, `y = "^1.0"`),
		pkgTOML("a", "1.1.0", `x = "^1.2"`, `y = "^1.0"`),
		pkgTOML("b", "1.0.0", `y = "^1.1"`, `z = "^0.3"`),
		pkgTOML("x", "1.0.0"),
		pkgTOML("x", "1.2.0", `z = "^0.3"`),
		pkgTOML("y", "1.0.0"),
		pkgTOML("y", "1.1.0"),
		pkgTOML("y", "1.2.0"),
		pkgTOML("z", "0.3.1"),
		pkgTOML("z", "0.3.4"),
	}
	rootTOML := pkgTOML("app", "0.1.0", `a = "^1.0"`, `b = "^1.0"`)

	var first []string
	var firstEdges int
	for run := 0; run < 5; run++ {
		sess := testRegistry(t, fixtures...)
		g, err := resolve(t, sess, testRoot(t, rootTOML), Options{})
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if run == 0 {
			first = packageList(g)
			firstEdges = g.EdgeCount()
			continue
		}
		got := packageList(g)
		if len(got) != len(first) {
			t.Fatalf("run %d resolved %v, first run %v", run, got, first)
		}
		for i := range first {
			if got[i] != first[i] {
				t.Fatalf("run %d resolved %v, first run %v", run, got, first)
			}
		}
		if g.EdgeCount() != firstEdges {
			t.Fatalf("run %d has %d edges, first run %d", run, g.EdgeCount(), firstEdges)
		}
	}
}

func TestResolveDevDependencies(t *testing.T) {
	// Root dev-dependencies resolve; dev-dependencies of transitive
	// packages are ignored entirely. "missing" is never published, so
	// looking at it at all would fail the run.
	sess := testRegistry(t,
		pkgTOML("serde", "1.0.0"),
		"[package]\nname = \"testkit\"\nversion = \"1.0.0\"\n\n[dev-dependencies]\nmissing = \"^1.0\"\n",
	)
	root := testRoot(t, `
[package]
name = "app"
version = "0.1.0"

[dependencies]
serde = "^1.0"

[dev-dependencies]
testkit = "^1.0"
`)

	g, err := resolve(t, sess, root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assertPackages(t, g, []string{"app 0.1.0", "serde 1.0.0", "testkit 1.0.0"})

	var devEdge bool
	for _, e := range g.Dependencies(g.Root()) {
		if g.Node(e.To).Pkg.Name == "testkit" && e.Kind == manifest.DepKindDev {
			devEdge = true
		}
	}
	if !devEdge {
		t.Fatal("root edge to testkit is not marked as a dev dependency")
	}
}

func TestResolveBuildDependencies(t *testing.T) {
	sess := testRegistry(t,
		"[package]\nname = \"tool\"\nversion = \"1.0.0\"\n\n[build-dependencies]\ncodegen = \"^1.0\"\n",
		pkgTOML("codegen", "1.0.0"),
	)
	root := testRoot(t, pkgTOML("app", "0.1.0", `tool = "^1.0"`))

	g, err := resolve(t, sess, root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assertPackages(t, g, []string{"app 0.1.0", "codegen 1.0.0", "tool 1.0.0"})

	toolIdx := g.ByName("tool")[0]
	deps := g.Dependencies(toolIdx)
	if len(deps) != 1 || deps[0].Kind != manifest.DepKindBuild {
		t.Fatalf("tool dependencies = %+v, want one build edge", deps)
	}
}

func TestResolveOptionalDependency(t *testing.T) {
	sess := testRegistry(t,
		pkgTOML("tracing", "1.0.0"),
	)
	root := testRoot(t, `
[package]
name = "app"
version = "0.1.0"

[dependencies]
tracing = { version = "^1.0", optional = true }
`)

	// Optional dependencies are still solved and locked; whether they end
	// up in a build is decided later by feature selection.
	g, err := resolve(t, sess, root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assertPackages(t, g, []string{"app 0.1.0", "tracing 1.0.0"})

	edges := g.Dependencies(g.Root())
	if len(edges) != 1 || !edges[0].Optional {
		t.Fatalf("root edges = %+v, want one optional edge", edges)
	}
}

// phantomSource lists one version more than it can actually serve.
type phantomSource struct {
	*source.MemorySource
	phantom semver.Version
}

func (s *phantomSource) ListVersions(ctx context.Context, name string) ([]semver.Version, error) {
	versions, err := s.MemorySource.ListVersions(ctx, name)
	if err != nil || len(versions) == 0 {
		return versions, err
	}
	return append(versions, s.phantom), nil
}

func TestResolveSkipsUnavailableVersion(t *testing.T) {
	mem := source.NewMemorySource(source.DefaultRegistry())
	if err := mem.AddTOML([]byte(pkgTOML("serde", "1.0.0"))); err != nil {
		t.Fatalf("publish fixture: %v", err)
	}
	sess := source.NewSession(source.SessionOptions{})
	sess.Register(&phantomSource{MemorySource: mem, phantom: semver.MustParse("1.9.0")})

	root := testRoot(t, pkgTOML("app", "0.1.0", `serde = "^1.0"`))

	// The index advertises 1.9.0 but its manifest is gone; the solver
	// forbids that version and settles on 1.0.0.
	g, err := resolve(t, sess, root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assertPackages(t, g, []string{"app 0.1.0", "serde 1.0.0"})
}

func TestResolvePrereleaseGate(t *testing.T) {
	fixtures := []string{
		pkgTOML("serde", "1.0.0"),
		pkgTOML("serde", "2.0.0-rc.1"),
	}

	tests := []struct {
		name string
		req  string
		want string
	}{
		{name: "stable requirement skips prereleases", req: ">=1.0.0", want: "serde 1.0.0"},
		{name: "prerelease requirement admits them", req: ">=2.0.0-rc.0", want: "serde 2.0.0-rc.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := testRegistry(t, fixtures...)
			root := testRoot(t, pkgTOML("app", "0.1.0", fmt.Sprintf("serde = %q", tt.req)))
			g, err := resolve(t, sess, root, Options{})
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			assertPackages(t, g, []string{"app 0.1.0", tt.want})
		})
	}
}

func TestResolveMultipleMajors(t *testing.T) {
	fixtures := []string{
		pkgTOML("legacy", "1.0.0", `api = "=2.0.0"`),
		pkgTOML("api", "1.0.0"),
		pkgTOML("api", "2.0.0"),
	}
	rootTOML := pkgTOML("app", "0.1.0", `api = "=1.0.0"`, `legacy = "^1.0"`)

	t.Run("single copy by default", func(t *testing.T) {
		sess := testRegistry(t, fixtures...)
		_, err := resolve(t, sess, testRoot(t, rootTOML), Options{})
		if !hoisterrors.Is(err, hoisterrors.ErrCodeConflict) {
			t.Fatalf("error = %v, want %s", err, hoisterrors.ErrCodeConflict)
		}
	})

	t.Run("majors coexist when enabled", func(t *testing.T) {
		sess := testRegistry(t, fixtures...)
		g, err := resolve(t, sess, testRoot(t, rootTOML), Options{AllowMultipleMajors: true})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		assertPackages(t, g, []string{"api 1.0.0", "api 2.0.0", "app 0.1.0", "legacy 1.0.0"})
		if got := len(g.ByName("api")); got != 2 {
			t.Fatalf("api resolved %d times, want 2", got)
		}
	})
}

func TestResolveSourceClash(t *testing.T) {
	other, err := source.Registry("https://other.example/registry")
	if err != nil {
		t.Fatalf("registry id: %v", err)
	}

	mem := source.NewMemorySource(source.DefaultRegistry())
	fixtures := []string{
		pkgTOML("lib-a", "1.0.0", `shared = "^1.0"`),
		"[package]\nname = \"lib-b\"\nversion = \"1.0.0\"\n\n[dependencies]\nshared = { version = \"^1.0\", registry = \"https://other.example/registry\" }\n",
		pkgTOML("shared", "1.0.0"),
	}
	for _, raw := range fixtures {
		if err := mem.AddTOML([]byte(raw)); err != nil {
			t.Fatalf("publish fixture: %v", err)
		}
	}
	otherMem := source.NewMemorySource(other)
	if err := otherMem.AddTOML([]byte(pkgTOML("shared", "1.0.0"))); err != nil {
		t.Fatalf("publish fixture: %v", err)
	}
	sess := source.NewSession(source.SessionOptions{})
	sess.Register(mem)
	sess.Register(otherMem)

	root := testRoot(t, pkgTOML("app", "0.1.0", `lib-a = "^1.0"`, `lib-b = "^1.0"`))

	// One name cannot come from two sources in the same graph.
	_, err = resolve(t, sess, root, Options{})
	if !hoisterrors.Is(err, hoisterrors.ErrCodeConflict) {
		t.Fatalf("error = %v, want %s", err, hoisterrors.ErrCodeConflict)
	}
}

func TestResolveCycleDetected(t *testing.T) {
	sess := testRegistry(t,
		pkgTOML("ping", "1.0.0", `pong = "=1.0.0"`),
		pkgTOML("pong", "1.0.0", `ping = "=1.0.0"`),
	)
	root := testRoot(t, pkgTOML("app", "0.1.0", `ping = "=1.0.0"`))

	_, err := resolve(t, sess, root, Options{})
	if !hoisterrors.Is(err, hoisterrors.ErrCodeCycle) {
		t.Fatalf("error = %v, want %s", err, hoisterrors.ErrCodeCycle)
	}
}

func TestResolvePathDependencyInPublishedManifest(t *testing.T) {
	t.Run("bare path requirement is rejected", func(t *testing.T) {
		sess := testRegistry(t,
			"[package]\nname = \"broken\"\nversion = \"1.0.0\"\n\n[dependencies]\nhelper = { path = \"../helper\" }\n",
		)
		root := testRoot(t, pkgTOML("app", "0.1.0", `broken = "^1.0"`))

		_, err := resolve(t, sess, root, Options{})
		if !hoisterrors.Is(err, hoisterrors.ErrCodeInvalidManifest) {
			t.Fatalf("error = %v, want %s", err, hoisterrors.ErrCodeInvalidManifest)
		}
	})

	t.Run("versioned path requirement falls back to the registry", func(t *testing.T) {
		sess := testRegistry(t,
			"[package]\nname = \"published\"\nversion = \"1.0.0\"\n\n[dependencies]\nhelper = { version = \"^1.0\", path = \"../helper\" }\n",
			pkgTOML("helper", "1.0.0"),
		)
		root := testRoot(t, pkgTOML("app", "0.1.0", `published = "^1.0"`))

		g, err := resolve(t, sess, root, Options{})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		assertPackages(t, g, []string{"app 0.1.0", "helper 1.0.0", "published 1.0.0"})
	})
}

func TestResolveMissingRootManifest(t *testing.T) {
	sess := testRegistry(t)
	_, err := New(sess, Options{}).Resolve(context.Background(), Root{})
	if !hoisterrors.Is(err, hoisterrors.ErrCodeInvalidInput) {
		t.Fatalf("error = %v, want %s", err, hoisterrors.ErrCodeInvalidInput)
	}
}

func TestResolveCanceledContext(t *testing.T) {
	sess := testRegistry(t, pkgTOML("serde", "1.0.0"))
	root := testRoot(t, pkgTOML("app", "0.1.0", `serde = "^1.0"`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(sess, Options{}).Resolve(ctx, root)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

// countingSolverHooks counts backtracks for assertions.
type countingSolverHooks struct {
	observability.NoopSolverHooks
	backtracks *int
}

func (h countingSolverHooks) OnBacktrack(ctx context.Context, fromLevel, toLevel int) {
	*h.backtracks++
}
