package plan

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	hoisterrors "github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/pkggraph"
	"github.com/matzehuels/hoist/pkg/source"
)

// planGraph builds a resolved graph from manifests: the first is the
// root, edges are derived by matching dependency names against the
// other manifests, the way resolution would realize them.
func planGraph(t *testing.T, manifests ...string) *pkggraph.Graph {
	t.Helper()
	g := pkggraph.New()
	reg := source.DefaultRegistry()

	parsed := make([]*manifest.Manifest, len(manifests))
	index := make(map[string]int)
	for i, raw := range manifests {
		m, err := manifest.Parse([]byte(raw))
		if err != nil {
			t.Fatalf("parse fixture %d: %v", i, err)
		}
		parsed[i] = m
		idx, err := g.AddNode(pkggraph.Node{
			Pkg:      source.PackageID{Name: m.Package.Name, Version: m.Package.Version, Source: reg},
			Manifest: m,
		})
		if err != nil {
			t.Fatalf("add node %s: %v", m.Package.Name, err)
		}
		index[m.Package.Name] = idx
	}
	g.SetRoot(0)

	for i, m := range parsed {
		for _, d := range m.Dependencies {
			to, ok := index[d.Name]
			if !ok {
				t.Fatalf("fixture %s depends on unknown package %s", m.Package.Name, d.Name)
			}
			err := g.AddEdge(pkggraph.Edge{
				From:     i,
				To:       to,
				Kind:     d.Kind,
				Optional: d.Optional,
				Features: d.Features,
			})
			if err != nil {
				t.Fatalf("add edge %s -> %s: %v", m.Package.Name, d.Name, err)
			}
		}
	}
	return g
}

func unitIDs(p *Plan) []string {
	out := make([]string, len(p.Units))
	for i, u := range p.Units {
		out[i] = u.Pkg.Name + " " + u.Target.ID()
	}
	return out
}

func assertUnits(t *testing.T, p *Plan, want []string) {
	t.Helper()
	got := unitIDs(p)
	if len(got) != len(want) {
		t.Fatalf("units = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("units = %v, want %v", got, want)
		}
	}
}

func TestBuildOrdersDependenciesFirst(t *testing.T) {
	g := planGraph(t,
		"[package]\nname = \"app\"\nversion = \"0.1.0\"\n\n[dependencies]\nserde = \"^1.0\"\n\n[lib]\n\n[[bin]]\nname = \"app\"\n",
		"[package]\nname = \"serde\"\nversion = \"1.2.0\"\n",
	)

	p, err := Build(g, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	assertUnits(t, p, []string{"serde lib/serde", "app lib/app", "app bin/app"})

	bin := p.Units[2]
	if len(bin.Deps) != 2 || bin.Deps[0] != 0 || bin.Deps[1] != 1 {
		t.Fatalf("bin deps = %v, want [0 1]", bin.Deps)
	}
	lib := p.Units[1]
	if len(lib.Deps) != 1 || lib.Deps[0] != 0 {
		t.Fatalf("lib deps = %v, want [0]", lib.Deps)
	}
}

func TestBuildUnifiesFeatures(t *testing.T) {
	g := planGraph(t,
		"[package]\nname = \"app\"\nversion = \"0.1.0\"\n\n[dependencies]\nleft = \"^1.0\"\nright = \"^1.0\"\n",
		"[package]\nname = \"left\"\nversion = \"1.0.0\"\n\n[dependencies]\nshared = { version = \"^1.0\", features = [\"fast\"] }\n",
		"[package]\nname = \"right\"\nversion = \"1.0.0\"\n\n[dependencies]\nshared = { version = \"^1.0\", features = [\"tiny\"] }\n",
		"[package]\nname = \"shared\"\nversion = \"1.0.0\"\n\n[features]\nfast = []\ntiny = []\n",
	)

	p, err := Build(g, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// One compile of shared, satisfying both consumers at once.
	i := p.Find("shared", manifest.TargetLib, "shared")
	if i < 0 {
		t.Fatal("shared has no library unit")
	}
	got := p.Units[i].Features
	if len(got) != 2 || got[0] != "fast" || got[1] != "tiny" {
		t.Fatalf("shared features = %v, want [fast tiny]", got)
	}
}

func TestBuildFeatureFixpoint(t *testing.T) {
	g := planGraph(t,
		`
[package]
name = "app"
version = "0.1.0"

[dependencies]
serde = "^1.0"
tracing = { version = "^1.0", optional = true }

[features]
default = ["telemetry"]
telemetry = ["tracing", "serde/fast"]
`,
		"[package]\nname = \"serde\"\nversion = \"1.0.0\"\n\n[features]\nfast = []\n",
		"[package]\nname = \"tracing\"\nversion = \"1.0.0\"\n",
	)

	p, err := Build(g, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// "default" pulls telemetry, which turns on the optional dependency
	// and a feature of serde.
	if p.Find("tracing", manifest.TargetLib, "tracing") < 0 {
		t.Fatalf("tracing missing from plan: %v", unitIDs(p))
	}
	serde := p.Units[p.Find("serde", manifest.TargetLib, "serde")]
	if len(serde.Features) != 1 || serde.Features[0] != "fast" {
		t.Fatalf("serde features = %v, want [fast]", serde.Features)
	}
	app := p.Units[p.Find("app", manifest.TargetLib, "app")]
	if len(app.Features) != 2 || app.Features[0] != "default" || app.Features[1] != "telemetry" {
		t.Fatalf("app features = %v, want [default telemetry]", app.Features)
	}
}

func TestBuildSkipsInactiveOptional(t *testing.T) {
	g := planGraph(t,
		"[package]\nname = \"app\"\nversion = \"0.1.0\"\n\n[dependencies]\ntracing = { version = \"^1.0\", optional = true }\n",
		"[package]\nname = \"tracing\"\nversion = \"1.0.0\"\n",
	)

	// Resolution locks optional dependencies, but nothing activates this
	// one, so it must not be compiled.
	p, err := Build(g, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	assertUnits(t, p, []string{"app lib/app"})
}

func TestBuildActivatesFeaturesFromOptions(t *testing.T) {
	g := planGraph(t,
		`
[package]
name = "app"
version = "0.1.0"

[dependencies]
tracing = { version = "^1.0", optional = true }

[features]
telemetry = ["tracing"]
`,
		"[package]\nname = \"tracing\"\nversion = \"1.0.0\"\n",
	)

	p, err := Build(g, Options{Features: []string{"telemetry"}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Find("tracing", manifest.TargetLib, "tracing") < 0 {
		t.Fatalf("tracing missing from plan: %v", unitIDs(p))
	}

	if _, err := Build(g, Options{Features: []string{"bogus"}}); !hoisterrors.Is(err, hoisterrors.ErrCodeInvalidManifest) {
		t.Fatalf("error = %v, want %s", err, hoisterrors.ErrCodeInvalidManifest)
	}
}

func TestBuildTargetKindDependencies(t *testing.T) {
	g := planGraph(t,
		`
[package]
name = "app"
version = "0.1.0"

[dependencies]
serde = "^1.0"

[dev-dependencies]
testkit = "^1.0"

[build-dependencies]
codegen = "^1.0"

[lib]

[[bin]]
name = "app"

[[test]]
name = "integration"
`,
		"[package]\nname = \"serde\"\nversion = \"1.0.0\"\n",
		"[package]\nname = \"testkit\"\nversion = \"1.0.0\"\n",
		"[package]\nname = \"codegen\"\nversion = \"1.0.0\"\n",
	)

	p, err := Build(g, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	depNames := func(u CompilationUnit) []string {
		var out []string
		for _, d := range u.Deps {
			out = append(out, p.Units[d].Pkg.Name)
		}
		return out
	}

	// The build dependency compiles but nothing links it.
	codegen := p.Find("codegen", manifest.TargetLib, "codegen")
	if codegen < 0 {
		t.Fatalf("codegen missing from plan: %v", unitIDs(p))
	}

	lib := p.Units[p.Find("app", manifest.TargetLib, "app")]
	if got := depNames(lib); len(got) != 1 || got[0] != "serde" {
		t.Fatalf("lib deps = %v, want [serde]", got)
	}

	bin := p.Units[p.Find("app", manifest.TargetBin, "app")]
	if got := depNames(bin); len(got) != 2 || got[0] != "serde" || got[1] != "app" {
		t.Fatalf("bin deps = %v, want [serde app]", got)
	}

	test := p.Units[p.Find("app", manifest.TargetTest, "integration")]
	got := depNames(test)
	if len(got) != 3 {
		t.Fatalf("test deps = %v, want serde, testkit and the app library", got)
	}
	var hasTestkit bool
	for _, name := range got {
		if name == "testkit" {
			hasTestkit = true
		}
	}
	if !hasTestkit {
		t.Fatalf("test deps = %v, missing testkit", got)
	}
}

func TestBuildOrderBreaksTiesByName(t *testing.T) {
	g := planGraph(t,
		"[package]\nname = \"app\"\nversion = \"0.1.0\"\n\n[lib]\n\n[[bin]]\nname = \"zeta\"\n\n[[bin]]\nname = \"alpha\"\n",
	)

	p, err := Build(g, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	assertUnits(t, p, []string{"app lib/app", "app bin/alpha", "app bin/zeta"})
}

func TestBuildCycleIsFatal(t *testing.T) {
	g := planGraph(t,
		"[package]\nname = \"app\"\nversion = \"0.1.0\"\n\n[dependencies]\nping = \"^1.0\"\n",
		"[package]\nname = \"ping\"\nversion = \"1.0.0\"\n\n[dependencies]\npong = \"^1.0\"\n",
		"[package]\nname = \"pong\"\nversion = \"1.0.0\"\n\n[dependencies]\nping = \"^1.0\"\n",
	)

	_, err := Build(g, Options{})
	if !hoisterrors.Is(err, hoisterrors.ErrCodeCycle) {
		t.Fatalf("error = %v, want %s", err, hoisterrors.ErrCodeCycle)
	}
	if !strings.Contains(err.Error(), "ping") || !strings.Contains(err.Error(), "pong") {
		t.Fatalf("cycle error does not name the units: %v", err)
	}
}

func TestBuildRejectsUnknownFeatureRequest(t *testing.T) {
	g := planGraph(t,
		"[package]\nname = \"app\"\nversion = \"0.1.0\"\n\n[dependencies]\nserde = { version = \"^1.0\", features = [\"warp\"] }\n",
		"[package]\nname = \"serde\"\nversion = \"1.0.0\"\n",
	)

	_, err := Build(g, Options{})
	if !hoisterrors.Is(err, hoisterrors.ErrCodeInvalidManifest) {
		t.Fatalf("error = %v, want %s", err, hoisterrors.ErrCodeInvalidManifest)
	}
}

func TestBuildRequiresLibraryTarget(t *testing.T) {
	g := planGraph(t,
		"[package]\nname = \"app\"\nversion = \"0.1.0\"\n\n[dependencies]\ntool = \"^1.0\"\n",
		"[package]\nname = \"tool\"\nversion = \"1.0.0\"\n\n[[bin]]\nname = \"tool\"\n",
	)

	_, err := Build(g, Options{})
	if !hoisterrors.Is(err, hoisterrors.ErrCodeInvalidManifest) {
		t.Fatalf("error = %v, want %s", err, hoisterrors.ErrCodeInvalidManifest)
	}
}

func TestWriteJSON(t *testing.T) {
	g := planGraph(t,
		"[package]\nname = \"app\"\nversion = \"0.1.0\"\n\n[dependencies]\nserde = \"^1.0\"\n",
		"[package]\nname = \"serde\"\nversion = \"1.0.0\"\n",
	)
	p, err := Build(g, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteJSON(p, &buf); err != nil {
		t.Fatalf("write json: %v", err)
	}

	var decoded struct {
		Units []struct {
			Package string `json:"package"`
			Target  string `json:"target"`
			Deps    []int  `json:"deps"`
		} `json:"units"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Units) != 2 || decoded.Units[0].Package != "serde" {
		t.Fatalf("decoded units = %+v", decoded.Units)
	}
	if deps := decoded.Units[1].Deps; len(deps) != 1 || deps[0] != 0 {
		t.Fatalf("app deps = %v, want [0]", deps)
	}
}

func TestToDOT(t *testing.T) {
	g := planGraph(t,
		"[package]\nname = \"app\"\nversion = \"0.1.0\"\n\n[dependencies]\nserde = \"^1.0\"\n",
		"[package]\nname = \"serde\"\nversion = \"1.0.0\"\n",
	)
	p, err := Build(g, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	dot := ToDOT(p)
	if !strings.HasPrefix(dot, "digraph plan {") {
		t.Fatalf("dot output = %q", dot)
	}
	if !strings.Contains(dot, `"app v0.1.0 lib/app" -> "serde v1.0.0 lib/serde";`) {
		t.Fatalf("dot output misses the dependency edge:\n%s", dot)
	}
}
