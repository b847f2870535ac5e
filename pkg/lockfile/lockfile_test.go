package lockfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	hoisterrors "github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/pkggraph"
	"github.com/matzehuels/hoist/pkg/semver"
	"github.com/matzehuels/hoist/pkg/source"
)

func mustID(t *testing.T, s string) source.ID {
	t.Helper()
	id, err := source.ParseID(s)
	if err != nil {
		t.Fatalf("parse source %q: %v", s, err)
	}
	return id
}

// goldenGraph mirrors testdata/Hoist.lock: a local root, two serde
// majors, and a dev edge to json.
func goldenGraph(t *testing.T) *pkggraph.Graph {
	t.Helper()
	reg := source.DefaultRegistry()
	g := pkggraph.New()

	add := func(n pkggraph.Node) int {
		t.Helper()
		i, err := g.AddNode(n)
		if err != nil {
			t.Fatalf("add node: %v", err)
		}
		return i
	}
	app := add(pkggraph.Node{Pkg: source.PackageID{
		Name: "app", Version: semver.MustParse("0.1.0"), Source: mustID(t, "path+file:///ws/app"),
	}})
	serde1 := add(pkggraph.Node{
		Pkg:      source.PackageID{Name: "serde", Version: semver.MustParse("1.2.0"), Source: reg},
		Checksum: "sha256:1f0e89e5a80e208171ce76b54ae8a3d5a2539e6e4b04eaefcf2737a6bbe42260",
	})
	serde2 := add(pkggraph.Node{
		Pkg:      source.PackageID{Name: "serde", Version: semver.MustParse("2.0.0"), Source: reg},
		Checksum: "sha256:9c3ff314a6ea9308c3bec4df545b1330d65ca63a2c3d0b09031a51eb2fb7dcd6",
	})
	json := add(pkggraph.Node{
		Pkg:      source.PackageID{Name: "json", Version: semver.MustParse("2.1.0"), Source: reg},
		Checksum: "sha256:3c0c9f24b2c1d18d332e54a41d45bd7a35b47e5897f1a318f0d21ec9117cb367",
	})
	g.SetRoot(app)

	edges := []pkggraph.Edge{
		{From: app, To: serde1, Kind: manifest.DepKindNormal},
		{From: app, To: json, Kind: manifest.DepKindDev},
		{From: json, To: serde2, Kind: manifest.DepKindNormal},
	}
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			t.Fatalf("add edge: %v", err)
		}
	}
	return g
}

func TestFromGraphMatchesGolden(t *testing.T) {
	want, err := os.ReadFile(filepath.Join("testdata", Filename))
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	got := FromGraph(goldenGraph(t)).Marshal()
	if !bytes.Equal(got, want) {
		t.Fatalf("rendered lockfile differs from golden:\n%s", got)
	}
}

func TestRoundTripIsByteIdentical(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", Filename))
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	f, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !bytes.Equal(f.Marshal(), data) {
		t.Fatalf("round trip changed bytes:\n%s", f.Marshal())
	}
}

func TestUnmarshalEntries(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", Filename))
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	f, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Version != 1 || len(f.Entries) != 4 {
		t.Fatalf("version = %d, entries = %d, want 1 and 4", f.Version, len(f.Entries))
	}

	app := f.Entries[0]
	if app.Name != "app" || !app.Source.IsZero() || app.Checksum != "" {
		t.Fatalf("local root entry should carry no source or checksum: %+v", app)
	}
	if len(app.Dependencies) != 2 || app.Dependencies[1] != "serde 1.2.0" {
		t.Fatalf("app dependencies = %v", app.Dependencies)
	}

	if got := f.Find("serde"); len(got) != 2 || !got[0].Version.Equal(semver.MustParse("1.2.0")) {
		t.Fatalf("Find(serde) = %+v", got)
	}
	if f.Entries[1].Source.Compare(source.DefaultRegistry()) != 0 {
		t.Fatalf("json source = %s", f.Entries[1].Source)
	}
}

func TestUnmarshalRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "no format version", data: "[[package]]\nname = \"a\"\nversion = \"1.0.0\"\n"},
		{name: "newer format version", data: "version = 99\n"},
		{name: "entry without name", data: "version = 1\n\n[[package]]\nversion = \"1.0.0\"\n"},
		{name: "bad version", data: "version = 1\n\n[[package]]\nname = \"a\"\nversion = \"one\"\n"},
		{name: "bad source", data: "version = 1\n\n[[package]]\nname = \"a\"\nversion = \"1.0.0\"\nsource = \"carrier+pigeon\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			if !hoisterrors.Is(err, hoisterrors.ErrCodeInvalidLockfile) && !hoisterrors.Is(err, hoisterrors.ErrCodeInvalidSource) {
				t.Fatalf("error = %v, want an invalid-lockfile error", err)
			}
		})
	}
}

func TestLoadMissingFileIsNotLocked(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), Filename))
	if err != nil || f != nil {
		t.Fatalf("Load = %v, %v; want nil, nil", f, err)
	}
}

func TestSaveSkipsUnchangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), Filename)
	f := FromGraph(goldenGraph(t))

	changed, err := Save(path, f)
	if err != nil || !changed {
		t.Fatalf("first save: changed = %v, err = %v", changed, err)
	}
	changed, err = Save(path, f)
	if err != nil || changed {
		t.Fatalf("second save: changed = %v, err = %v", changed, err)
	}

	f.Entries = f.Entries[:len(f.Entries)-1]
	changed, err = Save(path, f)
	if err != nil || !changed {
		t.Fatalf("save after edit: changed = %v, err = %v", changed, err)
	}
}

func reconcileRoot(t *testing.T, deps string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte("[package]\nname = \"app\"\nversion = \"0.1.0\"\n\n[dependencies]\n" + deps))
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	return m
}

func entry(name, version string, deps ...string) Entry {
	return Entry{Name: name, Version: semver.MustParse(version), Dependencies: deps}
}

func TestReconcile(t *testing.T) {
	root := reconcileRoot(t, "serde = \"^1.0\"\nleft = \"^1.0\"\ntokio = \"^2.0\"\n")
	lock := &File{Version: FormatVersion, Entries: []Entry{
		entry("app", "0.1.0", "left", "serde", "tokio"),
		entry("left", "1.0.0", "shared"),
		entry("orphan", "3.0.0"),
		entry("serde", "1.2.0"),
		entry("shared", "0.9.0"),
		entry("tokio", "1.5.0"),
	}}

	prefs := Reconcile(root, lock)

	want := []string{"left 1.0.0", "serde 1.2.0", "shared 0.9.0"}
	if len(prefs) != len(want) {
		t.Fatalf("preferences = %+v, want %v", prefs, want)
	}
	for i, p := range prefs {
		if got := p.Name + " " + p.Version.String(); got != want[i] {
			t.Fatalf("preference %d = %s, want %s", i, got, want[i])
		}
	}
}

func TestReconcileFollowsVersionedRefs(t *testing.T) {
	root := reconcileRoot(t, "api = \"=1.0.0\"\nlegacy = \"^1.0\"\n")
	lock := &File{Version: FormatVersion, Entries: []Entry{
		entry("api", "1.0.0"),
		entry("api", "2.0.0"),
		entry("legacy", "1.0.0", "api 2.0.0"),
	}}

	prefs := Reconcile(root, lock)
	if len(prefs) != 3 {
		t.Fatalf("preferences = %+v, want both api entries and legacy", prefs)
	}
}

func TestReconcileEmptyInputs(t *testing.T) {
	root := reconcileRoot(t, "serde = \"^1.0\"\n")
	if prefs := Reconcile(root, nil); prefs != nil {
		t.Fatalf("nil lock gave preferences: %+v", prefs)
	}
	if prefs := Reconcile(nil, &File{}); prefs != nil {
		t.Fatalf("nil root gave preferences: %+v", prefs)
	}
}

func TestDiff(t *testing.T) {
	before := &File{Entries: []Entry{
		entry("dropped", "1.0.0"),
		entry("serde", "1.0.0"),
	}}
	after := &File{Entries: []Entry{
		entry("fresh", "0.3.0"),
		entry("serde", "1.2.0"),
	}}

	got := Diff(before, after)
	want := []string{"remove dropped 1.0.0", "add fresh 0.3.0", "update serde -> 1.2.0"}
	if len(got) != len(want) {
		t.Fatalf("diff = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("diff = %v, want %v", got, want)
		}
	}

	if d := Diff(after, after); len(d) != 0 {
		t.Fatalf("identical files diff = %v", d)
	}
}
