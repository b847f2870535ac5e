package manifest

import (
	"path"

	"github.com/matzehuels/hoist/pkg/errors"
)

// TargetKind classifies a compilation target.
type TargetKind string

const (
	// TargetLib is the package's library, the artifact dependents link
	// against. A package has at most one.
	TargetLib TargetKind = "lib"
	// TargetBin is an executable target.
	TargetBin TargetKind = "bin"
	// TargetTest is a test harness target. Test targets see the package's
	// dev-dependencies in addition to its normal dependencies.
	TargetTest TargetKind = "test"
)

// KindRank orders target kinds for deterministic output: lib, bin, test.
func KindRank(k TargetKind) int {
	switch k {
	case TargetLib:
		return 0
	case TargetBin:
		return 1
	case TargetTest:
		return 2
	}
	return 3
}

// Target is one declared compilation target.
type Target struct {
	Kind TargetKind
	Name string
	Path string // source root, relative to the package directory

	// Options carries target-specific compiler settings, passed through to
	// the build scheduler untouched.
	Options map[string]string
}

// ID returns the target's stable identifier within its package ("lib/hello").
func (t Target) ID() string {
	return string(t.Kind) + "/" + t.Name
}

// targetFile is the raw TOML shape of [lib], [[bin]], and [[test]] tables.
type targetFile struct {
	Name    string            `toml:"name"`
	Path    string            `toml:"path"`
	Options map[string]string `toml:"options"`
}

func decodeTargets(raw manifestFile, pkgName string) ([]Target, error) {
	var out []Target

	if raw.Lib != nil {
		t := Target{Kind: TargetLib, Name: raw.Lib.Name, Path: raw.Lib.Path, Options: raw.Lib.Options}
		if t.Name == "" {
			t.Name = pkgName
		}
		if t.Path == "" {
			t.Path = "src/lib"
		}
		out = append(out, t)
	}

	for _, b := range raw.Bin {
		t := Target{Kind: TargetBin, Name: b.Name, Path: b.Path, Options: b.Options}
		if t.Name == "" {
			if len(raw.Bin) > 1 {
				return nil, errors.New(errors.ErrCodeInvalidManifest, "every [[bin]] target needs a name when more than one is declared")
			}
			t.Name = pkgName
		}
		if t.Path == "" {
			if t.Name == pkgName {
				t.Path = "src/main"
			} else {
				t.Path = path.Join("src/bin", t.Name)
			}
		}
		out = append(out, t)
	}

	for _, tf := range raw.Test {
		t := Target{Kind: TargetTest, Name: tf.Name, Path: tf.Path, Options: tf.Options}
		if t.Name == "" {
			if len(raw.Test) > 1 {
				return nil, errors.New(errors.ErrCodeInvalidManifest, "every [[test]] target needs a name when more than one is declared")
			}
			t.Name = "test"
		}
		if t.Path == "" {
			t.Path = path.Join("tests", t.Name)
		}
		out = append(out, t)
	}

	// A package with no declared targets still builds its library.
	if len(out) == 0 {
		out = append(out, Target{Kind: TargetLib, Name: pkgName, Path: "src/lib"})
	}
	return out, nil
}

// LibTarget returns the package's library target, if declared.
func (m *Manifest) LibTarget() (Target, bool) {
	for _, t := range m.Targets {
		if t.Kind == TargetLib {
			return t, true
		}
	}
	return Target{}, false
}

// TargetsOfKind returns declared targets of the given kind, in declaration
// order.
func (m *Manifest) TargetsOfKind(kind TargetKind) []Target {
	var out []Target
	for _, t := range m.Targets {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}
