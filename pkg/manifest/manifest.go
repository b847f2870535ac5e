// Package manifest parses and validates Hoist.toml package manifests.
//
// A manifest declares the package identity, its dependency requirements,
// its compilation targets, and its named features:
//
//	[package]
//	name = "hello"
//	version = "0.1.0"
//
//	[dependencies]
//	serde = "1.2"
//	local-util = { path = "../util" }
//	tracing = { version = "0.3", optional = true }
//
//	[features]
//	telemetry = ["tracing", "serde/derive"]
//
//	[lib]
//	[[bin]]
//	name = "hello"
//
// Declaration order is preserved for dependencies and features because the
// resolver uses it as a deterministic tie-break; parsing goes through
// [toml.MetaData] rather than plain map decoding for that reason.
package manifest

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/semver"
)

// Filename is the canonical manifest file name.
const Filename = "Hoist.toml"

// DepKind classifies a dependency edge by the build stages that need it.
type DepKind string

const (
	// DepKindNormal dependencies are needed by every target.
	DepKindNormal DepKind = "normal"
	// DepKindDev dependencies are needed by test targets only.
	DepKindDev DepKind = "dev"
	// DepKindBuild dependencies are needed at build-script time and never
	// become compilation unit edges.
	DepKindBuild DepKind = "build"
)

// PackageDecl is the [package] section of a manifest.
type PackageDecl struct {
	Name        string
	Version     semver.Version
	Description string
}

// Dependency is one declared requirement edge.
type Dependency struct {
	Name     string
	Req      semver.Req
	Path     string   // path source override, relative to the manifest dir
	Registry string   // registry URL override
	Pin      string   // exact revision pin
	Features []string // features to enable on the dependency
	Optional bool
	Kind     DepKind
}

// Manifest is the parsed content of a Hoist.toml file.
// Dependencies and Features preserve declaration order.
type Manifest struct {
	Package      PackageDecl
	Dependencies []Dependency
	Targets      []Target
	Features     []Feature
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "no manifest at %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read %s", path)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse %s", path)
	}
	return m, nil
}

// Find locates the nearest Hoist.toml, starting at dir and walking up the
// directory tree. Returns the manifest path.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", dir)
	}
	for {
		candidate := filepath.Join(abs, Filename)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", errors.New(errors.ErrCodeFileNotFound, "no %s found in %s or any parent directory", Filename, dir)
		}
		abs = parent
	}
}

// Parse decodes and validates a manifest from its raw TOML bytes.
func Parse(data []byte) (*Manifest, error) {
	var raw manifestFile
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "malformed manifest")
	}

	m := &Manifest{}
	m.Package.Name = raw.Package.Name
	m.Package.Description = raw.Package.Description
	if raw.Package.Version == "" {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "[package] version is required")
	}
	v, err := semver.Parse(raw.Package.Version)
	if err != nil {
		return nil, err
	}
	m.Package.Version = v

	deps, err := decodeDependencies(meta, raw)
	if err != nil {
		return nil, err
	}
	m.Dependencies = deps

	features, err := decodeFeatures(meta, raw)
	if err != nil {
		return nil, err
	}
	m.Features = features

	targets, err := decodeTargets(raw, m.Package.Name)
	if err != nil {
		return nil, err
	}
	m.Targets = targets

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// FindDependency returns the first declared dependency with the given name,
// searching declaration order.
func (m *Manifest) FindDependency(name string) (Dependency, bool) {
	for _, d := range m.Dependencies {
		if d.Name == name {
			return d, true
		}
	}
	return Dependency{}, false
}

// DependenciesOfKind returns declared dependencies of the given kind,
// in declaration order.
func (m *Manifest) DependenciesOfKind(kind DepKind) []Dependency {
	var out []Dependency
	for _, d := range m.Dependencies {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// HasFeature reports whether the manifest declares the named feature.
func (m *Manifest) HasFeature(name string) bool {
	for _, f := range m.Features {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Feature returns the named feature declaration.
func (m *Manifest) Feature(name string) (Feature, bool) {
	for _, f := range m.Features {
		if f.Name == name {
			return f, true
		}
	}
	return Feature{}, false
}

// manifestFile is the raw TOML shape. Dependency values are decoded as any
// because both string shorthand and detail tables are allowed.
type manifestFile struct {
	Package struct {
		Name        string `toml:"name"`
		Version     string `toml:"version"`
		Description string `toml:"description"`
	} `toml:"package"`
	Dependencies      map[string]any      `toml:"dependencies"`
	DevDependencies   map[string]any      `toml:"dev-dependencies"`
	BuildDependencies map[string]any      `toml:"build-dependencies"`
	Features          map[string][]string `toml:"features"`
	Lib               *targetFile         `toml:"lib"`
	Bin               []targetFile        `toml:"bin"`
	Test              []targetFile        `toml:"test"`
}

// depTables maps each dependency section to its kind, in the order the
// sections contribute to the combined dependency list.
var depTables = []struct {
	key  string
	kind DepKind
}{
	{"dependencies", DepKindNormal},
	{"dev-dependencies", DepKindDev},
	{"build-dependencies", DepKindBuild},
}

func decodeDependencies(meta toml.MetaData, raw manifestFile) ([]Dependency, error) {
	tables := map[string]map[string]any{
		"dependencies":       raw.Dependencies,
		"dev-dependencies":   raw.DevDependencies,
		"build-dependencies": raw.BuildDependencies,
	}

	var out []Dependency
	for _, table := range depTables {
		for _, name := range orderedKeys(meta, table.key, tables[table.key]) {
			dep, err := decodeDependency(name, tables[table.key][name], table.kind)
			if err != nil {
				return nil, err
			}
			out = append(out, dep)
		}
	}
	return out, nil
}

// orderedKeys returns the second-level keys under the given top-level table
// in file declaration order.
func orderedKeys(meta toml.MetaData, table string, values map[string]any) []string {
	var keys []string
	seen := make(map[string]bool, len(values))
	for _, key := range meta.Keys() {
		if len(key) < 2 || key[0] != table {
			continue
		}
		name := key[1]
		if seen[name] {
			continue
		}
		if _, ok := values[name]; !ok {
			continue
		}
		seen[name] = true
		keys = append(keys, name)
	}
	// Metadata should cover every decoded key; the fallback keeps behavior
	// sane if it ever does not.
	if len(keys) < len(values) {
		var missing []string
		for name := range values {
			if !seen[name] {
				missing = append(missing, name)
			}
		}
		sort.Strings(missing)
		keys = append(keys, missing...)
	}
	return keys
}

func decodeDependency(name string, value any, kind DepKind) (Dependency, error) {
	dep := Dependency{Name: name, Kind: kind}

	switch v := value.(type) {
	case string:
		req, err := semver.ParseReq(v)
		if err != nil {
			return Dependency{}, errors.Wrap(errors.ErrCodeInvalidManifest, err, "dependency %q", name)
		}
		dep.Req = req
		return dep, nil

	case map[string]any:
		return decodeDependencyTable(name, v, kind)

	default:
		return Dependency{}, errors.New(errors.ErrCodeInvalidManifest,
			"dependency %q must be a version string or a table", name)
	}
}

func decodeDependencyTable(name string, table map[string]any, kind DepKind) (Dependency, error) {
	dep := Dependency{Name: name, Kind: kind}
	var versionText string

	for key, value := range table {
		switch key {
		case "version":
			s, ok := value.(string)
			if !ok {
				return Dependency{}, errors.New(errors.ErrCodeInvalidManifest, "dependency %q: version must be a string", name)
			}
			versionText = s
		case "path":
			s, ok := value.(string)
			if !ok {
				return Dependency{}, errors.New(errors.ErrCodeInvalidManifest, "dependency %q: path must be a string", name)
			}
			dep.Path = s
		case "registry":
			s, ok := value.(string)
			if !ok {
				return Dependency{}, errors.New(errors.ErrCodeInvalidManifest, "dependency %q: registry must be a string", name)
			}
			dep.Registry = s
		case "pin":
			s, ok := value.(string)
			if !ok {
				return Dependency{}, errors.New(errors.ErrCodeInvalidManifest, "dependency %q: pin must be a string", name)
			}
			dep.Pin = s
		case "features":
			list, ok := value.([]any)
			if !ok {
				return Dependency{}, errors.New(errors.ErrCodeInvalidManifest, "dependency %q: features must be an array", name)
			}
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return Dependency{}, errors.New(errors.ErrCodeInvalidManifest, "dependency %q: features must be strings", name)
				}
				dep.Features = append(dep.Features, s)
			}
		case "optional":
			b, ok := value.(bool)
			if !ok {
				return Dependency{}, errors.New(errors.ErrCodeInvalidManifest, "dependency %q: optional must be a boolean", name)
			}
			dep.Optional = b
		default:
			return Dependency{}, errors.New(errors.ErrCodeInvalidManifest, "dependency %q: unknown key %q", name, key)
		}
	}

	switch {
	case versionText != "":
		req, err := semver.ParseReq(versionText)
		if err != nil {
			return Dependency{}, errors.Wrap(errors.ErrCodeInvalidManifest, err, "dependency %q", name)
		}
		dep.Req = req
	case dep.Path != "":
		// Path dependencies without a version accept whatever the local
		// package declares.
		dep.Req = semver.Any()
	default:
		return Dependency{}, errors.New(errors.ErrCodeInvalidManifest,
			"dependency %q requires a version or a path", name)
	}
	return dep, nil
}

func decodeFeatures(meta toml.MetaData, raw manifestFile) ([]Feature, error) {
	values := make(map[string]any, len(raw.Features))
	for name := range raw.Features {
		values[name] = raw.Features[name]
	}

	var out []Feature
	for _, name := range orderedKeys(meta, "features", values) {
		f := Feature{Name: name}
		for _, spec := range raw.Features[name] {
			parsed, err := parseFeatureSpec(spec)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "feature %q", name)
			}
			f.Specs = append(f.Specs, parsed)
		}
		out = append(out, f)
	}
	return out, nil
}
