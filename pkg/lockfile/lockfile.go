// Package lockfile reads and writes Hoist.lock, the record of one exact
// resolution.
//
// A lockfile is a format version plus one entry per resolved package,
// sorted by name then version. Writing is deliberately hand-rendered:
// the output for an unchanged graph must be byte-identical run over run,
// so the file only moves in version control when the resolution itself
// moved.
package lockfile

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/pkggraph"
	"github.com/matzehuels/hoist/pkg/semver"
	"github.com/matzehuels/hoist/pkg/source"
)

const (
	// Filename is the lockfile's name, next to Hoist.toml.
	Filename = "Hoist.lock"

	// FormatVersion is the schema generation this package writes. Files
	// declaring a newer version are rejected rather than misread.
	FormatVersion = 1
)

const header = `# This file is automatically generated by hoist.
# It is not intended for manual editing.
`

// Entry pins one resolved package.
type Entry struct {
	Name    string
	Version semver.Version

	// Source is where the package came from. Local packages carry the
	// zero ID and lock without a source line: their content lives in the
	// workspace, not behind an address.
	Source source.ID

	// Checksum of the manifest bytes, empty when the source provides
	// none.
	Checksum string

	// Dependencies lists the entry's direct dependencies as references:
	// the bare package name, or "name version" when the graph holds the
	// name more than once. Sorted and deduplicated.
	Dependencies []string
}

// File is a parsed lockfile.
type File struct {
	Version int
	Entries []Entry
}

// FromGraph captures a resolved graph as lockfile entries. The result is
// canonical: entries ordered by name then version, dependency references
// sorted, so equal graphs marshal to equal bytes.
func FromGraph(g *pkggraph.Graph) *File {
	f := &File{Version: FormatVersion}
	for _, i := range g.Sorted() {
		n := g.Node(i)
		entry := Entry{
			Name:     n.Pkg.Name,
			Version:  n.Pkg.Version,
			Checksum: n.Checksum,
		}
		if n.Pkg.Source.Kind() != source.KindPath {
			entry.Source = n.Pkg.Source
		}
		for _, e := range g.Dependencies(i) {
			entry.Dependencies = append(entry.Dependencies, ref(g, e.To))
		}
		slices.Sort(entry.Dependencies)
		entry.Dependencies = slices.Compact(entry.Dependencies)
		f.Entries = append(f.Entries, entry)
	}
	return f
}

// ref renders the dependency reference for a node: the bare name when it
// is unambiguous in the graph, otherwise "name version".
func ref(g *pkggraph.Graph, i int) string {
	pkg := g.Node(i).Pkg
	if len(g.ByName(pkg.Name)) > 1 {
		return pkg.Name + " " + pkg.Version.String()
	}
	return pkg.Name
}

// Find returns the entries locked under a name, in file order.
func (f *File) Find(name string) []Entry {
	var out []Entry
	for _, e := range f.Entries {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Marshal renders the lockfile in its canonical byte form.
func (f *File) Marshal() []byte {
	var buf bytes.Buffer
	buf.WriteString(header)
	fmt.Fprintf(&buf, "version = %d\n", f.Version)
	for _, e := range f.Entries {
		buf.WriteString("\n[[package]]\n")
		fmt.Fprintf(&buf, "name = %q\n", e.Name)
		fmt.Fprintf(&buf, "version = %q\n", e.Version)
		if !e.Source.IsZero() {
			fmt.Fprintf(&buf, "source = %q\n", e.Source)
		}
		if e.Checksum != "" {
			fmt.Fprintf(&buf, "checksum = %q\n", e.Checksum)
		}
		if len(e.Dependencies) > 0 {
			buf.WriteString("dependencies = [\n")
			for _, d := range e.Dependencies {
				fmt.Fprintf(&buf, " %q,\n", d)
			}
			buf.WriteString("]\n")
		}
	}
	return buf.Bytes()
}

// rawFile mirrors the on-disk TOML shape.
type rawFile struct {
	Version  int          `toml:"version"`
	Packages []rawPackage `toml:"package"`
}

type rawPackage struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source"`
	Checksum     string   `toml:"checksum"`
	Dependencies []string `toml:"dependencies"`
}

// Unmarshal parses lockfile bytes.
func Unmarshal(data []byte) (*File, error) {
	var raw rawFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLockfile, err, "parse lockfile")
	}
	if raw.Version == 0 {
		return nil, errors.New(errors.ErrCodeInvalidLockfile, "lockfile has no format version")
	}
	if raw.Version > FormatVersion {
		return nil, errors.New(errors.ErrCodeInvalidLockfile,
			"lockfile format version %d is newer than the supported %d; upgrade hoist", raw.Version, FormatVersion)
	}

	f := &File{Version: raw.Version}
	for _, p := range raw.Packages {
		if p.Name == "" {
			return nil, errors.New(errors.ErrCodeInvalidLockfile, "lockfile entry without a name")
		}
		v, err := semver.Parse(p.Version)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidLockfile, err, "lockfile entry %q", p.Name)
		}
		entry := Entry{
			Name:         p.Name,
			Version:      v,
			Checksum:     p.Checksum,
			Dependencies: p.Dependencies,
		}
		if p.Source != "" {
			src, err := source.ParseID(p.Source)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidLockfile, err, "lockfile entry %q", p.Name)
			}
			entry.Source = src
		}
		f.Entries = append(f.Entries, entry)
	}
	return f, nil
}

// Load reads and parses a lockfile. A missing file is not an error; it
// returns (nil, nil) so callers treat it as "nothing locked yet".
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLockfile, err, "read lockfile %s", path)
	}
	return Unmarshal(data)
}

// Save writes the lockfile, skipping the write when the on-disk bytes
// already match. Returns whether the file changed.
func Save(path string, f *File) (bool, error) {
	data := f.Marshal()
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, errors.Wrap(errors.ErrCodeInternal, err, "write lockfile %s", path)
	}
	return true, nil
}

// Diff summarizes how locked versions moved between two lockfiles, one
// line per change, sorted by package name. Nil files count as empty.
func Diff(before, after *File) []string {
	type key struct{ name, version string }
	was := make(map[key]bool)
	names := make(map[string]bool)
	if before != nil {
		for _, e := range before.Entries {
			was[key{e.Name, e.Version.String()}] = true
			names[e.Name] = true
		}
	}

	var out []string
	now := make(map[key]bool)
	if after != nil {
		for _, e := range after.Entries {
			k := key{e.Name, e.Version.String()}
			now[k] = true
			if !was[k] {
				if names[e.Name] {
					out = append(out, fmt.Sprintf("update %s -> %s", e.Name, e.Version))
				} else {
					out = append(out, fmt.Sprintf("add %s %s", e.Name, e.Version))
				}
			}
		}
	}
	if before != nil {
		for _, e := range before.Entries {
			stillLocked := false
			if after != nil {
				for _, a := range after.Entries {
					if a.Name == e.Name {
						stillLocked = true
						break
					}
				}
			}
			if !stillLocked {
				out = append(out, fmt.Sprintf("remove %s %s", e.Name, e.Version))
			}
		}
	}
	slices.SortFunc(out, func(a, b string) int {
		return strings.Compare(a[strings.Index(a, " ")+1:], b[strings.Index(b, " ")+1:])
	})
	return out
}
