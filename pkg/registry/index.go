package registry

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/semver"
)

// ManifestFilename is the name manifests are published under.
const ManifestFilename = manifest.Filename

// IndexEntry describes one published version of a package.
type IndexEntry struct {
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
}

// Index lists every published version of a package, sorted by version
// ascending.
type Index struct {
	Name     string       `json:"name"`
	Versions []IndexEntry `json:"versions"`
}

// ScanPackage builds the index of one package by reading its manifest
// tree under root. Each version directory must contain a manifest
// whose declared name and version match its location. Returns an
// error with code [errors.ErrCodePackageNotFound] when the package
// has no directory at all.
func ScanPackage(root, name string) (*Index, error) {
	dir := filepath.Join(root, name)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodePackageNotFound, "package %q is not published", name)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "scan %s", dir)
	}

	idx := &Index{Name: name}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		raw := entry.Name()
		version, err := semver.Parse(raw)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidVersion, err, "version directory %s/%s", name, raw)
		}

		path := filepath.Join(dir, raw, ManifestFilename)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", path)
		}
		m, err := manifest.Parse(data)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse %s", path)
		}
		if m.Package.Name != name || !m.Package.Version.Equal(version) {
			return nil, errors.New(errors.ErrCodeInvalidManifest,
				"manifest at %s declares %s v%s", path, m.Package.Name, m.Package.Version)
		}

		sum := sha256.Sum256(data)
		idx.Versions = append(idx.Versions, IndexEntry{
			Version:  version.String(),
			Checksum: fmt.Sprintf("sha256:%x", sum),
		})
	}

	sortIndex(idx)
	return idx, nil
}

// ReadIndexFile loads a prebuilt index/<name>.json file. Missing files
// return an error with code [errors.ErrCodeFileNotFound].
func ReadIndexFile(root, name string) (*Index, error) {
	path := filepath.Join(root, "index", name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeFileNotFound, "no index file for %q", name)
		}
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", path)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse %s", path)
	}
	sortIndex(&idx)
	return &idx, nil
}

// WriteIndexFile writes index/<name>.json under root, creating the
// index directory if needed. Registries published to static hosts use
// prebuilt index files instead of server-side scans.
func WriteIndexFile(root string, idx *Index) error {
	dir := filepath.Join(root, "index")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, idx.Name+".json"), append(data, '\n'), 0o644)
}

// sortIndex orders entries by semantic version ascending. Entries with
// unparsable versions sort last by raw string; ScanPackage never
// produces them but index files are external input.
func sortIndex(idx *Index) {
	sort.SliceStable(idx.Versions, func(i, j int) bool {
		vi, erri := semver.Parse(idx.Versions[i].Version)
		vj, errj := semver.Parse(idx.Versions[j].Version)
		if erri != nil || errj != nil {
			if (erri == nil) != (errj == nil) {
				return erri == nil
			}
			return idx.Versions[i].Version < idx.Versions[j].Version
		}
		return vi.Less(vj)
	})
}
