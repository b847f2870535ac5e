package lockfile

import (
	"strings"

	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/resolver"
	"github.com/matzehuels/hoist/pkg/semver"
)

// Reconcile turns a previous lockfile into solver preferences for the
// next run, so an unchanged requirement keeps its locked version.
//
// An entry becomes a preference when it is still reachable: directly
// required by the root manifest with a requirement that admits the
// locked version, or referenced from another reachable entry. Entries
// that fell out of the graph are dropped without comment, and entries
// whose root requirement moved past the locked version stay unassigned
// so only the affected subtree re-resolves. Preferences are soft either
// way; the solver ignores any that conflict.
func Reconcile(root *manifest.Manifest, lock *File) []resolver.Preference {
	if root == nil || lock == nil || len(lock.Entries) == 0 {
		return nil
	}

	self := func(e Entry) bool {
		return e.Name == root.Package.Name && e.Version.Equal(root.Package.Version)
	}

	reachable := make([]bool, len(lock.Entries))
	var queue []int
	mark := func(i int) {
		if !reachable[i] {
			reachable[i] = true
			queue = append(queue, i)
		}
	}

	for _, dep := range root.Dependencies {
		for i, e := range lock.Entries {
			if e.Name != dep.Name || self(e) {
				continue
			}
			if dep.Req.Matches(e.Version) {
				mark(i)
			}
		}
	}

	for qi := 0; qi < len(queue); qi++ {
		entry := lock.Entries[queue[qi]]
		for _, r := range entry.Dependencies {
			name, version, versioned := parseRef(r)
			for i, e := range lock.Entries {
				if e.Name != name || self(e) {
					continue
				}
				if versioned && !e.Version.Equal(version) {
					continue
				}
				mark(i)
			}
		}
	}

	var prefs []resolver.Preference
	for i, e := range lock.Entries {
		if !reachable[i] {
			continue
		}
		prefs = append(prefs, resolver.Preference{
			Name:    e.Name,
			Version: e.Version,
			Source:  e.Source,
		})
	}
	return prefs
}

// parseRef splits a dependency reference into its name and, when
// present, the disambiguating version. Malformed versions degrade to a
// bare name reference.
func parseRef(r string) (string, semver.Version, bool) {
	name, rest, ok := strings.Cut(r, " ")
	if !ok {
		return r, semver.Version{}, false
	}
	v, err := semver.Parse(rest)
	if err != nil {
		return name, semver.Version{}, false
	}
	return name, v, true
}
