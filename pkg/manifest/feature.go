package manifest

import (
	"fmt"
	"strings"
)

// Feature is one named feature declaration and the activations it implies.
type Feature struct {
	Name  string
	Specs []FeatureSpec
}

// FeatureSpec is a single activation inside a feature's list. It takes one
// of two forms:
//
//   - bare ("serde"): enables another feature of this package, or turns on
//     the optional dependency of that name
//   - qualified ("serde/derive"): enables the "derive" feature of the
//     dependency "serde"
type FeatureSpec struct {
	// Name is set for the bare form.
	Name string

	// Dep and DepFeature are set for the qualified form.
	Dep        string
	DepFeature string
}

// IsQualified reports whether the spec uses the "dep/feature" form.
func (s FeatureSpec) IsQualified() bool { return s.Dep != "" }

// String renders the spec as written in the manifest.
func (s FeatureSpec) String() string {
	if s.IsQualified() {
		return s.Dep + "/" + s.DepFeature
	}
	return s.Name
}

func parseFeatureSpec(raw string) (FeatureSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FeatureSpec{}, fmt.Errorf("empty activation")
	}

	before, after, found := strings.Cut(raw, "/")
	if !found {
		return FeatureSpec{Name: raw}, nil
	}
	if before == "" || after == "" || strings.Contains(after, "/") {
		return FeatureSpec{}, fmt.Errorf("activation %q must be \"name\" or \"dep/feature\"", raw)
	}
	return FeatureSpec{Dep: before, DepFeature: after}, nil
}
