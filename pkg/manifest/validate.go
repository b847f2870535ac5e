package manifest

import (
	"github.com/matzehuels/hoist/pkg/errors"
)

// Validate checks the manifest for structural problems: bad names, dangling
// feature references, conflicting source overrides, and duplicate targets.
// [Parse] calls this automatically; it is exported for manifests constructed
// in code.
func (m *Manifest) Validate() error {
	if m.Package.Name == "" {
		return errors.New(errors.ErrCodeInvalidManifest, "[package] name is required")
	}
	if err := errors.ValidatePackageName(m.Package.Name); err != nil {
		return err
	}

	if err := m.validateDependencies(); err != nil {
		return err
	}
	if err := m.validateFeatures(); err != nil {
		return err
	}
	return m.validateTargets()
}

func (m *Manifest) validateDependencies() error {
	for _, d := range m.Dependencies {
		if err := errors.ValidatePackageName(d.Name); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidManifest, err, "dependency %q", d.Name)
		}
		if d.Name == m.Package.Name {
			return errors.New(errors.ErrCodeInvalidManifest, "package cannot depend on itself")
		}
		if d.Path != "" && d.Registry != "" {
			return errors.New(errors.ErrCodeInvalidManifest, "dependency %q: path and registry are mutually exclusive", d.Name)
		}
		if d.Path != "" && d.Pin != "" {
			return errors.New(errors.ErrCodeInvalidManifest, "dependency %q: path dependencies cannot be pinned", d.Name)
		}
		if d.Path != "" {
			if err := errors.ValidatePath(d.Path); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidManifest, err, "dependency %q", d.Name)
			}
		}
		if d.Registry != "" {
			if err := errors.ValidateURL(d.Registry); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidManifest, err, "dependency %q", d.Name)
			}
		}
		if d.Optional && d.Kind == DepKindDev {
			return errors.New(errors.ErrCodeInvalidManifest, "dependency %q: dev-dependencies cannot be optional", d.Name)
		}
	}
	return nil
}

func (m *Manifest) validateFeatures() error {
	optional := make(map[string]bool)
	declared := make(map[string]bool)
	for _, d := range m.Dependencies {
		declared[d.Name] = true
		if d.Optional {
			optional[d.Name] = true
		}
	}
	features := make(map[string]bool, len(m.Features))
	for _, f := range m.Features {
		features[f.Name] = true
	}

	for _, f := range m.Features {
		if err := errors.ValidateFeatureName(f.Name); err != nil {
			return err
		}
		for _, spec := range f.Specs {
			if spec.IsQualified() {
				if !declared[spec.Dep] {
					return errors.New(errors.ErrCodeInvalidManifest,
						"feature %q enables %q, but %q is not a dependency", f.Name, spec, spec.Dep)
				}
				continue
			}
			if !features[spec.Name] && !optional[spec.Name] {
				return errors.New(errors.ErrCodeInvalidManifest,
					"feature %q references %q, which is neither a feature nor an optional dependency", f.Name, spec.Name)
			}
		}
	}
	return nil
}

func (m *Manifest) validateTargets() error {
	libs := 0
	seen := make(map[string]bool, len(m.Targets))
	for _, t := range m.Targets {
		if err := errors.ValidateTargetName(t.Name); err != nil {
			return err
		}
		if err := errors.ValidatePath(t.Path); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidManifest, err, "target %q", t.Name)
		}
		if t.Kind == TargetLib {
			libs++
			if libs > 1 {
				return errors.New(errors.ErrCodeInvalidManifest, "a package can declare at most one [lib] target")
			}
		}
		id := t.ID()
		if seen[id] {
			return errors.New(errors.ErrCodeInvalidManifest, "duplicate target %q", id)
		}
		seen[id] = true
	}
	return nil
}
