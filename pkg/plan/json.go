package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

type planJSON struct {
	Units []unitJSON `json:"units"`
}

type unitJSON struct {
	Package  string            `json:"package"`
	Version  string            `json:"version"`
	Source   string            `json:"source,omitempty"`
	Target   string            `json:"target"`
	Path     string            `json:"path"`
	Features []string          `json:"features,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
	Deps     []int             `json:"deps,omitempty"`
}

// WriteJSON encodes a plan as JSON and writes it to w. Units appear in
// build order; deps reference unit indices within the same array, so a
// scheduler can consume the output directly.
func WriteJSON(p *Plan, w io.Writer) error {
	out := planJSON{Units: make([]unitJSON, len(p.Units))}
	for i, u := range p.Units {
		out.Units[i] = unitJSON{
			Package:  u.Pkg.Name,
			Version:  u.Pkg.Version.String(),
			Source:   u.Pkg.Source.String(),
			Target:   u.Target.ID(),
			Path:     u.Target.Path,
			Features: u.Features,
			Options:  u.Target.Options,
			Deps:     u.Deps,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ExportJSON writes a plan to a JSON file at path.
func ExportJSON(p *Plan, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return WriteJSON(p, f)
}
