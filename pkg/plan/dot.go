package plan

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/hoist/pkg/manifest"
)

// ToDOT converts a plan to Graphviz DOT format. Units are boxes labeled
// with package, target, and active features; edges point from a unit to
// the library units it needs built first. The resulting DOT string can
// be rendered with [RenderSVG] or [RenderPNG].
func ToDOT(p *Plan) string {
	var buf bytes.Buffer
	buf.WriteString("digraph plan {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	for _, u := range p.Units {
		fmt.Fprintf(&buf, "  %q [%s];\n", u.ID(), strings.Join(unitAttrs(u), ", "))
	}

	buf.WriteString("\n")
	for _, u := range p.Units {
		for _, d := range u.Deps {
			fmt.Fprintf(&buf, "  %q -> %q;\n", u.ID(), p.Units[d].ID())
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func unitAttrs(u CompilationUnit) []string {
	label := fmt.Sprintf("%s\n%s", u.Pkg, u.Target.ID())
	if len(u.Features) > 0 {
		label += "\nfeatures: " + strings.Join(u.Features, ", ")
	}
	attrs := []string{fmt.Sprintf("label=%q", label)}
	switch u.Target.Kind {
	case manifest.TargetBin:
		attrs = append(attrs, "fillcolor=lightyellow")
	case manifest.TargetTest:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	return render(dot, graphviz.SVG)
}

// RenderPNG renders a DOT graph to PNG using Graphviz.
func RenderPNG(dot string) ([]byte, error) {
	return render(dot, graphviz.PNG)
}

func render(dot string, format graphviz.Format) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
