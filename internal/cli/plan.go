package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/plan"
)

// planOpts holds the command-line flags for the plan command.
type planOpts struct {
	dir      string   // workspace directory
	features []string // extra root features to activate
	jsonOut  bool     // machine-readable output
	output   string   // output file path (stdout if empty)
	locked   bool     // fail instead of updating the lockfile
	noCache  bool     // bypass the registry cache
}

func (c *CLI) planCommand() *cobra.Command {
	opts := planOpts{dir: "."}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the ordered compilation units",
		Long: `Plan the compilation units for the workspace: resolve dependencies,
unify features, expand targets, and order units so every unit appears
after the library units it needs built first.

Examples:
  hoist plan                        # unit table on stdout
  hoist plan --features telemetry   # activate a root feature
  hoist plan --json -o plan.json    # machine-readable plan`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runPlan(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "dir", "C", opts.dir, "workspace directory")
	cmd.Flags().StringSliceVar(&opts.features, "features", nil, "extra root features to activate")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "emit the plan as JSON")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().BoolVar(&opts.locked, "locked", false, "fail if the lockfile is missing or stale")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the registry cache")
	return cmd
}

func (c *CLI) runPlan(ctx context.Context, opts planOpts) error {
	runner, err := c.newRunner(opts.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	pipe := c.pipelineOptions(opts.dir)
	pipe.Locked = opts.locked
	pipe.Features = opts.features

	res, err := runner.Execute(ctx, pipe)
	if err != nil {
		return err
	}

	if opts.jsonOut {
		return writePlan(res.Plan, opts.output)
	}

	printSuccess("Planned %d compilation units", res.Plan.Len())
	printNewline()
	printPlanTable(res.Plan)
	printDetail("%d packages · resolve %s · plan %s",
		res.Stats.Packages,
		res.Stats.ResolveTime.Round(time.Millisecond),
		res.Stats.PlanTime.Round(time.Millisecond))
	return nil
}

// printPlanTable renders the plan as a table, one row per unit in build
// order. Binary units are highlighted, test units dimmed.
func printPlanTable(p *plan.Plan) {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	rows := make([][]string, 0, p.Len())
	for i, u := range p.Units {
		features := strings.Join(u.Features, ", ")
		if features == "" {
			features = "-"
		}
		deps := "-"
		if len(u.Deps) > 0 {
			parts := make([]string, len(u.Deps))
			for j, d := range u.Deps {
				parts[j] = strconv.Itoa(d)
			}
			deps = strings.Join(parts, ",")
		}
		rows = append(rows, []string{
			strconv.Itoa(i),
			u.Pkg.Name,
			u.Pkg.Version.String(),
			u.Target.ID(),
			features,
			deps,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("#", "Package", "Version", "Target", "Features", "Needs").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if row >= p.Len() {
				return lipgloss.NewStyle()
			}
			u := p.Units[row]
			switch {
			case u.Target.Kind == manifest.TargetBin:
				return lipgloss.NewStyle().Foreground(colorCyan)
			case u.Target.Kind == manifest.TargetTest:
				return lipgloss.NewStyle().Foreground(colorDim)
			case col == 1:
				return lipgloss.NewStyle().Foreground(colorWhite)
			}
			return lipgloss.NewStyle().Foreground(colorGray)
		})

	fmt.Println(t.Render())
}

// writePlan serializes the plan as JSON to path, or stdout if empty.
func writePlan(p *plan.Plan, path string) error {
	out, err := openOutput(path)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := plan.WriteJSON(p, out); err != nil {
		return err
	}
	if path != "" {
		printFile(path)
	}
	return nil
}

// nopCloser wraps an io.Writer with a no-op Close method so os.Stdout
// can stand in for a file.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// openOutput returns a WriteCloser for path, or stdout when path is
// empty. Existing files are overwritten.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}
