package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/plan"
)

// graphOpts holds the command-line flags for the graph command.
type graphOpts struct {
	dir      string   // workspace directory
	features []string // extra root features to activate
	output   string   // DOT output file (stdout if empty)
	render   string   // rendered image path (.svg or .png)
	noCache  bool     // bypass the registry cache
}

func (c *CLI) graphCommand() *cobra.Command {
	opts := graphOpts{dir: "."}

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the compilation plan as a Graphviz graph",
		Long: `Export the planned compilation units as a Graphviz DOT graph.

With --render the graph is rasterized to SVG or PNG based on the file
extension; otherwise the DOT source goes to stdout or --output.

Examples:
  hoist graph                    # DOT on stdout
  hoist graph -o plan.dot        # DOT to a file
  hoist graph --render plan.svg  # rendered image`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runGraph(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "dir", "C", opts.dir, "workspace directory")
	cmd.Flags().StringSliceVar(&opts.features, "features", nil, "extra root features to activate")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "DOT output file (stdout if empty)")
	cmd.Flags().StringVar(&opts.render, "render", "", "render to an image file (.svg or .png)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the registry cache")
	return cmd
}

func (c *CLI) runGraph(ctx context.Context, opts graphOpts) error {
	runner, err := c.newRunner(opts.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	pipe := c.pipelineOptions(opts.dir)
	pipe.Features = opts.features

	res, err := runner.Execute(ctx, pipe)
	if err != nil {
		return err
	}
	dot := plan.ToDOT(res.Plan)

	if opts.render == "" {
		out, err := openOutput(opts.output)
		if err != nil {
			return err
		}
		defer out.Close()
		if _, err := io.WriteString(out, dot); err != nil {
			return err
		}
		if opts.output != "" {
			printFile(opts.output)
		}
		return nil
	}

	var img []byte
	switch ext := strings.ToLower(filepath.Ext(opts.render)); ext {
	case ".svg":
		img, err = plan.RenderSVG(dot)
	case ".png":
		img, err = plan.RenderPNG(dot)
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unsupported render format %q (use .svg or .png)", ext)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.render, img, 0o644); err != nil {
		return err
	}
	printSuccess("Rendered %d units", res.Plan.Len())
	printFile(opts.render)
	return nil
}
