package cli

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/hoist/pkg/lockfile"
)

// resolveOpts holds the command-line flags for the resolve command.
type resolveOpts struct {
	dir     string // workspace directory
	locked  bool   // fail instead of updating the lockfile
	refresh bool   // ignore locked versions, pick newest matches
	noLock  bool   // resolve without writing the lockfile
	noCache bool   // bypass the registry cache
	majors  bool   // let incompatible major versions coexist
}

func (c *CLI) resolveCommand() *cobra.Command {
	opts := resolveOpts{dir: "."}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve dependencies and update " + lockfile.Filename,
		Long: `Resolve the dependency requirements in Hoist.toml to exact versions.

Versions already recorded in Hoist.lock are preferred so repeated runs
stay stable; new or widened requirements pick the newest matching
release. The lockfile is rewritten only when the resolution changed.

Examples:
  hoist resolve                  # resolve and update Hoist.lock
  hoist resolve --locked         # verify the lockfile is current (CI)
  hoist resolve --refresh        # ignore locked versions, pick newest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runResolve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "dir", "C", opts.dir, "workspace directory")
	cmd.Flags().BoolVar(&opts.locked, "locked", false, "fail if the lockfile is missing or stale")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "ignore locked versions and re-resolve")
	cmd.Flags().BoolVar(&opts.noLock, "no-lock", false, "do not write the lockfile")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the registry cache")
	cmd.Flags().BoolVar(&opts.majors, "allow-multiple-majors", false, "let incompatible major versions coexist")
	return cmd
}

func (c *CLI) runResolve(ctx context.Context, opts resolveOpts) error {
	runner, err := c.newRunner(opts.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	pipe := c.pipelineOptions(opts.dir)
	pipe.Locked = opts.locked
	pipe.Refresh = opts.refresh
	pipe.NoLock = opts.noLock
	pipe.AllowMultipleMajors = opts.majors
	pipe.SkipPlan = true

	spinner := newSpinnerWithContext(ctx, "Resolving dependencies...")
	spinner.Start()
	res, err := runner.Execute(ctx, pipe)
	if err != nil {
		spinner.StopWithError("Resolution failed")
		return err
	}
	spinner.Stop()

	printSuccess("Resolved %d packages", res.Stats.Packages)
	printStats(res.Stats.Packages, res.Stats.Edges, len(res.LockDiff) == 0)
	for _, line := range res.LockDiff {
		printChange(line)
	}
	switch {
	case res.LockWritten:
		printFile(res.LockPath)
	case opts.noLock:
		printDetail("lockfile not written (--no-lock)")
	default:
		printDetail("%s is up to date", filepath.Base(res.LockPath))
	}
	printNextStep("Plan the build", "hoist plan")
	return nil
}
