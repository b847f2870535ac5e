package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/pipeline"
	"github.com/matzehuels/hoist/pkg/semver"
	"github.com/matzehuels/hoist/pkg/source"
)

// addOpts holds the command-line flags for the add command.
type addOpts struct {
	dir      string // workspace directory
	version  string // requirement to write, skips the picker
	registry string // registry URL override for this dependency
	dev      bool   // add under [dev-dependencies]
	build    bool   // add under [build-dependencies]
	optional bool   // mark the dependency optional
	noCache  bool   // bypass the registry cache
}

func (c *CLI) addCommand() *cobra.Command {
	opts := addOpts{dir: "."}

	cmd := &cobra.Command{
		Use:   "add <package>",
		Short: "Add a dependency to " + manifest.Filename,
		Long: `Add a dependency to the workspace manifest.

Without --version the published versions are fetched from the registry
and offered in an interactive picker; the chosen version is written as
a caret requirement.

Examples:
  hoist add serde                     # pick a version interactively
  hoist add serde --version ^1.2      # write the requirement directly
  hoist add testkit --dev             # dev dependency
  hoist add codegen --build           # build dependency`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAdd(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "dir", "C", opts.dir, "workspace directory")
	cmd.Flags().StringVar(&opts.version, "version", "", "version requirement (skips the interactive picker)")
	cmd.Flags().StringVar(&opts.registry, "registry", "", "registry URL for this dependency")
	cmd.Flags().BoolVar(&opts.dev, "dev", false, "add under [dev-dependencies]")
	cmd.Flags().BoolVar(&opts.build, "build", false, "add under [build-dependencies]")
	cmd.Flags().BoolVar(&opts.optional, "optional", false, "mark the dependency optional")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the registry cache")
	cmd.MarkFlagsMutuallyExclusive("dev", "build")
	return cmd
}

func (c *CLI) runAdd(ctx context.Context, name string, opts addOpts) error {
	if err := errors.ValidatePackageName(name); err != nil {
		return err
	}

	path, err := manifest.Find(opts.dir)
	if err != nil {
		return err
	}
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	if _, ok := m.FindDependency(name); ok {
		return errors.New(errors.ErrCodeInvalidInput, "%q is already a dependency of %s", name, m.Package.Name)
	}

	requirement := opts.version
	if requirement == "" {
		requirement, err = c.pickVersion(ctx, name, opts)
		if err != nil || requirement == "" {
			return err
		}
	} else if _, err := semver.ParseReq(requirement); err != nil {
		return err
	}

	entry := dependencyEntry(name, requirement, opts)
	section := "dependencies"
	switch {
	case opts.dev:
		section = "dev-dependencies"
	case opts.build:
		section = "build-dependencies"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	updated := insertDependency(data, section, entry)
	if _, err := manifest.Parse(updated); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "refusing to write %s", path)
	}
	if err := os.WriteFile(path, updated, 0o644); err != nil {
		return err
	}

	printSuccess("Added %s %s", name, requirement)
	printFile(path)
	printNextStep("Resolve the new dependency", "hoist resolve")
	return nil
}

// pickVersion fetches the published versions of name and lets the user
// choose one interactively. Returns "" when the picker is cancelled.
func (c *CLI) pickVersion(ctx context.Context, name string, opts addOpts) (string, error) {
	src, err := c.dependencySource(opts.registry)
	if err != nil {
		return "", err
	}

	runner, err := c.newRunner(opts.noCache)
	if err != nil {
		return "", err
	}
	defer runner.Close()
	session := runner.NewSession(pipeline.Options{Logger: c.Logger})

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Fetching versions of %s...", name))
	spinner.Start()
	versions, err := session.ListVersions(ctx, src, name)
	if err != nil {
		spinner.StopWithError(fmt.Sprintf("Could not fetch %s", name))
		return "", err
	}
	spinner.Stop()
	if len(versions) == 0 {
		return "", errors.New(errors.ErrCodePackageNotFound, "no published versions of %q in %s", name, src)
	}

	model := NewVersionPickerModel(name, versions)
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return "", err
	}
	picked := final.(VersionPickerModel).Selected
	if picked == nil {
		printInfo("Cancelled")
		return "", nil
	}
	if picked.Pre != "" {
		printWarning("Pinning a pre-release: %s", picked)
	}
	return "^" + picked.String(), nil
}

// dependencySource resolves the registry for the new dependency: the
// --registry flag, then HOIST_REGISTRY, then the default registry.
func (c *CLI) dependencySource(flag string) (source.ID, error) {
	url := flag
	if url == "" {
		url = registryOverride()
	}
	if url == "" {
		return source.DefaultRegistry(), nil
	}
	return source.Registry(url)
}

// dependencyEntry renders the TOML line for the new dependency. Plain
// requirements use the shorthand form; optional or registry-pinned
// dependencies need the inline table form.
func dependencyEntry(name, requirement string, opts addOpts) string {
	if !opts.optional && opts.registry == "" {
		return fmt.Sprintf("%s = %q", name, requirement)
	}
	parts := []string{fmt.Sprintf("version = %q", requirement)}
	if opts.registry != "" {
		parts = append(parts, fmt.Sprintf("registry = %q", opts.registry))
	}
	if opts.optional {
		parts = append(parts, "optional = true")
	}
	return fmt.Sprintf("%s = { %s }", name, strings.Join(parts, ", "))
}

// insertDependency adds entry to the named table of a manifest, creating
// the table at the end when missing. Existing formatting elsewhere in
// the file is preserved.
func insertDependency(data []byte, table, entry string) []byte {
	header := "[" + table + "]"
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != header {
			continue
		}
		end := len(lines)
		for j := i + 1; j < len(lines); j++ {
			if strings.HasPrefix(strings.TrimSpace(lines[j]), "[") {
				end = j
				break
			}
		}
		for end > i+1 && strings.TrimSpace(lines[end-1]) == "" {
			end--
		}
		lines = slices.Insert(lines, end, entry)
		return []byte(strings.Join(lines, "\n"))
	}

	out := strings.TrimRight(string(data), "\n")
	return []byte(out + "\n\n" + header + "\n" + entry + "\n")
}
