package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/hoist/pkg/registry"
)

// registryCommand creates the local registry command group.
func (c *CLI) registryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Serve and maintain local package registries",
		Long: `Serve and maintain a local package registry.

A registry is a directory of published manifests laid out as
<name>/<version>/Hoist.toml plus per-package index files. "index"
rebuilds the index files after publishing, "serve" exposes the
directory over HTTP for resolvers to use via HOIST_REGISTRY.`,
	}

	cmd.AddCommand(c.registryServeCommand())
	cmd.AddCommand(c.registryIndexCommand())

	return cmd
}

// registryServeCommand creates the "registry serve" subcommand.
func (c *CLI) registryServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve <dir>",
		Short: "Serve a registry directory over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := registry.NewServer(args[0], registry.ServerOptions{
				Logger: loggerFromContext(cmd.Context()),
			})
			hint := addr
			if strings.HasPrefix(hint, ":") {
				hint = "localhost" + hint
			}
			printInfo("Serving registry %s", args[0])
			printKeyValue("address", addr)
			printDetail("export HOIST_REGISTRY=http://%s", hint)
			return srv.Serve(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8417", "listen address")
	return cmd
}

// registryIndexCommand creates the "registry index" subcommand.
func (c *CLI) registryIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index <dir> [package...]",
		Short: "Rebuild index files for published packages",
		Long: `Scan published manifests and rewrite the per-package index files.

Without package arguments every package directory under <dir> is
reindexed. Checksums are recomputed from the manifest bytes, so the
index always matches what "registry serve" will hand out.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			names := args[1:]
			if len(names) == 0 {
				var err error
				names, err = packageDirs(root)
				if err != nil {
					return err
				}
			}
			if len(names) == 0 {
				printInfo("No packages found in %s", root)
				return nil
			}

			prog := newProgress(loggerFromContext(cmd.Context()))
			for _, name := range names {
				idx, err := registry.ScanPackage(root, name)
				if err != nil {
					return err
				}
				if err := registry.WriteIndexFile(root, idx); err != nil {
					return err
				}
				printDetail("%s: %d versions", name, len(idx.Versions))
			}
			prog.done(fmt.Sprintf("Scanned %d packages", len(names)))
			printSuccess("Indexed %d packages", len(names))
			return nil
		},
	}
}

// packageDirs lists the package directories of a registry root, skipping
// the index directory and hidden entries.
func packageDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "index" || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
