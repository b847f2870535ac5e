package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/hoist/pkg/buildinfo"
)

// RootCommand builds the hoist root command with all subcommands attached.
func (c *CLI) RootCommand() *cobra.Command {
	var (
		logLevel string
		verbose  bool
	)

	root := &cobra.Command{
		Use:   appName,
		Short: "Resolve package dependencies and plan builds",
		Long: `Hoist resolves the requirements in Hoist.toml into exact package
versions, records them in Hoist.lock, and orders compilation units
for a build scheduler.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := resolveLogLevel(logLevel, verbose)
			if err != nil {
				return err
			}
			c.SetLogLevel(level)
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}
	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level: debug, info, warn, or error (also via HOIST_LOG)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.planCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.addCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.registryCommand())
	root.AddCommand(c.completionCommand())
	return root
}

// resolveLogLevel picks the log level from the --log-level flag, then
// HOIST_LOG, then --verbose, then defaults to info.
func resolveLogLevel(flag string, verbose bool) (log.Level, error) {
	name := flag
	if name == "" {
		name = os.Getenv("HOIST_LOG")
	}
	if name == "" {
		if verbose {
			return log.DebugLevel, nil
		}
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(name)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}
