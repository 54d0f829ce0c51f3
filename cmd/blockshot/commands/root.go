// Package commands implements the blockshot CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/livetemplate/blockshot/internal/catalog"
	"github.com/livetemplate/blockshot/internal/config"
)

// discoverCatalog is swapped out in tests.
var discoverCatalog = catalog.Discover

// globalOptions are the flags every command accepts.
type globalOptions struct {
	configPath string
	verbose    bool
}

// NewRootCommand builds the blockshot command tree.
func NewRootCommand(version string) *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "blockshot",
		Short: "Visual regression tests for block libraries",
		Long: "blockshot finds every block variant an authoring host lists in its library,\n" +
			"generates a Go test per variant and viewport, and compares screenshots\n" +
			"against recorded baselines.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&g.configPath, "config", "c", "", "Config file (default: ./"+config.FileName+")")
	f.BoolVarP(&g.verbose, "verbose", "v", false, "Log browser protocol traffic and per-stage progress")

	root.AddCommand(
		newDiscoverCommand(g),
		newGenerateCommand(g),
		newServeCommand(g),
		newBreakpointsCommand(g),
		newVersionCommand(version),
	)
	return root
}

// load reads the configuration named by --config, or blockshot.yaml in
// the current directory.
func (g *globalOptions) load(cmd *cobra.Command) (*config.Config, error) {
	config.SetVerbose(g.verbose)

	if g.configPath != "" {
		cfg, err := config.Load(g.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if g.verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "📝 Using config: %s\n", g.configPath)
		}
		return cfg, nil
	}
	cfg, err := config.LoadFromDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blockshot version %s\n", version)
		},
	}
}
