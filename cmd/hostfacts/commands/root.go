package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath      string
	verbose         bool
	compactOutput   bool
	pluginPaths     []string
	disabledPlugins []string
	hintPaths       []string
	pluginLanguage  string
	noBuiltins      bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hostfacts",
		Short: "hostfacts - Host fact collection",
		Long: `hostfacts runs fact plugins against the local host and prints the
collected attributes as JSON.

Plugins are Starlark (or, with --language lua, Lua) files found under the
plugin path:
  - legacy plugins run best-effort, addressed by name
  - modern plugins declare what they provide and depend on, and run in
    dependency order

Hint files (<name>.json under the hint path) pass operator knowledge to
plugins.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&compactOutput, "compact", false, "print compact JSON")
	rootCmd.PersistentFlags().StringSliceVarP(&pluginPaths, "plugin-path", "d", nil, "plugin root, in search order (repeatable)")
	rootCmd.PersistentFlags().StringSliceVar(&disabledPlugins, "disable", nil, "plugin identifier that must not run (repeatable)")
	rootCmd.PersistentFlags().StringSliceVar(&hintPaths, "hint-path", nil, "hint directory (repeatable)")
	rootCmd.PersistentFlags().StringVar(&pluginLanguage, "language", "", "plugin language: starlark or lua")
	rootCmd.PersistentFlags().BoolVar(&noBuiltins, "no-builtins", false, "skip the built-in collectors")

	rootCmd.AddCommand(newCollectCommand())
	rootCmd.AddCommand(newPluginCommand())
	rootCmd.AddCommand(newRefreshCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newPluginsCommand())
	rootCmd.AddCommand(newCheckCommand())

	return rootCmd
}
