package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostfacts/pkg/facts"
)

func newRefreshCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh [path]",
		Short: "Collect, then re-run the plugins behind one subtree",
		Long: `Collect all facts, reload hints, and re-run only the plugins that wrote
at, beneath or above path. With no path every contributing plugin re-runs.

The refreshed subtree is printed.`,
		Example: `  # Re-run the plugins that produced network facts
  hostfacts refresh network`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			return withRuntime(cmd, func(ctx context.Context, r *runtime) error {
				if err := r.sys.CollectAll(ctx, false); err != nil {
					return err
				}

				r.logger.Info().
					Str("path", facts.CleanPath(path)).
					Strs("plugins", r.sys.Contributors(path)).
					Msg("Refreshing subtree")
				if err := r.sys.Refresh(ctx, path); err != nil {
					return err
				}

				if facts.CleanPath(path) == "" {
					return r.printAll(cmd.OutOrStdout())
				}
				return r.printPaths(cmd.OutOrStdout(), []string{path})
			})
		},
	}

	return cmd
}
