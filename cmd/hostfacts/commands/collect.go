package commands

import (
	"context"

	"github.com/spf13/cobra"
)

func newCollectCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "collect [attribute...]",
		Short: "Run all plugins and print facts",
		Long: `Discover and run every plugin, then print the fact tree.

Legacy plugins run first; a failing legacy plugin is logged and the rest
continue. Modern plugins then run in dependency order. A dependency cycle or a
dependency on an attribute that no plugin provides fails the command.

With attribute arguments only those subtrees are printed. A string attribute
prints as an array of its lines.`,
		Example: `  # Print every fact
  hostfacts collect

  # Print selected attributes
  hostfacts collect kernel/name network/interfaces

  # Search extra plugin roots first
  hostfacts collect -d ./plugins -d /etc/hostfacts/plugins`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, r *runtime) error {
				if err := r.sys.CollectAll(ctx, force); err != nil {
					return err
				}
				if len(args) == 0 {
					return r.printAll(cmd.OutOrStdout())
				}
				return r.printPaths(cmd.OutOrStdout(), args)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-run plugins that already ran")

	return cmd
}
