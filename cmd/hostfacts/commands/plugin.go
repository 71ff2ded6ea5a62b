package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newPluginCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "plugin <identifier>...",
		Short: "Run selected plugins by identifier",
		Long: `Run the named plugins and print what they collected.

An identifier is the plugin's path under its root with the extension removed
and directories joined by "::", so linux/cpu.star is linux::cpu. Plugins not
yet known are looked up under each plugin root in order.

The command fails when a plugin is missing, disabled or fails.`,
		Example: `  # Run one plugin
  hostfacts plugin linux::cpu

  # Run again even if it already ran in this process
  hostfacts plugin --force kernel`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, r *runtime) error {
				if err := r.sys.LoadPlugins(ctx); err != nil {
					return err
				}

				var failed []string
				for _, name := range args {
					ran, err := r.sys.RequestPlugin(ctx, name, force)
					if err != nil {
						return err
					}
					if !ran {
						failed = append(failed, name)
					}
				}

				if err := r.printAll(cmd.OutOrStdout()); err != nil {
					return err
				}
				if len(failed) > 0 {
					return fmt.Errorf("plugins did not run: %v", failed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-run the plugin and its dependencies")

	return cmd
}
