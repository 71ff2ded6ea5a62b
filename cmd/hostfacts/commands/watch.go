package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostfacts/pkg/hints"
	"github.com/openfroyo/hostfacts/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Collect, then refresh whenever hint files change",
		Long: `Collect all facts and print them, then watch the hint directories.
Each burst of hint changes re-runs every plugin that contributed facts and
prints the tree again. Stops on interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, r *runtime) error {
				if err := r.sys.CollectAll(ctx, false); err != nil {
					return err
				}
				if err := r.printAll(cmd.OutOrStdout()); err != nil {
					return err
				}

				// A separate store only observes the directories; the engine
				// reloads its own store on Refresh.
				watcher := hints.NewStore(r.cfg.HintPath, telemetry.ComponentLogger(r.logger, "hint-watcher"))
				changes, err := watcher.Watch(ctx)
				if err != nil {
					return fmt.Errorf("failed to watch hints: %w", err)
				}

				for {
					select {
					case <-ctx.Done():
						return nil
					case names, ok := <-changes:
						if !ok {
							return nil
						}
						r.logger.Info().Strs("hints", names).Msg("Hints changed")
						if err := r.sys.Refresh(ctx, ""); err != nil {
							return err
						}
						if err := r.printAll(cmd.OutOrStdout()); err != nil {
							return err
						}
					}
				}
			})
		},
	}

	return cmd
}
