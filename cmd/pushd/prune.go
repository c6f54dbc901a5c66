package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"push-dispatch-backend/internal/janitor"
)

func newPruneCommand(opts *rootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete endpoints not seen within the staleness window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			window := cfg.Registry.StaleAfter
			if olderThan > 0 {
				window = olderThan
			}
			if window <= 0 {
				return fmt.Errorf("no staleness window: set registry.stale_after_days or --older-than")
			}

			deleted, err := janitor.NewService(a.registry, window, cfg.Registry.PruneInterval).PruneOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d stale endpoints\n", deleted)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "override registry.stale_after_days, e.g. 720h")
	return cmd
}
