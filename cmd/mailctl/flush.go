package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFlushTemplateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "flush-template <template-key>",
		Short: "Drop a template from the Redis cache",
		Long: `flush-template removes the cached copy of a template so the next
render reads the active version from Postgres. Run it after editing a
template to skip the cache TTL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if a.Templates == nil {
				fmt.Fprintln(out, "template cache disabled: nothing to flush")
				return nil
			}
			if err := a.Templates.Invalidate(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("flush %q: %w", args[0], err)
			}
			fmt.Fprintf(out, "flushed: %s\n", args[0])
			return nil
		},
	}
}
