package cli

import (
	"github.com/spf13/cobra"
)

// newUpdateCmd creates the update command, which re-fetches git
// dependencies whose cached state no longer matches their declaration.
// With no arguments every flagged dependency is refreshed.
func newUpdateCmd(opts *treeOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "update [package...]",
		Short: "Re-fetch outdated git dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t := opts.tree(ctx)
			if err := t.Resolve(ctx, opts.projectDir); err != nil {
				return err
			}
			if len(args) == 0 {
				return t.UpdateAll(ctx)
			}
			for _, name := range args {
				if err := t.UpdateDep(ctx, name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
