package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newBuildCmd creates the build command. It resolves the full dependency
// tree and persists the cache, leaving every checkout in place for a
// compiler to consume.
func newBuildCmd(opts *treeOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Resolve all dependencies of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := newProgress(loggerFromContext(ctx))

			t := opts.tree(ctx)
			if err := t.Resolve(ctx, opts.projectDir); err != nil {
				return err
			}
			p.done(fmt.Sprintf("Resolved %d packages", t.Len()))
			return nil
		},
	}
}
