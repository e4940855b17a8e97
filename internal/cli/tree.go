package cli

import (
	"github.com/spf13/cobra"
)

// newTreeCmd creates the tree command, which resolves the project and
// prints the flattened dependency listing.
func newTreeCmd(opts *treeOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the resolved dependency tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t := opts.tree(ctx)
			if err := t.Resolve(ctx, opts.projectDir); err != nil {
				return err
			}
			return t.List()
		},
	}
}
