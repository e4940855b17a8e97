package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// newCacheCmd groups cache inspection and maintenance.
func newCacheCmd(opts *treeOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the persisted dependency cache",
	}
	cmd.AddCommand(newCacheShowCmd(opts))
	cmd.AddCommand(newCacheClearCmd(opts))
	return cmd
}

// newCacheShowCmd prints the persisted tree without resolving anything.
func newCacheShowCmd(opts *treeOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cached dependency tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := opts.tree(cmd.Context())
			if err := t.LoadCache(opts.cachePath); err != nil {
				return err
			}
			return t.List()
		},
	}
}

func newCacheClearCmd(opts *treeOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the cache file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.Remove(opts.cachePath); err != nil && !os.IsNotExist(err) {
				return err
			}
			loggerFromContext(cmd.Context()).Info("cache cleared", "path", opts.cachePath)
			return nil
		},
	}
}
