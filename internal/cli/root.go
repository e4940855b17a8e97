package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depstack/pkg/deptree"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version. It is
// called by the main package with values injected via ldflags.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// treeOpts holds the persistent flags shared by every command that
// resolves a tree.
type treeOpts struct {
	projectDir string
	depDir     string
	cachePath  string
	configPath string
	verbosity  int
	quiet      bool
}

func (o *treeOpts) effectiveVerbosity() int {
	if o.quiet {
		return 0
	}
	return o.verbosity + 1
}

// tree builds a Tree configured from the flags, reusing the logger
// attached to the command context.
func (o *treeOpts) tree(ctx context.Context) *deptree.Tree {
	return deptree.New(deptree.Options{
		DepDir:     o.depDir,
		CachePath:  o.cachePath,
		ConfigPath: o.configPath,
		Verbosity:  o.effectiveVerbosity(),
		Out:        os.Stdout,
		Logger:     loggerFromContext(ctx),
	})
}

// Execute runs the depstack CLI.
func Execute(ctx context.Context) error {
	opts := &treeOpts{}

	root := &cobra.Command{
		Use:          "depstack",
		Short:        "depstack resolves and inspects package dependency trees",
		Long:         `depstack reads fpm.toml manifests, resolves path, git, and registry dependencies into a flattened tree, and keeps a cache so unchanged dependencies are not fetched twice.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := levelFor(opts.effectiveVerbosity())
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
			if opts.depDir == "" {
				opts.depDir = filepath.Join(opts.projectDir, "build", "dependencies")
			}
			if opts.cachePath == "" {
				opts.cachePath = filepath.Join(opts.depDir, "cache.toml")
			}
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("depstack %s\ncommit: %s\nbuilt: %s\n", version, commit, date))

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.projectDir, "path", "C", ".", "project directory holding the root manifest")
	pf.StringVar(&opts.depDir, "dep-dir", "", "directory for dependency checkouts (default <path>/build/dependencies)")
	pf.StringVar(&opts.cachePath, "cache", "", "cache file location (default <dep-dir>/cache.toml)")
	pf.StringVar(&opts.configPath, "config", "", "registry settings file override")
	pf.CountVarP(&opts.verbosity, "verbose", "v", "increase log detail (repeatable)")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "log errors only")

	root.AddCommand(newBuildCmd(opts))
	root.AddCommand(newTreeCmd(opts))
	root.AddCommand(newGraphCmd(opts))
	root.AddCommand(newUpdateCmd(opts))
	root.AddCommand(newCacheCmd(opts))
	root.AddCommand(newRegistryCmd())

	return root.ExecuteContext(ctx)
}
