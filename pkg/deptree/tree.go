package deptree

import (
	"context"
	"io"
	"os"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/depstack/pkg/errors"
	"github.com/matzehuels/depstack/pkg/gitutil"
	"github.com/matzehuels/depstack/pkg/manifest"
)

// DefaultNamespace is the registry namespace assumed when a registry
// dependency declares none.
const DefaultNamespace = "fpm"

// GitClient is the subset of git operations resolution needs.
type GitClient interface {
	// Checkout places the sources for url at ref into dir.
	Checkout(dir, url string, ref gitutil.Ref) error
	// CurrentRevision reports the commit checked out in dir.
	CurrentRevision(dir string) (string, error)
}

// RegistryClient resolves registry coordinates to a local source directory.
type RegistryClient interface {
	Fetch(ctx context.Context, namespace, name string, requested *semver.Version) (string, error)
}

// Options configures a Tree.
type Options struct {
	// DepDir is the directory git dependencies are checked out into.
	DepDir string
	// CachePath is the TOML cache file consulted before resolution and
	// rewritten after it. Empty disables caching.
	CachePath string
	// ConfigPath overrides the registry settings file location.
	ConfigPath string
	// Verbosity selects log output: 0 errors only, 1 progress, 2 debug.
	Verbosity int
	// Out receives tree listings. Defaults to os.Stdout.
	Out io.Writer
	// Git performs checkouts. Defaults to the system git binary.
	Git GitClient
	// Registry acquires registry packages. When nil, a client is built
	// from the user settings on first use.
	Registry RegistryClient
	// Logger may be nil, in which case one is derived from Verbosity.
	Logger *log.Logger
}

// Tree is the flattened dependency tree. Nodes are append-only and the
// root project is always nodes[0].
type Tree struct {
	nodes []*Node

	depDir     string
	cachePath  string
	configPath string
	verbosity  int
	unit       int
	out        io.Writer

	git      GitClient
	registry RegistryClient
	log      *log.Logger
}

// New creates a tree with the root slot seeded. The root's name and
// version are adopted from its manifest during Resolve.
func New(opts Options) *Tree {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Git == nil {
		opts.Git = gitutil.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr)
		switch {
		case opts.Verbosity <= 0:
			logger.SetLevel(log.ErrorLevel)
		case opts.Verbosity == 1:
			logger.SetLevel(log.InfoLevel)
		default:
			logger.SetLevel(log.DebugLevel)
		}
	}

	t := &Tree{
		depDir:     opts.DepDir,
		cachePath:  opts.CachePath,
		configPath: opts.ConfigPath,
		verbosity:  opts.Verbosity,
		unit:       defaultUnit,
		out:        opts.Out,
		git:        opts.Git,
		registry:   opts.Registry,
		log:        logger,
	}
	t.nodes = append(t.nodes, &Node{
		Dependency: Dependency{Origin: PathOrigin(".")},
	})
	return t
}

// defaultUnit is the io unit recorded in the cache header.
const defaultUnit = -1

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node at index i.
func (t *Tree) Node(i int) *Node { return t.nodes[i] }

// Root returns the root project node.
func (t *Tree) Root() *Node { return t.nodes[0] }

// FindIndex returns the index of the node named name, or -1.
func (t *Tree) FindIndex(name string) int {
	for i, n := range t.nodes {
		if n.Name == name {
			return i
		}
	}
	return -1
}

// Find returns the node named name, or nil.
func (t *Tree) Find(name string) *Node {
	if i := t.FindIndex(name); i >= 0 {
		return t.nodes[i]
	}
	return nil
}

// Finished reports whether every node has completed resolution.
func (t *Tree) Finished() bool {
	for _, n := range t.nodes {
		if !n.Done {
			return false
		}
	}
	return true
}

// AddNode inserts a node, deduplicating by name.
//
// A fresh duplicate is dropped: the first declaration of a name wins.
// A cached duplicate is compared against the stored declaration; when the
// declarations agree the cached state replaces the stored slot, otherwise
// the stored node is marked for re-fetch.
func (t *Tree) AddNode(incoming *Node) {
	idx := t.FindIndex(incoming.Name)
	if idx < 0 {
		t.nodes = append(t.nodes, incoming)
		return
	}

	stored := t.nodes[idx]
	if !incoming.Cached {
		return
	}
	if t.cacheValid(stored, incoming) {
		incoming.Update = false
		t.nodes[idx] = incoming
		return
	}
	t.log.Debug("cached entry stale", "package", stored.Name)
	stored.Update = true
}

// cacheValid reports whether the cached node may stand in for the stored
// declaration without a re-fetch.
func (t *Tree) cacheValid(stored, cached *Node) bool {
	if !stored.Origin.Equal(cached.Origin) {
		return false
	}
	if !equalStrings(stored.Preprocess, cached.Preprocess) {
		return false
	}
	if stored.Version != nil && cached.Version != nil && !stored.Version.Equal(cached.Version) {
		return false
	}
	if (stored.Version == nil) != (cached.Version == nil) {
		t.log.Debug("cache version presence differs", "package", stored.Name)
	}
	if stored.ProjDir != "" && cached.ProjDir != "" && stored.ProjDir != cached.ProjDir {
		return false
	}
	if (stored.ProjDir == "") != (cached.ProjDir == "") {
		t.log.Debug("cache project dir presence differs", "package", stored.Name)
	}
	if stored.Revision != "" && cached.Revision != "" && stored.Revision != cached.Revision {
		return false
	}
	if (stored.Revision == "") != (cached.Revision == "") {
		t.log.Debug("cache revision presence differs", "package", stored.Name)
	}
	return true
}

// AddManifest appends the dependencies a manifest declares. For the main
// project (main=true) dev-dependencies and per-target dependencies are
// included as well. Within each group names are added in sorted order so
// that tree layout is independent of map iteration.
func (t *Tree) AddManifest(pkg *manifest.Package, declDir string, main bool) error {
	if err := t.addGroup(pkg.Dependencies, declDir); err != nil {
		return err
	}
	if !main {
		return nil
	}
	if err := t.addGroup(pkg.DevDependencies, declDir); err != nil {
		return err
	}
	for _, targets := range [][]manifest.Target{pkg.Executables, pkg.Examples, pkg.Tests} {
		for _, target := range targets {
			if err := t.addGroup(target.Dependencies, declDir); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tree) addGroup(deps map[string]manifest.Dependency, declDir string) error {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dep, err := dependencyFrom(name, deps[name], declDir)
		if err != nil {
			return err
		}
		t.AddNode(&Node{Dependency: dep})
	}
	return nil
}

func versionError(name, raw string, err error) error {
	return errors.Wrap(errors.ErrCodeVersionParse, err, "dependency %s declares invalid version %q", name, raw)
}
