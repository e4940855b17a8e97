package deptree

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/depstack/pkg/errors"
	"github.com/matzehuels/depstack/pkg/manifest"
	"github.com/matzehuels/depstack/pkg/registry"
)

// Resolve builds the full tree for the project rooted at rootDir.
//
// The root manifest is read first, its dependencies are appended, and a
// persisted cache (when configured) is overlaid onto the declarations.
// Resolution then advances in passes until every node is done, after
// which the transitive package sets are computed and the cache is
// rewritten.
func (t *Tree) Resolve(ctx context.Context, rootDir string) error {
	if err := t.resolveRoot(rootDir); err != nil {
		return err
	}
	if err := t.overlayCache(); err != nil {
		return err
	}
	if err := t.resolveLoop(ctx); err != nil {
		return err
	}
	if err := t.BuildGraph(); err != nil {
		return err
	}
	return t.saveCache()
}

func (t *Tree) resolveRoot(rootDir string) error {
	root := t.nodes[0]
	root.ProjDir = rootDir
	root.Origin = PathOrigin(rootDir)

	pkg, err := manifest.Load(filepath.Join(rootDir, manifest.Filename))
	if err != nil {
		return err
	}
	root.Name = pkg.Name
	if pkg.Version != "" {
		v, err := semver.NewVersion(pkg.Version)
		if err != nil {
			return versionError(pkg.Name, pkg.Version, err)
		}
		root.Version = v
	}
	root.Preprocess = pkg.PreprocessLines()
	root.Done = true
	return t.AddManifest(pkg, rootDir, true)
}

// overlayCache loads the persisted tree, if any, and feeds its non-root
// nodes through AddNode so that unchanged declarations skip their fetch.
func (t *Tree) overlayCache() error {
	if t.cachePath == "" {
		return nil
	}
	cached, err := readCacheFile(t.cachePath)
	if err != nil {
		return err
	}
	if cached == nil {
		return nil
	}
	rootName := t.nodes[0].Name
	for _, n := range cached {
		if n.Name == rootName || n.Name == "" {
			continue
		}
		n.Cached = true
		t.AddNode(n)
	}
	return nil
}

// resolveLoop runs resolution passes until the tree converges. Each pass
// walks the node list, which may grow as manifests are read.
func (t *Tree) resolveLoop(ctx context.Context) error {
	for pass := 0; !t.Finished(); pass++ {
		if pass > len(t.nodes)+64 {
			return errors.New(errors.ErrCodeFixedPointDiverged,
				"resolution did not converge after %d passes", pass)
		}
		for i := 0; i < len(t.nodes); i++ {
			if t.nodes[i].Done {
				continue
			}
			if err := t.resolveOne(ctx, t.nodes[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveOne fetches a node's sources as its origin dictates, reads the
// package manifest, and appends the dependencies it declares.
func (t *Tree) resolveOne(ctx context.Context, n *Node) error {
	fetched := false

	switch n.Origin.Kind {
	case OriginPath:
		n.ProjDir = filepath.FromSlash(n.Origin.Path)

	case OriginGit:
		if n.ProjDir == "" {
			n.ProjDir = filepath.Join(t.depDir, n.Name)
		}
		if n.Origin.URL == "" {
			// A cached git node whose declaration vanished cannot be
			// refreshed. It is queued for an explicit update instead.
			n.Update = true
		} else if n.Update || !dirExists(n.ProjDir) {
			t.log.Info("fetching", "package", n.Name, "origin", n.Origin.String())
			if err := t.git.Checkout(n.ProjDir, n.Origin.URL, n.Origin.Ref); err != nil {
				return err
			}
			n.Update = false
			fetched = true
		}
		if fetched || (n.Revision == "" && dirExists(n.ProjDir)) {
			rev, err := t.git.CurrentRevision(n.ProjDir)
			if err != nil {
				return err
			}
			n.Revision = rev
		}

	case OriginRegistry:
		reg, err := t.registryClient()
		if err != nil {
			return err
		}
		dir, err := reg.Fetch(ctx, n.Origin.Namespace, n.Origin.Name, n.Origin.Requested)
		if err != nil {
			return err
		}
		n.ProjDir = dir
	}

	pkg, err := manifest.Load(filepath.Join(n.ProjDir, manifest.Filename))
	if err != nil {
		return err
	}
	if pkg.Name != n.Name {
		return errors.New(errors.ErrCodeManifestMismatch,
			"dependency %s resolved to a package named %s", n.Name, pkg.Name)
	}
	if pkg.Version != "" {
		v, err := semver.NewVersion(pkg.Version)
		if err != nil {
			return versionError(n.Name, pkg.Version, err)
		}
		n.Version = v
	}
	n.Done = true
	t.log.Debug("resolved", "package", n.Name, "dir", n.ProjDir)
	return t.AddManifest(pkg, n.ProjDir, false)
}

// registryClient returns the configured registry client, building one
// from the user settings on first use.
func (t *Tree) registryClient() (RegistryClient, error) {
	if t.registry != nil {
		return t.registry, nil
	}
	settings, err := registry.LoadSettings(t.configPath)
	if err != nil {
		return nil, err
	}
	t.registry = registry.NewClient(settings, registry.NewHTTPDownloader(), t.log)
	return t.registry, nil
}

// UpdateDep re-fetches the named dependency. Only git dependencies
// flagged for update actually hit the network; path and registry nodes
// are already pinned by their origin.
func (t *Tree) UpdateDep(ctx context.Context, name string) error {
	n := t.Find(name)
	if n == nil {
		return errors.New(errors.ErrCodeUpdateUnknown, "no dependency named %s", name)
	}
	if n.Origin.Kind != OriginGit || !n.Update {
		return nil
	}
	if n.Origin.URL == "" {
		return errors.New(errors.ErrCodeUpdateUnknown,
			"dependency %s has no git source to update from", name)
	}
	t.log.Info("updating", "package", name)
	if err := t.git.Checkout(n.ProjDir, n.Origin.URL, n.Origin.Ref); err != nil {
		return err
	}
	rev, err := t.git.CurrentRevision(n.ProjDir)
	if err != nil {
		return err
	}
	n.Revision = rev
	n.Update = false
	n.Done = false
	if err := t.resolveLoop(ctx); err != nil {
		return err
	}
	if err := t.BuildGraph(); err != nil {
		return err
	}
	return t.saveCache()
}

// UpdateAll runs UpdateDep over every flagged dependency in tree order.
func (t *Tree) UpdateAll(ctx context.Context) error {
	// Collect names first; UpdateDep may append nodes.
	var names []string
	for _, n := range t.nodes {
		if n.Origin.Kind == OriginGit && n.Update {
			names = append(names, n.Name)
		}
	}
	for _, name := range names {
		if err := t.UpdateDep(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
