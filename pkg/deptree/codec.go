package deptree

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/depstack/pkg/errors"
	"github.com/matzehuels/depstack/pkg/gitutil"
)

// cacheHeader is the scalar preamble of the cache file.
type cacheHeader struct {
	Unit      int    `toml:"unit"`
	Verbosity int    `toml:"verbosity"`
	DepDir    string `toml:"dep-dir"`
	Cache     string `toml:"cache"`
	NDep      int    `toml:"ndep"`
}

// cacheNode is the serialized form of one tree node.
type cacheNode struct {
	Path      string `toml:"path,omitempty"`
	Git       string `toml:"git,omitempty"`
	Branch    string `toml:"branch,omitempty"`
	Tag       string `toml:"tag,omitempty"`
	Rev       string `toml:"rev,omitempty"`
	Namespace string `toml:"namespace,omitempty"`
	Requested string `toml:"v,omitempty"`

	Version  string `toml:"version,omitempty"`
	ProjDir  string `toml:"proj-dir,omitempty"`
	Revision string `toml:"revision,omitempty"`

	Done   bool `toml:"done"`
	Update bool `toml:"update"`
	Cached bool `toml:"cached"`

	Preprocess []string `toml:"preprocess,omitempty"`
	PackageDep []string `toml:"package-dep,omitempty"`
}

type cacheFile struct {
	cacheHeader
	Dependencies map[string]cacheNode `toml:"dependencies"`
}

// Dump writes the tree's cache representation to w. Nodes appear in tree
// order under the dependencies table, keyed by package name.
func (t *Tree) Dump(w io.Writer) error {
	hdr := cacheHeader{
		Unit:      t.unit,
		Verbosity: t.verbosity,
		DepDir:    filepath.ToSlash(t.depDir),
		Cache:     filepath.ToSlash(t.cachePath),
		NDep:      len(t.nodes),
	}
	if err := toml.NewEncoder(w).Encode(hdr); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode cache header")
	}
	if _, err := fmt.Fprintf(w, "\n[dependencies]\n"); err != nil {
		return err
	}

	for i, n := range t.nodes {
		key := n.Name
		if key == "" {
			key = fmt.Sprintf("UNNAMED_DEPENDENCY_%d", i)
		}
		if !bareKey(key) {
			key = strconv.Quote(key)
		}
		if _, err := fmt.Fprintf(w, "\n[dependencies.%s]\n", key); err != nil {
			return err
		}
		if err := toml.NewEncoder(w).Encode(encodeNode(n)); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "encode cache entry %s", n.Name)
		}
	}
	return nil
}

func encodeNode(n *Node) cacheNode {
	cn := cacheNode{
		ProjDir:    filepath.ToSlash(n.ProjDir),
		Revision:   n.Revision,
		Done:       n.Done,
		Update:     n.Update,
		Cached:     n.Cached,
		Preprocess: n.Preprocess,
		PackageDep: n.PackageDep,
	}
	if n.Version != nil {
		cn.Version = n.Version.String()
	}
	switch n.Origin.Kind {
	case OriginPath:
		cn.Path = n.Origin.Path
	case OriginGit:
		cn.Git = n.Origin.URL
		switch n.Origin.Ref.Kind {
		case gitutil.RefBranch:
			cn.Branch = n.Origin.Ref.Value
		case gitutil.RefTag:
			cn.Tag = n.Origin.Ref.Value
		case gitutil.RefRevision:
			cn.Rev = n.Origin.Ref.Value
		}
	case OriginRegistry:
		cn.Namespace = n.Origin.Namespace
		if n.Origin.Requested != nil {
			cn.Requested = n.Origin.Requested.String()
		}
	}
	return cn
}

// decodeNode rebuilds a tree node from its serialized form.
func decodeNode(name string, cn cacheNode) (*Node, error) {
	n := &Node{
		Dependency: Dependency{Name: name, Preprocess: cn.Preprocess},
		ProjDir:    filepath.FromSlash(cn.ProjDir),
		Revision:   cn.Revision,
		Done:       cn.Done,
		Update:     cn.Update,
		Cached:     cn.Cached,
		PackageDep: cn.PackageDep,
	}
	if cn.Version != "" {
		v, err := semver.NewVersion(cn.Version)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCacheParse, err,
				"cache entry %s has invalid version %q", name, cn.Version)
		}
		n.Version = v
	}

	switch {
	case cn.Path != "":
		n.Origin = PathOrigin(filepath.FromSlash(cn.Path))
	case cn.Git != "":
		ref := gitutil.Ref{Kind: gitutil.RefDefault}
		switch {
		case cn.Rev != "":
			ref = gitutil.Ref{Kind: gitutil.RefRevision, Value: cn.Rev}
		case cn.Tag != "":
			ref = gitutil.Ref{Kind: gitutil.RefTag, Value: cn.Tag}
		case cn.Branch != "":
			ref = gitutil.Ref{Kind: gitutil.RefBranch, Value: cn.Branch}
		}
		n.Origin = GitOrigin(cn.Git, ref)
	default:
		namespace := cn.Namespace
		if namespace == "" {
			namespace = DefaultNamespace
		}
		var requested *semver.Version
		if cn.Requested != "" {
			v, err := semver.NewVersion(cn.Requested)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeCacheParse, err,
					"cache entry %s requests invalid version %q", name, cn.Requested)
			}
			requested = v
		}
		n.Origin = RegistryOrigin(namespace, name, requested)
	}
	return n, nil
}

// Parse reads a cache document from r and returns its nodes in document
// order.
func Parse(r io.Reader) ([]*Node, error) {
	var cf cacheFile
	md, err := toml.NewDecoder(r).Decode(&cf)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCacheParse, err, "parse cache file")
	}

	// The map loses document order; the decoder metadata preserves it.
	var names []string
	for _, key := range md.Keys() {
		if len(key) == 2 && key[0] == "dependencies" {
			names = append(names, key[1])
		}
	}

	nodes := make([]*Node, 0, len(names))
	for _, name := range names {
		cn, ok := cf.Dependencies[name]
		if !ok {
			continue
		}
		n, err := decodeNode(name, cn)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// readCacheFile parses the cache at path. A missing file is not an error
// and yields no nodes.
func readCacheFile(path string) ([]*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeCacheParse, err, "open cache %s", path)
	}
	defer f.Close()
	return Parse(f)
}

// saveCache rewrites the cache file from the current tree state.
func (t *Tree) saveCache() error {
	if t.cachePath == "" {
		return nil
	}
	if dir := filepath.Dir(t.cachePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "create %s", dir)
		}
	}
	f, err := os.Create(t.cachePath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create cache %s", t.cachePath)
	}
	defer f.Close()
	if err := t.Dump(f); err != nil {
		return err
	}
	return f.Close()
}

// LoadCache replaces the tree's nodes with the document at path. It is
// meant for inspection of a persisted tree; Resolve overlays the cache
// itself.
func (t *Tree) LoadCache(path string) error {
	nodes, err := readCacheFile(path)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return errors.New(errors.ErrCodeCacheParse, "cache %s holds no dependencies", path)
	}
	t.nodes = nodes
	return nil
}
