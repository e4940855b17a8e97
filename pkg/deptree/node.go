// Package deptree builds and maintains the flattened dependency tree of a
// project.
//
// The tree is an append-only collection of nodes, one per package, with the
// root project always at index 0. Resolution advances breadth-first: each
// pass fetches the sources of unresolved nodes, reads their manifests, and
// appends newly discovered dependencies until every node is done. A prior
// tree persisted as a TOML cache can be overlaid to skip fetches whose
// declarations have not changed.
package deptree

import (
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/depstack/pkg/gitutil"
	"github.com/matzehuels/depstack/pkg/manifest"
)

// OriginKind identifies how a package's sources are located.
type OriginKind int

const (
	// OriginPath is a local directory.
	OriginPath OriginKind = iota
	// OriginGit is a version-controlled repository.
	OriginGit
	// OriginRegistry is a coordinate into a package registry.
	OriginRegistry
)

// String returns the origin kind label used in diagnostics and the cache file.
func (k OriginKind) String() string {
	switch k {
	case OriginPath:
		return "path"
	case OriginGit:
		return "git"
	case OriginRegistry:
		return "registry"
	default:
		return "unknown"
	}
}

// Origin is a tagged variant describing where a package comes from.
// Exactly one kind is active; only the fields of the active kind are set.
type Origin struct {
	Kind OriginKind

	// OriginPath
	Path string

	// OriginGit
	URL string
	Ref gitutil.Ref

	// OriginRegistry
	Namespace string
	Name      string
	Requested *semver.Version
}

// PathOrigin returns a local-directory origin. The path is stored with
// forward slashes so trees serialize identically across platforms.
func PathOrigin(path string) Origin {
	return Origin{Kind: OriginPath, Path: filepath.ToSlash(filepath.Clean(path))}
}

// GitOrigin returns a git origin.
func GitOrigin(url string, ref gitutil.Ref) Origin {
	return Origin{Kind: OriginGit, URL: url, Ref: ref}
}

// RegistryOrigin returns a registry origin.
func RegistryOrigin(namespace, name string, requested *semver.Version) Origin {
	return Origin{Kind: OriginRegistry, Namespace: namespace, Name: name, Requested: requested}
}

// Equal reports whether two origins have the same kind and the same fields.
func (o Origin) Equal(other Origin) bool {
	if o.Kind != other.Kind {
		return false
	}
	switch o.Kind {
	case OriginPath:
		return o.Path == other.Path
	case OriginGit:
		return o.URL == other.URL && o.Ref == other.Ref
	case OriginRegistry:
		if o.Namespace != other.Namespace || o.Name != other.Name {
			return false
		}
		if (o.Requested == nil) != (other.Requested == nil) {
			return false
		}
		return o.Requested == nil || o.Requested.Equal(other.Requested)
	default:
		return false
	}
}

// String renders the origin for tree listings.
func (o Origin) String() string {
	switch o.Kind {
	case OriginPath:
		return "path " + o.Path
	case OriginGit:
		s := "git " + o.URL
		if o.Ref.Kind != gitutil.RefDefault {
			s += "@" + o.Ref.Value
		}
		return s
	case OriginRegistry:
		s := "registry " + o.Namespace + "/" + o.Name
		if o.Requested != nil {
			s += "@" + o.Requested.String()
		}
		return s
	default:
		return "unknown"
	}
}

// Dependency is a declared dependency: a name plus the origin it was
// declared with, and the declaring manifest's preprocessor configuration
// in canonical form.
type Dependency struct {
	Name       string
	Origin     Origin
	Preprocess []string
}

// Node is one resolved (or in-flight) entry of the tree. It composes the
// declaration with the state recorded during resolution.
type Node struct {
	Dependency

	// Version is the semantic version read from the fetched package's own
	// manifest.
	Version *semver.Version
	// ProjDir is the local directory holding the package sources.
	ProjDir string
	// Revision is the checked-out commit for git origins.
	Revision string

	// Done marks resolution complete for this node.
	Done bool
	// Update marks that the local copy must be re-fetched on the next
	// resolve pass.
	Update bool
	// Cached marks that this node was loaded from the persisted cache.
	Cached bool

	// PackageDep is the transitive closure of required package names,
	// ordered by tree index. Filled after resolution converges.
	PackageDep []string
}

// dependencyFrom converts a manifest dependency entry into a tree
// declaration. Path dependencies are resolved relative to the declaring
// project's directory.
func dependencyFrom(name string, d manifest.Dependency, declDir string) (Dependency, error) {
	dep := Dependency{Name: name, Preprocess: d.Preprocess}

	switch {
	case d.IsPath():
		dep.Origin = PathOrigin(filepath.Join(declDir, filepath.FromSlash(d.Path)))
	case d.IsGit():
		dep.Origin = GitOrigin(d.Git, gitRef(d))
	default:
		namespace := d.Namespace
		if namespace == "" {
			namespace = DefaultNamespace
		}
		var requested *semver.Version
		if d.Version != "" {
			v, err := semver.NewVersion(d.Version)
			if err != nil {
				return Dependency{}, versionError(name, d.Version, err)
			}
			requested = v
		}
		dep.Origin = RegistryOrigin(namespace, name, requested)
	}
	return dep, nil
}

func gitRef(d manifest.Dependency) gitutil.Ref {
	switch {
	case d.Rev != "":
		return gitutil.Ref{Kind: gitutil.RefRevision, Value: d.Rev}
	case d.Tag != "":
		return gitutil.Ref{Kind: gitutil.RefTag, Value: d.Tag}
	case d.Branch != "":
		return gitutil.Ref{Kind: gitutil.RefBranch, Value: d.Branch}
	default:
		return gitutil.Ref{Kind: gitutil.RefDefault}
	}
}

// shortRevision trims a commit hash for display.
func shortRevision(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// bareKey reports whether s is a valid bare TOML key.
func bareKey(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
