package deptree

import (
	"path/filepath"
	"sort"

	"github.com/matzehuels/depstack/pkg/errors"
	"github.com/matzehuels/depstack/pkg/manifest"
)

// graphPasses bounds the closure fixed point. Depth of a dependency
// chain cannot exceed the node count, so divergence past this bound
// indicates an internal inconsistency.
const graphPasses = 50

// BuildGraph computes each node's transitive package set.
//
// Direct dependency names are re-read from the manifests, then the sets
// are grown by unioning every member's own set until no pass changes
// anything. Members are ordered by tree index so the result is stable.
func (t *Tree) BuildGraph() error {
	direct, err := t.directDeps()
	if err != nil {
		return err
	}

	sets := make([]map[int]bool, len(t.nodes))
	for i, deps := range direct {
		sets[i] = make(map[int]bool, len(deps))
		for _, j := range deps {
			sets[i][j] = true
		}
	}

	for pass := 0; ; pass++ {
		if pass > graphPasses {
			return errors.New(errors.ErrCodeFixedPointDiverged,
				"package graph did not converge after %d passes", pass)
		}
		changed := false
		for i := range sets {
			for j := range sets[i] {
				for k := range sets[j] {
					if !sets[i][k] {
						sets[i][k] = true
						changed = true
					}
				}
			}
		}
		if !changed {
			break
		}
	}

	for i, set := range sets {
		indices := make([]int, 0, len(set))
		for j := range set {
			indices = append(indices, j)
		}
		sort.Ints(indices)
		names := make([]string, len(indices))
		for k, j := range indices {
			names[k] = t.nodes[j].Name
		}
		t.nodes[i].PackageDep = names
	}
	return nil
}

// Edges returns the direct dependency edges as (dependent, dependency)
// index pairs, in tree order.
func (t *Tree) Edges() ([][2]int, error) {
	direct, err := t.directDeps()
	if err != nil {
		return nil, err
	}
	var edges [][2]int
	for i, deps := range direct {
		for _, j := range deps {
			edges = append(edges, [2]int{i, j})
		}
	}
	return edges, nil
}

// directDeps reads each node's manifest and maps its declared dependency
// names to tree indices. The root's target and dev groups participate.
func (t *Tree) directDeps() ([][]int, error) {
	out := make([][]int, len(t.nodes))
	for i, n := range t.nodes {
		pkg, err := manifest.Load(filepath.Join(n.ProjDir, manifest.Filename))
		if err != nil {
			return nil, err
		}
		names := depNames(pkg, i == 0)
		indices := make([]int, 0, len(names))
		for _, name := range names {
			j := t.FindIndex(name)
			if j < 0 {
				return nil, errors.New(errors.ErrCodeGraphMissingDep,
					"package graph failed: %s depends on unknown package %s", n.Name, name)
			}
			indices = append(indices, j)
		}
		out[i] = indices
	}
	return out, nil
}

func depNames(pkg *manifest.Package, main bool) []string {
	seen := map[string]bool{}
	var names []string
	add := func(deps map[string]manifest.Dependency) {
		group := make([]string, 0, len(deps))
		for name := range deps {
			group = append(group, name)
		}
		sort.Strings(group)
		for _, name := range group {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	add(pkg.Dependencies)
	if main {
		add(pkg.DevDependencies)
		for _, targets := range [][]manifest.Target{pkg.Executables, pkg.Examples, pkg.Tests} {
			for _, target := range targets {
				add(target.Dependencies)
			}
		}
	}
	return names
}

// LinkOrder returns the indices of node id's package set, dependencies
// before dependents, ending with id itself. Cycles collapse onto their
// first visited member.
func (t *Tree) LinkOrder(id int) ([]int, error) {
	if id < 0 || id >= len(t.nodes) {
		return nil, errors.New(errors.ErrCodeGraphInvalidID,
			"package graph failed: no node with index %d", id)
	}
	visited := make(map[int]bool)
	var order []int
	var visit func(i int) error
	visit = func(i int) error {
		visited[i] = true
		for _, name := range t.nodes[i].PackageDep {
			j := t.FindIndex(name)
			if j < 0 {
				return errors.New(errors.ErrCodeGraphMissingDep,
					"package graph failed: %s requires unknown package %s", t.nodes[i].Name, name)
			}
			if !visited[j] {
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		order = append(order, i)
		return nil
	}
	if err := visit(id); err != nil {
		return nil, err
	}
	return order, nil
}
