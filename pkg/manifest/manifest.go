// Package manifest reads fpm.toml package manifests.
//
// A manifest declares the package name and version, its runtime
// dependencies, dev-dependencies, and per-target (executable, example,
// test) dependencies, plus optional preprocessor configuration. The
// resolution core consumes manifests through [Load].
package manifest

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/depstack/pkg/errors"
)

// Filename is the canonical manifest file name inside a package directory.
const Filename = "fpm.toml"

// Package is a parsed fpm.toml manifest.
type Package struct {
	Name            string                `toml:"name"`
	Version         string                `toml:"version"`
	Dependencies    map[string]Dependency `toml:"dependencies"`
	DevDependencies map[string]Dependency `toml:"dev-dependencies"`
	Executables     []Target              `toml:"executable"`
	Examples        []Target              `toml:"example"`
	Tests           []Target              `toml:"test"`
	Preprocess      map[string]Preprocess `toml:"preprocess"`
}

// Target is an executable, example, or test entry with its own dependencies.
type Target struct {
	Name         string                `toml:"name"`
	Dependencies map[string]Dependency `toml:"dependencies"`
}

// Preprocess holds the configuration of one preprocessor table
// (e.g. [preprocess.cpp]).
type Preprocess struct {
	Suffixes    []string `toml:"suffixes"`
	Directories []string `toml:"directories"`
	Macros      []string `toml:"macros"`
}

// Dependency is one declared dependency. Exactly one source form is set:
//
//	a = { path = "./a" }
//	b = { git = "https://host/b.git", tag = "v1.2.0" }
//	c = { namespace = "ns", v = "2.0.0" }
//	d = "2.0.0"                               // registry shorthand
//
// The shorthand string form is a registry dependency with the version
// constraint as its value.
type Dependency struct {
	Path string

	Git    string
	Branch string
	Tag    string
	Rev    string

	Namespace string
	Version   string // requested version, "v" key in the table form

	// Preprocess is the canonical line form of an inline preprocess table
	// attached to the dependency entry.
	Preprocess []string
}

// UnmarshalTOML accepts both the table and the bare-string dependency forms.
func (d *Dependency) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		d.Version = v
		return nil
	case map[string]any:
		d.Path = str(v, "path")
		d.Git = str(v, "git")
		d.Branch = str(v, "branch")
		d.Tag = str(v, "tag")
		d.Rev = str(v, "rev")
		d.Namespace = str(v, "namespace")
		d.Version = str(v, "v")
		if raw, ok := v["preprocess"].(map[string]any); ok {
			d.Preprocess = linesFromRaw(raw)
		}
		return nil
	default:
		return fmt.Errorf("dependency must be a string or a table, got %T", data)
	}
}

func str(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// IsPath reports whether the dependency is a local path dependency.
func (d Dependency) IsPath() bool { return d.Path != "" }

// IsGit reports whether the dependency is a git dependency.
func (d Dependency) IsGit() bool { return d.Git != "" }

// IsRegistry reports whether the dependency is a registry dependency.
// A dependency with no path and no git URL falls through to the registry.
func (d Dependency) IsRegistry() bool { return !d.IsPath() && !d.IsGit() }

// Load reads and decodes the manifest at path.
func Load(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read manifest %s", path)
	}
	var pkg Package
	if err := toml.Unmarshal(data, &pkg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse manifest %s", path)
	}
	if pkg.Name == "" {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "manifest %s has no package name", path)
	}
	return &pkg, nil
}

// PreprocessLines renders the preprocess tables as canonical key=value
// lines, sorted by preprocessor name. Two manifests have the same
// preprocessor configuration iff their lines are element-wise equal.
func (p *Package) PreprocessLines() []string {
	if len(p.Preprocess) == 0 {
		return nil
	}
	names := make([]string, 0, len(p.Preprocess))
	for name := range p.Preprocess {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		lines = append(lines, configLines(name, p.Preprocess[name])...)
	}
	return lines
}

func configLines(name string, cfg Preprocess) []string {
	var lines []string
	if len(cfg.Suffixes) > 0 {
		lines = append(lines, name+".suffixes="+strings.Join(cfg.Suffixes, ","))
	}
	if len(cfg.Directories) > 0 {
		lines = append(lines, name+".directories="+strings.Join(cfg.Directories, ","))
	}
	if len(cfg.Macros) > 0 {
		lines = append(lines, name+".macros="+strings.Join(cfg.Macros, ","))
	}
	if len(lines) == 0 {
		lines = append(lines, name)
	}
	return lines
}

// linesFromRaw canonicalizes an inline preprocess table that the TOML
// decoder handed over as a raw map.
func linesFromRaw(raw map[string]any) []string {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		cfg := Preprocess{}
		if m, ok := raw[name].(map[string]any); ok {
			cfg.Suffixes = strSlice(m, "suffixes")
			cfg.Directories = strSlice(m, "directories")
			cfg.Macros = strSlice(m, "macros")
		}
		lines = append(lines, configLines(name, cfg)...)
	}
	return lines
}

func strSlice(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
