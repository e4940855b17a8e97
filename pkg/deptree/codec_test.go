package deptree

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/matzehuels/depstack/pkg/errors"
	"github.com/matzehuels/depstack/pkg/gitutil"
)

func sampleTree(t *testing.T) *Tree {
	t.Helper()
	tr := quietTree(Options{DepDir: "build/dependencies", CachePath: "build/cache.toml"})

	root := tr.Root()
	root.Name = "app"
	root.Origin = PathOrigin(".")
	root.Version = mustVersion(t, "0.1.0")
	root.ProjDir = "."
	root.Done = true
	root.PackageDep = []string{"liba", "libb", "libc"}

	tr.AddNode(&Node{
		Dependency: Dependency{Name: "liba", Origin: PathOrigin("libs/a")},
		Version:    mustVersion(t, "0.5.0"),
		ProjDir:    "libs/a",
		Done:       true,
	})
	tr.AddNode(&Node{
		Dependency: Dependency{
			Name:       "libb",
			Origin:     GitOrigin("https://example.com/libb.git", gitutil.Ref{Kind: gitutil.RefTag, Value: "v1.0.0"}),
			Preprocess: []string{"cpp.suffixes=.F90"},
		},
		Version:  mustVersion(t, "2.0.0"),
		ProjDir:  "build/dependencies/libb",
		Revision: "0123456789abcdef0123456789abcdef01234567",
		Done:     true,
	})
	tr.AddNode(&Node{
		Dependency: Dependency{Name: "libc", Origin: RegistryOrigin("acme", "libc", mustVersion(t, "1.2.3"))},
		Version:    mustVersion(t, "1.2.3"),
		ProjDir:    "cache/acme/libc/1.2.3",
		Done:       true,
	})
	return tr
}

func TestDumpParseRoundTrip(t *testing.T) {
	tr := sampleTree(t)

	var buf bytes.Buffer
	if err := tr.Dump(&buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}

	nodes, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(nodes) != tr.Len() {
		t.Fatalf("parsed %d nodes, want %d", len(nodes), tr.Len())
	}

	for i, got := range nodes {
		want := tr.Node(i)
		if got.Name != want.Name {
			t.Errorf("node %d name = %q, want %q (order must survive)", i, got.Name, want.Name)
		}
		if !got.Origin.Equal(want.Origin) {
			t.Errorf("%s origin = %v, want %v", want.Name, got.Origin, want.Origin)
		}
		if (got.Version == nil) != (want.Version == nil) ||
			(got.Version != nil && !got.Version.Equal(want.Version)) {
			t.Errorf("%s version = %v, want %v", want.Name, got.Version, want.Version)
		}
		if got.ProjDir != want.ProjDir {
			t.Errorf("%s proj dir = %q, want %q", want.Name, got.ProjDir, want.ProjDir)
		}
		if got.Revision != want.Revision {
			t.Errorf("%s revision = %q, want %q", want.Name, got.Revision, want.Revision)
		}
		if got.Done != want.Done || got.Update != want.Update {
			t.Errorf("%s flags = done %v update %v", want.Name, got.Done, got.Update)
		}
		if !reflect.DeepEqual(got.Preprocess, want.Preprocess) {
			t.Errorf("%s preprocess = %v, want %v", want.Name, got.Preprocess, want.Preprocess)
		}
		if !reflect.DeepEqual(got.PackageDep, want.PackageDep) {
			t.Errorf("%s package dep = %v, want %v", want.Name, got.PackageDep, want.PackageDep)
		}
	}
}

func TestDumpHeader(t *testing.T) {
	tr := sampleTree(t)

	var buf bytes.Buffer
	if err := tr.Dump(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		`ndep = 4`,
		`dep-dir = "build/dependencies"`,
		`cache = "build/cache.toml"`,
		"[dependencies.app]",
		"[dependencies.liba]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
}

func TestDumpQuotesNonBareKeys(t *testing.T) {
	tr := quietTree(Options{})
	tr.Root().Name = "app"
	tr.Root().Done = true
	tr.AddNode(&Node{
		Dependency: Dependency{Name: "weird name", Origin: PathOrigin("w")},
		Done:       true,
	})

	var buf bytes.Buffer
	if err := tr.Dump(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `[dependencies."weird name"]`) {
		t.Errorf("non-bare key not quoted:\n%s", buf.String())
	}

	nodes, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(nodes) != 2 || nodes[1].Name != "weird name" {
		t.Errorf("quoted key did not round-trip: %+v", nodes)
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse(strings.NewReader("not = [valid"))
	if !errors.Is(err, errors.ErrCodeCacheParse) {
		t.Errorf("got %v, want CACHE_PARSE_ERROR", err)
	}
}

func TestReadCacheFileMissing(t *testing.T) {
	nodes, err := readCacheFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing cache must not error: %v", err)
	}
	if nodes != nil {
		t.Errorf("missing cache yielded nodes: %v", nodes)
	}
}

func TestLoadCache(t *testing.T) {
	tr := sampleTree(t)
	path := filepath.Join(t.TempDir(), "cache.toml")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Dump(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	fresh := quietTree(Options{})
	if err := fresh.LoadCache(path); err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if fresh.Len() != tr.Len() {
		t.Errorf("loaded %d nodes, want %d", fresh.Len(), tr.Len())
	}
	if fresh.Root().Name != "app" {
		t.Errorf("root = %q", fresh.Root().Name)
	}

	empty := quietTree(Options{})
	if err := empty.LoadCache(filepath.Join(t.TempDir(), "nope.toml")); !errors.Is(err, errors.ErrCodeCacheParse) {
		t.Errorf("empty cache load = %v, want CACHE_PARSE_ERROR", err)
	}
}
