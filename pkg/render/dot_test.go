package render

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depstack/pkg/deptree"
	"github.com/matzehuels/depstack/pkg/manifest"
)

func writeTestManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifest.Filename), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func resolvedTree(t *testing.T) *deptree.Tree {
	t.Helper()
	rootDir := filepath.Join(t.TempDir(), "proj")
	writeTestManifest(t, rootDir, `
name = "app"
version = "0.1.0"

[dependencies]
liba = { path = "liba" }
`)
	writeTestManifest(t, filepath.Join(rootDir, "liba"), `
name = "liba"
version = "0.5.0"
`)

	tr := deptree.New(deptree.Options{Out: io.Discard, Logger: log.New(io.Discard)})
	if err := tr.Resolve(context.Background(), rootDir); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return tr
}

func TestToDOT(t *testing.T) {
	dot, err := ToDOT(resolvedTree(t), Options{})
	if err != nil {
		t.Fatalf("ToDOT: %v", err)
	}

	for _, want := range []string{
		"digraph deps {",
		`"app"`,
		`"liba"`,
		`"app" -> "liba";`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
	if strings.Contains(dot, "0.5.0") {
		t.Error("plain labels must not include versions")
	}
}

func TestToDOTDetailed(t *testing.T) {
	dot, err := ToDOT(resolvedTree(t), Options{Detailed: true})
	if err != nil {
		t.Fatalf("ToDOT: %v", err)
	}
	for _, want := range []string{"0.1.0", "0.5.0", "path "} {
		if !strings.Contains(dot, want) {
			t.Errorf("detailed DOT missing %q:\n%s", want, dot)
		}
	}
}
