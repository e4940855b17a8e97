package deptree

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestList(t *testing.T) {
	rootDir, git, reg := testProject(t)

	var buf bytes.Buffer
	tr := New(Options{
		DepDir:   rootDir + "/build/dependencies",
		Git:      git,
		Registry: reg,
		Out:      &buf,
		Logger:   log.New(io.Discard),
	})
	if err := tr.Resolve(context.Background(), rootDir); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := tr.List(); err != nil {
		t.Fatalf("List: %v", err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != tr.Len() {
		t.Fatalf("listing has %d lines, want %d:\n%s", len(lines), tr.Len(), out)
	}
	for _, name := range []string{"app", "liba", "libb", "libd", "libc"} {
		if !strings.Contains(out, name) {
			t.Errorf("listing missing %q:\n%s", name, out)
		}
	}
	if !strings.Contains(out, "0.1.0") {
		t.Errorf("listing missing root version:\n%s", out)
	}
}
