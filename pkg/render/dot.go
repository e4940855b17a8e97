// Package render draws a resolved dependency tree as a Graphviz graph.
package render

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/depstack/pkg/deptree"
)

// Options configures graph rendering.
type Options struct {
	// Detailed includes versions and origins in node labels. When false,
	// only the package name is shown.
	Detailed bool
}

// ToDOT converts a resolved tree to Graphviz DOT format. Each package is
// a node and each direct dependency an edge. The resulting DOT string
// can be rendered with [RenderSVG] or [RenderPNG].
func ToDOT(t *deptree.Tree, opts Options) (string, error) {
	edges, err := t.Edges()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString("digraph deps {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for i := 0; i < t.Len(); i++ {
		n := t.Node(i)
		attrs := fmtAttrs(n, i == 0, opts.Detailed)
		fmt.Fprintf(&buf, "  %q [%s];\n", n.Name, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range edges {
		fmt.Fprintf(&buf, "  %q -> %q;\n", t.Node(e[0]).Name, t.Node(e[1]).Name)
	}

	buf.WriteString("}\n")
	return buf.String(), nil
}

func fmtAttrs(n *deptree.Node, root, detailed bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", fmtLabel(n, detailed))}
	switch {
	case root:
		attrs = append(attrs, "fillcolor=lightblue")
	case n.Origin.Kind == deptree.OriginGit:
		attrs = append(attrs, "fillcolor=lightyellow")
	case n.Origin.Kind == deptree.OriginRegistry:
		attrs = append(attrs, "fillcolor=lightgrey")
	}
	return attrs
}

func fmtLabel(n *deptree.Node, detailed bool) string {
	if !detailed {
		return n.Name
	}
	parts := []string{n.Name}
	if n.Version != nil {
		parts = append(parts, n.Version.String())
	}
	parts = append(parts, n.Origin.String())
	return strings.Join(parts, "\n")
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	return renderFormat(dot, graphviz.SVG)
}

// RenderPNG renders a DOT graph to PNG using Graphviz.
func RenderPNG(dot string) ([]byte, error) {
	return renderFormat(dot, graphviz.PNG)
}

func renderFormat(dot string, format graphviz.Format) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
