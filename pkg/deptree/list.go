package deptree

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	nameStyle    = lipgloss.NewStyle().Bold(true)
	versionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("36"))
	originStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	flagStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// List writes a human-readable tree listing to the configured output.
// The root appears first, followed by its dependencies in tree order.
func (t *Tree) List() error {
	for i, n := range t.nodes {
		if _, err := fmt.Fprintln(t.out, t.renderNode(i, n)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) renderNode(i int, n *Node) string {
	var b strings.Builder

	prefix := "├── "
	if i == 0 {
		prefix = ""
	} else if i == len(t.nodes)-1 {
		prefix = "└── "
	}
	b.WriteString(prefix)

	name := n.Name
	if name == "" {
		name = "(unnamed)"
	}
	b.WriteString(nameStyle.Render(name))

	if n.Version != nil {
		b.WriteString(" " + versionStyle.Render(n.Version.String()))
	}
	if i > 0 {
		b.WriteString(" " + originStyle.Render("["+n.Origin.String()+"]"))
	}
	if n.Revision != "" {
		b.WriteString(" " + originStyle.Render("#"+shortRevision(n.Revision)))
	}
	if n.Update {
		b.WriteString(" " + flagStyle.Render("(update pending)"))
	}
	if n.Cached {
		b.WriteString(" " + originStyle.Render("(cached)"))
	}
	return b.String()
}
