package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depstack/pkg/render"
)

const (
	formatDOT = "dot"
	formatSVG = "svg"
	formatPNG = "png"
)

// graphOpts holds the flags of the graph command.
type graphOpts struct {
	output   string // output file path, empty for stdout
	format   string // dot, svg, or png
	detailed bool   // include versions and origins in labels
}

// newGraphCmd creates the graph command, which resolves the project and
// exports its dependency graph via Graphviz.
func newGraphCmd(opts *treeOpts) *cobra.Command {
	var gopts graphOpts

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the dependency graph as DOT, SVG, or PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t := opts.tree(ctx)
			if err := t.Resolve(ctx, opts.projectDir); err != nil {
				return err
			}

			dot, err := render.ToDOT(t, render.Options{Detailed: gopts.detailed})
			if err != nil {
				return err
			}

			var out []byte
			switch gopts.format {
			case formatDOT:
				out = []byte(dot)
			case formatSVG:
				out, err = render.RenderSVG(dot)
			case formatPNG:
				out, err = render.RenderPNG(dot)
			default:
				return fmt.Errorf("unknown format %q (want dot, svg, or png)", gopts.format)
			}
			if err != nil {
				return err
			}

			if gopts.output == "" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			return os.WriteFile(gopts.output, out, 0644)
		},
	}

	cmd.Flags().StringVarP(&gopts.output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringVarP(&gopts.format, "format", "f", formatDOT, "output format: dot, svg, or png")
	cmd.Flags().BoolVar(&gopts.detailed, "detailed", false, "include versions and origins in node labels")
	return cmd
}
