package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stemma/pkg/pipeline"
	"github.com/matzehuels/stemma/pkg/render"
	"github.com/matzehuels/stemma/pkg/view"
)

type exportOpts struct {
	output  string
	quality string
	noCache bool

	collapse collapseFlags
	source   sourceFlags
}

// exportCommand creates the export command.
func (c *CLI) exportCommand() *cobra.Command {
	var opts exportOpts

	cmd := &cobra.Command{
		Use:   "export [tree-id]",
		Short: "Export the whole tree as an HD or 4K JPEG",
		Long: `Export draws the entire diagram, fitted to its bounds plus padding, into a
JPEG. HD renders at twice the diagram size and 4K at four times. Photos are
replaced by initials. Without -o the file is named after the tree, for
example the-berg-family-tree-HD.jpg.`,
		Example: `  stemma export 7 --quality 4K
  stemma export -i family.yaml --collapse-all -o overview.jpg`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := view.ParseQuality(opts.quality)
			if err != nil {
				return err
			}
			opts.source.apply(&c.cfg)
			return c.runExport(cmd.Context(), args, q, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: named after the tree)")
	cmd.Flags().StringVarP(&opts.quality, "quality", "q", view.QualityHD.Name, "export quality: HD or 4K")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	opts.collapse.register(cmd)
	opts.source.register(cmd)

	return cmd
}

func (c *CLI) runExport(ctx context.Context, args []string, q view.Quality, opts exportOpts) error {
	runner, closeRunner, err := c.newRunner(ctx, opts.noCache)
	if err != nil {
		return err
	}
	defer closeRunner()

	treeID, err := c.resolveTreeID(ctx, args, runner.Source)
	if err != nil {
		return err
	}
	collapsed, err := opts.collapse.ids()
	if err != nil {
		return err
	}

	session := c.newSession(runner, treeID)
	if err := session.Reload(ctx); err != nil {
		return err
	}
	if opts.collapse.collapseAll {
		session.CollapseAll(ctx)
	} else if err := session.SetCollapsed(ctx, collapsed); err != nil {
		return err
	}

	exp, err := session.Export(ctx, q)
	if err != nil {
		return err
	}

	path := opts.output
	if path == "" {
		path = exp.Filename
	}
	if err := writeOutput(path, exp.Data); err != nil {
		return err
	}

	printSuccess("Exported %s at %s", StyleHighlight.Render(session.Tree().DisplayName()), q.Name)
	printStats(len(session.Snapshot().Persons), len(session.Layout().Nodes), exp.Cached)
	printFile(path)
	printDetail("%dx%d px · %s", exp.Width, exp.Height, exp.ID)
	if exp.Scale < q.Scale {
		printWarning("Scaled to %.2fx instead of %gx to stay within %d px per side", exp.Scale, q.Scale, render.MaxRasterSide)
	}
	return nil
}

// newSession creates a view session with the configured layout, theme,
// viewport and export settings.
func (c *CLI) newSession(runner *pipeline.Runner, treeID int64) *view.Session {
	rc := c.cfg.Render
	opts := []view.Option{
		view.WithLayout(c.cfg.LayoutOptions()),
		view.WithTheme(c.cfg.Theme()),
		view.WithViewport(rc.ViewportWidth, rc.ViewportHeight),
		view.WithZoomRange(rc.MinZoom, rc.MaxZoom),
		view.WithExportPadding(rc.ExportPadding),
		view.WithJPEGQuality(rc.JPEGQuality),
	}
	if rc.PhotoBase != "" {
		opts = append(opts, view.WithPhotos(rc.PhotoBase))
	}
	return view.New(runner, treeID, opts...)
}

// describeExport is the one-line summary shown by the viewer.
func describeExport(path string, exp *view.Export) string {
	msg := fmt.Sprintf("exported %s (%dx%d)", path, exp.Width, exp.Height)
	if exp.Scale < exp.Quality.Scale {
		msg += fmt.Sprintf(", scaled to %.2fx", exp.Scale)
	}
	return msg
}
