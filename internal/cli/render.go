package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/pipeline"
	"github.com/matzehuels/stemma/pkg/view"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output   string  // output file (one format) or base path (several)
	formats  string  // comma-separated output formats
	scale    float64 // raster scale for png and jpeg
	photos   bool    // show profile photos in svg and pdf
	detailed bool    // label dot output with dates
	refresh  bool    // ignore cached artifacts
	noCache  bool    // disable the cache entirely

	collapse collapseFlags
	source   sourceFlags
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render [tree-id]",
		Short: "Render a family tree to SVG, PNG, JPEG, PDF, DOT or JSON",
		Long: `Render loads a tree, builds its hierarchy, lays it out and writes one
file per requested format. Without -o the files are named after the tree.`,
		Example: `  stemma render 7 -f svg,png
  stemma render -i family.yaml --collapsed 3,12 -o tree.svg`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.source.apply(&c.cfg)
			return c.runRender(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().StringVarP(&opts.formats, "format", "f", "", "output format(s): svg (default), png, jpeg, pdf, dot, graphviz, json (comma-separated)")
	cmd.Flags().Float64Var(&opts.scale, "scale", pipeline.DefaultScale, "pixel scale for png and jpeg")
	cmd.Flags().BoolVar(&opts.photos, "photos", false, "show profile photos (needs render.photo_base)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "include dates in dot and graphviz output")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "ignore cached renders")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	opts.collapse.register(cmd)
	opts.source.register(cmd)

	return cmd
}

func (c *CLI) runRender(ctx context.Context, args []string, opts renderOpts) error {
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

	po := c.baseOptions(treeID)
	po.Collapsed, po.CollapseAll = collapsed, opts.collapse.collapseAll
	po.Formats = parseFormats(opts.formats)
	po.Scale = opts.scale
	po.Detailed = opts.detailed
	po.Refresh = opts.refresh
	if opts.photos {
		if c.cfg.Render.PhotoBase == "" {
			return errors.New(errors.ErrCodeInvalidInput, "--photos needs render.photo_base in the config")
		}
		po.PhotoBase = c.cfg.Render.PhotoBase
	}
	if err := po.ValidateAndSetDefaults(); err != nil {
		return err
	}

	prog := newProgress(c.Logger)
	result, err := runner.Execute(ctx, po)
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Rendered tree %d", treeID))

	name := result.Snapshot.Tree.DisplayName()
	printSuccess("Rendered %s", StyleHighlight.Render(name))
	printStats(result.Stats.Persons, result.Stats.Nodes, result.CacheInfo.RenderHit)

	for _, format := range po.Formats {
		path := outputPath(opts.output, result.Snapshot.Tree.Name, format, len(po.Formats) > 1)
		if err := writeOutput(path, result.Artifacts[format]); err != nil {
			return err
		}
		printFile(path)
	}
	printWarnings(result.Diagnostics.Warnings())
	return nil
}

// outputPath picks the file for one format. Without an explicit output the
// file is named after the tree; with several formats the output is a base
// path whose extension is replaced per format.
func outputPath(output, treeName, format string, multiple bool) string {
	ext := "." + pipeline.Extension(format)
	switch {
	case output == "":
		return view.Slug(treeName) + "-tree" + ext
	case multiple:
		return strings.TrimSuffix(output, filepath.Ext(output)) + ext
	default:
		return output
	}
}

func writeOutput(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
