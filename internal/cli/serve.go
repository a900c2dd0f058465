package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stemma/internal/server"
)

type serveOpts struct {
	addr    string
	noCache bool
	source  sourceFlags
}

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOpts

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve trees over HTTP",
		Long: `Serve exposes the configured source over a stateless HTTP API: tree
headers, hierarchies, layouts, diagnostics, renders and JPEG exports, plus
Prometheus metrics on /metrics. Collapse state travels in the query string.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.source.apply(&c.cfg)
			if opts.addr != "" {
				c.cfg.Server.Addr = opts.addr
			}
			return c.runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	opts.source.register(cmd)

	return cmd
}

func (c *CLI) runServe(ctx context.Context, opts serveOpts) error {
	runner, closeRunner, err := c.newRunner(ctx, opts.noCache)
	if err != nil {
		return err
	}
	defer closeRunner()

	metrics := server.NewMetrics()
	metrics.Install()

	rc, sc := c.cfg.Render, c.cfg.Server
	srv := server.New(runner, metrics, c.Logger, server.Options{
		Layout:       c.cfg.LayoutOptions(),
		Theme:        c.cfg.Theme(),
		Padding:      rc.ExportPadding,
		JPEG:         rc.JPEGQuality,
		PhotoBase:    rc.PhotoBase,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
	})

	printInfo("Serving %s trees on %s", c.cfg.Source.Kind, StyleHighlight.Render(sc.Addr))
	printDetail("cache: %s · metrics: /metrics", c.cfg.Cache.Kind)
	return srv.ListenAndServe(ctx, sc.Addr)
}
