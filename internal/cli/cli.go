// Package cli implements the stemma command-line interface.
//
// Every command reads its defaults from the config file (see
// [config.Load]); flags given on the command line win. Trees come from the
// configured source: the REST backend, a local JSON/YAML file or MongoDB.
//
// # Commands
//
//   - render: write the tree as SVG, PNG, JPEG, PDF, DOT or JSON
//   - export: write an HD or 4K JPEG of the whole tree
//   - check: list persons with their placement and report data problems
//   - view: browse the tree interactively in the terminal
//   - serve: expose trees over HTTP with Prometheus metrics
//   - cache: manage the render and export cache
package cli

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stemma/pkg/buildinfo"
	"github.com/matzehuels/stemma/pkg/cache"
	"github.com/matzehuels/stemma/pkg/config"
	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/pipeline"
	"github.com/matzehuels/stemma/pkg/source"
)

const (
	// appName is the application name used for directories and display.
	appName = "stemma"

	// redisPrefix namespaces stemma's keys in a shared Redis.
	redisPrefix = "stemma:"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	cfg        config.Config
}

// New creates a CLI logging to w at level, with the built-in configuration.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		cfg:    config.Default(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Stemma draws family trees",
		Long:         `Stemma turns the persons, parent-child relationships and marriages of a family tree into a laid-out, collapsible diagram that can be rendered, exported, browsed in the terminal or served over HTTP.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/stemma/config.toml)")

	root.AddCommand(c.renderCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.checkCommand())
	root.AddCommand(c.viewCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

func (c *CLI) loadConfig() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.Logger.Debug("loaded config", "path", c.configPath, "source", cfg.Source.Kind, "cache", cfg.Cache.Kind)
	return nil
}

// =============================================================================
// Source Flags
// =============================================================================

// sourceFlags override the configured source for one invocation.
type sourceFlags struct {
	file   string
	apiURL string
	token  string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "i", "", "read the tree from a JSON or YAML file")
	cmd.Flags().StringVar(&f.apiURL, "api-url", "", "read the tree from this backend")
	cmd.Flags().StringVar(&f.token, "token", "", "bearer token for the backend")
}

// apply folds the flags into cfg. A file wins over a backend URL.
func (f *sourceFlags) apply(cfg *config.Config) {
	switch {
	case f.file != "":
		cfg.Source.Kind, cfg.Source.File = config.SourceFile, f.file
	case f.apiURL != "":
		cfg.Source.Kind, cfg.Source.APIURL = config.SourceAPI, f.apiURL
	}
	if f.token != "" {
		cfg.Source.Token = f.token
	}
}

// =============================================================================
// Runner Factory
// =============================================================================

// openSource opens the configured source. The returned func releases it.
func (c *CLI) openSource(ctx context.Context) (source.Source, func(), error) {
	sc := c.cfg.Source
	switch sc.Kind {
	case config.SourceFile:
		src, err := source.NewFileSource(sc.File)
		return src, func() {}, err
	case config.SourceMongo:
		src, err := source.NewMongoSource(ctx, sc.MongoURI, sc.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {
			if err := src.Close(context.Background()); err != nil {
				c.Logger.Warn("close mongo", "error", err)
			}
		}, nil
	default:
		src, err := source.NewAPISource(sc.APIURL, source.WithToken(sc.Token), source.WithTimeout(sc.Timeout))
		return src, func() {}, err
	}
}

// openCache opens the configured render and export cache.
func (c *CLI) openCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	cc := c.cfg.Cache
	if noCache || cc.Kind == config.CacheNone {
		return cache.NewNullCache(), nil
	}

	var (
		store cache.Cache
		err   error
	)
	switch cc.Kind {
	case config.CacheRedis:
		store, err = cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cc.RedisAddr, DB: cc.RedisDB, Prefix: redisPrefix})
	default:
		dir := cc.Dir
		if dir == "" {
			if dir, err = config.DefaultCacheDir(); err != nil {
				c.Logger.Warn("no cache directory, caching disabled", "error", err)
				return cache.NewNullCache(), nil
			}
		}
		store, err = cache.NewFileCache(dir)
	}
	if err != nil {
		return nil, err
	}
	return cache.WithMaxTTL(store, cc.TTL), nil
}

// newRunner creates a pipeline runner over the configured source and cache.
// The returned func closes both.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*pipeline.Runner, func(), error) {
	src, closeSource, err := c.openSource(ctx)
	if err != nil {
		return nil, nil, err
	}
	store, err := c.openCache(ctx, noCache)
	if err != nil {
		closeSource()
		return nil, nil, err
	}
	runner := pipeline.NewRunner(src, store, nil, c.Logger)
	return runner, func() {
		if err := runner.Close(); err != nil {
			c.Logger.Warn("close cache", "error", err)
		}
		closeSource()
	}, nil
}

// resolveTreeID picks the tree from the argument, the config, or the file
// being read, in that order.
func (c *CLI) resolveTreeID(ctx context.Context, args []string, src source.Source) (int64, error) {
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return 0, errors.New(errors.ErrCodeInvalidInput, "invalid tree id %q", args[0])
		}
		return id, errors.ValidateTreeID(id)
	}
	if id := c.cfg.Source.TreeID; id > 0 {
		return id, nil
	}
	if fs, ok := src.(*source.FileSource); ok {
		return fs.TreeID(ctx)
	}
	return 0, errors.New(errors.ErrCodeInvalidInput, "no tree id given and none configured")
}

// =============================================================================
// Options Helpers
// =============================================================================

// baseOptions returns pipeline options carrying the configured layout and
// theme.
func (c *CLI) baseOptions(treeID int64) pipeline.Options {
	return pipeline.Options{
		TreeID:  treeID,
		Layout:  c.cfg.LayoutOptions(),
		Theme:   c.cfg.Theme(),
		Padding: c.cfg.Render.ExportPadding,
		JPEG:    c.cfg.Render.JPEGQuality,
		Logger:  c.Logger,
	}
}

// parseFormats parses a comma-separated format list, defaulting to SVG.
func parseFormats(s string) []string {
	var formats []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		return []string{pipeline.FormatSVG}
	}
	return formats
}

// parseIDs parses a comma-separated list of person ids.
func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "invalid person id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// collapseFlags select the collapse state a command starts from.
type collapseFlags struct {
	collapsed   string
	collapseAll bool
}

func (f *collapseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.collapsed, "collapsed", "", "collapse these person ids (comma-separated)")
	cmd.Flags().BoolVar(&f.collapseAll, "collapse-all", false, "collapse every node")
}

func (f *collapseFlags) ids() ([]int64, error) {
	return parseIDs(f.collapsed)
}
