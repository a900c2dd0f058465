// Package pipeline runs the load → build → layout → render stages for one
// family tree.
//
// The CLI, the HTTP server and the interactive viewer all go through a
// [Runner] so that collapse handling, logging and caching behave the same
// everywhere.
//
// # Stages
//
//  1. Load: fetch the tree header and its three collections from a source
//  2. Build: select roots and assemble the hierarchy, then apply collapse state
//  3. Layout: assign coordinates to the visible nodes
//  4. Render: produce SVG, PNG, JPEG, PDF, DOT, Graphviz SVG or JSON
//
// Only the render stage is cached. Loading, building and layout always run
// on fresh data, so a cached artifact is keyed by the hash of the layout it
// was drawn from.
//
// # Usage
//
//	runner := pipeline.NewRunner(src, cache, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    TreeID:  42,
//	    Formats: []string{pipeline.FormatSVG},
//	})
//	svg := result.Artifacts["svg"]
package pipeline

import (
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stemma/pkg/cache"
	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/family"
	"github.com/matzehuels/stemma/pkg/layout"
	"github.com/matzehuels/stemma/pkg/render"
	"github.com/matzehuels/stemma/pkg/source"
)

const (
	// DefaultScale is the raster pixel multiplier.
	DefaultScale = 2.0

	// DefaultJPEGQuality matches the export quality of the web viewer.
	DefaultJPEGQuality = 95

	// RenderTTL bounds how long rendered artifacts are kept.
	RenderTTL = 24 * time.Hour
)

// Output formats.
const (
	FormatSVG      = "svg"
	FormatPNG      = "png"
	FormatJPEG     = "jpeg"
	FormatPDF      = "pdf"
	FormatDOT      = "dot"
	FormatGraphviz = "graphviz"
	FormatJSON     = "json"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatSVG:      true,
	FormatPNG:      true,
	FormatJPEG:     true,
	FormatPDF:      true,
	FormatDOT:      true,
	FormatGraphviz: true,
	FormatJSON:     true,
}

// Extension returns the file extension for a format.
func Extension(format string) string {
	switch format {
	case FormatJPEG:
		return "jpg"
	case FormatGraphviz:
		return "graphviz.svg"
	default:
		return format
	}
}

// ContentType returns the MIME type for a format.
func ContentType(format string) string {
	switch format {
	case FormatSVG, FormatGraphviz:
		return "image/svg+xml"
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatPDF:
		return "application/pdf"
	case FormatDOT:
		return "text/vnd.graphviz"
	case FormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Options configures a pipeline run. It supports JSON for API requests.
type Options struct {
	TreeID int64 `json:"tree_id"`

	// Collapsed lists nodes whose children are hidden. CollapseAll folds
	// everything below the roots and takes precedence.
	Collapsed   []int64 `json:"collapsed,omitempty"`
	CollapseAll bool    `json:"collapse_all,omitempty"`

	Layout layout.Options `json:"layout,omitempty"`

	Formats  []string     `json:"formats,omitempty"`
	Theme    render.Theme `json:"theme,omitempty"`
	Padding  float64      `json:"padding,omitempty"`
	Scale    float64      `json:"scale,omitempty"`
	JPEG     int          `json:"jpeg_quality,omitempty"`
	Detailed bool         `json:"detailed,omitempty"`

	// PhotoBase, when set, shows profile photos in SVG output, resolving
	// relative paths against it.
	PhotoBase string `json:"photo_base,omitempty"`

	// Refresh skips cached artifacts.
	Refresh bool `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Now    time.Time   `json:"-"`
	Logger *log.Logger `json:"-"`

	validated bool
}

// Result contains the outputs of a pipeline run.
type Result struct {
	Snapshot    *source.Snapshot
	Hierarchy   *family.Hierarchy
	Diagnostics family.Diagnostics
	Layout      layout.Layout

	// LayoutHash is the content hash of Layout.
	LayoutHash string

	// Artifacts contains rendered outputs keyed by format.
	Artifacts map[string][]byte

	Stats     Stats
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Persons       int
	Relationships int
	Marriages     int
	Roots         int
	Nodes         int

	LoadTime   time.Duration
	BuildTime  time.Duration
	LayoutTime time.Duration
	RenderTime time.Duration
}

// CacheInfo tracks cache hits.
type CacheInfo struct {
	RenderHit bool // Whether all artifacts came from cache
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		names := make([]string, 0, len(ValidFormats))
		for f := range ValidFormats {
			names = append(names, f)
		}
		slices.Sort(names)
		return errors.New(errors.ErrCodeUnsupported, "invalid format: %q (must be one of: %s)", format, strings.Join(names, ", "))
	}
	return nil
}

// ValidateFormats checks that all formats are valid.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAndSetDefaults checks required fields and applies defaults. It is
// idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := errors.ValidateTreeID(o.TreeID); err != nil {
		return err
	}
	if err := o.ValidateForRender(); err != nil {
		return err
	}
	o.validated = true
	return nil
}

// SetRenderDefaults sets default values for rendering.
func (o *Options) SetRenderDefaults() {
	if len(o.Formats) == 0 {
		o.Formats = []string{FormatSVG}
	}
	seen := make(map[string]bool, len(o.Formats))
	o.Formats = slices.DeleteFunc(slices.Clone(o.Formats), func(f string) bool {
		dup := seen[f]
		seen[f] = true
		return dup
	})
	if o.Padding == 0 {
		o.Padding = render.DefaultPadding
	}
	if o.Scale == 0 {
		o.Scale = DefaultScale
	}
	if o.JPEG == 0 {
		o.JPEG = DefaultJPEGQuality
	}
	o.Layout = o.Layout.WithDefaults()
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// ValidateForRender validates and sets defaults for rendering.
func (o *Options) ValidateForRender() error {
	o.SetRenderDefaults()
	if err := ValidateFormats(o.Formats); err != nil {
		return err
	}
	if o.Scale < 0 || o.Scale > 16 {
		return errors.New(errors.ErrCodeInvalidInput, "scale must be between 0 and 16, got %g", o.Scale)
	}
	if o.JPEG < 1 || o.JPEG > 100 {
		return errors.New(errors.ErrCodeInvalidInput, "jpeg quality must be between 1 and 100, got %d", o.JPEG)
	}
	if o.Padding < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "padding must not be negative")
	}
	if o.PhotoBase != "" {
		if err := errors.ValidateURL(o.PhotoBase); err != nil {
			return err
		}
	}
	return nil
}

// RenderOptions returns the drawing options for o.
func (o *Options) RenderOptions() []render.Option {
	opts := []render.Option{render.WithTheme(o.Theme), render.WithPadding(o.Padding)}
	if o.PhotoBase != "" {
		opts = append(opts, render.WithPhotos(o.PhotoBase))
	}
	return opts
}

// RenderKeyOpts returns cache key options for one format.
func (o *Options) RenderKeyOpts(format string) cache.RenderKeyOpts {
	k := cache.RenderKeyOpts{Format: format, Padding: o.Padding}
	k.Theme, _ = cache.HashJSON(o.Theme)
	switch format {
	case FormatPNG:
		k.Scale = o.Scale
	case FormatJPEG:
		k.Scale, k.JPEG = o.Scale, o.JPEG
	case FormatDOT, FormatGraphviz:
		k.Detailed = o.Detailed
	case FormatSVG, FormatPDF:
		k.Photos = o.PhotoBase
	}
	return k
}
