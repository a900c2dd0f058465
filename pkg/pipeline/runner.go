package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stemma/pkg/cache"
	"github.com/matzehuels/stemma/pkg/family"
	"github.com/matzehuels/stemma/pkg/layout"
	"github.com/matzehuels/stemma/pkg/observability"
	"github.com/matzehuels/stemma/pkg/source"
)

// Runner encapsulates pipeline execution with caching.
//
// The Runner is stateless except for its source, cache and logger. It does
// not keep pipeline results, so multiple goroutines can share one Runner
// with different options.
type Runner struct {
	Source source.Source
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner reading from src.
// If keyer is nil, a DefaultKeyer is used.
// If c is nil, a NullCache is used (caching disabled).
func NewRunner(src source.Source, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Source: src,
		Cache:  cache.Instrumented(c, "render"),
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs the complete load → build → layout → render pipeline.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	result := &Result{}

	// Stage 1: Load
	loadStart := time.Now()
	snap, err := r.Load(ctx, opts.TreeID)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	result.Snapshot = snap
	result.Stats.LoadTime = time.Since(loadStart)
	result.Stats.Persons = len(snap.Persons)
	result.Stats.Relationships = len(snap.Relationships)
	result.Stats.Marriages = len(snap.Marriages)

	// Stage 2: Build
	buildStart := time.Now()
	h, diag := r.Build(ctx, snap, opts)
	result.Hierarchy = h
	result.Diagnostics = diag
	result.Stats.BuildTime = time.Since(buildStart)
	result.Stats.Roots = len(h.Roots)

	// Stage 3: Layout
	layoutStart := time.Now()
	l := r.Layout(ctx, h, opts)
	result.Layout = l
	result.Stats.LayoutTime = time.Since(layoutStart)
	result.Stats.Nodes = len(l.Nodes)
	result.LayoutHash, _ = cache.HashJSON(l)

	// Stage 4: Render
	renderStart := time.Now()
	artifacts, hit, err := r.RenderWithCacheInfo(ctx, l, opts)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	result.Artifacts = artifacts
	result.Stats.RenderTime = time.Since(renderStart)
	result.CacheInfo.RenderHit = hit

	r.Logger.Info("rendered outputs",
		"formats", opts.Formats,
		"cached", hit,
		"duration", result.Stats.RenderTime)

	return result, nil
}

// Load fetches a fresh snapshot of the tree.
func (r *Runner) Load(ctx context.Context, treeID int64) (*source.Snapshot, error) {
	if r.Source == nil {
		return nil, fmt.Errorf("runner has no source")
	}
	start := time.Now()
	snap, err := source.Load(ctx, r.Source, treeID)
	if err != nil {
		return nil, err
	}
	r.Logger.Info("loaded tree",
		"tree", treeID,
		"persons", len(snap.Persons),
		"edges", len(snap.Relationships),
		"marriages", len(snap.Marriages),
		"duration", time.Since(start))
	return snap, nil
}

// Build assembles the hierarchy for snap and applies the collapse state of
// opts. Tolerated data problems are logged as warnings and returned.
func (r *Runner) Build(ctx context.Context, snap *source.Snapshot, opts Options) (*family.Hierarchy, family.Diagnostics) {
	start := time.Now()
	g := snap.Graph()
	h := family.Build(g, family.BuildOptions{Now: opts.Now})
	ApplyCollapse(h, opts)
	diag := family.Diagnose(g, h)

	dur := time.Since(start)
	observability.Pipeline().OnBuildComplete(ctx, h.Size(), h.Fallback, len(h.Cycles), dur)
	for _, w := range diag.Warnings() {
		r.Logger.Warn(w, "tree", snap.Tree.ID)
	}
	r.Logger.Debug("built hierarchy",
		"roots", len(h.Roots),
		"nodes", h.Size(),
		"duration", dur)
	return h, diag
}

// ApplyCollapse sets the collapse state requested by opts.
func ApplyCollapse(h *family.Hierarchy, opts Options) {
	switch {
	case opts.CollapseAll:
		h.CollapseAll()
	case len(opts.Collapsed) > 0:
		h.SetCollapsed(opts.Collapsed)
	}
}

// Layout positions the visible nodes of h.
func (r *Runner) Layout(ctx context.Context, h *family.Hierarchy, opts Options) layout.Layout {
	start := time.Now()
	l := layout.Compute(h, opts.Layout)
	dur := time.Since(start)
	observability.Pipeline().OnLayoutComplete(ctx, len(l.Nodes), dur)
	r.Logger.Debug("computed layout", "nodes", len(l.Nodes), "duration", dur)
	return l
}

// RenderWithCacheInfo generates artifacts with caching and reports whether
// every artifact came from the cache.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, l layout.Layout, opts Options) (map[string][]byte, bool, error) {
	if err := opts.ValidateForRender(); err != nil {
		return nil, false, err
	}

	layoutHash, err := cache.HashJSON(l)
	if err != nil {
		return nil, false, fmt.Errorf("hash layout: %w", err)
	}

	if !opts.Refresh {
		artifacts := make(map[string][]byte, len(opts.Formats))
		for _, format := range opts.Formats {
			key := r.Keyer.RenderKey(layoutHash, opts.RenderKeyOpts(format))
			data, hit, err := r.Cache.Get(ctx, key)
			if err != nil || !hit {
				break
			}
			artifacts[format] = data
		}
		if len(artifacts) == len(opts.Formats) {
			return artifacts, true, nil
		}
	}

	rendered, err := Render(ctx, l, opts)
	if err != nil {
		return nil, false, err
	}
	for format, data := range rendered {
		key := r.Keyer.RenderKey(layoutHash, opts.RenderKeyOpts(format))
		if err := r.Cache.Set(ctx, key, data, RenderTTL); err != nil {
			r.Logger.Warn("cache write failed", "format", format, "error", err)
		}
	}
	return rendered, false, nil
}

// Render is a convenience wrapper that calls RenderWithCacheInfo and
// discards the cache hit info.
func (r *Runner) Render(ctx context.Context, l layout.Layout, opts Options) (map[string][]byte, error) {
	artifacts, _, err := r.RenderWithCacheInfo(ctx, l, opts)
	return artifacts, err
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
