// Package view holds the state of one interactive look at a family tree.
//
// A [Session] owns the loaded snapshot, the built hierarchy with its
// collapse state, the current layout and the view state (viewport size,
// viewBox, zoom transform, photo visibility). Every structural change
// re-runs the layout over the whole hierarchy; pan and zoom only touch the
// transform.
//
// All methods are safe for concurrent use. Exports are serialized and always
// put the view state back the way they found it, also when rasterizing
// fails.
package view

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/family"
	"github.com/matzehuels/stemma/pkg/layout"
	"github.com/matzehuels/stemma/pkg/pipeline"
	"github.com/matzehuels/stemma/pkg/render"
	"github.com/matzehuels/stemma/pkg/source"
)

// Defaults of the live view.
const (
	DefaultWidth  = 1200.0
	DefaultHeight = 600.0

	// DefaultTopMargin is the distance from the top edge to the root row.
	DefaultTopMargin = 50.0

	DefaultMinZoom = 0.1
	DefaultMaxZoom = 3.0
)

// Option configures a [Session].
type Option func(*Session)

// WithLayout sets the layout options.
func WithLayout(o layout.Options) Option { return func(s *Session) { s.layoutOpts = o } }

// WithTheme sets the drawing theme.
func WithTheme(th render.Theme) Option { return func(s *Session) { s.theme = th } }

// WithPhotos shows profile photos in the live view, resolved against baseURL.
func WithPhotos(baseURL string) Option {
	return func(s *Session) { s.photoBase, s.view.photos = baseURL, baseURL != "" }
}

// WithViewport sets the live viewport size.
func WithViewport(width, height float64) Option {
	return func(s *Session) {
		if width > 0 && height > 0 {
			s.view.width, s.view.height = width, height
		}
	}
}

// WithZoomRange bounds the zoom scale.
func WithZoomRange(minZoom, maxZoom float64) Option {
	return func(s *Session) {
		if minZoom > 0 && maxZoom >= minZoom {
			s.minZoom, s.maxZoom = minZoom, maxZoom
		}
	}
}

// WithExportPadding sets the padding around exported diagrams.
func WithExportPadding(p float64) Option {
	return func(s *Session) {
		if p >= 0 {
			s.padding = p
		}
	}
}

// WithJPEGQuality sets the export JPEG quality (1..100).
func WithJPEGQuality(q int) Option {
	return func(s *Session) {
		if q >= 1 && q <= 100 {
			s.jpeg = q
		}
	}
}

// WithRasterizer replaces the export rasterizer.
func WithRasterizer(r Rasterizer) Option {
	return func(s *Session) {
		if r != nil {
			s.rasterize = r
		}
	}
}

// viewState is what an export temporarily changes.
type viewState struct {
	width, height float64
	// viewBox is empty in the live view, where it follows the viewport.
	viewBox   layout.Rect
	transform render.Transform
	photos    bool
}

// Session is the explicit state of one tree view.
type Session struct {
	runner *pipeline.Runner
	treeID int64

	layoutOpts layout.Options
	theme      render.Theme
	photoBase  string
	minZoom    float64
	maxZoom    float64
	padding    float64
	jpeg       int
	rasterize  Rasterizer

	mu   sync.Mutex
	view viewState
	snap *source.Snapshot
	hier *family.Hierarchy
	diag family.Diagnostics
	lay  layout.Layout
	hash string
}

// New returns a session for treeID. Call [Session.Reload] to load it.
func New(runner *pipeline.Runner, treeID int64, opts ...Option) *Session {
	s := &Session{
		runner:    runner,
		treeID:    treeID,
		minZoom:   DefaultMinZoom,
		maxZoom:   DefaultMaxZoom,
		padding:   render.DefaultPadding,
		jpeg:      pipeline.DefaultJPEGQuality,
		rasterize: RasterizeJPEG,
		view: viewState{
			width:     DefaultWidth,
			height:    DefaultHeight,
			transform: render.Identity,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.theme = s.theme.WithDefaults()
	return s
}

// TreeID returns the id of the tree being viewed.
func (s *Session) TreeID() int64 { return s.treeID }

// Reload fetches the tree again and rebuilds the hierarchy and layout.
// Nodes that were collapsed before stay collapsed. On failure the previous
// state is left untouched.
func (s *Session) Reload(ctx context.Context) error {
	snap, err := s.runner.Load(ctx, s.treeID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var collapsed []int64
	if s.hier != nil {
		collapsed = s.hier.CollapsedIDs()
	}
	opts := pipeline.Options{TreeID: s.treeID, Collapsed: collapsed, Layout: s.layoutOpts}
	h, diag := s.runner.Build(ctx, snap, opts)
	s.snap, s.hier, s.diag = snap, h, diag
	s.relayout(ctx)
	return nil
}

// relayout recomputes the whole layout. s.mu must be held.
func (s *Session) relayout(ctx context.Context) {
	s.lay = s.runner.Layout(ctx, s.hier, pipeline.Options{Layout: s.layoutOpts})
	s.hash = ""
}

func (s *Session) loaded() error {
	if s.hier == nil {
		return errors.New(errors.ErrCodeInvalidInput, "tree %d is not loaded", s.treeID)
	}
	return nil
}

// Tree returns the header of the loaded tree.
func (s *Session) Tree() family.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return family.Tree{ID: s.treeID}
	}
	return s.snap.Tree
}

// Snapshot returns the last successfully loaded data.
func (s *Session) Snapshot() *source.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Layout returns the current layout.
func (s *Session) Layout() layout.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lay
}

// Diagnostics returns the data problems found by the last reload.
func (s *Session) Diagnostics() family.Diagnostics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diag
}

// Collapsed returns the ids of collapsed nodes.
func (s *Session) Collapsed() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hier == nil {
		return nil
	}
	return s.hier.CollapsedIDs()
}

// Toggle collapses or expands the node for id and reports whether it is
// collapsed afterwards.
func (s *Session) Toggle(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded(); err != nil {
		return false, err
	}
	n := s.hier.Find(id)
	if n == nil {
		return false, errors.New(errors.ErrCodeNotFound, "person %d is not in the tree", id)
	}
	collapsed := n.Toggle()
	s.relayout(ctx)
	return collapsed, nil
}

// ExpandAll shows every node.
func (s *Session) ExpandAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hier == nil {
		return
	}
	s.hier.ExpandAll()
	s.relayout(ctx)
}

// CollapseAll folds everything below the roots.
func (s *Session) CollapseAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hier == nil {
		return
	}
	s.hier.CollapseAll()
	s.relayout(ctx)
}

// SetCollapsed expands everything and then collapses the listed ids.
// Unknown ids are ignored.
func (s *Session) SetCollapsed(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded(); err != nil {
		return err
	}
	s.hier.SetCollapsed(ids)
	s.relayout(ctx)
	return nil
}

// Transform returns the current zoom transform.
func (s *Session) Transform() render.Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.transform
}

// ZoomRange returns the allowed zoom scale range.
func (s *Session) ZoomRange() (float64, float64) { return s.minZoom, s.maxZoom }

// Zoom multiplies the scale by factor, keeping the viewport point anchor
// (in output units) fixed. The scale is clamped to the zoom range.
func (s *Session) Zoom(factor float64, anchor layout.Point) render.Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.view.transform
	return s.zoomTo(t.K*factor, anchor)
}

// ZoomTo sets the scale to k around anchor.
func (s *Session) ZoomTo(k float64, anchor layout.Point) render.Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoomTo(k, anchor)
}

func (s *Session) zoomTo(k float64, anchor layout.Point) render.Transform {
	if math.IsNaN(k) || k <= 0 {
		return s.view.transform
	}
	k = math.Max(s.minZoom, math.Min(s.maxZoom, k))
	vb := s.viewBoxLocked()
	a := layout.Point{X: anchor.X + vb.MinX, Y: anchor.Y + vb.MinY}
	t := s.view.transform
	d := t.Invert(a)
	s.view.transform = render.Transform{X: a.X - d.X*k, Y: a.Y - d.Y*k, K: k}
	return s.view.transform
}

// Pan moves the view by (dx, dy) output units.
func (s *Session) Pan(dx, dy float64) render.Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.transform.X += dx
	s.view.transform.Y += dy
	return s.view.transform
}

// Center resets the zoom transform to identity.
func (s *Session) Center() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.transform = render.Identity
}

// Resize changes the viewport size.
func (s *Session) Resize(width, height float64) error {
	if width <= 0 || height <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "viewport must be positive, got %gx%g", width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.width, s.view.height = width, height
	return nil
}

// SetPhotos shows or hides profile photos. Photos need a base URL.
func (s *Session) SetPhotos(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.photos = on && s.photoBase != ""
}

// Frame returns the frame the live view is drawn into.
func (s *Session) Frame() render.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked()
}

func (s *Session) frameLocked() render.Frame {
	return render.Frame{
		Width:      s.view.width,
		Height:     s.view.height,
		ViewBox:    s.viewBoxLocked(),
		Transform:  s.view.transform,
		Background: s.theme.Background,
	}
}

// viewBoxLocked puts the root row centered DefaultTopMargin below the top
// edge unless a viewBox is set explicitly.
func (s *Session) viewBoxLocked() layout.Rect {
	if vb := s.view.viewBox; vb != (layout.Rect{}) {
		return vb
	}
	w, h := s.view.width, s.view.height
	return layout.Rect{MinX: -w / 2, MinY: -DefaultTopMargin, MaxX: w / 2, MaxY: h - DefaultTopMargin}
}

func (s *Session) renderOptionsLocked() []render.Option {
	opts := []render.Option{render.WithTheme(s.theme), render.WithPadding(s.padding)}
	if s.view.photos {
		opts = append(opts, render.WithPhotos(s.photoBase))
	}
	return opts
}

// Draw draws the current layout onto surface in the live frame.
func (s *Session) Draw(surface render.Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return render.Draw(surface, s.lay, s.frameLocked(), s.renderOptionsLocked()...)
}

// DrawFrame draws the current layout into f, using the session's zoom
// transform when f has none.
func (s *Session) DrawFrame(surface render.Surface, f render.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Transform.K == 0 {
		f.Transform = s.view.transform
	}
	return render.Draw(surface, s.lay, f, s.renderOptionsLocked()...)
}

// SVG renders the live view as an SVG document.
func (s *Session) SVG() ([]byte, error) {
	svg := render.NewSVGSurface()
	if err := s.Draw(svg); err != nil {
		return nil, fmt.Errorf("draw: %w", err)
	}
	return svg.Bytes(), nil
}
