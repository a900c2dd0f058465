package render

import (
	"math"

	"github.com/matzehuels/stemma/pkg/layout"
)

// Surface receives the drawing calls issued by [Draw]. Coordinates are in
// diagram space; the surface maps them through the [Frame] given to Begin.
type Surface interface {
	// Begin starts a new drawing.
	Begin(f Frame)
	Circle(c layout.Point, r float64, st Style)
	Line(a, b layout.Point, st Style)
	// Curve draws a cubic Bezier from a to b with control points c1 and c2.
	Curve(a, c1, c2, b layout.Point, st Style)
	// Text draws s centered on p.
	Text(p layout.Point, s string, ts TextStyle)
	// Photo draws the image at href clipped to a circle. Surfaces that cannot
	// show images draw fallback as text instead.
	Photo(c layout.Point, r float64, href, fallback string, ts TextStyle)
	// End finishes the drawing and reports any error met along the way.
	End() error
}

// Style is the paint used for shapes.
type Style struct {
	Fill   string
	Stroke string
	Width  float64
	Dash   []float64
}

// TextStyle is the paint used for text.
type TextStyle struct {
	Size  float64
	Bold  bool
	Color string
}

// Transform is a pan/zoom transform: a point p maps to p*K + (X, Y).
type Transform struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	K float64 `json:"k"`
}

// Identity is the transform that leaves points unchanged.
var Identity = Transform{K: 1}

// Apply maps p through t.
func (t Transform) Apply(p layout.Point) layout.Point {
	return layout.Point{X: p.X*t.K + t.X, Y: p.Y*t.K + t.Y}
}

// Invert maps a transformed point back.
func (t Transform) Invert(p layout.Point) layout.Point {
	return layout.Point{X: (p.X - t.X) / t.K, Y: (p.Y - t.Y) / t.K}
}

// Frame is the viewport a diagram is drawn into.
type Frame struct {
	// Width and Height are the output size in user units (pixels before
	// any raster scale).
	Width  float64
	Height float64

	// ViewBox is the region of diagram space stretched over Width x Height.
	ViewBox layout.Rect

	Transform  Transform
	Background string
}

// FitFrame returns a frame showing the whole diagram with padding on every
// side, at one user unit per diagram unit and without zoom.
func FitFrame(l layout.Layout, th Theme, padding float64) Frame {
	b := Bounds(l, th)
	if b.IsEmpty() {
		b = emptyStateBox(th)
	}
	b = b.Pad(padding)
	return Frame{
		Width:      math.Ceil(b.Width()),
		Height:     math.Ceil(b.Height()),
		ViewBox:    b,
		Transform:  Identity,
		Background: th.Background,
	}
}

// scale returns the user units per diagram unit along each axis.
func (f Frame) scale() (sx, sy float64) {
	sx, sy = 1, 1
	if w := f.ViewBox.Width(); w > 0 && f.Width > 0 {
		sx = f.Width / w
	}
	if h := f.ViewBox.Height(); h > 0 && f.Height > 0 {
		sy = f.Height / h
	}
	return sx, sy
}

// project maps a diagram point to output units.
func (f Frame) project(p layout.Point) layout.Point {
	t := f.Transform
	if t.K == 0 {
		t = Identity
	}
	q := t.Apply(p)
	sx, sy := f.scale()
	return layout.Point{X: (q.X - f.ViewBox.MinX) * sx, Y: (q.Y - f.ViewBox.MinY) * sy}
}

// unit returns the output length of one diagram unit.
func (f Frame) unit() float64 {
	k := f.Transform.K
	if k == 0 {
		k = 1
	}
	sx, sy := f.scale()
	return k * math.Min(sx, sy)
}
