package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	"github.com/matzehuels/stemma/pkg/fonts"
	"github.com/matzehuels/stemma/pkg/layout"
)

// MaxRasterSide is the largest canvas edge, in pixels, a [RasterSurface]
// will allocate.
const MaxRasterSide = 16384

// ErrCanvasTooLarge is returned when a frame times the scale exceeds
// [MaxRasterSide].
var ErrCanvasTooLarge = errors.New("canvas too large")

// FitScale returns the largest scale, at most scale, at which a frame of the
// given size fits within [MaxRasterSide] on both edges.
func FitScale(width, height, scale float64) float64 {
	if width <= 0 || height <= 0 || scale <= 0 {
		return scale
	}
	s := math.Min(scale, math.Min(MaxRasterSide/width, MaxRasterSide/height))
	for s > 0 && (math.Ceil(width*s) > MaxRasterSide || math.Ceil(height*s) > MaxRasterSide) {
		s = math.Nextafter(s, 0)
	}
	return s
}

// PhotoLoader fetches a profile photo for raster output.
type PhotoLoader func(href string) (image.Image, error)

// RasterOption configures a [RasterSurface].
type RasterOption func(*RasterSurface)

// WithScale sets the pixel multiplier (default 1).
func WithScale(s float64) RasterOption {
	return func(r *RasterSurface) {
		if s > 0 {
			r.scale = s
		}
	}
}

// WithPhotoLoader lets the surface paint photos. Without a loader, or when
// loading fails, initials are drawn instead.
func WithPhotoLoader(fn PhotoLoader) RasterOption {
	return func(r *RasterSurface) { r.photos = fn }
}

// RasterSurface paints into an in-memory image using fogleman/gg.
type RasterSurface struct {
	scale  float64
	photos PhotoLoader

	dc    *gg.Context
	frame Frame
	unit  float64
	faces map[faceKey]font.Face
	err   error
}

type faceKey struct {
	size float64
	bold bool
}

// NewRasterSurface returns a surface that paints at the given options.
func NewRasterSurface(opts ...RasterOption) *RasterSurface {
	r := &RasterSurface{scale: 1, faces: map[faceKey]font.Face{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RasterSurface) Begin(f Frame) {
	r.frame, r.err, r.dc = f, nil, nil
	w := int(math.Ceil(f.Width * r.scale))
	h := int(math.Ceil(f.Height * r.scale))
	if w <= 0 || h <= 0 {
		r.err = fmt.Errorf("empty canvas %dx%d", w, h)
		return
	}
	if w > MaxRasterSide || h > MaxRasterSide {
		r.err = fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrCanvasTooLarge, w, h, MaxRasterSide)
		return
	}
	r.dc = gg.NewContext(w, h)
	r.unit = f.unit() * r.scale
	if f.Background != "" {
		r.dc.SetHexColor(f.Background)
		r.dc.Clear()
	}
}

func (r *RasterSurface) pt(p layout.Point) layout.Point {
	q := r.frame.project(p)
	return layout.Point{X: q.X * r.scale, Y: q.Y * r.scale}
}

// paint fills and strokes the current path, then clears it.
func (r *RasterSurface) paint(st Style) {
	dc := r.dc
	if st.Fill != "" {
		dc.SetHexColor(st.Fill)
		dc.FillPreserve()
	}
	if st.Stroke != "" {
		dc.SetHexColor(st.Stroke)
		dc.SetLineWidth(st.Width * r.unit)
		dash := make([]float64, len(st.Dash))
		for i, v := range st.Dash {
			dash[i] = v * r.unit
		}
		dc.SetDash(dash...)
		dc.StrokePreserve()
	}
	dc.ClearPath()
}

func (r *RasterSurface) Circle(c layout.Point, radius float64, st Style) {
	if r.dc == nil {
		return
	}
	q := r.pt(c)
	r.dc.DrawCircle(q.X, q.Y, radius*r.unit)
	r.paint(st)
}

func (r *RasterSurface) Line(a, b layout.Point, st Style) {
	if r.dc == nil {
		return
	}
	p, q := r.pt(a), r.pt(b)
	r.dc.DrawLine(p.X, p.Y, q.X, q.Y)
	st.Fill = ""
	r.paint(st)
}

func (r *RasterSurface) Curve(a, c1, c2, b layout.Point, st Style) {
	if r.dc == nil {
		return
	}
	p0, p1, p2, p3 := r.pt(a), r.pt(c1), r.pt(c2), r.pt(b)
	r.dc.MoveTo(p0.X, p0.Y)
	r.dc.CubicTo(p1.X, p1.Y, p2.X, p2.Y, p3.X, p3.Y)
	st.Fill = ""
	r.paint(st)
}

func (r *RasterSurface) Text(p layout.Point, s string, ts TextStyle) {
	if r.dc == nil || s == "" {
		return
	}
	face, err := r.face(ts.Size*r.unit, ts.Bold)
	if err != nil {
		r.err = err
		return
	}
	q := r.pt(p)
	r.dc.SetFontFace(face)
	r.dc.SetHexColor(ts.Color)
	r.dc.DrawStringAnchored(s, q.X, q.Y, 0.5, 0.5)
}

func (r *RasterSurface) Photo(c layout.Point, radius float64, href, fallback string, ts TextStyle) {
	if r.dc == nil {
		return
	}
	if r.photos == nil {
		r.Text(c, fallback, ts)
		return
	}
	img, err := r.photos(href)
	if err != nil || img == nil {
		r.Text(c, fallback, ts)
		return
	}
	b := img.Bounds()
	side := math.Min(float64(b.Dx()), float64(b.Dy()))
	if side <= 0 {
		r.Text(c, fallback, ts)
		return
	}
	q := r.pt(c)
	d := 2 * radius * r.unit
	r.dc.Push()
	r.dc.DrawCircle(q.X, q.Y, d/2)
	r.dc.Clip()
	r.dc.Translate(q.X, q.Y)
	r.dc.Scale(d/side, d/side)
	r.dc.DrawImageAnchored(img, 0, 0, 0.5, 0.5)
	r.dc.Pop()
}

func (r *RasterSurface) face(size float64, bold bool) (font.Face, error) {
	k := faceKey{size: math.Round(size*4) / 4, bold: bold}
	if f, ok := r.faces[k]; ok {
		return f, nil
	}
	f, err := fonts.Face(math.Max(k.size, 1), bold)
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}
	r.faces[k] = f
	return f, nil
}

func (r *RasterSurface) End() error { return r.err }

// Image returns the painted image, or nil if Begin failed.
func (r *RasterSurface) Image() image.Image {
	if r.dc == nil {
		return nil
	}
	return r.dc.Image()
}

// EncodePNG writes the image as PNG.
func (r *RasterSurface) EncodePNG(w io.Writer) error {
	if r.dc == nil {
		return errors.New("nothing rendered")
	}
	return r.dc.EncodePNG(w)
}

// EncodeJPEG writes the image as JPEG at quality 1..100.
func (r *RasterSurface) EncodeJPEG(w io.Writer, quality int) error {
	if r.dc == nil {
		return errors.New("nothing rendered")
	}
	quality = max(1, min(100, quality))
	return jpeg.Encode(w, r.dc.Image(), &jpeg.Options{Quality: quality})
}

// RenderPNG draws the whole diagram at the given scale and encodes it as PNG.
func RenderPNG(l layout.Layout, scale float64, opts ...Option) ([]byte, error) {
	s, err := rasterize(l, scale, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderJPEG draws the whole diagram at the given scale and encodes it as
// JPEG.
func RenderJPEG(l layout.Layout, scale float64, quality int, opts ...Option) ([]byte, error) {
	s, err := rasterize(l, scale, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.EncodeJPEG(&buf, quality); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func rasterize(l layout.Layout, scale float64, opts []Option) (*RasterSurface, error) {
	d := newDrawer(opts...)
	s := NewRasterSurface(WithScale(scale))
	if err := Draw(s, l, FitFrame(l, d.theme, d.padding), opts...); err != nil {
		return nil, fmt.Errorf("rasterize: %w", err)
	}
	return s, nil
}
