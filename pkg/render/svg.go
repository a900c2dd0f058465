package render

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/matzehuels/stemma/pkg/fonts"
	"github.com/matzehuels/stemma/pkg/layout"
)

// SVGSurface writes an SVG document. The zoom transform becomes a group
// transform so the document stays in diagram coordinates.
type SVGSurface struct {
	buf   bytes.Buffer
	clips int
}

// NewSVGSurface returns an empty SVG surface.
func NewSVGSurface() *SVGSurface { return &SVGSurface{} }

func (s *SVGSurface) Begin(f Frame) {
	s.buf.Reset()
	s.clips = 0
	vb := f.ViewBox
	if vb.IsEmpty() {
		vb = layout.Rect{MaxX: f.Width, MaxY: f.Height}
	}
	fmt.Fprintf(&s.buf, `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" viewBox="%.1f %.1f %.1f %.1f" width="%.0f" height="%.0f" font-family="%s">`+"\n",
		vb.MinX, vb.MinY, vb.Width(), vb.Height(), f.Width, f.Height, escapeXML(fonts.FontFamily))
	if f.Background != "" {
		fmt.Fprintf(&s.buf, `  <rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`+"\n",
			vb.MinX, vb.MinY, vb.Width(), vb.Height(), f.Background)
	}
	t := f.Transform
	fmt.Fprintf(&s.buf, `  <g class="zoom" transform="translate(%.2f,%.2f) scale(%.4f)">`+"\n", t.X, t.Y, t.K)
}

func (s *SVGSurface) Circle(c layout.Point, r float64, st Style) {
	fmt.Fprintf(&s.buf, `    <circle cx="%.1f" cy="%.1f" r="%.1f"%s/>`+"\n", c.X, c.Y, r, st.attrs())
}

func (s *SVGSurface) Line(a, b layout.Point, st Style) {
	fmt.Fprintf(&s.buf, `    <line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"%s/>`+"\n", a.X, a.Y, b.X, b.Y, st.attrs())
}

func (s *SVGSurface) Curve(a, c1, c2, b layout.Point, st Style) {
	fmt.Fprintf(&s.buf, `    <path class="link" d="M %.1f %.1f C %.1f %.1f, %.1f %.1f, %.1f %.1f"%s/>`+"\n",
		a.X, a.Y, c1.X, c1.Y, c2.X, c2.Y, b.X, b.Y, st.attrs())
}

func (s *SVGSurface) Text(p layout.Point, text string, ts TextStyle) {
	if text == "" {
		return
	}
	weight := ""
	if ts.Bold {
		weight = ` font-weight="600"`
	}
	fmt.Fprintf(&s.buf, `    <text x="%.1f" y="%.1f" text-anchor="middle" dominant-baseline="central" font-size="%.1f" fill="%s"%s>%s</text>`+"\n",
		p.X, p.Y, ts.Size, ts.Color, weight, escapeXML(text))
}

func (s *SVGSurface) Photo(c layout.Point, r float64, href, _ string, _ TextStyle) {
	s.clips++
	id := fmt.Sprintf("clip-%d", s.clips)
	fmt.Fprintf(&s.buf, `    <clipPath id="%s"><circle cx="%.1f" cy="%.1f" r="%.1f"/></clipPath>`+"\n", id, c.X, c.Y, r)
	fmt.Fprintf(&s.buf, `    <image xlink:href="%s" x="%.1f" y="%.1f" width="%.1f" height="%.1f" preserveAspectRatio="xMidYMid slice" clip-path="url(#%s)"/>`+"\n",
		escapeXML(href), c.X-r, c.Y-r, 2*r, 2*r, id)
}

func (s *SVGSurface) End() error {
	s.buf.WriteString("  </g>\n</svg>\n")
	return nil
}

// Bytes returns the document written so far.
func (s *SVGSurface) Bytes() []byte { return s.buf.Bytes() }

func (st Style) attrs() string {
	var b strings.Builder
	fill := st.Fill
	if fill == "" {
		fill = "none"
	}
	fmt.Fprintf(&b, ` fill="%s"`, fill)
	if st.Stroke != "" {
		fmt.Fprintf(&b, ` stroke="%s" stroke-width="%.1f"`, st.Stroke, st.Width)
	}
	if len(st.Dash) > 0 {
		parts := make([]string, len(st.Dash))
		for i, v := range st.Dash {
			parts[i] = fmt.Sprintf("%.0f", v)
		}
		fmt.Fprintf(&b, ` stroke-dasharray="%s"`, strings.Join(parts, ","))
	}
	return b.String()
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// RenderSVG draws the whole diagram into a fitted SVG document.
func RenderSVG(l layout.Layout, opts ...Option) ([]byte, error) {
	d := newDrawer(opts...)
	s := NewSVGSurface()
	if err := Draw(s, l, FitFrame(l, d.theme, d.padding), opts...); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}
