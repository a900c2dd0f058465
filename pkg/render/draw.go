package render

import (
	"strings"

	"github.com/matzehuels/stemma/pkg/family"
	"github.com/matzehuels/stemma/pkg/layout"
)

// EmptyText is drawn when a tree has no persons.
const EmptyText = "No family members yet"

// DefaultPadding surrounds the diagram in fitted frames.
const DefaultPadding = 100.0

// Option configures [Draw] and the Render helpers.
type Option func(*drawer)

type drawer struct {
	theme     Theme
	photos    bool
	photoBase string
	padding   float64
}

// WithTheme sets the colors and font size.
func WithTheme(th Theme) Option { return func(d *drawer) { d.theme = th } }

// WithPhotos shows profile photos, resolving relative photo paths against
// baseURL. Without it every node shows initials.
func WithPhotos(baseURL string) Option {
	return func(d *drawer) { d.photos, d.photoBase = true, strings.TrimRight(baseURL, "/") }
}

// WithPadding sets the padding used by fitted frames.
func WithPadding(p float64) Option { return func(d *drawer) { d.padding = p } }

func newDrawer(opts ...Option) drawer {
	d := drawer{theme: DefaultTheme(), padding: DefaultPadding}
	for _, opt := range opts {
		opt(&d)
	}
	d.theme = d.theme.WithDefaults()
	return d
}

// Draw draws l onto s inside frame f.
func Draw(s Surface, l layout.Layout, f Frame, opts ...Option) error {
	d := newDrawer(opts...)
	if f.Background == "" {
		f.Background = d.theme.Background
	}
	if f.Transform.K == 0 {
		f.Transform = Identity
	}
	s.Begin(f)
	if l.Empty() {
		d.drawEmpty(s)
		return s.End()
	}
	for _, lk := range l.Links {
		d.drawLink(s, lk)
	}
	r := l.Options.NodeRadius
	for _, n := range l.Nodes {
		d.drawNode(s, n, r)
	}
	return s.End()
}

func (d drawer) drawEmpty(s Surface) {
	th := d.theme
	s.Text(layout.Point{}, EmptyText, TextStyle{Size: th.FontSize * 1.25, Color: th.Muted})
}

// drawLink draws the vertical "diagonal" curve between parent and child.
func (d drawer) drawLink(s Surface, lk layout.Link) {
	src, dst := lk.Source, lk.Target
	my := (src.Y + dst.Y) / 2
	st := Style{Stroke: d.theme.Link, Width: 2}
	if lk.Relation != "" && lk.Relation != family.Biological {
		st.Dash = []float64{6, 4}
	}
	s.Curve(src, layout.Point{X: src.X, Y: my}, layout.Point{X: dst.X, Y: my}, dst, st)
}

func (d drawer) drawNode(s Surface, n layout.Node, r float64) {
	th := d.theme
	c := layout.Point{X: n.X, Y: n.Y}

	if sp := n.Spouse; sp != nil {
		sc := layout.Point{X: sp.X, Y: sp.Y}
		s.Line(layout.Point{X: c.X + r, Y: c.Y}, layout.Point{X: sc.X - r, Y: sc.Y},
			Style{Stroke: th.Connector, Width: 2})
		d.drawPerson(s, sc, r, sp.Name, sp.Person, th.NodeFill, nil)
	}

	fill := th.NodeFill
	if n.Collapsed {
		fill = th.CollapsedFill
	}
	var dash []float64
	if n.Cycle {
		dash = []float64{4, 3}
	}
	d.drawPerson(s, c, r, n.Name, n.Person, fill, dash)

	if n.HasChildren {
		sign := "-"
		if n.Collapsed {
			sign = "+"
		}
		ic := layout.Point{X: c.X, Y: c.Y + r}
		s.Circle(ic, indicatorR*th.FontSize, Style{Fill: th.Indicator, Stroke: th.NodeFill, Width: 1.5})
		s.Text(ic, sign, TextStyle{Size: indicatorSize * th.FontSize, Bold: true, Color: th.Initials})
	}
}

func (d drawer) drawPerson(s Surface, c layout.Point, r float64, name string, p *family.Person, fill string, dash []float64) {
	th := d.theme
	var g family.Gender
	if p != nil {
		g = p.Gender
	}
	s.Circle(c, r, Style{Fill: fill, Stroke: th.GenderColor(g), Width: 3, Dash: dash})

	initials := TextStyle{Size: initialsSize * th.FontSize, Bold: true, Color: th.Initials}
	if d.photos && p != nil && p.HasPhoto() {
		s.Photo(c, r-2, d.photoURL(p.Photo), personInitials(name, p), initials)
	} else {
		s.Text(c, personInitials(name, p), initials)
	}

	s.Text(layout.Point{X: c.X, Y: c.Y + nameOffset*th.FontSize}, name,
		TextStyle{Size: labelSize * th.FontSize, Bold: true, Color: th.Text})
	if p != nil {
		s.Text(layout.Point{X: c.X, Y: c.Y + datesOffset*th.FontSize}, p.Lifespan(),
			TextStyle{Size: datesSize * th.FontSize, Color: th.Muted})
	}
}

func (d drawer) photoURL(path string) string {
	if d.photoBase == "" || strings.Contains(path, "://") {
		return path
	}
	return d.photoBase + "/" + strings.TrimLeft(path, "/")
}

func personInitials(name string, p *family.Person) string {
	if p != nil {
		return p.Initials()
	}
	for _, r := range name {
		return strings.ToUpper(string(r))
	}
	return ""
}

// Bounds returns the tight box around everything [Draw] paints for l,
// labels included. It is empty for an empty layout.
func Bounds(l layout.Layout, th Theme) layout.Rect {
	th = th.WithDefaults()
	r := l.Options.NodeRadius
	b := layout.EmptyRect
	person := func(x, y float64, name string, p *family.Person) {
		b = b.Union(layout.Around(x, y, r, r))
		ns := labelSize * th.FontSize
		b = b.Union(layout.Around(x, y+nameOffset*th.FontSize, textWidth(name, ns)/2, ns/2))
		if p != nil {
			ds := datesSize * th.FontSize
			b = b.Union(layout.Around(x, y+datesOffset*th.FontSize, textWidth(p.Lifespan(), ds)/2, ds/2))
		}
	}
	for _, n := range l.Nodes {
		person(n.X, n.Y, n.Name, n.Person)
		if sp := n.Spouse; sp != nil {
			person(sp.X, sp.Y, sp.Name, sp.Person)
		}
	}
	return b
}

func emptyStateBox(th Theme) layout.Rect {
	size := th.WithDefaults().FontSize * 1.25
	return layout.Around(0, 0, textWidth(EmptyText, size)/2, size)
}
