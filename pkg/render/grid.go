package render

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/stemma/pkg/layout"
)

// Terminal cells are roughly twice as tall as they are wide.
const cellAspect = 2.0

// GridSurface plots a diagram onto a character grid for terminal display.
// Frame width and height are taken as columns and rows.
type GridSurface struct {
	cols, rows int
	frame      Frame
	cells      [][]rune
	colors     [][]string
}

// NewGridSurface returns an empty grid surface.
func NewGridSurface() *GridSurface { return &GridSurface{} }

func (g *GridSurface) Begin(f Frame) {
	g.frame = f
	g.cols = max(0, int(f.Width))
	g.rows = max(0, int(f.Height))
	g.cells = make([][]rune, g.rows)
	g.colors = make([][]string, g.rows)
	for y := range g.cells {
		g.cells[y] = []rune(strings.Repeat(" ", g.cols))
		g.colors[y] = make([]string, g.cols)
	}
}

func (g *GridSurface) cell(p layout.Point) (int, int) {
	q := g.frame.project(p)
	return int(math.Round(q.X)), int(math.Round(q.Y))
}

func (g *GridSurface) set(x, y int, r rune, color string) {
	if y < 0 || y >= g.rows || x < 0 || x >= g.cols {
		return
	}
	g.cells[y][x] = r
	g.colors[y][x] = color
}

// Circle draws a bracket pair around the center; the initials drawn
// afterwards land between them.
func (g *GridSurface) Circle(c layout.Point, r float64, st Style) {
	x, y := g.cell(c)
	if r < 12 {
		g.set(x, y, '●', st.Fill)
		return
	}
	open, closing := '(', ')'
	if len(st.Dash) > 0 {
		open, closing = '{', '}'
	}
	g.set(x-2, y, open, st.Stroke)
	g.set(x-1, y, ' ', st.Stroke)
	g.set(x, y, ' ', st.Stroke)
	g.set(x+1, y, ' ', st.Stroke)
	g.set(x+2, y, closing, st.Stroke)
}

func (g *GridSurface) Line(a, b layout.Point, st Style) {
	x0, y0 := g.cell(a)
	x1, y1 := g.cell(b)
	ch := '·'
	switch {
	case y0 == y1:
		ch = '─'
	case x0 == x1:
		ch = '│'
	}
	n := max(abs(x1-x0), abs(y1-y0))
	for i := 0; i <= n; i++ {
		t := 0.0
		if n > 0 {
			t = float64(i) / float64(n)
		}
		g.setIfEmpty(int(math.Round(float64(x0)+t*float64(x1-x0))), int(math.Round(float64(y0)+t*float64(y1-y0))), ch, st.Stroke)
	}
}

// Curve samples the Bezier and marks each visited cell.
func (g *GridSurface) Curve(a, c1, c2, b layout.Point, st Style) {
	const steps = 64
	px, py := g.cell(a)
	for i := 1; i <= steps; i++ {
		t := float64(i) / steps
		x, y := g.cell(bezier(a, c1, c2, b, t))
		ch := '│'
		switch {
		case y == py && x != px:
			ch = '─'
		case x > px:
			ch = '╲'
		case x < px:
			ch = '╱'
		}
		g.setIfEmpty(x, y, ch, st.Stroke)
		px, py = x, y
	}
}

func (g *GridSurface) setIfEmpty(x, y int, r rune, color string) {
	if y < 0 || y >= g.rows || x < 0 || x >= g.cols || g.cells[y][x] != ' ' {
		return
	}
	g.set(x, y, r, color)
}

func (g *GridSurface) Text(p layout.Point, s string, ts TextStyle) {
	x, y := g.cell(p)
	rs := []rune(s)
	start := x - len(rs)/2
	for i, r := range rs {
		g.set(start+i, y, r, ts.Color)
	}
}

func (g *GridSurface) Photo(c layout.Point, _ float64, _, fallback string, ts TextStyle) {
	g.Text(c, fallback, ts)
}

func (g *GridSurface) End() error { return nil }

// String returns the grid as plain text, one line per row with trailing
// spaces trimmed.
func (g *GridSurface) String() string {
	lines := make([]string, g.rows)
	for y, row := range g.cells {
		lines[y] = strings.TrimRight(string(row), " ")
	}
	return strings.Join(lines, "\n")
}

// Styled returns the grid with each colored run wrapped in a lipgloss style.
func (g *GridSurface) Styled() string {
	var b strings.Builder
	for y, row := range g.cells {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x := 0; x < len(row); {
			color := g.colors[y][x]
			end := x
			for end < len(row) && g.colors[y][end] == color {
				end++
			}
			run := string(row[x:end])
			if color != "" {
				run = lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(run)
			}
			b.WriteString(run)
			x = end
		}
	}
	return b.String()
}

// GridFrame returns a frame of cols x rows cells looking at the diagram
// region centered on center, where one column spans unitsPerCol diagram
// units.
func GridFrame(cols, rows int, center layout.Point, unitsPerCol float64, t Transform) Frame {
	w := float64(cols) * unitsPerCol
	h := float64(rows) * unitsPerCol * cellAspect
	return Frame{
		Width:     float64(cols),
		Height:    float64(rows),
		ViewBox:   layout.Around(center.X, center.Y, w/2, h/2),
		Transform: t,
	}
}

func bezier(a, b, c, d layout.Point, t float64) layout.Point {
	u := 1 - t
	return layout.Point{
		X: u*u*u*a.X + 3*u*u*t*b.X + 3*u*t*t*c.X + t*t*t*d.X,
		Y: u*u*u*a.Y + 3*u*u*t*b.Y + 3*u*t*t*c.Y + t*t*t*d.Y,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
