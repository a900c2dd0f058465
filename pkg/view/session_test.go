package view

import (
	"context"
	"io"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/family"
	"github.com/matzehuels/stemma/pkg/layout"
	"github.com/matzehuels/stemma/pkg/pipeline"
	"github.com/matzehuels/stemma/pkg/render"
)

type memSource struct {
	tree      family.Tree
	persons   []family.Person
	edges     []family.ParentChildEdge
	marriages []family.Marriage
	err       error
}

func (m *memSource) Tree(context.Context, int64) (family.Tree, error) { return m.tree, m.err }
func (m *memSource) Persons(context.Context, int64) ([]family.Person, error) {
	return m.persons, nil
}
func (m *memSource) Relationships(context.Context, int64) ([]family.ParentChildEdge, error) {
	return m.edges, nil
}
func (m *memSource) Marriages(context.Context, int64) ([]family.Marriage, error) {
	return m.marriages, nil
}

func bergFamily() *memSource {
	born := func(y int) time.Time { return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC) }
	return &memSource{
		tree: family.Tree{ID: 1, Name: "Berg Family"},
		persons: []family.Person{
			{ID: 1, FirstName: "Anna", LastName: "Berg", Gender: family.GenderFemale, BirthDate: born(1940), Photo: "photos/anna.jpg"},
			{ID: 2, FirstName: "Ben", Gender: family.GenderMale},
			{ID: 3, FirstName: "Cleo", BirthDate: born(1970), Alive: true},
			{ID: 4, FirstName: "Dan", Gender: family.GenderMale},
		},
		edges: []family.ParentChildEdge{
			{Parent: 1, Child: 3, Type: family.Biological},
			{Parent: 3, Child: 4, Type: family.Adoptive},
		},
		marriages: []family.Marriage{{Spouse1: 1, Spouse2: 2, Current: true}},
	}
}

func newRunner(src *memSource) *pipeline.Runner {
	return pipeline.NewRunner(src, nil, nil, log.NewWithOptions(io.Discard, log.Options{}))
}

func loadedSession(t *testing.T, src *memSource, opts ...Option) *Session {
	t.Helper()
	s := New(newRunner(src), 1, opts...)
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return s
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSessionNotLoaded(t *testing.T) {
	s := New(newRunner(bergFamily()), 1)
	if _, err := s.Toggle(context.Background(), 1); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Toggle before load = %v", err)
	}
	if _, err := s.Export(context.Background(), QualityHD); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Export before load = %v", err)
	}
	if got := s.Tree().ID; got != 1 {
		t.Errorf("Tree().ID = %d", got)
	}
}

func TestSessionToggle(t *testing.T) {
	ctx := context.Background()
	s := loadedSession(t, bergFamily())
	if n := len(s.Layout().Nodes); n != 3 {
		t.Fatalf("visible nodes = %d, want 3", n)
	}

	collapsed, err := s.Toggle(ctx, 3)
	if err != nil || !collapsed {
		t.Fatalf("Toggle(3) = %v, %v", collapsed, err)
	}
	if n := len(s.Layout().Nodes); n != 2 {
		t.Errorf("visible nodes after collapse = %d, want 2", n)
	}
	node, _ := s.Layout().Node(3)
	if !node.Collapsed {
		t.Error("node 3 should be drawn collapsed")
	}

	collapsed, err = s.Toggle(ctx, 3)
	if err != nil || collapsed {
		t.Fatalf("second Toggle(3) = %v, %v", collapsed, err)
	}
	if n := len(s.Layout().Nodes); n != 3 {
		t.Errorf("visible nodes after expand = %d, want 3", n)
	}

	if _, err := s.Toggle(ctx, 99); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Toggle(99) = %v", err)
	}
}

func TestSessionExpandCollapseAll(t *testing.T) {
	ctx := context.Background()
	s := loadedSession(t, bergFamily())

	s.CollapseAll(ctx)
	if n := len(s.Layout().Nodes); n != 1 {
		t.Errorf("nodes after CollapseAll = %d, want 1", n)
	}
	if got := s.Collapsed(); !slices.Equal(got, []int64{1, 3}) {
		t.Errorf("Collapsed() = %v", got)
	}

	s.ExpandAll(ctx)
	if n := len(s.Layout().Nodes); n != 3 {
		t.Errorf("nodes after ExpandAll = %d, want 3", n)
	}
	if got := s.Collapsed(); len(got) != 0 {
		t.Errorf("Collapsed() = %v", got)
	}
}

func TestSessionReloadKeepsCollapse(t *testing.T) {
	ctx := context.Background()
	s := loadedSession(t, bergFamily())
	if _, err := s.Toggle(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.Collapsed(); !slices.Equal(got, []int64{3}) {
		t.Errorf("Collapsed() after reload = %v", got)
	}
}

func TestSessionReloadFailureKeepsState(t *testing.T) {
	src := bergFamily()
	s := loadedSession(t, src)
	before := s.Layout()

	src.err = errors.New(errors.ErrCodeNetwork, "backend down")
	if err := s.Reload(context.Background()); !errors.Is(err, errors.ErrCodeNetwork) {
		t.Fatalf("Reload = %v", err)
	}
	if got := s.Layout(); len(got.Nodes) != len(before.Nodes) {
		t.Errorf("layout changed after failed reload: %d nodes", len(got.Nodes))
	}
	if s.Snapshot() == nil || s.Tree().Name != "Berg Family" {
		t.Error("snapshot lost after failed reload")
	}
}

func TestSessionZoom(t *testing.T) {
	s := New(newRunner(bergFamily()), 1)

	// The viewport point (600, 50) is the diagram origin in the default view.
	got := s.Zoom(2, layout.Point{X: 600, Y: 50})
	if !near(got.K, 2) || !near(got.X, 0) || !near(got.Y, 0) {
		t.Errorf("Zoom around origin = %+v", got)
	}

	s.Center()
	got = s.Zoom(2, layout.Point{})
	if !near(got.K, 2) || !near(got.X, 600) || !near(got.Y, 50) {
		t.Errorf("Zoom around corner = %+v", got)
	}
	// The anchor still maps to the same diagram point.
	p := got.Apply(layout.Point{X: -600, Y: -50})
	if !near(p.X, -600) || !near(p.Y, -50) {
		t.Errorf("anchor moved to %+v", p)
	}
}

func TestSessionZoomClamp(t *testing.T) {
	s := New(newRunner(bergFamily()), 1)
	tests := []struct {
		k, want float64
	}{
		{10, DefaultMaxZoom},
		{0.01, DefaultMinZoom},
		{1.5, 1.5},
	}
	for _, tt := range tests {
		if got := s.ZoomTo(tt.k, layout.Point{}); !near(got.K, tt.want) {
			t.Errorf("ZoomTo(%v).K = %v, want %v", tt.k, got.K, tt.want)
		}
	}
	if got := s.ZoomTo(-1, layout.Point{}); !near(got.K, 1.5) {
		t.Errorf("ZoomTo(-1) changed the scale to %v", got.K)
	}

	s = New(newRunner(bergFamily()), 1, WithZoomRange(0.5, 2))
	if lo, hi := s.ZoomRange(); lo != 0.5 || hi != 2 {
		t.Errorf("ZoomRange() = %v, %v", lo, hi)
	}
	if got := s.Zoom(100, layout.Point{}); !near(got.K, 2) {
		t.Errorf("Zoom clamp = %v", got.K)
	}
}

func TestSessionPanAndCenter(t *testing.T) {
	s := New(newRunner(bergFamily()), 1)
	s.Pan(10, -5)
	got := s.Pan(5, 5)
	if got != (render.Transform{X: 15, Y: 0, K: 1}) {
		t.Errorf("Pan = %+v", got)
	}
	s.Center()
	if got := s.Transform(); got != render.Identity {
		t.Errorf("Center left %+v", got)
	}
}

func TestSessionFrame(t *testing.T) {
	s := New(newRunner(bergFamily()), 1, WithViewport(800, 400))
	f := s.Frame()
	want := layout.Rect{MinX: -400, MinY: -DefaultTopMargin, MaxX: 400, MaxY: 400 - DefaultTopMargin}
	if f.Width != 800 || f.Height != 400 || f.ViewBox != want {
		t.Errorf("Frame() = %+v", f)
	}
	if f.Background != render.DefaultBackground {
		t.Errorf("Background = %q", f.Background)
	}

	if err := s.Resize(0, 10); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Resize(0, 10) = %v", err)
	}
	if err := s.Resize(1000, 500); err != nil {
		t.Fatal(err)
	}
	if f := s.Frame(); f.Width != 1000 || f.ViewBox.MinX != -500 {
		t.Errorf("Frame() after resize = %+v", f)
	}
}

func TestSessionPhotos(t *testing.T) {
	s := loadedSession(t, bergFamily(), WithPhotos("https://photos.example.com/"))
	svg, err := s.SVG()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(svg), `xlink:href="https://photos.example.com/photos/anna.jpg"`) {
		t.Errorf("photo missing from live view:\n%s", svg)
	}

	s.SetPhotos(false)
	svg, _ = s.SVG()
	if strings.Contains(string(svg), "<image") {
		t.Error("photos still shown after SetPhotos(false)")
	}

	plain := loadedSession(t, bergFamily())
	plain.SetPhotos(true)
	svg, _ = plain.SVG()
	if strings.Contains(string(svg), "<image") {
		t.Error("photos shown without a base URL")
	}
}

func TestSessionDrawGrid(t *testing.T) {
	s := loadedSession(t, bergFamily())
	grid := render.NewGridSurface()
	f := render.GridFrame(80, 24, layout.Point{Y: 150}, 8, render.Transform{})
	if err := s.DrawFrame(grid, f); err != nil {
		t.Fatal(err)
	}
	if out := grid.String(); !strings.Contains(out, "Cleo") {
		t.Errorf("grid view lacks labels:\n%s", out)
	}
}

func TestSessionSetCollapsed(t *testing.T) {
	ctx := context.Background()
	s := loadedSession(t, bergFamily())
	if err := s.SetCollapsed(ctx, []int64{3, 42}); err != nil {
		t.Fatal(err)
	}
	if got := s.Collapsed(); !slices.Equal(got, []int64{3}) {
		t.Errorf("Collapsed() = %v", got)
	}
	if n := len(s.Layout().Nodes); n != 2 {
		t.Errorf("visible nodes = %d, want 2", n)
	}
	if err := New(newRunner(bergFamily()), 1).SetCollapsed(ctx, nil); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("SetCollapsed before load = %v", err)
	}
}
